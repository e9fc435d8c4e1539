// Package model provides the in-memory structured model that is placed under
// version control.
//
// A Model is a tree of folders holding elements and relationships. Every
// object carries a stable persistent identifier which survives serialization
// round-trips, so that the file representation produced for version control
// stays diff-stable between runs.
//
// # Structure
//
//   - Model: the document root, with a name, purpose and properties
//   - Folder: a typed top-level container or a nested user folder
//   - Element: a named, typed node
//   - Relationship: a typed edge between two elements, referenced by ID
//
// The package has no dependencies beyond the standard library. The owner of
// a Model (typically an editor) keeps its pointer for the whole session;
// synchronization replaces the contents in place with Replace.
package model
