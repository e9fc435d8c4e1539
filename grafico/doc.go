// Package grafico converts a model into a deterministic set of diff-friendly
// files inside a working copy, and back.
//
// Every folder, element and relationship is written to its own YAML file, so
// concurrent edits to different objects never touch the same file and merge
// conflicts stay confined to the objects that really diverged:
//
//	model/folder.yaml                          model header
//	model/<folder-type>/folder.yaml            top-level folder header
//	model/<folder-type>/<folder-id>/folder.yaml nested user folder
//	model/<...>/<Type>_<id>.yaml               one element or relationship
//
// Export is idempotent: files whose bytes would not change are left alone,
// and a failed export restores every file it touched. Import tolerates
// fragments that are missing or incomplete, for example after a botched
// manual edit or a partial merge: such objects are dropped or rebuilt and
// listed in a Report instead of failing the whole import.
package grafico
