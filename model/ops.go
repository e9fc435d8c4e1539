package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// NewID returns a new persistent identifier.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("model: reading random bytes: %v", err))
	}
	return "id-" + hex.EncodeToString(b[:])
}

// ValidationError lists every problem found by Validate.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid model: " + strings.Join(e.Problems, "; ")
}

// Validate checks identifiers and references. It reports empty or duplicate
// IDs, folders with an unexpected type and relationships whose source or
// target does not resolve to an element.
func (m *Model) Validate() error {
	var problems []string
	seen := map[string]bool{}
	elements := map[string]bool{}

	claim := func(kind, id string) {
		if id == "" {
			problems = append(problems, fmt.Sprintf("%s with empty id", kind))
			return
		}
		if seen[id] {
			problems = append(problems, fmt.Sprintf("duplicate id %q", id))
		}
		seen[id] = true
	}

	claim("model", m.ID)

	var rels []Relationship
	var walk func(f *Folder, top bool)
	walk = func(f *Folder, top bool) {
		claim("folder", f.ID)
		if top && !f.Type.TopLevel() {
			problems = append(problems, fmt.Sprintf("folder %q has invalid top-level type %q", f.ID, f.Type))
		}
		if !top && f.Type != FolderTypeUser {
			problems = append(problems, fmt.Sprintf("nested folder %q must have type %q", f.ID, FolderTypeUser))
		}
		for i := range f.Elements {
			e := &f.Elements[i]
			claim("element", e.ID)
			if e.Type == "" {
				problems = append(problems, fmt.Sprintf("element %q has empty type", e.ID))
			}
			elements[e.ID] = true
		}
		for i := range f.Relationships {
			r := f.Relationships[i]
			claim("relationship", r.ID)
			if r.Type == "" {
				problems = append(problems, fmt.Sprintf("relationship %q has empty type", r.ID))
			}
			rels = append(rels, r)
		}
		for i := range f.Folders {
			walk(&f.Folders[i], false)
		}
	}

	types := map[FolderType]bool{}
	for i := range m.Folders {
		f := &m.Folders[i]
		if types[f.Type] {
			problems = append(problems, fmt.Sprintf("duplicate top-level folder type %q", f.Type))
		}
		types[f.Type] = true
		walk(f, true)
	}

	for _, r := range rels {
		if !elements[r.Source] {
			problems = append(problems, fmt.Sprintf("relationship %q has dangling source %q", r.ID, r.Source))
		}
		if !elements[r.Target] {
			problems = append(problems, fmt.Sprintf("relationship %q has dangling target %q", r.ID, r.Target))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	c := *m
	c.Properties = cloneProps(m.Properties)
	c.Folders = cloneFolders(m.Folders)
	return &c
}

// Replace replaces the contents of m with a deep copy of other while keeping
// the receiver's identity, so holders of the pointer see the new content.
func (m *Model) Replace(other *Model) {
	if other == nil {
		*m = Model{}
		return
	}
	*m = *other.Clone()
}

// Equal reports whether two models have equal content and identifiers.
// Ordering of folders, elements and relationships is ignored; property order
// is significant.
func (m *Model) Equal(other *Model) bool {
	if m == nil || other == nil {
		return m == other
	}
	a := m.Clone()
	b := other.Clone()
	a.Normalize()
	b.Normalize()
	return reflect.DeepEqual(a, b)
}

// Normalize sorts folders, elements and relationships by identifier and
// turns empty slices into nil. Export relies on this canonical order.
func (m *Model) Normalize() {
	if len(m.Properties) == 0 {
		m.Properties = nil
	}
	normalizeFolders(&m.Folders)
}

// Lookup returns the element with the given id.
func (m *Model) Lookup(id string) (*Element, bool) {
	var found *Element
	m.Walk(func(f *Folder) bool {
		for i := range f.Elements {
			if f.Elements[i].ID == id {
				found = &f.Elements[i]
				return false
			}
		}
		return true
	})
	return found, found != nil
}

// NameOf returns the display name of the object with the given id, or the id
// itself when the object has no name or is not in the model.
func (m *Model) NameOf(id string) string {
	name := ""
	m.Walk(func(f *Folder) bool {
		if f.ID == id {
			name = f.Name
			return false
		}
		for _, e := range f.Elements {
			if e.ID == id {
				name = e.Name
				return false
			}
		}
		for _, r := range f.Relationships {
			if r.ID == id {
				name = r.Name
				return false
			}
		}
		return true
	})
	if name == "" {
		return id
	}
	return name
}

// Walk visits every folder depth-first. Returning false stops the walk.
func (m *Model) Walk(fn func(f *Folder) bool) {
	var walk func(fs []Folder) bool
	walk = func(fs []Folder) bool {
		for i := range fs {
			if !fn(&fs[i]) {
				return false
			}
			if !walk(fs[i].Folders) {
				return false
			}
		}
		return true
	}
	walk(m.Folders)
}

// Folder returns the top-level folder of the given type, creating it when
// missing.
func (m *Model) Folder(t FolderType) *Folder {
	for i := range m.Folders {
		if m.Folders[i].Type == t {
			return &m.Folders[i]
		}
	}
	m.Folders = append(m.Folders, Folder{ID: NewID(), Name: DefaultFolderName(t), Type: t})
	return &m.Folders[len(m.Folders)-1]
}

// Counts returns the number of elements and relationships in the model.
func (m *Model) Counts() (elements, relationships int) {
	m.Walk(func(f *Folder) bool {
		elements += len(f.Elements)
		relationships += len(f.Relationships)
		return true
	})
	return elements, relationships
}

// DefaultFolderName returns the display name given to a new top-level folder.
func DefaultFolderName(t FolderType) string {
	switch t {
	case FolderTypeImplementation:
		return "Implementation & Migration"
	case FolderTypeRelations:
		return "Relations"
	default:
		s := string(t)
		if s == "" {
			return ""
		}
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

func cloneProps(p []Property) []Property {
	if p == nil {
		return nil
	}
	return append([]Property(nil), p...)
}

func cloneFolders(fs []Folder) []Folder {
	if fs == nil {
		return nil
	}
	out := make([]Folder, len(fs))
	for i, f := range fs {
		out[i] = f
		out[i].Properties = cloneProps(f.Properties)
		if f.Elements != nil {
			out[i].Elements = make([]Element, len(f.Elements))
			for j, e := range f.Elements {
				out[i].Elements[j] = e
				out[i].Elements[j].Properties = cloneProps(e.Properties)
			}
		}
		if f.Relationships != nil {
			out[i].Relationships = make([]Relationship, len(f.Relationships))
			for j, r := range f.Relationships {
				out[i].Relationships[j] = r
				out[i].Relationships[j].Properties = cloneProps(r.Properties)
			}
		}
		out[i].Folders = cloneFolders(f.Folders)
	}
	return out
}

func normalizeFolders(fs *[]Folder) {
	if len(*fs) == 0 {
		*fs = nil
		return
	}
	sort.Slice(*fs, func(i, j int) bool {
		a, b := (*fs)[i], (*fs)[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.ID < b.ID
	})
	for i := range *fs {
		f := &(*fs)[i]
		if len(f.Properties) == 0 {
			f.Properties = nil
		}
		if len(f.Elements) == 0 {
			f.Elements = nil
		}
		for j := range f.Elements {
			if len(f.Elements[j].Properties) == 0 {
				f.Elements[j].Properties = nil
			}
		}
		sort.Slice(f.Elements, func(i, j int) bool { return f.Elements[i].ID < f.Elements[j].ID })
		if len(f.Relationships) == 0 {
			f.Relationships = nil
		}
		for j := range f.Relationships {
			if len(f.Relationships[j].Properties) == 0 {
				f.Relationships[j].Properties = nil
			}
		}
		sort.Slice(f.Relationships, func(i, j int) bool { return f.Relationships[i].ID < f.Relationships[j].ID })
		normalizeFolders(&f.Folders)
	}
}
