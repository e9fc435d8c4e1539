package grafico

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model"
)

// Import reads the exported file set from the working copy and rebuilds the
// model, restoring persistent identifiers. Objects whose fragment is missing
// or incomplete are dropped or rebuilt and listed in the returned Report.
func (s *Serializer) Import(ctx context.Context) (*model.Model, *Report, error) {
	const op = "grafico.Import"

	set, err := ReadFileSet(s.fs, s.root)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeSerialization, op, "reading exported files")
	}

	m, report, err := Parse(set, s.root)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeSerialization, op, "parsing exported files")
	}

	for _, x := range report.Removed {
		s.logger.WarnContext(ctx, "object removed on import", "id", x.ID, "path", x.Path, "reason", x.Reason)
	}
	for _, x := range report.Restored {
		s.logger.WarnContext(ctx, "object restored on import", "id", x.ID, "path", x.Path, "reason", x.Reason)
	}
	elements, relationships := m.Counts()
	s.logger.InfoContext(ctx, "model imported",
		"files", len(set),
		"elements", elements,
		"relationships", relationships,
	)
	return m, report, nil
}

// dirNode is one directory of the exported tree.
type dirNode struct {
	path     string
	files    map[string][]byte
	children map[string]*dirNode
}

func newDirNode(p string) *dirNode {
	return &dirNode{path: p, files: map[string][]byte{}, children: map[string]*dirNode{}}
}

func (d *dirNode) child(name string) *dirNode {
	c, ok := d.children[name]
	if !ok {
		c = newDirNode(path.Join(d.path, name))
		d.children[name] = c
	}
	return c
}

func (d *dirNode) sortedChildren() []*dirNode {
	names := make([]string, 0, len(d.children))
	for n := range d.children {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*dirNode, 0, len(names))
	for _, n := range names {
		out = append(out, d.children[n])
	}
	return out
}

func (d *dirNode) sortedFiles() []string {
	names := make([]string, 0, len(d.files))
	for n := range d.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// parser carries the state of one Parse call.
type parser struct {
	report   *Report
	seen     map[string]string
	elements map[string]bool
}

// Parse rebuilds a model from an exported file set rooted at root.
// Only a missing or unreadable model header is fatal.
func Parse(set FileSet, root string) (*model.Model, *Report, error) {
	headerPath := path.Join(root, FolderFile)
	raw, ok := set[headerPath]
	if !ok {
		return nil, nil, fmt.Errorf("no model header at %s", headerPath)
	}
	var hdr modelDoc
	if err := yaml.Unmarshal(raw, &hdr); err != nil {
		return nil, nil, fmt.Errorf("reading model header %s: %w", headerPath, err)
	}
	if hdr.ID == "" {
		return nil, nil, fmt.Errorf("model header %s has no id", headerPath)
	}

	tree := newDirNode(root)
	var strays []string
	for _, p := range set.Paths() {
		if p == headerPath || !strings.HasPrefix(p, root+"/") {
			continue
		}
		parts := strings.Split(strings.TrimPrefix(p, root+"/"), "/")
		if len(parts) == 1 {
			strays = append(strays, p)
			continue
		}
		node := tree
		for _, dir := range parts[:len(parts)-1] {
			node = node.child(dir)
		}
		node.files[parts[len(parts)-1]] = set[p]
	}

	m := &model.Model{
		ID:         hdr.ID,
		Name:       hdr.Name,
		Purpose:    hdr.Purpose,
		Properties: hdr.Properties,
	}
	p := &parser{
		report:   &Report{},
		seen:     map[string]string{m.ID: headerPath},
		elements: map[string]bool{},
	}
	for _, stray := range strays {
		p.report.remove(Repair{Path: stray, Reason: "unexpected file"})
	}

	for _, node := range tree.sortedChildren() {
		typ := model.FolderType(path.Base(node.path))
		if !typ.TopLevel() {
			p.report.remove(Repair{Path: node.path, Reason: "unknown top-level folder"})
			continue
		}
		m.Folders = append(m.Folders, p.folder(node, typ, true))
	}

	p.dropDangling(m)
	m.Normalize()

	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	return m, p.report, nil
}

func (p *parser) folder(node *dirNode, typ model.FolderType, top bool) model.Folder {
	headerPath := path.Join(node.path, FolderFile)
	f := model.Folder{Type: typ}

	raw, ok := node.files[FolderFile]
	var hdr folderDoc
	var reason string
	switch {
	case !ok:
		reason = "missing folder header"
	default:
		if err := yaml.Unmarshal(raw, &hdr); err != nil {
			reason = "unreadable folder header"
		} else if hdr.ID == "" {
			reason = "incomplete folder header"
		}
	}

	if reason == "" {
		f.ID = hdr.ID
		f.Name = hdr.Name
		f.Documentation = hdr.Documentation
		f.Properties = hdr.Properties
	} else {
		if top {
			f.ID = "id-folder-" + string(typ)
			f.Name = model.DefaultFolderName(typ)
		} else {
			f.ID = path.Base(node.path)
			f.Name = path.Base(node.path)
		}
		p.report.restore(Repair{ID: f.ID, Name: f.Name, Path: headerPath, Reason: reason})
	}
	if !top {
		f.Type = model.FolderTypeUser
	}
	if prev, dup := p.seen[f.ID]; dup {
		// keep the folder but give it a path-derived identity
		p.report.restore(Repair{ID: f.ID, Name: f.Name, Path: headerPath, Reason: "id already used by " + prev})
		f.ID = "id-folder-" + strings.ReplaceAll(node.path, "/", "-")
	}
	p.seen[f.ID] = headerPath

	for _, name := range node.sortedFiles() {
		if name == FolderFile {
			continue
		}
		if path.Ext(name) != fileExt {
			p.report.remove(Repair{Path: path.Join(node.path, name), Reason: "unexpected file"})
			continue
		}
		p.object(&f, path.Join(node.path, name), node.files[name])
	}

	for _, child := range node.sortedChildren() {
		f.Folders = append(f.Folders, p.folder(child, model.FolderTypeUser, false))
	}
	return f
}

func (p *parser) object(f *model.Folder, filePath string, raw []byte) {
	fallbackID := idFromFileName(path.Base(filePath))

	var doc objectDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		p.report.remove(Repair{ID: fallbackID, Path: filePath, Reason: "unreadable fragment"})
		return
	}
	if doc.ID == "" || doc.Type == "" {
		p.report.remove(Repair{ID: firstNonEmpty(doc.ID, fallbackID), Name: doc.Name, Path: filePath, Reason: "incomplete fragment"})
		return
	}
	if prev, dup := p.seen[doc.ID]; dup {
		p.report.remove(Repair{ID: doc.ID, Name: doc.Name, Path: filePath, Reason: "duplicate of " + prev})
		return
	}

	switch doc.Kind {
	case kindElement:
		f.Elements = append(f.Elements, model.Element{
			ID:            doc.ID,
			Type:          doc.Type,
			Name:          doc.Name,
			Documentation: doc.Documentation,
			Properties:    doc.Properties,
		})
		p.elements[doc.ID] = true
	case kindRelationship:
		if doc.Source == "" || doc.Target == "" {
			p.report.remove(Repair{ID: doc.ID, Name: doc.Name, Path: filePath, Reason: "relationship without source or target"})
			return
		}
		f.Relationships = append(f.Relationships, model.Relationship{
			ID:            doc.ID,
			Type:          doc.Type,
			Name:          doc.Name,
			Documentation: doc.Documentation,
			Source:        doc.Source,
			Target:        doc.Target,
			Properties:    doc.Properties,
		})
	default:
		p.report.remove(Repair{ID: doc.ID, Name: doc.Name, Path: filePath, Reason: fmt.Sprintf("unknown kind %q", doc.Kind)})
		return
	}
	p.seen[doc.ID] = filePath
}

// dropDangling removes relationships whose ends did not survive the import.
func (p *parser) dropDangling(m *model.Model) {
	m.Walk(func(f *model.Folder) bool {
		kept := f.Relationships[:0]
		for _, r := range f.Relationships {
			switch {
			case !p.elements[r.Source]:
				p.report.remove(Repair{ID: r.ID, Name: r.Name, Path: p.seen[r.ID], Reason: "missing source " + r.Source})
			case !p.elements[r.Target]:
				p.report.remove(Repair{ID: r.ID, Name: r.Name, Path: p.seen[r.ID], Reason: "missing target " + r.Target})
			default:
				kept = append(kept, r)
			}
		}
		f.Relationships = kept
		return true
	})
}

// idFromFileName extracts the id from "<Type>_<id>.yaml".
func idFromFileName(name string) string {
	name = strings.TrimSuffix(name, fileExt)
	if i := strings.IndexByte(name, '_'); i >= 0 {
		return name[i+1:]
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
