package grafico

import (
	"bytes"
	"fmt"
	"path"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model"
)

const (
	// DefaultRoot is the folder inside the working copy that holds the export.
	DefaultRoot = "model"

	// FolderFile is the name of the header file of every folder.
	FolderFile = "folder.yaml"

	fileExt = ".yaml"
)

const (
	kindElement      = "element"
	kindRelationship = "relationship"
)

var (
	safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	safeType = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
)

// modelDoc is the on-disk shape of the model header.
type modelDoc struct {
	ID         string           `yaml:"id"`
	Name       string           `yaml:"name"`
	Purpose    string           `yaml:"purpose,omitempty"`
	Properties []model.Property `yaml:"properties,omitempty"`
}

// folderDoc is the on-disk shape of a folder header.
type folderDoc struct {
	ID            string           `yaml:"id"`
	Name          string           `yaml:"name"`
	Type          model.FolderType `yaml:"type"`
	Documentation string           `yaml:"documentation,omitempty"`
	Properties    []model.Property `yaml:"properties,omitempty"`
}

// objectDoc is the on-disk shape of an element or relationship.
type objectDoc struct {
	Kind          string           `yaml:"kind"`
	ID            string           `yaml:"id"`
	Type          string           `yaml:"type"`
	Name          string           `yaml:"name,omitempty"`
	Documentation string           `yaml:"documentation,omitempty"`
	Source        string           `yaml:"source,omitempty"`
	Target        string           `yaml:"target,omitempty"`
	Properties    []model.Property `yaml:"properties,omitempty"`
}

// Render produces the exported file set of m below root without touching
// any filesystem. The output is byte-identical for equal models.
func Render(m *model.Model, root string) (FileSet, error) {
	if m == nil {
		return nil, fmt.Errorf("model is nil")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	canon := m.Clone()
	canon.Normalize()

	set := FileSet{}
	hdr, err := encode(modelDoc{
		ID:         canon.ID,
		Name:       canon.Name,
		Purpose:    canon.Purpose,
		Properties: canon.Properties,
	})
	if err != nil {
		return nil, err
	}
	set[path.Join(root, FolderFile)] = hdr

	for i := range canon.Folders {
		f := &canon.Folders[i]
		if err := renderFolder(set, path.Join(root, string(f.Type)), f); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func renderFolder(set FileSet, dir string, f *model.Folder) error {
	hdr, err := encode(folderDoc{
		ID:            f.ID,
		Name:          f.Name,
		Type:          f.Type,
		Documentation: f.Documentation,
		Properties:    f.Properties,
	})
	if err != nil {
		return err
	}
	set[path.Join(dir, FolderFile)] = hdr

	for _, e := range f.Elements {
		p, err := objectPath(dir, e.Type, e.ID)
		if err != nil {
			return err
		}
		data, err := encode(objectDoc{
			Kind:          kindElement,
			ID:            e.ID,
			Type:          e.Type,
			Name:          e.Name,
			Documentation: e.Documentation,
			Properties:    e.Properties,
		})
		if err != nil {
			return err
		}
		set[p] = data
	}

	for _, r := range f.Relationships {
		p, err := objectPath(dir, r.Type, r.ID)
		if err != nil {
			return err
		}
		data, err := encode(objectDoc{
			Kind:          kindRelationship,
			ID:            r.ID,
			Type:          r.Type,
			Name:          r.Name,
			Documentation: r.Documentation,
			Source:        r.Source,
			Target:        r.Target,
			Properties:    r.Properties,
		})
		if err != nil {
			return err
		}
		set[p] = data
	}

	for i := range f.Folders {
		sub := &f.Folders[i]
		if !safeName.MatchString(sub.ID) {
			return fmt.Errorf("folder id %q cannot be used as a directory name", sub.ID)
		}
		if err := renderFolder(set, path.Join(dir, sub.ID), sub); err != nil {
			return err
		}
	}
	return nil
}

func objectPath(dir, typ, id string) (string, error) {
	if !safeType.MatchString(typ) {
		return "", fmt.Errorf("type %q cannot be used in a file name", typ)
	}
	if !safeName.MatchString(id) {
		return "", fmt.Errorf("id %q cannot be used in a file name", id)
	}
	return path.Join(dir, typ+"_"+id+fileExt), nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return buf.Bytes(), nil
}
