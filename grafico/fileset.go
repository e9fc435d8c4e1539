package grafico

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// FileSet is an exported file set: slash-separated paths relative to the
// working copy root mapped to file contents.
type FileSet map[string][]byte

// Paths returns the paths of the set in sorted order.
func (s FileSet) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Equal reports whether both sets contain the same paths with identical bytes.
func (s FileSet) Equal(other FileSet) bool {
	if len(s) != len(other) {
		return false
	}
	for p, data := range s {
		o, ok := other[p]
		if !ok || !bytes.Equal(data, o) {
			return false
		}
	}
	return true
}

// ReadFileSet reads every regular file below root from fsys. A missing root
// yields an empty set.
func ReadFileSet(fsys billy.Filesystem, root string) (FileSet, error) {
	set := FileSet{}
	if _, err := fsys.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, err
	}

	err := util.Walk(fsys, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := util.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		set[path.Clean(filepath.ToSlash(p))] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
