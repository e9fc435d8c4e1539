package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
)

// ToBillyFilesystem returns the billy filesystem behind fsys. Only
// filesystems created by the fs/billy package carry one.
//
//nolint:ireturn // go-git storage is built on billy.Filesystem
func ToBillyFilesystem(fsys fs.Filesystem) (billy.Filesystem, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem is nil")
	}
	billyFS, ok := fsys.(*fsb.FS)
	if !ok {
		return nil, fmt.Errorf("filesystem must be a billy.FS from fs/billy package, got %T", fsys)
	}
	return billyFS.Raw(), nil
}

// Open converts fsys and lays out a repository on it. See NewLayout.
func Open(fsys fs.Filesystem, workdir string, bare bool, cacheSize int) (*Layout, error) {
	billyFS, err := ToBillyFilesystem(fsys)
	if err != nil {
		return nil, err
	}
	return NewLayout(billyFS, workdir, bare, cacheSize)
}
