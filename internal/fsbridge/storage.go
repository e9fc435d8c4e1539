// Package fsbridge lays out go-git storage and worktree on a billy filesystem.
package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// DefaultCacheSize is the LRU object cache size used when none is given.
const DefaultCacheSize = 1000

// MetadataDir is the repository metadata directory of a non-bare repository.
const MetadataDir = ".git"

// NewStorage creates git storage on billyFS with an LRU object cache.
func NewStorage(billyFS billy.Filesystem, cacheSize int) *filesystem.Storage {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	objCache := cache.NewObjectLRU(cache.FileSize(cacheSize))
	return filesystem.NewStorage(billyFS, objCache)
}

// Layout is the set of filesystems backing one repository.
type Layout struct {
	// Storage holds objects, refs and config.
	Storage *filesystem.Storage

	// Worktree is the working copy root. Nil for bare repositories.
	Worktree billy.Filesystem

	// Metadata is the filesystem Storage lives on. Files written here are
	// never part of the working copy.
	Metadata billy.Filesystem
}

// NewLayout scopes fsys to workdir and places storage either at its root
// (bare) or in the ".git" directory below it.
func NewLayout(fsys billy.Filesystem, workdir string, bare bool, cacheSize int) (*Layout, error) {
	scoped, err := fsys.Chroot(workdir)
	if err != nil {
		return nil, fmt.Errorf("failed to chroot to workdir %q: %w", workdir, err)
	}

	if bare {
		return &Layout{
			Storage:  NewStorage(scoped, cacheSize),
			Metadata: scoped,
		}, nil
	}

	dotGit, err := scoped.Chroot(MetadataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s directory: %w", MetadataDir, err)
	}
	return &Layout{
		Storage:  NewStorage(dotGit, cacheSize),
		Worktree: scoped,
		Metadata: dotGit,
	}, nil
}
