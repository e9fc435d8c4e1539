package git

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ConflictKind classifies a file changed on both sides of a merge.
type ConflictKind string

const (
	// ConflictModifyModify means both sides changed an existing file.
	ConflictModifyModify ConflictKind = "modify/modify"

	// ConflictAddAdd means both sides added the file with different content.
	ConflictAddAdd ConflictKind = "add/add"

	// ConflictDeleteModify means the local side deleted a file the remote changed.
	ConflictDeleteModify ConflictKind = "delete/modify"

	// ConflictModifyDelete means the local side changed a file the remote deleted.
	ConflictModifyDelete ConflictKind = "modify/delete"
)

// ConflictFile is one file that could not be merged automatically.
type ConflictFile struct {
	Path string
	Kind ConflictKind

	// Base, Ours and Theirs hold the file content on each side. A side
	// where the file does not exist has a nil slice and its In flag unset.
	Base   []byte
	Ours   []byte
	Theirs []byte

	InOurs   bool
	InTheirs bool
}

// ConflictSet is the result of a merge that needs a decision from the user.
// Nothing has been written to the working copy when it is returned.
type ConflictSet struct {
	// RemoteBranch is the short name of the tracking branch being merged,
	// e.g. "origin/master".
	RemoteBranch string

	Ours   plumbing.Hash
	Theirs plumbing.Hash
	Base   plumbing.Hash

	// Files lists the conflicting files sorted by path.
	Files []ConflictFile

	// Merged holds files changed only by the remote side, with the content
	// they take in the merge result.
	Merged map[string][]byte

	// Removed lists files deleted only by the remote side.
	Removed []string

	// Added lists paths that exist in the remote side but not in ours. They
	// must be deleted when the merge is abandoned.
	Added []string
}

// Paths returns the conflicting paths in sorted order.
func (c *ConflictSet) Paths() []string {
	paths := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// File returns the conflict for path.
func (c *ConflictSet) File(path string) (*ConflictFile, bool) {
	for i := range c.Files {
		if c.Files[i].Path == path {
			return &c.Files[i], true
		}
	}
	return nil, false
}

// fileIndex maps paths of a tree to blob hashes.
type fileIndex map[string]plumbing.Hash

func (r *Repo) treeFiles(commit *object.Commit) (fileIndex, error) {
	files := fileIndex{}
	if commit == nil {
		return files, nil
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, WrapErrorf(err, "failed to read tree of %s", commit.Hash)
	}
	err = tree.Files().ForEach(func(f *object.File) error {
		files[f.Name] = f.Hash
		return nil
	})
	if err != nil {
		return nil, WrapErrorf(err, "failed to list tree of %s", commit.Hash)
	}
	return files, nil
}

func (r *Repo) blob(h plumbing.Hash) ([]byte, error) {
	if h.IsZero() {
		return nil, nil
	}
	b, err := r.repo.BlobObject(h)
	if err != nil {
		return nil, WrapErrorf(err, "failed to read blob %s", h)
	}
	rd, err := b.Reader()
	if err != nil {
		return nil, WrapErrorf(err, "failed to open blob %s", h)
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

// mergeTrees performs a file level three-way merge of theirs into ours.
// A file changed on one side only takes that side; a file changed on both
// sides to different content is a conflict.
func (r *Repo) mergeTrees(ctx context.Context, base, ours, theirs *object.Commit) (*ConflictSet, error) {
	baseFiles, err := r.treeFiles(base)
	if err != nil {
		return nil, err
	}
	ourFiles, err := r.treeFiles(ours)
	if err != nil {
		return nil, err
	}
	theirFiles, err := r.treeFiles(theirs)
	if err != nil {
		return nil, err
	}

	set := &ConflictSet{
		Ours:   ours.Hash,
		Theirs: theirs.Hash,
		Merged: map[string][]byte{},
	}
	if base != nil {
		set.Base = base.Hash
	}

	paths := map[string]bool{}
	for _, idx := range []fileIndex{baseFiles, ourFiles, theirFiles} {
		for p := range idx {
			paths[p] = true
		}
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	for _, p := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b, o, t := baseFiles[p], ourFiles[p], theirFiles[p]
		_, inOurs := ourFiles[p]
		_, inTheirs := theirFiles[p]

		if inTheirs && !inOurs {
			set.Added = append(set.Added, p)
		}

		switch {
		case o == t:
			continue
		case o == b:
			if !inTheirs {
				set.Removed = append(set.Removed, p)
				continue
			}
			data, err := r.blob(t)
			if err != nil {
				return nil, err
			}
			set.Merged[p] = data
		case t == b:
			continue
		default:
			cf := ConflictFile{Path: p, InOurs: inOurs, InTheirs: inTheirs}
			_, inBase := baseFiles[p]
			switch {
			case !inBase:
				cf.Kind = ConflictAddAdd
			case !inOurs:
				cf.Kind = ConflictDeleteModify
			case !inTheirs:
				cf.Kind = ConflictModifyDelete
			default:
				cf.Kind = ConflictModifyModify
			}
			if cf.Base, err = r.blob(b); err != nil {
				return nil, err
			}
			if cf.Ours, err = r.blob(o); err != nil {
				return nil, err
			}
			if cf.Theirs, err = r.blob(t); err != nil {
				return nil, err
			}
			set.Files = append(set.Files, cf)
		}
	}
	return set, nil
}

// mergeBase returns the best common ancestor, or nil for unrelated histories.
func mergeBase(ours, theirs *object.Commit) (*object.Commit, error) {
	bases, err := ours.MergeBase(theirs)
	if err != nil {
		return nil, WrapError(err, "failed to compute merge base")
	}
	if len(bases) == 0 {
		return nil, nil
	}
	return bases[0], nil
}

// applyMerge writes the non-conflicting side of a merge into the working copy.
func (r *Repo) applyMerge(set *ConflictSet) error {
	paths := make([]string, 0, len(set.Merged))
	for p := range set.Merged {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := r.WriteWorktreeFile(p, set.Merged[p]); err != nil {
			return err
		}
	}
	for _, p := range set.Removed {
		if err := r.RemoveWorktreeFile(p); err != nil {
			return err
		}
	}
	return nil
}

func mergeMessage(remoteBranch string) string {
	return fmt.Sprintf("Merge branch '%s'", remoteBranch)
}
