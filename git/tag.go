// Package git provides the repository handle used by model synchronization.
// This file contains tag operations. Tags mark model versions and are
// published alongside the branch.
package git

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// TagInfo describes a tag and the commit it marks.
type TagInfo struct {
	Name      string
	Commit    plumbing.Hash
	Message   string
	Annotated bool
}

// CreateTag tags the commit target resolves to. A non-empty message creates
// an annotated tag signed with the user identity; otherwise the tag is
// lightweight. An empty target tags HEAD.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) CreateTag(ctx context.Context, name, target, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return WrapError(ErrInvalidRef, "tag name cannot be empty")
	}
	if target == "" {
		target = plumbing.HEAD.String()
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(target))
	if err != nil {
		return WrapErrorf(ErrResolveFailed, "failed to resolve %q", target)
	}

	tagRef := plumbing.NewTagReferenceName(name)
	if _, err := r.repo.Reference(tagRef, true); err == nil {
		return WrapErrorf(ErrTagExists, "tag %s", name)
	}

	if message == "" {
		if err := r.repo.Storer.SetReference(plumbing.NewHashReference(tagRef, *hash)); err != nil {
			return WrapError(err, "failed to create lightweight tag")
		}
		r.logger.InfoContext(ctx, "tag created", "tag", name, "commit", hash.String())
		return nil
	}

	id, err := r.UserIdentity()
	if err != nil {
		return err
	}
	if !id.Valid() {
		return ErrNoIdentity
	}
	_, err = r.repo.CreateTag(name, *hash, &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: id.Name, Email: id.Email, When: time.Now()},
		Message: message,
	})
	if err != nil {
		return WrapError(err, "failed to create annotated tag")
	}
	r.logger.InfoContext(ctx, "tag created", "tag", name, "commit", hash.String(), "annotated", true)
	return nil
}

// DeleteTag deletes the tag name.
func (r *Repo) DeleteTag(ctx context.Context, name string) error {
	if name == "" {
		return WrapError(ErrInvalidRef, "tag name cannot be empty")
	}
	if err := r.repo.DeleteTag(name); err != nil {
		if errors.Is(err, git.ErrTagNotFound) {
			return WrapErrorf(ErrResolveFailed, "tag %s does not exist", name)
		}
		return WrapError(err, "failed to delete tag")
	}
	r.logger.DebugContext(ctx, "tag deleted", "tag", name)
	return nil
}

// Tags lists the tags whose name starts with prefix, sorted by name.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) Tags(ctx context.Context, prefix string) ([]TagInfo, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, WrapError(err, "failed to list tags")
	}
	defer iter.Close()

	var tags []TagInfo
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := ref.Name().Short()
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		info := TagInfo{Name: name, Commit: ref.Hash()}
		if tag, err := r.repo.TagObject(ref.Hash()); err == nil {
			info.Annotated = true
			info.Message = strings.TrimSpace(tag.Message)
			info.Commit = tag.Target
		}
		tags = append(tags, info)
		return nil
	})
	if err != nil {
		return nil, WrapError(err, "failed to iterate tags")
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}
