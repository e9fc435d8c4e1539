// Package git provides the repository handle used by model synchronization.
// This file contains history operations.
package git

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// LogFilter selects the commits returned by Log.
type LogFilter struct {
	// Path keeps only commits that touched a file under this prefix.
	Path string

	// Since keeps only commits made after this time.
	Since *time.Time

	// MaxCount limits the number of commits returned. Zero means no limit.
	MaxCount int
}

// CommitInfo is a summary of one commit.
type CommitInfo struct {
	Hash    string
	Author  string
	Email   string
	When    time.Time
	Subject string
	Message string
	Parents int
}

// IsMerge reports whether the commit has more than one parent.
func (c CommitInfo) IsMerge() bool {
	return c.Parents > 1
}

// Log returns the history of HEAD, newest first. An unborn branch has an
// empty history.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) Log(ctx context.Context, f LogFilter) ([]CommitInfo, error) {
	head, err := r.Head()
	if err != nil {
		return nil, err
	}
	if head.IsZero() {
		return nil, nil
	}

	opts := &git.LogOptions{From: head, Order: git.LogOrderCommitterTime, Since: f.Since}
	if f.Path != "" {
		prefix := strings.TrimSuffix(f.Path, "/")
		opts.PathFilter = func(p string) bool {
			return p == prefix || strings.HasPrefix(p, prefix+"/")
		}
	}

	iter, err := r.repo.Log(opts)
	if err != nil {
		return nil, WrapError(err, "failed to read history")
	}
	defer iter.Close()

	var out []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.MaxCount > 0 && len(out) >= f.MaxCount {
			return storer.ErrStop
		}
		out = append(out, commitInfo(c))
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, WrapError(err, "failed to iterate history")
	}
	return out, nil
}

func commitInfo(c *object.Commit) CommitInfo {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return CommitInfo{
		Hash:    c.Hash.String(),
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		When:    c.Author.When,
		Subject: subject,
		Message: c.Message,
		Parents: c.NumParents(),
	}
}
