// Package git provides the repository handle used by model synchronization.
// This file contains repository construction and options.
package git

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	billyfs "github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/internal/auth"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = fsbridge.DefaultCacheSize

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."

	// DefaultRemoteName is the default remote name used for operations.
	DefaultRemoteName = "origin"
)

// Options configures repository discovery/creation and performance.
type Options struct {
	// FS is the REQUIRED filesystem root (OS or in-memory).
	// All repository state lives within this filesystem.
	// It must be created by the fs/billy package.
	FS fs.Filesystem

	// Workdir is the path within FS for the worktree root.
	// Defaults to "." (current directory in FS).
	Workdir string

	// Bare indicates if this should be a bare repository (.git only, no worktree).
	// Defaults to false (non-bare repository with worktree).
	Bare bool

	// StorerCacheSize sets the LRU objects cache entries.
	// Defaults to DefaultStorerCacheSize.
	StorerCacheSize int

	// RemoteName is the remote used for fetch, pull and push.
	// Defaults to DefaultRemoteName.
	RemoteName string

	// Logger receives debug and progress logging. Defaults to a discard logger.
	Logger *slog.Logger
}

// Validate checks that the Options are properly configured.
// It returns an error if required fields are missing or invalid.
func (o *Options) Validate() error {
	if o.FS == nil {
		return WrapError(ErrInvalidRef, "FS is required")
	}

	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidRef, "StorerCacheSize cannot be negative")
	}

	return nil
}

// applyDefaults sets default values for any unset fields in Options.
func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}

	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}

	if o.RemoteName == "" {
		o.RemoteName = DefaultRemoteName
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// OSOptions returns Options for the repository at dir on the local disk.
func OSOptions(dir string) *Options {
	return &Options{FS: billyfs.NewFS(osfs.New(dir, osfs.WithBoundOS()))}
}

// Network supplies authentication and proxy settings for network operations.
// A nil Network means anonymous access without a proxy.
type Network interface {
	// AuthFor returns the auth method for remoteURL, or nil for anonymous.
	AuthFor(remoteURL string) (transport.AuthMethod, error)

	// Proxy returns the proxy settings for the run.
	Proxy() transport.ProxyOptions
}

// StaticNetwork is a Network backed by an auth provider and fixed proxy.
type StaticNetwork struct {
	Auth      auth.Provider
	ProxyOpts transport.ProxyOptions
}

// AuthFor implements Network.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (s StaticNetwork) AuthFor(remoteURL string) (transport.AuthMethod, error) {
	if s.Auth == nil {
		return nil, nil
	}
	return s.Auth.Method(remoteURL)
}

// Proxy implements Network.
func (s StaticNetwork) Proxy() transport.ProxyOptions {
	return s.ProxyOpts
}

// Repo represents a git repository and provides high-level operations.
// It wraps a go-git Repository and Worktree.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	layout   *fsbridge.Layout
	options  Options
	logger   *slog.Logger
}

func prepare(opts *Options) (*fsbridge.Layout, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	opts.applyDefaults()

	layout, err := fsbridge.Open(opts.FS, opts.Workdir, opts.Bare, opts.StorerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("preparing repository layout: %w", err)
	}
	return layout, nil
}

func newRepo(repo *git.Repository, layout *fsbridge.Layout, opts *Options) (*Repo, error) {
	r := &Repo{
		repo:    repo,
		layout:  layout,
		options: *opts,
		logger:  opts.Logger,
	}

	// Set up worktree for non-bare repositories
	if !opts.Bare {
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, WrapError(err, "failed to get worktree")
		}
		r.worktree = worktree
	}
	return r, nil
}

// Init creates a new git repository at the specified location.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	layout, err := prepare(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Init(layout.Storage, layout.Worktree)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}
	opts.Logger.DebugContext(ctx, "repository initialized", "workdir", opts.Workdir, "bare", opts.Bare)
	return newRepo(repo, layout, opts)
}

// Open opens an existing git repository.
// The repository must already exist at the specified workdir within the filesystem.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	layout, err := prepare(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(layout.Storage, layout.Worktree)
	if err != nil {
		return nil, WrapError(err, "failed to open repository")
	}
	opts.Logger.DebugContext(ctx, "repository opened", "workdir", opts.Workdir)
	return newRepo(repo, layout, opts)
}

// Clone creates a new repository by cloning from a remote URL.
//
// Context timeout/cancellation is honored during the clone operation.
func Clone(ctx context.Context, remoteURL string, net Network, progress io.Writer, opts *Options) (*Repo, error) {
	const op = "git.Clone"

	if remoteURL == "" {
		return nil, WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}

	layout, err := prepare(opts)
	if err != nil {
		return nil, err
	}

	cloneOpts := &git.CloneOptions{
		URL:        remoteURL,
		RemoteName: opts.RemoteName,
		Progress:   progress,
	}
	if net != nil {
		authMethod, authErr := net.AuthFor(remoteURL)
		if authErr != nil {
			return nil, WrapError(ErrAuthRequired, authErr.Error())
		}
		cloneOpts.Auth = authMethod
		cloneOpts.ProxyOptions = net.Proxy()
	}

	start := time.Now()
	repo, err := git.CloneContext(ctx, layout.Storage, layout.Worktree, cloneOpts)
	if err != nil {
		return nil, networkError(err, op)
	}
	opts.Logger.InfoContext(ctx, "repository cloned", "url", remoteURL, "duration", time.Since(start))
	return newRepo(repo, layout, opts)
}

// Worktree returns the working copy filesystem, or nil for bare repositories.
//
//nolint:ireturn // billy.Filesystem is the abstraction shared with callers
func (r *Repo) Worktree() billy.Filesystem {
	return r.layout.Worktree
}

// Metadata returns the repository metadata filesystem (".git"). Files
// written there are never committed.
//
//nolint:ireturn // billy.Filesystem is the abstraction shared with callers
func (r *Repo) Metadata() billy.Filesystem {
	return r.layout.Metadata
}

// LocalFolder returns the on-disk location of the working copy, or the
// workdir within the filesystem for in-memory repositories.
func (r *Repo) LocalFolder() string {
	if r.layout.Worktree != nil {
		if root := r.layout.Worktree.Root(); root != "" {
			return root
		}
	}
	return r.options.Workdir
}

// RemoteName returns the remote used for network operations.
func (r *Repo) RemoteName() string {
	return r.options.RemoteName
}

func (r *Repo) requireWorktree() error {
	if r.worktree == nil {
		return ErrBareRepository
	}
	return nil
}
