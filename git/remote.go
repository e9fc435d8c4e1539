package git

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
)

// Identity is the user name and email recorded on commits.
type Identity struct {
	Name  string
	Email string
}

// Valid reports whether both name and email are set.
func (id Identity) Valid() bool {
	return id.Name != "" && id.Email != ""
}

// RemoteURL returns the first URL of the configured remote, or an empty
// string when no remote is configured.
func (r *Repo) RemoteURL() (string, error) {
	remote, err := r.repo.Remote(r.options.RemoteName)
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return "", nil
		}
		return "", WrapError(err, "failed to read remote configuration")
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", nil
	}
	return urls[0], nil
}

// SetRemoteURL points the configured remote at url, creating it when
// missing. An empty url removes the remote.
func (r *Repo) SetRemoteURL(ctx context.Context, url string) error {
	name := r.options.RemoteName

	if url == "" {
		if err := r.repo.DeleteRemote(name); err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
			return WrapError(err, "failed to delete remote")
		}
		r.logger.DebugContext(ctx, "remote removed", "remote", name)
		return nil
	}

	cfg, err := r.repo.Config()
	if err != nil {
		return WrapError(err, "failed to read repository config")
	}
	if existing, ok := cfg.Remotes[name]; ok {
		existing.URLs = []string{url}
	} else {
		cfg.Remotes[name] = &config.RemoteConfig{
			Name:  name,
			URLs:  []string{url},
			Fetch: []config.RefSpec{config.RefSpec("+refs/heads/*:refs/remotes/" + name + "/*")},
		}
	}
	if err := r.repo.SetConfig(cfg); err != nil {
		return WrapError(err, "failed to write repository config")
	}
	r.logger.DebugContext(ctx, "remote configured", "remote", name, "url", url)
	return nil
}

// UserIdentity returns the identity from the repository config, falling
// back to the user's global git config.
func (r *Repo) UserIdentity() (Identity, error) {
	cfg, err := r.repo.Config()
	if err != nil {
		return Identity{}, WrapError(err, "failed to read repository config")
	}
	id := Identity{Name: cfg.User.Name, Email: cfg.User.Email}
	if id.Valid() {
		return id, nil
	}

	global, err := config.LoadConfig(config.GlobalScope)
	if err == nil {
		if id.Name == "" {
			id.Name = global.User.Name
		}
		if id.Email == "" {
			id.Email = global.User.Email
		}
	}
	return id, nil
}

// SetUserIdentity stores the identity in the repository config.
func (r *Repo) SetUserIdentity(id Identity) error {
	if !id.Valid() {
		return WrapError(ErrNoIdentity, "name and email are required")
	}
	cfg, err := r.repo.Config()
	if err != nil {
		return WrapError(err, "failed to read repository config")
	}
	cfg.User.Name = id.Name
	cfg.User.Email = id.Email
	if err := r.repo.SetConfig(cfg); err != nil {
		return WrapError(err, "failed to write repository config")
	}
	return nil
}
