// Package config loads the application configuration of modelsync.
//
// The configuration is a YAML file, by default in the user's XDG config
// directory. Fields missing from the file take their value from Default.
//
// # Basic Usage
//
//	cfg, path, err := config.LoadDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger := cfg.NewLogger(os.Stderr)
//	repo, err := git.Open(ctx, cfg.RepoOptions(dir, logger))
//
// # File Format
//
//	identity:
//	  name: Jane Doe
//	  email: jane@example.com
//	remote_name: origin
//	export_folder: model
//	poll_interval: 5m
//	log_level: debug
//	proxy:
//	  url: http://proxy.internal:3128
package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	billyfs "github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/grafico"
)

const (
	// DefaultPollInterval is how often the remote is checked for new commits.
	DefaultPollInterval = 5 * time.Minute

	// MinPollInterval is the shortest accepted poll interval.
	MinPollInterval = 10 * time.Second

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the application configuration.
type Config struct {
	// Identity is written into repositories that have none configured.
	Identity Identity `yaml:"identity,omitempty"`

	// RemoteName is the remote used for pull and push.
	RemoteName string `yaml:"remote_name,omitempty"`

	// ExportFolder is the folder of the working copy holding the model files.
	ExportFolder string `yaml:"export_folder,omitempty"`

	// PollInterval is the period of the remote check while watching.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// DisablePolling turns the remote check off.
	DisablePolling bool `yaml:"disable_polling,omitempty"`

	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`

	// Proxy is used when the stored credentials do not name one.
	Proxy Proxy `yaml:"proxy,omitempty"`
}

// Identity is the author recorded in commits.
type Identity struct {
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty"`
}

// Proxy is a network proxy location. Proxy credentials live in the
// credential store.
type Proxy struct {
	URL string `yaml:"url,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		RemoteName:   git.DefaultRemoteName,
		ExportFolder: grafico.DefaultRoot,
		PollInterval: DefaultPollInterval,
		LogLevel:     "info",
		LogFormat:    LogFormatText,
	}
}

// GitIdentity converts the identity for the repository handle.
func (c *Config) GitIdentity() git.Identity {
	return git.Identity{Name: c.Identity.Name, Email: c.Identity.Email}
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// NewLogger creates a logger writing to w with the configured level and
// format. An invalid level falls back to info.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.Level()
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// RepoOptions returns repository options for the working copy at dir.
func (c *Config) RepoOptions(dir string, logger *slog.Logger) *git.Options {
	return &git.Options{
		FS:         billyfs.NewFS(osfs.New(dir, osfs.WithBoundOS())),
		RemoteName: c.RemoteName,
		Logger:     logger,
	}
}
