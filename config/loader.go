package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"path"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/adrg/xdg"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
)

// DefaultFile is the configuration location relative to the XDG config
// directory.
const DefaultFile = "modelsync/config.yaml"

// LoadOptions configures the behavior of configuration loading operations.
type LoadOptions struct {
	// SkipValidation disables automatic validation after loading.
	SkipValidation bool
}

// DefaultPath returns the configuration file in the user's XDG config
// directory.
func DefaultPath() (string, error) {
	p, err := xdg.ConfigFile(DefaultFile)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidConfig, "config.DefaultPath", "resolving configuration location")
	}
	return p, nil
}

// LoadDefault loads the configuration from DefaultPath. It returns the path
// it read so callers can report or save it.
func LoadDefault() (*Config, string, error) {
	p, err := DefaultPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(osfs.New(filepath.Dir(p)), filepath.Base(p))
	return cfg, p, err
}

// Load reads and validates the configuration at p. A missing file yields
// the defaults.
func Load(fsys billy.Filesystem, p string) (*Config, error) {
	return LoadWithOptions(fsys, p, LoadOptions{})
}

// LoadWithOptions loads the configuration at p with custom options.
func LoadWithOptions(fsys billy.Filesystem, p string, opts LoadOptions) (*Config, error) {
	const op = "config.Load"

	cfg := &Config{}
	data, err := util.ReadFile(fsys, p)
	switch {
	case stderrors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, op, "reading "+p)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, op, "parsing "+p)
		}
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, op, "applying defaults")
	}

	if !opts.SkipValidation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Save writes cfg to p, creating its directory.
func Save(fsys billy.Filesystem, p string, cfg *Config) error {
	const op = "config.Save"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, op, "encoding configuration")
	}
	if dir := path.Dir(p); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.CodeInternal, op, "creating "+dir)
		}
	}
	if err := util.WriteFile(fsys, p, data, 0o644); err != nil {
		return errors.Wrap(err, errors.CodeInternal, op, "writing "+p)
	}
	return nil
}
