package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/config"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/credentials"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/grafico"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/syncer"
)

// app carries the state shared by every command of one invocation.
type app struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	cfg     *config.Config
	dir     string
	keyFile string
	logger  *slog.Logger
	guard   *syncer.Guard
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		in:     bufio.NewReader(in),
		out:    out,
		errOut: errOut,
		guard:  syncer.NewGuard(),
		logger: slog.New(slog.DiscardHandler),
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error
	if p := cmd.String("config"); p != "" {
		a.cfg, err = config.Load(osfs.New(filepath.Dir(p)), filepath.Base(p))
	} else {
		a.cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return ctx, err
	}
	if level := cmd.String("log-level"); level != "" {
		a.cfg.LogLevel = level
		if _, err := a.cfg.Level(); err != nil {
			return ctx, fmt.Errorf("invalid log level %q", level)
		}
	}
	a.logger = a.cfg.NewLogger(a.errOut)

	a.dir, err = filepath.Abs(cmd.String("repo"))
	if err != nil {
		return ctx, err
	}
	a.keyFile = cmd.String("key-file")
	return ctx, nil
}

func (a *app) openRepo(ctx context.Context) (*git.Repo, error) {
	repo, err := git.Open(ctx, a.cfg.RepoOptions(a.dir, a.logger))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.dir, err)
	}
	return repo, nil
}

// ensureIdentity writes the configured identity into repositories that
// have none.
func (a *app) ensureIdentity(repo *git.Repo, override git.Identity) error {
	if override.Valid() {
		return repo.SetUserIdentity(override)
	}
	current, err := repo.UserIdentity()
	if err != nil {
		return err
	}
	if current.Valid() {
		return nil
	}
	if id := a.cfg.GitIdentity(); id.Valid() {
		return repo.SetUserIdentity(id)
	}
	return nil
}

func (a *app) serializer(repo *git.Repo) *grafico.Serializer {
	return grafico.New(repo.Worktree(), grafico.WithRoot(a.cfg.ExportFolder), grafico.WithLogger(a.logger))
}

func (a *app) key() (credentials.Key, error) {
	if a.keyFile != "" {
		return &credentials.FileKey{FS: osfs.New(filepath.Dir(a.keyFile)), Path: filepath.Base(a.keyFile)}, nil
	}
	return credentials.DefaultFileKey()
}

func (a *app) store(repo *git.Repo) (*credentials.Store, error) {
	key, err := a.key()
	if err != nil {
		return nil, err
	}
	return credentials.NewStore(repo.Metadata(), key), nil
}

// storedCredentials loads the repository credentials, filling the proxy
// from the configuration when none is stored.
func (a *app) storedCredentials(repo *git.Repo) (credentials.Credentials, error) {
	store, err := a.store(repo)
	if err != nil {
		return credentials.Credentials{}, err
	}
	creds, err := store.Load()
	if err != nil && !stderrors.Is(err, credentials.ErrNotFound) {
		return credentials.Credentials{}, err
	}
	if creds.Proxy.URL == "" {
		creds.Proxy.URL = a.cfg.Proxy.URL
	}
	return creds, nil
}

func (a *app) sessionFunc(repo *git.Repo) func() (syncer.Session, error) {
	return func() (syncer.Session, error) {
		creds, err := a.storedCredentials(repo)
		if err != nil {
			return nil, err
		}
		return credentials.NewSession(creds), nil
	}
}

func (a *app) process(repo *git.Repo, listener syncer.Listener, resolver syncer.Resolver) *syncer.Process {
	return syncer.New(repo,
		syncer.WithLogger(a.logger),
		syncer.WithListener(syncer.Listeners{syncer.LogListener{Logger: a.logger}, listener}),
		syncer.WithResolver(resolver),
		syncer.WithSerializer(a.serializer(repo)),
		syncer.WithGuard(a.guard),
	)
}

// readModel loads the model file edited by the user.
func readModel(p string) (*model.Model, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	var m model.Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "main.readModel", "parsing "+p)
	}
	m.Normalize()
	return &m, nil
}

// writeModel replaces the model file through a temporary file in the same
// directory.
func writeModel(p string, m *model.Model) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "main.writeModel", "encoding model")
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".modelsync-*")
	if err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	return nil
}

// printer shows run progress to the user.
type printer struct {
	w io.Writer
}

func (p printer) OnEvent(e syncer.Event) {
	switch e.Type {
	case syncer.EventLogError, syncer.EventEndPull:
		return
	case syncer.EventConflictResolution:
		fmt.Fprintf(p.w, "%s:\n%s\n", e.Summary, e.Detail)
	case syncer.EventLogMessage:
		fmt.Fprintf(p.w, "%s: %s\n", e.Summary, e.Detail)
	default:
		fmt.Fprintln(p.w, e.Summary)
	}
}
