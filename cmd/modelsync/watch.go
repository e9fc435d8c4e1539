package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/poll"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/syncer"
)

// watchDebounce is the quiet period after the last write to the model file
// before a commit starts.
const watchDebounce = 500 * time.Millisecond

// fileWatcher signals debounced changes of one file.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	name     string
	debounce time.Duration
	changes  chan struct{}
	logger   *slog.Logger
}

// watchFile watches the directory holding path, so editors that replace
// the file on save are still seen.
func watchFile(path string, debounce time.Duration, logger *slog.Logger) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &fileWatcher{
		watcher:  w,
		name:     filepath.Base(path),
		debounce: debounce,
		changes:  make(chan struct{}, 1),
		logger:   logger,
	}, nil
}

// Changes delivers at most one pending signal.
func (w *fileWatcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *fileWatcher) Close() error {
	return w.watcher.Close()
}

func (w *fileWatcher) run(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			signal(w.changes)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WarnContext(ctx, "file watcher error", "error", err)
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (a *app) watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Commit the model on every save and refresh it when the remote changes",
		Flags: []cli.Flag{
			modelFlag(),
			strategyFlag(strategyCancel),
			&cli.BoolFlag{Name: "no-poll", Usage: "do not check the remote for new commits"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			resolver, err := a.resolver(cmd.String("strategy"))
			if err != nil {
				return err
			}
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			path, err := filepath.Abs(cmd.String("model"))
			if err != nil {
				return err
			}

			fw, err := watchFile(path, watchDebounce, a.logger)
			if err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
			defer fw.Close()
			go fw.run(ctx)

			refresh := make(chan struct{}, 1)
			if !a.cfg.DisablePolling && !cmd.Bool("no-poll") {
				poller := a.poller(repo, func(context.Context) { signal(refresh) })
				go func() { _ = poller.Run(ctx) }()
			}

			p := a.process(repo, printer{w: a.out}, resolver)
			fmt.Fprintf(a.out, "Watching %s\n", path)
			return a.watchLoop(ctx, p, repo, path, fw.Changes(), refresh)
		},
	}
}

func (a *app) poller(repo *git.Repo, notify poll.NotifyFunc) *poll.Poller {
	return poll.New(repo, repo.LocalFolder(),
		poll.WithGuard(a.guard),
		poll.WithInterval(a.cfg.PollInterval),
		poll.WithSession(a.sessionFunc(repo)),
		poll.WithNotify(notify),
		poll.WithLogger(a.logger),
	)
}

// watchLoop runs one synchronization at a time until ctx is done. Failed
// runs are reported and the loop keeps going.
func (a *app) watchLoop(ctx context.Context, p *syncer.Process, repo *git.Repo, path string, changes, refresh <-chan struct{}) error {
	for {
		var mode syncer.Mode
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			mode = syncer.ModeCommit
		case <-refresh:
			mode = syncer.ModeRefresh
		}

		outcome, err := a.runFile(ctx, p, repo, path, syncer.Request{Mode: mode})
		if err != nil {
			a.logger.ErrorContext(ctx, "synchronization failed", "mode", mode.String(), "error", err)
			continue
		}
		report(a.out, outcome)
	}
}
