// Package poll checks a repository's remote for new commits in the
// background. A check never runs while a synchronization holds the
// repository; the tick is skipped instead. A synchronization started during
// a check takes the repository over and the check is abandoned.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/syncer"
)

// DefaultInterval is the check period when none is configured.
const DefaultInterval = 5 * time.Minute

// ErrBusy is returned by Check when a synchronization holds the repository
// or took it over during the check.
var ErrBusy = errors.New("repository is busy")

// Checker asks a remote whether it has commits the local copy lacks.
// *git.Repo implements it.
type Checker interface {
	RemoteHasNewCommits(ctx context.Context, net git.Network) (bool, error)
}

var _ Checker = (*git.Repo)(nil)

// SessionFunc opens the network session of one check.
type SessionFunc func() (syncer.Session, error)

// NotifyFunc is called after a check found new remote commits. The guard is
// released by then, so it may start a synchronization.
type NotifyFunc func(ctx context.Context)

// Poller periodically checks one repository.
type Poller struct {
	checker  Checker
	key      string
	guard    *syncer.Guard
	interval time.Duration
	session  SessionFunc
	notify   NotifyFunc
	logger   *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the check period. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithGuard shares the guard of the synchronization processes.
func WithGuard(g *syncer.Guard) Option {
	return func(p *Poller) {
		p.guard = g
	}
}

// WithSession sets how each check obtains credentials.
func WithSession(f SessionFunc) Option {
	return func(p *Poller) {
		p.session = f
	}
}

// WithNotify sets the callback for new remote commits.
func WithNotify(f NotifyFunc) Option {
	return func(p *Poller) {
		p.notify = f
	}
}

// WithLogger configures the poller with a logger.
// If logger is nil, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// New creates a poller for the repository identified by key, usually its
// local folder. The key must match the one the processes use.
func New(checker Checker, key string, opts ...Option) *Poller {
	p := &Poller{
		checker:  checker,
		key:      key,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.guard == nil {
		p.guard = syncer.NewGuard()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// Interval returns the check period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run checks the remote every interval until ctx is done. Failed checks are
// logged and retried on the next tick. It returns ctx's error.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.DebugContext(ctx, "polling started", "repository", p.key, "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.DebugContext(ctx, "polling stopped", "repository", p.key)
			return ctx.Err()
		case <-ticker.C:
			found, err := p.Check(ctx)
			switch {
			case errors.Is(err, ErrBusy):
				p.logger.DebugContext(ctx, "synchronization active, check skipped", "repository", p.key)
			case err != nil && ctx.Err() == nil:
				p.logger.WarnContext(ctx, "remote check failed", "repository", p.key, "error", err)
			case found:
				p.logger.InfoContext(ctx, "remote has new commits", "repository", p.key)
			}
		}
	}
}

// Check runs one remote check. It returns ErrBusy without contacting the
// remote when the repository is held by a synchronization, and ErrBusy when
// a synchronization started while the remote was being contacted.
func (p *Poller) Check(ctx context.Context) (bool, error) {
	found, err := p.check(ctx)
	if err != nil || !found {
		return found, err
	}
	if p.notify != nil && ctx.Err() == nil {
		p.notify(ctx)
	}
	return true, nil
}

func (p *Poller) check(ctx context.Context) (bool, error) {
	checkCtx, release, ok := p.guard.AcquireBackground(ctx, p.key)
	if !ok {
		return false, ErrBusy
	}
	defer release()

	var net git.Network
	if p.session != nil {
		s, err := p.session()
		if err != nil {
			return false, err
		}
		if s != nil {
			defer s.Close()
			net = s
		}
	}
	found, err := p.checker.RemoteHasNewCommits(checkCtx, net)
	if syncer.Preempted(checkCtx) {
		p.logger.DebugContext(ctx, "check abandoned for a synchronization", "repository", p.key)
		return false, ErrBusy
	}
	return found, err
}
