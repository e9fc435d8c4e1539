package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/syncer"
)

const (
	strategyAsk    = "ask"
	strategyOurs   = "ours"
	strategyTheirs = "theirs"
	strategyCancel = "cancel"
)

func modelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "model",
		Aliases:  []string{"f"},
		Usage:    "model `FILE` to synchronize",
		Required: true,
	}
}

func strategyFlag(def string) cli.Flag {
	return &cli.StringFlag{
		Name:  "strategy",
		Value: def,
		Usage: "conflict handling: ask, ours, theirs or cancel",
	}
}

var syncUsage = map[syncer.Mode]string{
	syncer.ModeCommit:  "Export the model and commit it",
	syncer.ModeRefresh: "Commit, pull remote changes and reload the model",
	syncer.ModePublish: "Commit, pull remote changes and push",
}

func (a *app) syncCommand(mode syncer.Mode) *cli.Command {
	flags := []cli.Flag{
		modelFlag(),
		&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "commit message"},
		&cli.BoolFlag{Name: "amend", Usage: "replace the last commit"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress progress output"},
	}
	if mode != syncer.ModeCommit {
		flags = append(flags, strategyFlag(strategyAsk))
	}

	return &cli.Command{
		Name:  mode.String(),
		Usage: syncUsage[mode],
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			resolver, err := a.resolver(cmd.String("strategy"))
			if err != nil {
				return err
			}
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			out := quietWriter(a.out, cmd.Bool("quiet"))
			p := a.process(repo, printer{w: out}, resolver)

			req := syncer.Request{
				Mode:     mode,
				Message:  cmd.String("message"),
				Amend:    cmd.Bool("amend"),
				Progress: quietWriter(a.errOut, cmd.Bool("quiet")),
			}
			outcome, err := a.runFile(ctx, p, repo, cmd.String("model"), req)
			if err != nil {
				return err
			}
			report(out, outcome)
			return outcome.Err
		},
	}
}

// runFile runs one synchronization of the model file at path and writes
// the model back when the run changed it.
func (a *app) runFile(ctx context.Context, p *syncer.Process, repo *git.Repo, path string, req syncer.Request) (syncer.Outcome, error) {
	m, err := readModel(path)
	if err != nil {
		return syncer.Outcome{}, err
	}
	before := m.Clone()

	req.Model = m
	if req.Mode != syncer.ModeCommit {
		session, err := a.sessionFunc(repo)()
		if err != nil {
			return syncer.Outcome{}, err
		}
		req.Network = session
	}

	outcome := p.Run(ctx, req)
	if !m.Equal(before) {
		if err := writeModel(path, m); err != nil {
			return outcome, err
		}
		a.logger.InfoContext(ctx, "model file updated", "path", path)
	}
	return outcome, nil
}

func report(w io.Writer, o syncer.Outcome) {
	switch o.Status {
	case syncer.StatusCommitted:
		fmt.Fprintf(w, "Committed %s\n", short(o.Commit))
	case syncer.StatusUpToDate:
		fmt.Fprintln(w, "Already up to date")
	case syncer.StatusPulledOK:
		fmt.Fprintln(w, "Pulled remote changes")
	case syncer.StatusMergeCancelled:
		fmt.Fprintln(w, "Merge cancelled, local changes kept")
	case syncer.StatusPushedOK:
		fmt.Fprintln(w, "Pushed to remote")
	}
	if !o.Repairs.Empty() {
		fmt.Fprintf(w, "Import repaired the model:\n%s\n", o.Repairs.Summary())
	}
	for _, f := range o.PushFailures {
		fmt.Fprintf(w, "  %s %s %s\n", f.Ref, f.Status, f.Message)
	}
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

//nolint:ireturn // strategies are distinct resolver types
func (a *app) resolver(strategy string) (syncer.Resolver, error) {
	switch strings.ToLower(strategy) {
	case "", strategyAsk:
		return &prompter{in: a.in, out: a.out}, nil
	case strategyOurs:
		return preferLocal, nil
	case strategyTheirs:
		return syncer.PreferRemote, nil
	case strategyCancel:
		return syncer.KeepLocal, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "main.resolver", "unknown conflict strategy %q", strategy)
	}
}

func (a *app) loadCommand() *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Write the model stored in the working copy to a model file",
		Flags: []cli.Flag{modelFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			m, repairs, err := a.serializer(repo).Import(ctx)
			if err != nil {
				return err
			}
			if err := writeModel(cmd.String("model"), m); err != nil {
				return err
			}
			elements, relationships := m.Counts()
			fmt.Fprintf(a.out, "Loaded %q: %d elements, %d relationships\n", m.Name, elements, relationships)
			if !repairs.Empty() {
				fmt.Fprintln(a.out, repairs.Summary())
			}
			return nil
		},
	}
}

// newModel is the content of a model file for a fresh repository.
func newModel(name string) *model.Model {
	m := &model.Model{ID: model.NewID(), Name: name}
	for _, t := range model.TopLevelFolderTypes() {
		m.Folders = append(m.Folders, model.Folder{ID: model.NewID(), Name: model.DefaultFolderName(t), Type: t})
	}
	return m
}
