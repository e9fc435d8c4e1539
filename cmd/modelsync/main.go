// Package main is the entry point for the modelsync command.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/syncer"
)

var version = "dev"

func main() {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := a.command().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:    "modelsync",
		Usage:   "Synchronize a model with a Git repository",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"C"},
				Value:   ".",
				Usage:   "working copy `DIR`",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "configuration `FILE` (default: $XDG_CONFIG_HOME/modelsync/config.yaml)",
			},
			&cli.StringFlag{
				Name:  "key-file",
				Usage: "credential key `FILE` (default: $XDG_DATA_HOME/modelsync/credentials.key)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level",
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			a.initCommand(),
			a.cloneCommand(),
			a.loginCommand(),
			a.logoutCommand(),
			a.syncCommand(syncer.ModeCommit),
			a.syncCommand(syncer.ModeRefresh),
			a.syncCommand(syncer.ModePublish),
			a.loadCommand(),
			a.watchCommand(),
			a.statusCommand(),
			a.logCommand(),
			a.branchCommand(),
			a.tagCommand(),
			a.remoteCommand(),
		},
	}
}

// quietWriter returns w, or io.Discard when quiet is set.
func quietWriter(w io.Writer, quiet bool) io.Writer {
	if quiet {
		return io.Discard
	}
	return w
}
