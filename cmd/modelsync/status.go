package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
)

func (a *app) statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the branch, pending changes and synchronization state",
		Action: func(ctx context.Context, _ *cli.Command) error {
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			st, err := repo.BranchStatus(ctx)
			if err != nil {
				return err
			}
			changed, err := repo.ChangedFiles(ctx)
			if err != nil {
				return err
			}
			current, err := a.serializer(repo).Current()
			if err != nil {
				return err
			}
			stale, err := checksum.NewTracker(repo.Metadata()).Changed(checksum.Compute(current))
			if err != nil {
				return err
			}
			printStatus(a.out, st, changed, stale)
			return nil
		},
	}
}

func printStatus(w io.Writer, st *git.BranchStatus, changed []string, stale bool) {
	fmt.Fprintf(w, "On branch %s\n", st.Current)
	switch {
	case !st.HasTracking:
		fmt.Fprintln(w, "No remote tracking branch")
	case st.InSync():
		fmt.Fprintf(w, "Up to date with %s\n", st.Tracking)
	default:
		fmt.Fprintf(w, "%d ahead, %d behind %s\n", st.Ahead, st.Behind, st.Tracking)
	}
	if st.Merging {
		fmt.Fprintln(w, "A merge is in progress")
	}
	if stale {
		fmt.Fprintln(w, "The working copy changed since the last synchronization")
	}
	if len(changed) == 0 {
		fmt.Fprintln(w, "Nothing to commit")
		return
	}
	fmt.Fprintln(w, "Changes to commit:")
	for _, f := range changed {
		fmt.Fprintf(w, "  %s\n", f)
	}
}

func (a *app) logCommand() *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "Show the commit history",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Usage: "only commits touching `PATH`"},
			&cli.IntFlag{Name: "max", Aliases: []string{"n"}, Value: 20, Usage: "number of commits"},
			&cli.DurationFlag{Name: "since", Usage: "only commits newer than `DURATION`"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			filter := git.LogFilter{Path: cmd.String("path"), MaxCount: cmd.Int("max")}
			if d := cmd.Duration("since"); d > 0 {
				since := time.Now().Add(-d)
				filter.Since = &since
			}
			commits, err := repo.Log(ctx, filter)
			if err != nil {
				return err
			}
			printLog(a.out, commits)
			return nil
		},
	}
}

func printLog(w io.Writer, commits []git.CommitInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commits {
		subject := c.Subject
		if c.IsMerge() {
			subject = "(merge) " + subject
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", short(c.Hash), c.When.Format(time.DateTime), c.Author, subject)
	}
	_ = tw.Flush()
}

func (a *app) branchCommand() *cli.Command {
	return &cli.Command{
		Name:  "branch",
		Usage: "List, switch or delete branches",
		Action: func(ctx context.Context, _ *cli.Command) error {
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			st, err := repo.BranchStatus(ctx)
			if err != nil {
				return err
			}
			for _, b := range st.Local {
				mark := " "
				if b.Name == st.Current {
					mark = "*"
				}
				fmt.Fprintf(a.out, "%s %s\n", mark, b.Name)
			}
			for _, b := range st.RemoteOnly {
				fmt.Fprintf(a.out, "  %s\n", b.Name)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "checkout",
				Usage:     "Switch to a branch, creating it when missing",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "discard uncommitted changes"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("checkout needs a branch name")
					}
					repo, err := a.openRepo(ctx)
					if err != nil {
						return err
					}
					if err := repo.CheckoutBranch(ctx, name, cmd.Bool("force")); err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Switched to branch %s\n", name)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a local branch",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("delete needs a branch name")
					}
					repo, err := a.openRepo(ctx)
					if err != nil {
						return err
					}
					if err := repo.DeleteBranch(ctx, name); err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Deleted branch %s\n", name)
					return nil
				},
			},
		},
	}
}

func (a *app) tagCommand() *cli.Command {
	return &cli.Command{
		Name:  "tag",
		Usage: "List, create or delete tags",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prefix", Usage: "only tags starting with `PREFIX`"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			tags, err := repo.Tags(ctx, cmd.String("prefix"))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			for _, t := range tags {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, short(t.Commit.String()), t.Message)
			}
			return tw.Flush()
		},
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Tag a commit",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "create an annotated tag"},
					&cli.StringFlag{Name: "target", Usage: "commit to tag (default: HEAD)"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("create needs a tag name")
					}
					repo, err := a.openRepo(ctx)
					if err != nil {
						return err
					}
					return repo.CreateTag(ctx, name, cmd.String("target"), cmd.String("message"))
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a tag",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("delete needs a tag name")
					}
					repo, err := a.openRepo(ctx)
					if err != nil {
						return err
					}
					return repo.DeleteTag(ctx, name)
				},
			},
		},
	}
}

func (a *app) remoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Show or change the remote repository",
		Action: func(ctx context.Context, _ *cli.Command) error {
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			url, err := repo.RemoteURL()
			if err != nil {
				return err
			}
			if url == "" {
				fmt.Fprintln(a.out, "No remote configured")
				return nil
			}
			fmt.Fprintf(a.out, "%s\t%s\n", repo.RemoteName(), url)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "set-url",
				Usage:     "Set the remote URL",
				ArgsUsage: "URL",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					url := cmd.Args().First()
					if url == "" {
						return fmt.Errorf("set-url needs a URL")
					}
					repo, err := a.openRepo(ctx)
					if err != nil {
						return err
					}
					return repo.SetRemoteURL(ctx, url)
				},
			},
		},
	}
}
