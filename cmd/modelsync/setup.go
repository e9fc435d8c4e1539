package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/credentials"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
)

func identityFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "commit author name"},
		&cli.StringFlag{Name: "email", Usage: "commit author email"},
	}
}

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "user name for HTTPS remotes"},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "password or token for HTTPS remotes",
			Sources: cli.EnvVars("MODELSYNC_PASSWORD"),
		},
		&cli.StringFlag{Name: "ssh-key", Usage: "private key `FILE` for SSH remotes"},
		&cli.StringFlag{
			Name:    "ssh-passphrase",
			Usage:   "passphrase of the SSH key",
			Sources: cli.EnvVars("MODELSYNC_SSH_PASSPHRASE"),
		},
		&cli.BoolFlag{Name: "ssh-agent", Usage: "use the running ssh-agent"},
		&cli.StringFlag{Name: "proxy", Usage: "proxy `URL`"},
		&cli.StringFlag{Name: "proxy-username", Usage: "proxy user name"},
		&cli.StringFlag{
			Name:    "proxy-password",
			Usage:   "proxy password",
			Sources: cli.EnvVars("MODELSYNC_PROXY_PASSWORD"),
		},
	}
}

func credentialsFromFlags(cmd *cli.Command) credentials.Credentials {
	return credentials.Credentials{
		Username:      cmd.String("username"),
		Password:      cmd.String("password"),
		SSHKeyPath:    cmd.String("ssh-key"),
		SSHPassphrase: cmd.String("ssh-passphrase"),
		SSHAgent:      cmd.Bool("ssh-agent"),
		Proxy: credentials.Proxy{
			URL:      cmd.String("proxy"),
			Username: cmd.String("proxy-username"),
			Password: cmd.String("proxy-password"),
		},
	}
}

func identityFromFlags(cmd *cli.Command) git.Identity {
	return git.Identity{Name: cmd.String("name"), Email: cmd.String("email")}
}

func (a *app) initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create an empty model repository",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "remote", Usage: "remote repository `URL`"},
			&cli.StringFlag{Name: "model", Aliases: []string{"f"}, Usage: "create an empty model `FILE` unless it exists"},
		}, identityFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := os.MkdirAll(a.dir, 0o755); err != nil {
				return err
			}
			repo, err := git.Init(ctx, a.cfg.RepoOptions(a.dir, a.logger))
			if err != nil {
				return err
			}
			if err := a.ensureIdentity(repo, identityFromFlags(cmd)); err != nil {
				return err
			}
			if remote := cmd.String("remote"); remote != "" {
				if err := repo.SetRemoteURL(ctx, remote); err != nil {
					return err
				}
			}
			if p := cmd.String("model"); p != "" {
				if err := createModel(p); err != nil {
					return err
				}
			}
			fmt.Fprintf(a.out, "Initialized empty model repository in %s\n", a.dir)
			return nil
		},
	}
}

func (a *app) cloneCommand() *cli.Command {
	return &cli.Command{
		Name:      "clone",
		Usage:     "Clone a model repository",
		ArgsUsage: "URL [DIR]",
		Flags: append(append([]cli.Flag{
			&cli.BoolFlag{Name: "save-credentials", Usage: "store the credentials for later runs"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress transfer progress"},
		}, credentialFlags()...), identityFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url := cmd.Args().First()
			if url == "" {
				return fmt.Errorf("clone needs a repository URL")
			}
			if dir := cmd.Args().Get(1); dir != "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return err
				}
				a.dir = abs
			} else if cmd.String("repo") == "." {
				a.dir = filepath.Join(a.dir, repoName(url))
			}
			if err := os.MkdirAll(a.dir, 0o755); err != nil {
				return err
			}

			creds := credentialsFromFlags(cmd)
			if creds.Proxy.URL == "" {
				creds.Proxy.URL = a.cfg.Proxy.URL
			}
			session := credentials.NewSession(creds)
			defer session.Close()

			progress := quietWriter(a.errOut, cmd.Bool("quiet"))
			repo, err := git.Clone(ctx, url, session, progress, a.cfg.RepoOptions(a.dir, a.logger))
			if err != nil {
				return err
			}
			if err := a.ensureIdentity(repo, identityFromFlags(cmd)); err != nil {
				return err
			}
			if cmd.Bool("save-credentials") && !creds.Empty() {
				store, err := a.store(repo)
				if err != nil {
					return err
				}
				if err := store.Save(creds); err != nil {
					return err
				}
			}
			fmt.Fprintf(a.out, "Cloned %s into %s\n", url, a.dir)
			return nil
		},
	}
}

// createModel writes a starter model to p. An existing file is kept.
func createModel(p string) error {
	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	return writeModel(p, newModel(name))
}

// repoName derives a folder name from a remote URL.
func repoName(url string) string {
	url = strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	if name := path.Base(url); name != "." && name != "/" && name != "" {
		return name
	}
	return "model"
}

func (a *app) loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Store encrypted credentials for the repository",
		Flags: credentialFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			creds := credentialsFromFlags(cmd)
			if creds.Empty() {
				return fmt.Errorf("no credentials given")
			}
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			store, err := a.store(repo)
			if err != nil {
				return err
			}
			if err := store.Save(creds); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Credentials saved")
			return nil
		},
	}
}

func (a *app) logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Remove the stored credentials of the repository",
		Action: func(ctx context.Context, _ *cli.Command) error {
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			store, err := a.store(repo)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Credentials removed")
			return nil
		},
	}
}
