package auth

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"
)

const defaultSSHUser = "git"

// SSHKey authenticates SSH remotes with a private key read from a file or
// held in memory.
type SSHKey struct {
	// KeyPath is the private key file. Ignored when Key is set.
	KeyPath string

	// Key is a PEM encoded private key.
	Key []byte

	// Passphrase decrypts an encrypted key.
	Passphrase string

	// Username overrides the user from the remote URL. Defaults to "git".
	Username string

	// HostKeyCallback verifies the server. When nil, go-git falls back to the
	// user's known_hosts files.
	HostKeyCallback gossh.HostKeyCallback

	// Hosts restricts the provider to matching hosts.
	Hosts []string
}

// Method implements Provider. Non-SSH remotes are declined.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (k *SSHKey) Method(remoteURL string) (transport.AuthMethod, error) {
	r, err := ParseRemote(remoteURL)
	if err != nil {
		return nil, err
	}
	if !r.IsSSH() || !hostAllowed(r.Host, k.Hosts) {
		return nil, nil
	}

	user := sshUser(k.Username, r)
	var keys *ssh.PublicKeys
	switch {
	case len(k.Key) > 0:
		keys, err = ssh.NewPublicKeys(user, k.Key, k.Passphrase)
	case k.KeyPath != "":
		if _, statErr := os.Stat(k.KeyPath); statErr != nil {
			return nil, fmt.Errorf("reading SSH key %s: %w", k.KeyPath, statErr)
		}
		keys, err = ssh.NewPublicKeysFromFile(user, k.KeyPath, k.Passphrase)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading SSH key: %w", err)
	}
	if k.HostKeyCallback != nil {
		keys.HostKeyCallback = k.HostKeyCallback
	}
	return keys, nil
}

// SSHAgent authenticates SSH remotes through the running ssh-agent.
type SSHAgent struct {
	Username        string
	HostKeyCallback gossh.HostKeyCallback
	Hosts           []string
}

// Method implements Provider. Non-SSH remotes are declined.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (a *SSHAgent) Method(remoteURL string) (transport.AuthMethod, error) {
	r, err := ParseRemote(remoteURL)
	if err != nil {
		return nil, err
	}
	if !r.IsSSH() || !hostAllowed(r.Host, a.Hosts) {
		return nil, nil
	}
	cb, err := ssh.NewSSHAgentAuth(sshUser(a.Username, r))
	if err != nil {
		return nil, fmt.Errorf("connecting to ssh-agent: %w", err)
	}
	if a.HostKeyCallback != nil {
		cb.HostKeyCallback = a.HostKeyCallback
	}
	return cb, nil
}

func sshUser(override string, r Remote) string {
	switch {
	case override != "":
		return override
	case r.User != "":
		return r.User
	default:
		return defaultSSHUser
	}
}
