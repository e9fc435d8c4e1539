// Package credentials holds the network credentials of a synchronization
// run and persists them encrypted in the repository metadata directory.
package credentials

import (
	"errors"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/internal/auth"
)

// ErrSessionClosed is returned when a closed session is asked for credentials.
var ErrSessionClosed = errors.New("credential session closed")

// Credentials is the secret material for one repository.
type Credentials struct {
	// Username and Password (or token) for HTTPS remotes.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// SSHKeyPath points at a private key for SSH remotes.
	SSHKeyPath    string `yaml:"ssh_key_path,omitempty"`
	SSHPassphrase string `yaml:"ssh_passphrase,omitempty"`

	// SSHAgent uses the running ssh-agent for SSH remotes.
	SSHAgent bool `yaml:"ssh_agent,omitempty"`

	// Proxy is the proxy used for both HTTPS and SSH remotes.
	Proxy Proxy `yaml:"proxy,omitempty"`
}

// Proxy configures a network proxy.
type Proxy struct {
	URL      string `yaml:"url,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Empty reports whether no credential is set.
func (c Credentials) Empty() bool {
	return c.Password == "" && c.SSHKeyPath == "" && !c.SSHAgent && c.Proxy.URL == ""
}

// Provider builds the auth provider chain for these credentials. Password
// auth is tried first, then the SSH key, then the agent.
func (c Credentials) Provider() auth.Provider {
	var chain auth.Chain
	if c.Password != "" {
		chain = append(chain, auth.NewPassword(c.Username, c.Password))
	}
	if c.SSHKeyPath != "" {
		chain = append(chain, &auth.SSHKey{KeyPath: c.SSHKeyPath, Passphrase: c.SSHPassphrase})
	}
	if c.SSHAgent {
		chain = append(chain, &auth.SSHAgent{})
	}
	return chain
}

// ProxyOptions converts the proxy settings for go-git.
func (c Credentials) ProxyOptions() transport.ProxyOptions {
	return transport.ProxyOptions{
		URL:      c.Proxy.URL,
		Username: c.Proxy.Username,
		Password: c.Proxy.Password,
	}
}

// Session is the network context of one synchronization run. It implements
// git.Network. Close drops every credential it holds; the run closes it in
// its cleanup step whatever the outcome.
type Session struct {
	mu       sync.Mutex
	provider auth.Provider
	proxy    transport.ProxyOptions
	closed   bool
}

var _ git.Network = (*Session)(nil)

// NewSession creates a session from credentials.
func NewSession(c Credentials) *Session {
	return &Session{provider: c.Provider(), proxy: c.ProxyOptions()}
}

// NewProviderSession creates a session from an auth provider and proxy.
func NewProviderSession(p auth.Provider, proxy transport.ProxyOptions) *Session {
	return &Session{provider: p, proxy: proxy}
}

// AuthFor implements git.Network.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (s *Session) AuthFor(remoteURL string) (transport.AuthMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.provider == nil {
		return nil, nil
	}
	method, err := s.provider.Method(remoteURL)
	if err != nil {
		return nil, err
	}
	return method, nil
}

// Proxy implements git.Network.
func (s *Session) Proxy() transport.ProxyOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxy
}

// Close clears the session. It is safe to call more than once and on a
// nil session.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.provider = nil
	s.proxy = transport.ProxyOptions{}
	s.closed = true
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
