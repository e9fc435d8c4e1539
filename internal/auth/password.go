package auth

import (
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Password authenticates HTTP remotes with a user name and password or
// access token.
type Password struct {
	Username string
	Password string

	// Hosts restricts the provider to matching hosts. Supports "*.example.com"
	// and "example.*" patterns. Empty allows every host.
	Hosts []string
}

// NewPassword returns a password provider. Token-only credentials are sent
// with a placeholder user name, which hosting services ignore.
func NewPassword(username, password string) *Password {
	if username == "" && password != "" {
		username = "token"
	}
	return &Password{Username: username, Password: password}
}

// WithHosts restricts the provider to the given host patterns.
func (p *Password) WithHosts(hosts ...string) *Password {
	p.Hosts = hosts
	return p
}

// Method implements Provider. Non-HTTP remotes are declined.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *Password) Method(remoteURL string) (transport.AuthMethod, error) {
	r, err := ParseRemote(remoteURL)
	if err != nil {
		return nil, err
	}
	if !r.IsHTTP() || !hostAllowed(r.Host, p.Hosts) || p.Password == "" {
		return nil, nil
	}
	return &http.BasicAuth{Username: p.Username, Password: p.Password}, nil
}
