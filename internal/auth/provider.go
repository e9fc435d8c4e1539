// Package auth resolves go-git transport authentication for a remote URL.
// Providers are matched by scheme and host pattern and can be chained.
package auth

import (
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Provider resolves the authentication method for a remote.
type Provider interface {
	// Method returns the transport.AuthMethod for remoteURL.
	// A nil method with a nil error means the provider declines the URL.
	Method(remoteURL string) (transport.AuthMethod, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(remoteURL string) (transport.AuthMethod, error)

// Method implements Provider.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (f ProviderFunc) Method(remoteURL string) (transport.AuthMethod, error) {
	return f(remoteURL)
}
