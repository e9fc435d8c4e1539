package auth

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Chain tries providers in order and returns the first method offered.
type Chain []Provider

// Method implements Provider. Errors from individual providers are only
// returned when no provider offers a method.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (c Chain) Method(remoteURL string) (transport.AuthMethod, error) {
	var errs []error
	for i, p := range c {
		if p == nil {
			continue
		}
		m, err := p.Method(remoteURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %d: %w", i, err))
			continue
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, errors.Join(errs...)
}
