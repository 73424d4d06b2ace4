// Package credentials resolves the username and secret injected into CalDAV
// requests. Each source is a Provider; Chain tries them in priority order.
package credentials

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound means a provider has no credential to offer.
var ErrNotFound = errors.New("no credential found")

// Source indicates where a credential was found
type Source string

const (
	SourceEnv      Source = "env"
	SourceKeyring  Source = "keyring"
	SourceKeychain Source = "keychain"
	SourceStatic   Source = "static"
)

// Credential is a resolved username/secret pair.
type Credential struct {
	Username string
	Secret   string
	Source   Source
}

// Provider returns the current credential.
type Provider interface {
	Credential(ctx context.Context) (Credential, error)
}

// Static always returns the same credential.
type Static struct {
	Username string
	Secret   string
}

func (s Static) Credential(context.Context) (Credential, error) {
	if s.Username == "" || s.Secret == "" {
		return Credential{}, ErrNotFound
	}
	return Credential{Username: s.Username, Secret: s.Secret, Source: SourceStatic}, nil
}

// Chain resolves through its providers in order. A provider reporting
// ErrNotFound is skipped; other failures are kept and reported only when no
// provider succeeds.
type Chain []Provider

func (c Chain) Credential(ctx context.Context) (Credential, error) {
	var errs []error
	for _, p := range c {
		if err := ctx.Err(); err != nil {
			return Credential{}, err
		}
		cred, err := p.Credential(ctx)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return Credential{}, fmt.Errorf("%w: %w", ErrNotFound, errors.Join(errs...))
	}
	return Credential{}, ErrNotFound
}

// Default is the standard resolution order: environment, OS keyring, then
// the platform's native secure store.
func Default(service, username string) Chain {
	return Chain{
		Env{Username: username},
		Keyring{Service: service, Username: username},
		Native(service, username),
	}
}
