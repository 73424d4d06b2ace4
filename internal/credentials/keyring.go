package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name entries are stored under.
const DefaultService = "davcal"

// Keyring reads the secret from the OS keyring (Secret Service, Windows
// Credential Manager or the macOS keychain via go-keyring).
type Keyring struct {
	Service  string
	Username string
}

func (k Keyring) service() string {
	if k.Service == "" {
		return DefaultService
	}
	return k.Service
}

func (k Keyring) Credential(context.Context) (Credential, error) {
	if k.Username == "" {
		return Credential{}, ErrNotFound
	}
	secret, err := keyring.Get(k.service(), k.Username)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("failed to retrieve credentials from keyring: %w", err)
	}
	return Credential{Username: k.Username, Secret: secret, Source: SourceKeyring}, nil
}

// Store saves secret for the keyring's username.
func (k Keyring) Store(secret string) error {
	if k.Username == "" {
		return errors.New("username cannot be empty")
	}
	if secret == "" {
		return errors.New("password cannot be empty")
	}
	if err := keyring.Set(k.service(), k.Username, secret); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

// Delete removes the stored secret.
func (k Keyring) Delete() error {
	if k.Username == "" {
		return errors.New("username cannot be empty")
	}
	if err := keyring.Delete(k.service(), k.Username); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no credentials found in keyring for user %q", k.Username)
		}
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}
