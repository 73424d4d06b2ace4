package credentials

import (
	"context"
	"os"
)

const (
	EnvUsername = "DAVCAL_USERNAME"
	EnvPassword = "DAVCAL_PASSWORD"
)

// Env reads the secret from DAVCAL_PASSWORD. The username comes from
// DAVCAL_USERNAME, falling back to Username.
type Env struct {
	Username string
	// Getenv defaults to os.Getenv
	Getenv func(string) string
}

func (e Env) Credential(context.Context) (Credential, error) {
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	username := getenv(EnvUsername)
	if username == "" {
		username = e.Username
	}
	secret := getenv(EnvPassword)
	if username == "" || secret == "" {
		return Credential{}, ErrNotFound
	}
	return Credential{Username: username, Secret: secret, Source: SourceEnv}, nil
}
