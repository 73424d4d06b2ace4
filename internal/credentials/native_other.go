//go:build !darwin

package credentials

import "context"

type noNative struct{}

func (noNative) Credential(context.Context) (Credential, error) {
	return Credential{}, ErrNotFound
}

// Native returns the platform's secure store provider. Only macOS has one
// beyond the OS keyring.
func Native(service, username string) Provider {
	return noNative{}
}
