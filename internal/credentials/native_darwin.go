//go:build darwin

package credentials

// Native returns the macOS keychain provider.
func Native(service, username string) Provider {
	return Keychain{Service: service, Username: username}
}
