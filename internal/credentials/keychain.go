package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// securityItemNotFound is the exit status of security(1) for a missing item.
const securityItemNotFound = 44

// Keychain reads a generic password through the macOS security(1) tool.
// It covers items created by other tools (Keychain Access, the original
// shell setup) that go-keyring's own entries do not.
type Keychain struct {
	Service  string
	Username string

	// run executes the command and returns its stdout; tests replace it.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func (k Keychain) Credential(ctx context.Context) (Credential, error) {
	if k.Username == "" {
		return Credential{}, ErrNotFound
	}
	service := k.Service
	if service == "" {
		service = DefaultService
	}
	run := k.run
	if run == nil {
		run = runCommand
	}

	out, err := run(ctx, "security", "find-generic-password", "-s", service, "-a", k.Username, "-w")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == securityItemNotFound {
			return Credential{}, ErrNotFound
		}
		if errors.Is(err, exec.ErrNotFound) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("keychain lookup for %q: %w", k.Username, err)
	}
	secret := strings.TrimRight(string(out), "\r\n")
	if secret == "" {
		return Credential{}, ErrNotFound
	}
	return Credential{Username: k.Username, Secret: secret, Source: SourceKeychain}, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}
