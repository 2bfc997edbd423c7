package config

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	dserrors "github.com/systmms/pterokeys/internal/errors"
)

// Secret reference prefixes.
const (
	envPrefix     = "env:"
	keyringPrefix = "keyring:"
)

// ResolveSecret resolves a reference of the form env:NAME or
// keyring:service/user. Any other value is returned as a literal.
func ResolveSecret(field, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, envPrefix):
		name := strings.TrimPrefix(ref, envPrefix)
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			return "", dserrors.ConfigError{
				Field:      field,
				Value:      ref,
				Message:    "environment variable is not set",
				Suggestion: "Export " + name + " before running pterokeys",
			}
		}
		return value, nil

	case strings.HasPrefix(ref, keyringPrefix):
		service, user, ok := strings.Cut(strings.TrimPrefix(ref, keyringPrefix), "/")
		if !ok || service == "" || user == "" {
			return "", dserrors.ConfigError{
				Field:      field,
				Value:      ref,
				Message:    "invalid keyring reference",
				Suggestion: "Use the form keyring:service/user",
			}
		}
		value, err := keyring.Get(service, user)
		if err != nil {
			suggestion := "Check that the system keyring is unlocked"
			if errors.Is(err, keyring.ErrNotFound) {
				suggestion = "Store it first, e.g. with 'secret-tool store service " + service + " username " + user + "'"
			}
			return "", dserrors.UserError{
				Message:    "Failed to read " + field + " from keyring",
				Details:    err.Error(),
				Suggestion: suggestion,
				Err:        err,
			}
		}
		return value, nil
	}

	return ref, nil
}
