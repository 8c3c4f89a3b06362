package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "biolock"

// ErrNotFound is returned when no secret is stored under the requested name
var ErrNotFound = errors.New("secret not found in keyring")

// SetSecret stores a secret in the OS keyring
func SetSecret(name string, secret string) error {
	return keyring.Set(serviceName, name, secret)
}

// GetSecret retrieves a secret from the OS keyring
func GetSecret(name string) (string, error) {
	secret, err := keyring.Get(serviceName, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return secret, err
}

// DeleteSecret removes a secret from the OS keyring
func DeleteSecret(name string) error {
	err := keyring.Delete(serviceName, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// HasSecret checks if a secret is stored in the keyring.
// Errors other than "not found" are returned so callers can tell an empty
// keyring from an unreachable one.
func HasSecret(name string) (bool, error) {
	_, err := GetSecret(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
