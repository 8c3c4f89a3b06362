package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/keyring"
)

const (
	keyPrefix         = "key:"
	availabilityCheck = "availability-check"
)

// KeyringStore keeps key records in the OS keyring
type KeyringStore struct{}

// NewKeyringStore creates a keyring-backed store handle
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// Load checks that the OS keyring answers
func (s *KeyringStore) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := keyring.HasSecret(availabilityCheck); err != nil {
		return fmt.Errorf("failed to reach OS keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) ContainsAlias(alias string) (bool, error) {
	return keyring.HasSecret(keyPrefix + alias)
}

func (s *KeyringStore) GetKey(alias string) (*Key, error) {
	secret, err := keyring.GetSecret(keyPrefix + alias)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, alias)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", alias, err)
	}

	rec, err := unmarshalRecord([]byte(secret))
	if err != nil {
		return nil, err
	}
	return rec.key(alias, time.Now())
}

func (s *KeyringStore) GenerateKey(params Params, enrollmentID string) error {
	exists, err := s.ContainsAlias(params.Alias)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyGenerationFailed, err)
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrKeyExists, params.Alias)
	}

	rec, err := newRecord(params, enrollmentID)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(rec.Material)

	data, err := rec.marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyGenerationFailed, err)
	}
	defer crypto.ClearBytes(data)

	if err := keyring.SetSecret(keyPrefix+params.Alias, string(data)); err != nil {
		return fmt.Errorf("%w: failed to save to keyring: %w", ErrKeyGenerationFailed, err)
	}
	return nil
}

func (s *KeyringStore) Close() error {
	return nil
}
