// Package keys hands out the symmetric key for an alias, creating it in the
// key store on first use.
package keys

import (
	"errors"
	"fmt"

	"github.com/illarion/biolock/internal/keystore"
)

// ErrKeyInvalidated is returned for keys bound to a sensor enrollment that
// has since been replaced
var ErrKeyInvalidated = errors.New("key permanently invalidated by new enrollment")

// Provider returns store-backed keys
type Provider struct{}

// NewProvider creates a key provider
func NewProvider() *Provider {
	return &Provider{}
}

// GetOrCreateKey returns the key stored under alias, generating it from
// params when absent. A freshly generated key is loaded back from the store
// rather than returned directly, so both paths yield the same kind of handle.
//
// enrollmentID identifies the current sensor enrollment; keys generated with
// InvalidatedByEnrollment refuse to load under a different one.
func (p *Provider) GetOrCreateKey(store keystore.Store, alias string, params keystore.Params, enrollmentID string) (*keystore.Key, error) {
	exists, err := store.ContainsAlias(alias)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", keystore.ErrStoreUnavailable, err)
	}

	if !exists {
		params.Alias = alias
		if err := store.GenerateKey(params, enrollmentID); err != nil {
			if errors.Is(err, keystore.ErrKeyGenerationFailed) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", keystore.ErrKeyGenerationFailed, err)
		}
	}

	key, err := store.GetKey(alias)
	if err != nil {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}

	if key.Params().InvalidatedByEnrollment && key.EnrollmentID() != enrollmentID {
		key.Destroy()
		return nil, fmt.Errorf("%w: %q", ErrKeyInvalidated, alias)
	}

	return key, nil
}
