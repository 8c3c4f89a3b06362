package crypto

import (
	"errors"
	"fmt"

	"github.com/illarion/biolock/internal/iv"
)

var ErrMissingIV = errors.New("no IV stored for alias")

// Provider builds ready-to-use ciphers and keeps the IV ledger in step with
// them.
//
// Decrypt ciphers are primed with the IV stored for the alias. Authenticate
// and Encrypt ciphers generate their own IV, which then replaces whatever the
// ledger held: earlier ciphertext for that alias can no longer be decrypted.
type Provider struct{}

// Provide returns a cipher for alias in the given mode
func (Provider) Provide(alias string, mode Mode, key KeyMaterial, ledger iv.Ledger) (*Cipher, error) {
	if mode == ModeDecrypt {
		stored, found, err := ledger.Retrieve(alias)
		if err != nil {
			return nil, fmt.Errorf("failed to read IV ledger: %w", err)
		}
		if !found {
			return nil, fmt.Errorf("%w %q", ErrMissingIV, alias)
		}
		return NewCipher(key, mode, stored)
	}

	c, err := NewCipher(key, mode, nil)
	if err != nil {
		return nil, err
	}
	if err := ledger.Store(alias, c.IV()); err != nil {
		c.Destroy()
		return nil, fmt.Errorf("failed to store IV: %w", err)
	}
	return c, nil
}
