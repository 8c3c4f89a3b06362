package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/illarion/biolock/internal/crypto"
	"golang.org/x/crypto/hkdf"
)

// Key is a store-backed symmetric key
type Key struct {
	alias        string
	material     []byte
	params       Params
	enrollmentID string
	created      time.Time
}

var _ crypto.KeyMaterial = (*Key)(nil)

func (k *Key) Alias() string        { return k.alias }
func (k *Key) Params() Params       { return k.params }
func (k *Key) Created() time.Time   { return k.created }
func (k *Key) EnrollmentID() string { return k.enrollmentID }

// Transformation returns the cipher transformation the key was generated for
func (k *Key) Transformation() crypto.Transformation {
	return k.params.Transformation()
}

// UserAuthenticationRequired reports whether ciphers from this key start
// locked
func (k *Key) UserAuthenticationRequired() bool {
	return k.params.UserAuthenticationRequired
}

// NewBlock returns an AES block cipher keyed with the key material
func (k *Key) NewBlock() (cipher.Block, error) {
	if k.material == nil {
		return nil, fmt.Errorf("key %q destroyed", k.alias)
	}
	return aes.NewCipher(k.material)
}

// Subkey derives a purpose-bound subkey with HKDF-SHA256
func (k *Key) Subkey(purpose string, size int) ([]byte, error) {
	if k.material == nil {
		return nil, fmt.Errorf("key %q destroyed", k.alias)
	}
	out := make([]byte, size)
	r := hkdf.New(sha256.New, k.material, []byte(k.alias), []byte(purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("failed to derive subkey: %w", err)
	}
	return out, nil
}

// Destroy zeroes the key material
func (k *Key) Destroy() {
	crypto.ClearBytes(k.material)
	k.material = nil
}

// record is the serialized form kept inside a store
type record struct {
	Material     []byte    `json:"material"`
	Params       Params    `json:"params"`
	EnrollmentID string    `json:"enrollment_id,omitempty"`
	Created      time.Time `json:"created"`
}

func newRecord(params Params, enrollmentID string) (*record, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGenerationFailed, err)
	}

	material, err := crypto.GenerateRandom(params.KeySize / 8)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGenerationFailed, err)
	}

	return &record{
		Material:     material,
		Params:       params,
		EnrollmentID: enrollmentID,
		Created:      time.Now(),
	}, nil
}

func (r *record) marshal() ([]byte, error) {
	return json.Marshal(r)
}

func unmarshalRecord(data []byte) (*record, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key record: %w", err)
	}
	return &r, nil
}

// key turns a loaded record into a Key, refusing keys outside their
// validity window.
func (r *record) key(alias string, now time.Time) (*Key, error) {
	if now.Before(r.Params.NotBefore) || now.After(r.Params.NotAfter) {
		crypto.ClearBytes(r.Material)
		return nil, fmt.Errorf("%w: %q valid %s to %s", ErrKeyExpired, alias,
			r.Params.NotBefore.Format(time.RFC3339), r.Params.NotAfter.Format(time.RFC3339))
	}
	return &Key{
		alias:        alias,
		material:     r.Material,
		params:       r.Params,
		enrollmentID: r.EnrollmentID,
		created:      r.Created,
	}, nil
}
