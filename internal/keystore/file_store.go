package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/storage"
)

const (
	passwordCheckString = "biolock-password-check"
	checkAssociatedData = "check"
)

// FileStore keeps key records in a bbolt file, each wrapped with a key
// derived from the store password.
type FileStore struct {
	path     string
	password func() ([]byte, error)
	db       *storage.Storage
	enc      *crypto.Encryptor
}

// NewFileStore creates a file-backed store handle. Nothing is opened until
// Load.
func NewFileStore(path string, password func() ([]byte, error)) *FileStore {
	return &FileStore{path: path, password: password}
}

// Load opens the file, creating and sealing it with the password on first
// use, and verifies the password otherwise.
func (s *FileStore) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db, err := storage.Open(s.path)
	if err != nil {
		return err
	}
	s.db = db

	if err := db.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize key store: %w", err)
	}

	password, err := s.password()
	if err != nil {
		return fmt.Errorf("failed to read store password: %w", err)
	}
	defer crypto.ClearBytes(password)

	salt, err := db.GetSalt()
	if errors.Is(err, storage.ErrNotFound) {
		return s.seal(password)
	}
	if err != nil {
		return fmt.Errorf("failed to get salt: %w", err)
	}

	iterations, err := db.GetIterations()
	if err != nil {
		return fmt.Errorf("failed to get iterations: %w", err)
	}

	kdf := &crypto.KDF{Salt: salt, Iterations: int(iterations)}
	enc := crypto.NewEncryptor(kdf.DeriveKey(password))

	check, err := db.GetCheck()
	if err != nil {
		enc.Destroy()
		return ErrWrongPassword
	}
	plain, err := enc.Decrypt(check, []byte(checkAssociatedData))
	if err != nil || string(plain) != passwordCheckString {
		enc.Destroy()
		return ErrWrongPassword
	}

	s.enc = enc
	return nil
}

// seal prepares a new store file for password
func (s *FileStore) seal(password []byte) error {
	kdf, enc, check, err := newWrapping(password)
	if err != nil {
		return err
	}

	if err := s.db.Reseal(kdf.Salt, uint32(kdf.Iterations), check, nil); err != nil {
		enc.Destroy()
		return fmt.Errorf("failed to seal key store: %w", err)
	}

	s.enc = enc
	return nil
}

// newWrapping derives a wrapping key from password under fresh KDF params
// and encrypts the password check with it
func newWrapping(password []byte) (*crypto.KDF, *crypto.Encryptor, []byte, error) {
	kdf, err := crypto.NewKDF()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create KDF: %w", err)
	}

	enc := crypto.NewEncryptor(kdf.DeriveKey(password))
	check, err := enc.Encrypt([]byte(passwordCheckString), []byte(checkAssociatedData))
	if err != nil {
		enc.Destroy()
		return nil, nil, nil, fmt.Errorf("failed to encrypt check: %w", err)
	}
	return kdf, enc, check, nil
}

func (s *FileStore) ContainsAlias(alias string) (bool, error) {
	if s.enc == nil {
		return false, fmt.Errorf("key store not loaded")
	}
	return s.db.HasKey(alias)
}

func (s *FileStore) GetKey(alias string) (*Key, error) {
	if s.enc == nil {
		return nil, fmt.Errorf("key store not loaded")
	}

	sealed, err := s.db.GetKey(alias)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, alias)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", alias, err)
	}

	data, err := s.enc.Decrypt(sealed, []byte(alias))
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key %q: %w", alias, err)
	}
	defer crypto.ClearBytes(data)

	rec, err := unmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	return rec.key(alias, time.Now())
}

func (s *FileStore) GenerateKey(params Params, enrollmentID string) error {
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

	sealed, err := s.enc.Encrypt(data, []byte(params.Alias))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyGenerationFailed, err)
	}

	if err := s.db.PutKey(params.Alias, sealed); err != nil {
		return fmt.Errorf("%w: %w", ErrKeyGenerationFailed, err)
	}
	return nil
}

// ChangePassword rewraps every key record and the password check under
// newPassword. The store must be loaded with the current password. The file
// is rewritten in one transaction, so a failure leaves the old password in
// effect.
func (s *FileStore) ChangePassword(newPassword []byte) error {
	if s.enc == nil {
		return fmt.Errorf("key store not loaded")
	}
	if len(newPassword) == 0 {
		return ErrEmptyPassword
	}

	aliases, err := s.db.ListKeys()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	kdf, enc, check, err := newWrapping(newPassword)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			enc.Destroy()
		}
	}()

	records := make(map[string][]byte, len(aliases))
	for _, alias := range aliases {
		sealed, err := s.db.GetKey(alias)
		if err != nil {
			return fmt.Errorf("failed to read key %q: %w", alias, err)
		}

		data, err := s.enc.Decrypt(sealed, []byte(alias))
		if err != nil {
			return fmt.Errorf("failed to unwrap key %q: %w", alias, err)
		}
		rewrapped, err := enc.Encrypt(data, []byte(alias))
		crypto.ClearBytes(data)
		if err != nil {
			return fmt.Errorf("failed to rewrap key %q: %w", alias, err)
		}
		records[alias] = rewrapped
	}

	if err := s.db.Reseal(kdf.Salt, uint32(kdf.Iterations), check, records); err != nil {
		return fmt.Errorf("failed to reseal key store: %w", err)
	}
	committed = true

	s.enc.Destroy()
	s.enc = enc
	return nil
}

// Aliases lists the aliases stored in the file
func (s *FileStore) Aliases() ([]string, error) {
	return s.db.ListKeys()
}

// Close releases the file and wipes the wrapping key
func (s *FileStore) Close() error {
	if s.enc != nil {
		s.enc.Destroy()
		s.enc = nil
	}
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
