package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket = []byte("config") // KDF params (salt, iterations), password check, timestamps
	KeysBucket   = []byte("keys")   // Wrapped key records by alias
	IVsBucket    = []byte("ivs")    // Initialization vectors by alias
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigSalt     = []byte("salt")
	ConfigIters    = []byte("iterations")
	ConfigCheck    = []byte("check")
)

var ErrNotFound = errors.New("entry not found")

// openTimeout bounds the wait for the file lock held by another process
const openTimeout = 2 * time.Second

// Storage provides BBolt-based storage for biolock
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a biolock database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure. It is safe to call on an
// already initialized database.
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, KeysBucket, IVsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if config.Get(ConfigVersion) != nil {
			return nil
		}
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// GetSalt retrieves the KDF salt
func (s *Storage) GetSalt() ([]byte, error) {
	return s.get(ConfigBucket, ConfigSalt)
}

// GetIterations retrieves the KDF iterations
func (s *Storage) GetIterations() (uint32, error) {
	iters, err := s.get(ConfigBucket, ConfigIters)
	if err != nil {
		return 0, err
	}
	if len(iters) != 4 {
		return 0, fmt.Errorf("iterations malformed")
	}
	return binary.BigEndian.Uint32(iters), nil
}

// GetCheck retrieves the encrypted password check value
func (s *Storage) GetCheck() ([]byte, error) {
	return s.get(ConfigBucket, ConfigCheck)
}

// Reseal replaces the KDF salt and iterations, the password check and the
// given key records in a single transaction. Either all of them change or
// none do.
func (s *Storage) Reseal(salt []byte, iterations uint32, check []byte, records map[string][]byte) error {
	iters := make([]byte, 4)
	binary.BigEndian.PutUint32(iters, iterations)

	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		keys := tx.Bucket(KeysBucket)
		if config == nil || keys == nil {
			return fmt.Errorf("database not initialized")
		}

		for k, v := range map[string][]byte{
			string(ConfigSalt):  salt,
			string(ConfigIters): iters,
			string(ConfigCheck): check,
		} {
			if err := config.Put([]byte(k), v); err != nil {
				return fmt.Errorf("failed to store %s: %w", k, err)
			}
		}

		for alias, record := range records {
			if err := keys.Put([]byte(alias), record); err != nil {
				return fmt.Errorf("failed to store key %q: %w", alias, err)
			}
		}

		modified, _ := time.Now().MarshalBinary()
		return config.Put(ConfigModified, modified)
	})
}

// PutKey stores a wrapped key record under alias
func (s *Storage) PutKey(alias string, record []byte) error {
	return s.put(KeysBucket, []byte(alias), record)
}

// GetKey retrieves a wrapped key record
func (s *Storage) GetKey(alias string) ([]byte, error) {
	return s.get(KeysBucket, []byte(alias))
}

// HasKey reports whether a key record exists for alias
func (s *Storage) HasKey(alias string) (bool, error) {
	return s.has(KeysBucket, []byte(alias))
}

// ListKeys returns all aliases with a stored key record
func (s *Storage) ListKeys() ([]string, error) {
	var aliases []string
	err := s.db.View(func(tx *bolt.Tx) error {
		keys := tx.Bucket(KeysBucket)
		if keys == nil {
			return nil
		}
		return keys.ForEach(func(k, _ []byte) error {
			aliases = append(aliases, string(k))
			return nil
		})
	})
	return aliases, err
}

// PutIV stores the initialization vector for alias, replacing any previous one
func (s *Storage) PutIV(alias string, iv []byte) error {
	return s.put(IVsBucket, []byte(alias), iv)
}

// GetIV retrieves the initialization vector for alias
func (s *Storage) GetIV(alias string) ([]byte, error) {
	return s.get(IVsBucket, []byte(alias))
}

// HasIV reports whether an initialization vector exists for alias
func (s *Storage) HasIV(alias string) (bool, error) {
	return s.has(IVsBucket, []byte(alias))
}

func (s *Storage) put(bucket, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("%s bucket not found", bucket)
		}
		if err := b.Put(key, value); err != nil {
			return err
		}

		modified, _ := time.Now().MarshalBinary()
		return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
	})
}

func (s *Storage) get(bucket, key []byte) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("%s bucket not found", bucket)
		}
		data = b.Get(key)
		if data == nil {
			return ErrNotFound
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), data...)
		return nil
	})
	return data, err
}

func (s *Storage) has(bucket, key []byte) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("%s bucket not found", bucket)
		}
		found = b.Get(key) != nil
		return nil
	})
	return found, err
}

// Compact creates a compacted copy of the database, removing unused space.
func (s *Storage) Compact() error {
	srcPath := s.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
