package keystore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrStoreUnavailable    = errors.New("key store unavailable")
	ErrKeyGenerationFailed = errors.New("key generation failed")
	ErrKeyNotFound         = errors.New("key not found")
	ErrKeyExists           = errors.New("key already exists")
	ErrKeyExpired          = errors.New("key outside its validity window")
	ErrWrongPassword       = errors.New("wrong store password")
	ErrEmptyPassword       = errors.New("store password must not be empty")
)

// Backend names
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
)

// Store is a protected key container
type Store interface {
	// Load makes the container ready for use
	Load(ctx context.Context) error
	ContainsAlias(alias string) (bool, error)
	GetKey(alias string) (*Key, error)
	// GenerateKey creates and persists a new key under params.Alias
	GenerateKey(params Params, enrollmentID string) error
	Close() error
}

// OpenFunc creates a store handle
type OpenFunc func(ctx context.Context) (Store, error)

// Gateway opens the configured store. Callers open a fresh handle per
// operation and close it when done.
type Gateway struct {
	backend string
	open    OpenFunc
}

// NewGateway creates a gateway around an arbitrary store constructor
func NewGateway(backend string, open OpenFunc) *Gateway {
	return &Gateway{backend: backend, open: open}
}

// Options select and configure a store backend
type Options struct {
	Backend string
	// Path of the store file (file backend)
	Path string
	// Password supplies the store password (file backend)
	Password func() ([]byte, error)
}

// Select returns the gateway for the configured backend
func Select(opts Options) (*Gateway, error) {
	switch opts.Backend {
	case BackendKeyring, "":
		return NewGateway(BackendKeyring, func(context.Context) (Store, error) {
			return NewKeyringStore(), nil
		}), nil
	case BackendFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("file key store requires a path")
		}
		if opts.Password == nil {
			return nil, fmt.Errorf("file key store requires a password source")
		}
		return NewGateway(BackendFile, func(context.Context) (Store, error) {
			return NewFileStore(opts.Path, opts.Password), nil
		}), nil
	default:
		return nil, fmt.Errorf("unsupported key store backend: %s", opts.Backend)
	}
}

// Backend returns the name of the selected backend
func (g *Gateway) Backend() string {
	return g.backend
}

// Open opens and loads the store
func (g *Gateway) Open(ctx context.Context) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store, err := g.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if err := store.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return store, nil
}

// HasAlias reports whether the store holds a key for alias. Lookup errors
// count as absent.
func (g *Gateway) HasAlias(store Store, alias string) bool {
	ok, err := store.ContainsAlias(alias)
	return err == nil && ok
}
