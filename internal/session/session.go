// Package session composes the key provider and the cipher provider into
// single-use crypto sessions, one per authentication attempt.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/iv"
	"github.com/illarion/biolock/internal/keys"
	"github.com/illarion/biolock/internal/keystore"
	"golang.org/x/sync/semaphore"
)

// Session is a primed cipher bound to one key and one mode. It is owned by a
// single authentication attempt and never reused.
type Session struct {
	ID      string
	Alias   string
	Mode    crypto.Mode
	Created time.Time

	cipher *crypto.Cipher
}

// Cipher returns the primed cipher handed to the sensor. It stays locked
// until the authenticator sees the sensor succeed, unless the key was
// generated without UserAuthenticationRequired.
func (s *Session) Cipher() *crypto.Cipher {
	return s.cipher
}

// Discard wipes the cipher without using it
func (s *Session) Discard() {
	s.cipher.Destroy()
}

// ParamsFunc returns the key generation params for an alias
type ParamsFunc func(alias string) keystore.Params

// Factory builds sessions. Construct with NewFactory.
type Factory struct {
	gateway *keystore.Gateway
	keys    *keys.Provider
	ciphers crypto.Provider
	ledger  iv.Ledger
	params  ParamsFunc
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// Option configures a Factory
type Option func(*Factory)

// WithParams overrides the key generation params (DefaultParams otherwise)
func WithParams(fn ParamsFunc) Option {
	return func(f *Factory) { f.params = fn }
}

// WithLogger sets the logger used for session lifecycle events
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) { f.logger = logger }
}

// NewFactory creates a session factory
func NewFactory(gateway *keystore.Gateway, ledger iv.Ledger, opts ...Option) *Factory {
	f := &Factory{
		gateway: gateway,
		keys:    keys.NewProvider(),
		ledger:  ledger,
		params:  keystore.DefaultParams,
		logger:  slog.New(slog.DiscardHandler),
		locks:   make(map[string]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create opens the key store, gets or creates the key for alias and primes
// a cipher for mode. Every call yields a fresh session.
func (f *Factory) Create(ctx context.Context, alias string, mode crypto.Mode, enrollmentID string) (*Session, error) {
	store, err := f.gateway.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	key, err := f.keys.GetOrCreateKey(store, alias, f.params(alias), enrollmentID)
	if err != nil {
		return nil, err
	}
	// The cipher keeps only derived state, so the raw key can go now
	defer key.Destroy()

	c, err := f.ciphers.Provide(alias, mode, key, f.ledger)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:      uuid.NewString(),
		Alias:   alias,
		Mode:    mode,
		Created: time.Now(),
		cipher:  c,
	}

	f.logger.Debug("crypto session created",
		"session", s.ID,
		"alias", alias,
		"mode", mode.String(),
		"transformation", c.Transformation().String(),
	)

	return s, nil
}

// Lock serializes attempts for one alias. It blocks until the alias is free
// or ctx is done, and returns the release function.
func (f *Factory) Lock(ctx context.Context, alias string) (func(), error) {
	f.mu.Lock()
	sem, ok := f.locks[alias]
	if !ok {
		sem = semaphore.NewWeighted(1)
		f.locks[alias] = sem
	}
	f.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to lock alias %q: %w", alias, err)
	}

	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}
