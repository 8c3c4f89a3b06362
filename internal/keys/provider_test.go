package keys

import (
	"context"
	"errors"
	"testing"

	"github.com/illarion/biolock/internal/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type countingStore struct {
	keystore.Store
	generated int
}

func (s *countingStore) GenerateKey(params keystore.Params, enrollmentID string) error {
	s.generated++
	return s.Store.GenerateKey(params, enrollmentID)
}

func openStore(t *testing.T) (*keystore.Gateway, *countingStore) {
	t.Helper()
	keyring.MockInit()

	gw, err := keystore.Select(keystore.Options{Backend: keystore.BackendKeyring})
	require.NoError(t, err)
	store, err := gw.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return gw, &countingStore{Store: store}
}

func TestGetOrCreateKeyCreatesOnce(t *testing.T) {
	_, store := openStore(t)
	p := NewProvider()

	first, err := p.GetOrCreateKey(store, "login", keystore.DefaultParams("login"), "enrollment-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.generated)
	assert.Equal(t, "login", first.Alias())

	second, err := p.GetOrCreateKey(store, "login", keystore.DefaultParams("login"), "enrollment-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.generated, "existing key must be reused")

	a, err := first.Subkey("check", 16)
	require.NoError(t, err)
	b, err := second.Subkey("check", 16)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGetOrCreateKeyUsesAliasArgument(t *testing.T) {
	_, store := openStore(t)
	p := NewProvider()

	key, err := p.GetOrCreateKey(store, "backup", keystore.DefaultParams("login"), "")
	require.NoError(t, err)
	assert.Equal(t, "backup", key.Alias())
	assert.Equal(t, "backup", key.Params().Alias)
}

func TestGetOrCreateKeyGenerationFailure(t *testing.T) {
	gw, store := openStore(t)
	p := NewProvider()

	params := keystore.DefaultParams("login")
	params.KeySize = 42

	_, err := p.GetOrCreateKey(store, "login", params, "")
	assert.ErrorIs(t, err, keystore.ErrKeyGenerationFailed)
	assert.False(t, gw.HasAlias(store, "login"))
}

func TestKeyInvalidatedByEnrollment(t *testing.T) {
	_, store := openStore(t)
	p := NewProvider()

	_, err := p.GetOrCreateKey(store, "login", keystore.DefaultParams("login"), "enrollment-1")
	require.NoError(t, err)

	_, err = p.GetOrCreateKey(store, "login", keystore.DefaultParams("login"), "enrollment-2")
	assert.ErrorIs(t, err, ErrKeyInvalidated)

	lenient := keystore.DefaultParams("lenient")
	lenient.InvalidatedByEnrollment = false
	_, err = p.GetOrCreateKey(store, "lenient", lenient, "enrollment-1")
	require.NoError(t, err)
	_, err = p.GetOrCreateKey(store, "lenient", lenient, "enrollment-2")
	assert.NoError(t, err)
}

type brokenStore struct {
	keystore.Store
}

func (brokenStore) ContainsAlias(string) (bool, error) {
	return false, errors.New("keyring locked")
}

func TestGetOrCreateKeyStoreLookupFailure(t *testing.T) {
	_, store := openStore(t)
	p := NewProvider()

	_, err := p.GetOrCreateKey(brokenStore{Store: store}, "login", keystore.DefaultParams("login"), "")
	assert.ErrorIs(t, err, keystore.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, keystore.ErrKeyGenerationFailed)
	assert.Zero(t, store.generated, "nothing may be generated when the lookup fails")
}
