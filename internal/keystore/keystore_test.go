package keystore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/illarion/biolock/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func staticPassword(p string) func() ([]byte, error) {
	return func() ([]byte, error) { return []byte(p), nil }
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams("login")

	require.NoError(t, p.Validate())
	assert.Equal(t, "AES/CBC/PKCS7Padding", p.Transformation().String())
	assert.Equal(t, 256, p.KeySize)
	assert.Equal(t, "CN=login CA Certificate", p.Subject)
	assert.EqualValues(t, 1, p.SerialNumber)
	assert.True(t, p.InvalidatedByEnrollment)
	assert.True(t, p.NotAfter.After(p.NotBefore.Add(19*365*24*time.Hour)))
}

func TestParamsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"missing alias", func(p *Params) { p.Alias = "" }},
		{"bad key size", func(p *Params) { p.KeySize = 512 }},
		{"bad algorithm", func(p *Params) { p.Algorithm = "RSA" }},
		{"bad block mode", func(p *Params) { p.BlockMode = "ECB" }},
		{"gcm with padding", func(p *Params) { p.BlockMode = crypto.BlockModeGCM }},
		{"inverted window", func(p *Params) { p.NotAfter = p.NotBefore.Add(-time.Hour) }},
		{"zero serial", func(p *Params) { p.SerialNumber = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams("login")
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}

	gcm := DefaultParams("login")
	gcm.BlockMode = crypto.BlockModeGCM
	gcm.Padding = crypto.PaddingNone
	gcm.KeySize = 128
	assert.NoError(t, gcm.Validate())
}

func testStore(t *testing.T, gw *Gateway) {
	t.Helper()
	ctx := context.Background()

	store, err := gw.Open(ctx)
	require.NoError(t, err)
	defer store.Close()

	assert.False(t, gw.HasAlias(store, "login"))

	_, err = store.GetKey("login")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.GenerateKey(DefaultParams("login"), "enrollment-1"))
	assert.True(t, gw.HasAlias(store, "login"))

	err = store.GenerateKey(DefaultParams("login"), "enrollment-1")
	assert.ErrorIs(t, err, ErrKeyExists, "existing keys are never replaced")

	bad := DefaultParams("broken")
	bad.KeySize = 100
	assert.ErrorIs(t, store.GenerateKey(bad, ""), ErrKeyGenerationFailed)

	key, err := store.GetKey("login")
	require.NoError(t, err)
	assert.Equal(t, "login", key.Alias())
	assert.Equal(t, "enrollment-1", key.EnrollmentID())
	assert.Equal(t, "AES/CBC/PKCS7Padding", key.Transformation().String())

	block, err := key.NewBlock()
	require.NoError(t, err)
	assert.Equal(t, 16, block.BlockSize())

	// Keys loaded twice must be the same key
	again, err := store.GetKey("login")
	require.NoError(t, err)
	a, err := key.Subkey("purpose", 32)
	require.NoError(t, err)
	b, err := again.Subkey("purpose", 32)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := key.Subkey("other", 32)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	key.Destroy()
	_, err = key.NewBlock()
	assert.Error(t, err)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	gw, err := Select(Options{Backend: BackendKeyring})
	require.NoError(t, err)
	assert.Equal(t, BackendKeyring, gw.Backend())

	testStore(t, gw)
}

func TestKeyringStoreUnavailable(t *testing.T) {
	keyring.MockInitWithError(assert.AnError)

	gw, err := Select(Options{Backend: BackendKeyring})
	require.NoError(t, err)

	_, err = gw.Open(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFileStore(t *testing.T) {
	gw, err := Select(Options{
		Backend:  BackendFile,
		Path:     filepath.Join(t.TempDir(), "keys.biolock"),
		Password: staticPassword("store-password"),
	})
	require.NoError(t, err)
	assert.Equal(t, BackendFile, gw.Backend())

	testStore(t, gw)
}

func TestFileStoreWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.biolock")
	ctx := context.Background()

	good, err := Select(Options{Backend: BackendFile, Path: path, Password: staticPassword("right")})
	require.NoError(t, err)
	store, err := good.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, store.GenerateKey(DefaultParams("login"), ""))
	require.NoError(t, store.Close())

	bad, err := Select(Options{Backend: BackendFile, Path: path, Password: staticPassword("wrong")})
	require.NoError(t, err)
	_, err = bad.Open(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, ErrWrongPassword)

	store, err = good.Open(ctx)
	require.NoError(t, err)
	defer store.Close()
	assert.True(t, good.HasAlias(store, "login"))
	aliases, err := store.(*FileStore).Aliases()
	require.NoError(t, err)
	assert.Equal(t, []string{"login"}, aliases)
}

func TestExpiredKeyRefused(t *testing.T) {
	keyring.MockInit()
	gw, err := Select(Options{Backend: BackendKeyring})
	require.NoError(t, err)

	store, err := gw.Open(context.Background())
	require.NoError(t, err)

	p := DefaultParams("old")
	p.NotBefore = time.Now().Add(-2 * time.Hour)
	p.NotAfter = time.Now().Add(-time.Hour)
	require.NoError(t, store.GenerateKey(p, ""))

	_, err = store.GetKey("old")
	assert.ErrorIs(t, err, ErrKeyExpired)
}

func TestSelectRejectsBadOptions(t *testing.T) {
	_, err := Select(Options{Backend: "tpm"})
	assert.Error(t, err)

	_, err = Select(Options{Backend: BackendFile, Password: staticPassword("x")})
	assert.Error(t, err)

	_, err = Select(Options{Backend: BackendFile, Path: "keys.biolock"})
	assert.Error(t, err)
}

func TestGatewayHonorsCancelledContext(t *testing.T) {
	gw := NewGateway("test", func(context.Context) (Store, error) {
		t.Fatal("store must not be opened")
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gw.Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStoreChangePassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.biolock")
	ctx := context.Background()

	old, err := Select(Options{Backend: BackendFile, Path: path, Password: staticPassword("old")})
	require.NoError(t, err)
	store, err := old.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, store.GenerateKey(DefaultParams("login"), "enrollment-1"))
	require.NoError(t, store.GenerateKey(DefaultParams("backup"), ""))

	before, err := store.GetKey("login")
	require.NoError(t, err)
	want, err := before.Subkey("purpose", 32)
	require.NoError(t, err)

	fs := store.(*FileStore)
	assert.ErrorIs(t, fs.ChangePassword(nil), ErrEmptyPassword)
	require.NoError(t, fs.ChangePassword([]byte("new")))
	require.NoError(t, store.Close())

	_, err = old.Open(ctx)
	assert.ErrorIs(t, err, ErrWrongPassword)

	renewed, err := Select(Options{Backend: BackendFile, Path: path, Password: staticPassword("new")})
	require.NoError(t, err)
	store, err = renewed.Open(ctx)
	require.NoError(t, err)
	defer store.Close()

	after, err := store.GetKey("login")
	require.NoError(t, err)
	got, err := after.Subkey("purpose", 32)
	require.NoError(t, err)
	assert.Equal(t, want, got, "rewrapping must keep the key")
	assert.Equal(t, "enrollment-1", after.EnrollmentID())
	assert.True(t, renewed.HasAlias(store, "backup"))
}
