package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
	assert.Equal(t, "login", s.Alias)
	assert.Equal(t, keystore.BackendKeyring, s.Store)
	assert.Equal(t, LedgerMemory, s.IVLedger)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BIOLOCK_ALIAS", "backup")
	t.Setenv("BIOLOCK_STORE", "file")
	t.Setenv("BIOLOCK_STORE_PATH", "keys.db")
	t.Setenv("BIOLOCK_STORE_PASSWORD", "secret")
	t.Setenv("BIOLOCK_IV_LEDGER", "bolt")
	t.Setenv("BIOLOCK_IV_LEDGER_PATH", "ivs.db")
	t.Setenv("BIOLOCK_KEY_SIZE", "128")
	t.Setenv("BIOLOCK_BLOCK_MODE", "GCM")
	t.Setenv("BIOLOCK_INVALIDATE_ON_ENROLLMENT", "false")
	t.Setenv("BIOLOCK_SENSOR_TIMEOUT", "10s")
	t.Setenv("BIOLOCK_MAX_ATTEMPTS", "3")
	t.Setenv("BIOLOCK_LOCKOUT", "0s")
	t.Setenv("BIOLOCK_LOG_LEVEL", "debug")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "backup", s.Alias)
	assert.Equal(t, keystore.BackendFile, s.Store)
	assert.Equal(t, "keys.db", s.StorePath)
	assert.Equal(t, "secret", s.StorePassword)
	assert.Equal(t, LedgerBolt, s.IVLedger)
	assert.Equal(t, "ivs.db", s.IVLedgerPath)
	assert.Equal(t, 128, s.KeySize)
	assert.Equal(t, 10*time.Second, s.SensorTimeout)
	assert.Equal(t, 3, s.MaxAttempts)
	assert.Zero(t, s.Lockout)
	assert.Equal(t, LogLevelDebug, s.Logger.Level)

	p := s.KeyParams("backup")
	require.NoError(t, p.Validate())
	assert.Equal(t, "AES/GCM/NoPadding", p.Transformation().String())
	assert.Equal(t, 128, p.KeySize)
	assert.False(t, p.InvalidatedByEnrollment)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// godotenv never overrides a variable that is already set, so start from
	// unset ones and let t.Setenv restore them afterwards
	for _, key := range []string{"BIOLOCK_ALIAS", "BIOLOCK_MAX_ATTEMPTS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	require.NoError(t, os.WriteFile(".env", []byte("BIOLOCK_ALIAS=from-dotenv\n"), 0600))
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", s.Alias)

	custom := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(custom, []byte("BIOLOCK_MAX_ATTEMPTS=9\n"), 0600))
	s, err = Load(custom)
	require.NoError(t, err)
	assert.Equal(t, 9, s.MaxAttempts)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"BIOLOCK_STORE":          "tpm",
		"BIOLOCK_IV_LEDGER":      "redis",
		"BIOLOCK_KEY_SIZE":       "512",
		"BIOLOCK_BLOCK_MODE":     "ECB",
		"BIOLOCK_MAX_ATTEMPTS":   "many",
		"BIOLOCK_SENSOR_TIMEOUT": "soon",
		"BIOLOCK_LOG_TYPE":       "syslog",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(key, value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestValidateSamePath(t *testing.T) {
	s := Default()
	s.Store = keystore.BackendFile
	s.IVLedger = LedgerBolt
	s.StorePath = "vault.db"
	s.IVLedgerPath = "./vault.db"
	assert.ErrorIs(t, s.Validate(), ErrSamePath)

	s.IVLedgerPath = "ivs.db"
	assert.NoError(t, s.Validate())
}

func TestValidateFileLogger(t *testing.T) {
	s := Default()
	s.Logger.Type = LogTypeFile
	assert.Error(t, s.Validate(), "file logger needs a path")

	s.Logger.FilePath = filepath.Join(t.TempDir(), "biolock.log")
	assert.NoError(t, s.Validate())
}

func TestKeyParamsDefaults(t *testing.T) {
	p := Default().KeyParams("login")
	assert.Equal(t, "login", p.Alias)
	assert.Equal(t, crypto.BlockModeCBC, p.BlockMode)
	assert.Equal(t, crypto.PaddingPKCS7, p.Padding)
	assert.True(t, p.InvalidatedByEnrollment)
}
