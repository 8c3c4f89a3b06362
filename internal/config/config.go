// Package config loads biolock settings from BIOLOCK_* environment variables
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/joho/godotenv"
)

const (
	EnvPrefix = "BIOLOCK_"

	DefaultAlias        = "login"
	DefaultStorePath    = ".biolock-keys"
	DefaultIVLedgerPath = ".biolock-ivs"

	LedgerMemory = "memory"
	LedgerBolt   = "bolt"
)

// Log level constants
const (
	LogLevelDebug   = "debug"
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// Log type constants
const (
	LogTypeConsole = "console"
	LogTypeFile    = "file"
)

var ErrSamePath = errors.New("IV ledger and key store must use different files")

// LoggerSettings configures the logger
type LoggerSettings struct {
	Level      string `validate:"required,oneof=debug info warning error"`
	Type       string `validate:"required,oneof=console file"`
	FilePath   string `validate:"required_if=Type file"`
	MaxSize    int    `validate:"min=1,max=100"`
	MaxBackups int    `validate:"min=1,max=10"`
	MaxAge     int    `validate:"min=1,max=365"`
}

// Settings holds the runtime configuration
type Settings struct {
	Alias string `validate:"required,max=128"`

	Store         string `validate:"oneof=keyring file"`
	StorePath     string `validate:"required_if=Store file"`
	StorePassword string

	IVLedger     string `validate:"oneof=memory bolt"`
	IVLedgerPath string `validate:"required_if=IVLedger bolt"`

	KeySize                int    `validate:"oneof=128 192 256"`
	BlockMode              string `validate:"oneof=CBC GCM"`
	InvalidateOnEnrollment bool

	SensorTimeout time.Duration `validate:"min=0"`
	MaxAttempts   int           `validate:"min=0"`
	Lockout       time.Duration `validate:"min=0"`

	Logger LoggerSettings
}

// Default returns settings with every default applied
func Default() *Settings {
	return &Settings{
		Alias:                  DefaultAlias,
		Store:                  keystore.BackendKeyring,
		StorePath:              DefaultStorePath,
		IVLedger:               LedgerMemory,
		IVLedgerPath:           DefaultIVLedgerPath,
		KeySize:                256,
		BlockMode:              crypto.BlockModeCBC,
		InvalidateOnEnrollment: true,
		SensorTimeout:          time.Minute,
		MaxAttempts:            5,
		Lockout:                30 * time.Second,
		Logger: LoggerSettings{
			Level:      LogLevelWarning,
			Type:       LogTypeConsole,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Load reads settings from the environment. envFile is loaded first when
// set; otherwise a .env in the working directory is used if present.
// Variables already in the environment win over the file.
func Load(envFile string) (*Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	s := Default()
	var err error

	s.Alias = getEnv("ALIAS", s.Alias)
	s.Store = getEnv("STORE", s.Store)
	s.StorePath = getEnv("STORE_PATH", s.StorePath)
	s.StorePassword = getEnv("STORE_PASSWORD", "")
	s.IVLedger = getEnv("IV_LEDGER", s.IVLedger)
	s.IVLedgerPath = getEnv("IV_LEDGER_PATH", s.IVLedgerPath)
	s.BlockMode = getEnv("BLOCK_MODE", s.BlockMode)
	s.Logger.Level = getEnv("LOG_LEVEL", s.Logger.Level)
	s.Logger.Type = getEnv("LOG_TYPE", s.Logger.Type)
	s.Logger.FilePath = getEnv("LOG_FILE", s.Logger.FilePath)

	if s.KeySize, err = getEnvInt("KEY_SIZE", s.KeySize); err != nil {
		return nil, err
	}
	if s.MaxAttempts, err = getEnvInt("MAX_ATTEMPTS", s.MaxAttempts); err != nil {
		return nil, err
	}
	if s.InvalidateOnEnrollment, err = getEnvBool("INVALIDATE_ON_ENROLLMENT", s.InvalidateOnEnrollment); err != nil {
		return nil, err
	}
	if s.SensorTimeout, err = getEnvDuration("SENSOR_TIMEOUT", s.SensorTimeout); err != nil {
		return nil, err
	}
	if s.Lockout, err = getEnvDuration("LOCKOUT", s.Lockout); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks all fields
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if s.Store == keystore.BackendFile && s.IVLedger == LedgerBolt && samePath(s.StorePath, s.IVLedgerPath) {
		return fmt.Errorf("%w: %s", ErrSamePath, s.StorePath)
	}
	return nil
}

// KeyParams returns the key generation params for alias
func (s *Settings) KeyParams(alias string) keystore.Params {
	p := keystore.DefaultParams(alias)
	p.KeySize = s.KeySize
	p.BlockMode = s.BlockMode
	if s.BlockMode == crypto.BlockModeGCM {
		p.Padding = crypto.PaddingNone
	}
	p.InvalidatedByEnrollment = s.InvalidateOnEnrollment
	return p
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}
