package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/illarion/biolock/internal/config"
	"github.com/illarion/biolock/internal/core"
	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/iv"
	"github.com/illarion/biolock/internal/keyring"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/illarion/biolock/internal/logger"
	"github.com/illarion/biolock/internal/sensor"
	"github.com/illarion/biolock/internal/session"
	"github.com/spf13/cobra"
)

// App is everything a command needs, built from settings
type App struct {
	Settings *config.Settings
	Logger   *slog.Logger
	Gateway  *keystore.Gateway
	Ledger   iv.Ledger
	Sensor   *sensor.Terminal
	Auth     *core.Authenticator

	closers []io.Closer
}

type rootFlags struct {
	envFile      string
	alias        string
	store        string
	storePath    string
	ivLedger     string
	ivLedgerPath string
	logLevel     string
}

// NewRootCommand builds the biolock command tree
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "biolock",
		Short: "Encrypt short secrets behind a PIN check",
		Long: `biolock encrypts and decrypts short secrets with a key that never leaves
the key store. Every operation waits for the enrolled PIN first.

Settings come from BIOLOCK_* environment variables or a .env file:
  BIOLOCK_ALIAS, BIOLOCK_STORE (keyring|file), BIOLOCK_STORE_PATH,
  BIOLOCK_STORE_PASSWORD, BIOLOCK_IV_LEDGER (memory|bolt),
  BIOLOCK_IV_LEDGER_PATH, BIOLOCK_KEY_SIZE, BIOLOCK_BLOCK_MODE,
  BIOLOCK_INVALIDATE_ON_ENROLLMENT, BIOLOCK_SENSOR_TIMEOUT,
  BIOLOCK_MAX_ATTEMPTS, BIOLOCK_LOCKOUT, BIOLOCK_LOG_LEVEL,
  BIOLOCK_LOG_TYPE, BIOLOCK_LOG_FILE`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", "", "load settings from this file instead of .env")
	pf.StringVarP(&flags.alias, "alias", "a", "", "key alias")
	pf.StringVar(&flags.store, "store", "", "key store backend (keyring|file)")
	pf.StringVar(&flags.storePath, "store-path", "", "file key store path")
	pf.StringVar(&flags.ivLedger, "iv-ledger", "", "IV ledger (memory|bolt)")
	pf.StringVar(&flags.ivLedgerPath, "iv-ledger-path", "", "bolt IV ledger path")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug|info|warning|error)")

	load := func(cmd *cobra.Command) (*config.Settings, error) {
		return loadSettings(cmd, flags)
	}

	root.AddCommand(
		newEncryptCommand(load),
		newDecryptCommand(load),
		newStatusCommand(load),
		newEnrollCommand(load),
		newUnenrollCommand(load),
		newCompactCommand(load),
		newPasswdCommand(load),
		newKeyringCommand(load),
	)

	return root
}

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		return HandleError(err)
	}
	return 0
}

type settingsLoader func(cmd *cobra.Command) (*config.Settings, error)

func loadSettings(cmd *cobra.Command, flags *rootFlags) (*config.Settings, error) {
	s, err := config.Load(flags.envFile)
	if err != nil {
		return nil, err
	}

	set := func(name string, dst *string, value string) {
		if cmd.Flags().Changed(name) {
			*dst = value
		}
	}
	set("alias", &s.Alias, flags.alias)
	set("store", &s.Store, flags.store)
	set("store-path", &s.StorePath, flags.storePath)
	set("iv-ledger", &s.IVLedger, flags.ivLedger)
	set("iv-ledger-path", &s.IVLedgerPath, flags.ivLedgerPath)
	set("log-level", &s.Logger.Level, flags.logLevel)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewApp wires the key store, IV ledger, terminal sensor and authenticator
func NewApp(s *config.Settings) (*App, error) {
	app := &App{Settings: s}

	log, closer, err := logger.New(s.Logger, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	app.Logger = log
	app.closers = append(app.closers, closer)

	app.Gateway, err = keystore.Select(keystore.Options{
		Backend:  s.Store,
		Path:     s.StorePath,
		Password: storePassword(s),
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	switch s.IVLedger {
	case config.LedgerBolt:
		ledger, err := iv.OpenBoltLedger(s.IVLedgerPath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open IV ledger: %w", err)
		}
		app.Ledger = ledger
		app.closers = append(app.closers, ledger)
	default:
		app.Ledger = iv.NewMemoryLedger()
	}

	app.Sensor = sensor.NewTerminal()
	app.Sensor.MaxAttempts = s.MaxAttempts
	app.Sensor.Lockout = s.Lockout
	app.Sensor.Timeout = s.SensorTimeout
	app.Sensor.Logger = log

	factory := session.NewFactory(app.Gateway, app.Ledger,
		session.WithParams(s.KeyParams),
		session.WithLogger(log),
	)

	app.Auth = core.New(s.Alias, factory, app.Sensor,
		core.WithLogger(log),
		core.WithHelpHandler(func(h core.Help) {
			fmt.Fprintf(os.Stderr, "%s\n", h.Message)
		}),
	)

	log.Debug("app ready",
		"alias", s.Alias,
		"store", app.Gateway.Backend(),
		"ledger", s.IVLedger,
		"transformation", s.KeyParams(s.Alias).Transformation().String(),
	)
	return app, nil
}

// Close releases the IV ledger file and the log file
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// withApp loads settings, builds the app and runs fn with it
func withApp(cmd *cobra.Command, load settingsLoader, fn func(*App) error) error {
	s, err := load(cmd)
	if err != nil {
		return err
	}
	app, err := NewApp(s)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

// storePassword reads the file store password from settings, then the OS
// keyring, and otherwise prompts for it once per process. Callers get a copy
// they may clear.
func storePassword(s *config.Settings) func() ([]byte, error) {
	var (
		mu       sync.Mutex
		password []byte
	)
	return func() ([]byte, error) {
		if s.StorePassword != "" {
			return []byte(s.StorePassword), nil
		}

		mu.Lock()
		defer mu.Unlock()
		if password == nil {
			if saved, err := keyring.GetSecret(storePasswordSecret(s.StorePath)); err == nil && saved != "" {
				password = []byte(saved)
				return append([]byte(nil), password...), nil
			}
			p, err := ReadSecret("Store password: ")
			if err != nil {
				return nil, err
			}
			password = p
		}
		return append([]byte(nil), password...), nil
	}
}

func describeTransformation(s *config.Settings) string {
	t := s.KeyParams(s.Alias).Transformation()
	if t.BlockMode == crypto.BlockModeGCM {
		return fmt.Sprintf("%s (%d-bit)", t, s.KeySize)
	}
	return fmt.Sprintf("%s + HMAC-SHA256 (%d-bit)", t, s.KeySize)
}
