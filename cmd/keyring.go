package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/illarion/biolock/internal/config"
	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/keyring"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/spf13/cobra"
)

var ErrNotFileStore = errors.New("only the file key store has a password")

func newKeyringCommand(load settingsLoader) *cobra.Command {
	c := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the file key store password in the OS keyring",
		Long: `Stores the file key store password in the OS keyring so that encrypt and
decrypt stop asking for it. BIOLOCK_STORE_PASSWORD still takes precedence.`,
	}

	c.AddCommand(
		&cobra.Command{
			Use:   "save",
			Short: "Verify the store password and save it to the keyring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := load(cmd)
				if err != nil {
					return err
				}
				password, err := ReadSecret("Store password: ")
				if err != nil {
					return err
				}
				defer crypto.ClearBytes(password)
				return KeyringSave(cmd.Context(), s, cmd.OutOrStdout(), password)
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the store password from the keyring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := load(cmd)
				if err != nil {
					return err
				}
				return KeyringDelete(s, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the store password is in the keyring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := load(cmd)
				if err != nil {
					return err
				}
				return KeyringStatus(s, cmd.OutOrStdout())
			},
		},
	)

	return c
}

// storePasswordSecret names the keyring entry for the store at path
func storePasswordSecret(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "store-password:" + path
}

// KeyringSave opens the file store with password and, if it unlocks, saves
// the password to the OS keyring
func KeyringSave(ctx context.Context, s *config.Settings, w io.Writer, password []byte) error {
	if s.Store != keystore.BackendFile {
		return ErrNotFileStore
	}

	if err := verifyStorePassword(ctx, s.StorePath, password); err != nil {
		return err
	}

	if err := keyring.SetSecret(storePasswordSecret(s.StorePath), string(password)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}

	fmt.Fprintln(w, "Store password saved to keyring")
	return nil
}

// KeyringDelete removes the saved store password
func KeyringDelete(s *config.Settings, w io.Writer) error {
	if s.Store != keystore.BackendFile {
		return ErrNotFileStore
	}

	err := keyring.DeleteSecret(storePasswordSecret(s.StorePath))
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		fmt.Fprintln(w, "No store password in keyring")
		return nil
	case err != nil:
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	fmt.Fprintln(w, "Store password removed from keyring")
	return nil
}

// KeyringStatus reports whether the store password is saved
func KeyringStatus(s *config.Settings, w io.Writer) error {
	if s.Store != keystore.BackendFile {
		return ErrNotFileStore
	}

	fmt.Fprintf(w, "Store password: %s\n", savedPasswordState(s))
	return nil
}

func savedPasswordState(s *config.Settings) string {
	ok, err := keyring.HasSecret(storePasswordSecret(s.StorePath))
	switch {
	case err != nil:
		return fmt.Sprintf("unknown (%s)", err)
	case ok:
		return "stored in keyring"
	default:
		return "not stored"
	}
}

// verifyStorePassword opens the file store at path with password. A store
// that does not exist yet is created and sealed with it.
func verifyStorePassword(ctx context.Context, path string, password []byte) error {
	gw, err := keystore.Select(keystore.Options{
		Backend: keystore.BackendFile,
		Path:    path,
		Password: func() ([]byte, error) {
			return append([]byte(nil), password...), nil
		},
	})
	if err != nil {
		return err
	}

	store, err := gw.Open(ctx)
	if err != nil {
		return err
	}
	return store.Close()
}
