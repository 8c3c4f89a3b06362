package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/illarion/biolock/internal/config"
	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/keyring"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/illarion/biolock/internal/storage"
	"github.com/spf13/cobra"
)

func newPasswdCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the file key store password",
		Long: `Rewraps every key in the file key store under a new password. Keys and
stored IVs are unchanged, so existing ciphertext still decrypts. A password
saved in the OS keyring is updated as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load(cmd)
			if err != nil {
				return err
			}
			if s.Store != keystore.BackendFile {
				return ErrNotFileStore
			}

			current, err := storePassword(s)()
			if err != nil {
				return err
			}
			defer crypto.ClearBytes(current)

			next, err := ReadSecretConfirm("New store password: ", "Confirm new password: ")
			if err != nil {
				return err
			}
			defer crypto.ClearBytes(next)

			return Passwd(cmd.Context(), s, cmd.OutOrStdout(), current, next)
		},
	}
}

// Passwd changes the file key store password from current to next
func Passwd(ctx context.Context, s *config.Settings, w io.Writer, current, next []byte) error {
	if s.Store != keystore.BackendFile {
		return ErrNotFileStore
	}
	if _, err := os.Stat(s.StorePath); err != nil {
		return fmt.Errorf("no file key store at %s: %w", s.StorePath, err)
	}

	store := keystore.NewFileStore(s.StorePath, func() ([]byte, error) {
		return append([]byte(nil), current...), nil
	})
	if err := store.Load(ctx); err != nil {
		store.Close()
		return fmt.Errorf("%w: %w", keystore.ErrStoreUnavailable, err)
	}

	aliases, err := store.Aliases()
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if err := store.ChangePassword(next); err != nil {
		store.Close()
		return fmt.Errorf("failed to change store password: %w", err)
	}
	if err := store.Close(); err != nil {
		return err
	}

	// Keep a saved password in step
	secret := storePasswordSecret(s.StorePath)
	if ok, _ := keyring.HasSecret(secret); ok {
		if err := keyring.SetSecret(secret, string(next)); err == nil {
			fmt.Fprintln(w, "Keyring updated with new password")
		}
	}

	// Compact after rewriting every record
	db, err := storage.Open(s.StorePath)
	if err == nil {
		if err := db.Compact(); err != nil {
			fmt.Fprintf(w, "warning: compaction failed: %s\n", err)
		}
		db.Close()
	}

	if len(aliases) > 0 {
		fmt.Fprintf(w, "Rewrapped keys: %s\n", strings.Join(aliases, ", "))
	}
	fmt.Fprintln(w, "Store password changed")
	return nil
}
