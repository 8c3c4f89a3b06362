package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/illarion/biolock/internal/config"
	"github.com/illarion/biolock/internal/sensor"
	"github.com/spf13/cobra"
)

func newEncryptCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [text]",
		Short: "Encrypt text after a PIN check",
		Long: `Waits for the enrolled PIN, then encrypts text with the key for the alias
and prints the ciphertext as base64. Prompts for the text when no argument
is given.

Every encrypt stores a fresh IV for the alias: earlier ciphertext for the
same alias can no longer be decrypted.`,
		Example: `  biolock encrypt
  BIOLOCK_IV_LEDGER=bolt biolock encrypt --alias mail`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(app *App) error {
				return Encrypt(cmd.Context(), app, cmd.OutOrStdout(), args)
			})
		},
	}
}

func newDecryptCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt [ciphertext]",
		Short: "Decrypt base64 ciphertext after a PIN check",
		Long: `Waits for the enrolled PIN, then decrypts ciphertext produced by the last
encrypt for the alias and prints the plaintext.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(app *App) error {
				return Decrypt(cmd.Context(), app, cmd.OutOrStdout(), args)
			})
		},
	}
}

// Encrypt encrypts the argument (or prompted text) and prints the result
func Encrypt(ctx context.Context, app *App, w io.Writer, args []string) error {
	if err := requireAvailable(app); err != nil {
		return err
	}

	text, err := inputText(args, "Text to encrypt: ")
	if err != nil {
		return err
	}

	if app.Settings.IVLedger == config.LedgerMemory {
		fmt.Fprintln(os.Stderr, "warning: the IV ledger is in memory, a later run cannot decrypt this (set BIOLOCK_IV_LEDGER=bolt)")
	}

	res, err := app.Auth.Encrypt(ctx, text)
	if err != nil {
		return err
	}
	return writeResult(w, res)
}

// Decrypt decrypts the argument (or prompted ciphertext) and prints the
// plaintext
func Decrypt(ctx context.Context, app *App, w io.Writer, args []string) error {
	if err := requireAvailable(app); err != nil {
		return err
	}

	text, err := inputText(args, "Ciphertext: ")
	if err != nil {
		return err
	}

	res, err := app.Auth.Decrypt(ctx, text)
	if err != nil {
		return err
	}
	return writeResult(w, res)
}

func requireAvailable(app *App) error {
	if app.Auth.IsAvailable() {
		return nil
	}
	if !app.Sensor.IsHardwareDetected() {
		return ErrNoTerminal
	}
	return sensor.ErrNotEnrolled
}
