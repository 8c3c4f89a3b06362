package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/illarion/biolock/internal/core"
	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/keys"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/illarion/biolock/internal/sensor"
)

// ExitInterrupted is the exit code after Ctrl-C
const ExitInterrupted = 130

var (
	ErrNoTerminal     = errors.New("no terminal attached")
	ErrPINMismatch    = errors.New("PINs do not match")
	ErrEmptyInput     = errors.New("nothing to process")
	ErrUnexpectedHelp = errors.New("attempt ended without a result")
)

// ReadSecret prompts on stderr and reads a line from the terminal without
// echoing
func ReadSecret(prompt string) ([]byte, error) {
	return sensor.ReadSecret(os.Stderr)(prompt)
}

// ReadSecretConfirm reads a secret twice and ensures they match
func ReadSecretConfirm(prompt, confirm string) ([]byte, error) {
	first, err := ReadSecret(prompt)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(first)

	second, err := ReadSecret(confirm)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(second)

	if !crypto.ConstantTimeCompare(first, second) {
		return nil, ErrPINMismatch
	}

	// Return a copy of the secret
	result := make([]byte, len(first))
	copy(result, first)
	return result, nil
}

// inputText returns the single argument, or prompts for it
func inputText(args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	text, err := ReadSecret(prompt)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(text)

	if len(text) == 0 {
		return "", ErrEmptyInput
	}
	return string(text), nil
}

// writeResult prints a Success and turns an Error into the command error
func writeResult(w io.Writer, res core.Result) error {
	switch r := res.(type) {
	case core.Success:
		if r.Output != "" {
			fmt.Fprintln(w, r.Output)
		}
		return nil
	case core.Error:
		return r
	default:
		return ErrUnexpectedHelp
	}
}

// HandleError prints err for the user and returns the exit code
func HandleError(err error) int {
	var res core.Error

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Interrupted")
		return ExitInterrupted
	case errors.As(err, &res):
		fmt.Fprintf(os.Stderr, "Error (%s): %s\n", res.Kind, res.Message)
		if hint := resultHint(res); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
	case errors.Is(err, sensor.ErrNotEnrolled):
		fmt.Fprintf(os.Stderr, "Error: no PIN enrolled\n")
		fmt.Fprintf(os.Stderr, "Run 'biolock enroll' first\n")
	case errors.Is(err, ErrNoTerminal):
		fmt.Fprintf(os.Stderr, "Error: biolock needs a terminal to read the PIN\n")
	case errors.Is(err, keystore.ErrWrongPassword):
		fmt.Fprintf(os.Stderr, "Error: wrong store password\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	return 1
}

func resultHint(res core.Error) string {
	switch {
	case errors.Is(res, crypto.ErrMissingIV):
		return "Run 'biolock encrypt' first. The memory IV ledger only lasts for one run; set BIOLOCK_IV_LEDGER=bolt to keep it"
	case errors.Is(res, keys.ErrKeyInvalidated):
		return "The key belongs to a previous enrollment. Use another alias for new secrets"
	case errors.Is(res, keystore.ErrWrongPassword):
		return "Check BIOLOCK_STORE_PASSWORD"
	case res.Kind == core.ErrorLockout:
		return "Wait for the lockout to end, or run 'biolock enroll' again"
	case res.Code == sensor.ErrorNoBiometrics:
		return "Run 'biolock enroll' first"
	case errors.Is(res, core.ErrInvalidEncoding):
		return "Pass the base64 text printed by 'biolock encrypt'"
	case res.Kind == core.ErrorDecryptionFailed:
		return "The ciphertext does not match the last IV stored for this alias"
	}
	return ""
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
