package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/illarion/biolock/internal/config"
	"github.com/illarion/biolock/internal/git"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/spf13/cobra"
)

func newStatusCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sensor, key and IV state for the alias",
		Long: `Shows whether the PIN sensor is usable, whether the alias has a key in the
key store and an IV in the ledger, and warns when biolock files are
tracked by git. Opening a file key store asks for its password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, load, func(app *App) error {
				return Status(cmd.Context(), app, cmd.OutOrStdout())
			})
		},
	}
}

// Status prints the state of the alias
func Status(ctx context.Context, app *App, w io.Writer) error {
	s := app.Settings

	fmt.Fprintf(w, "Alias:      %s\n", app.Auth.Alias())
	fmt.Fprintf(w, "Cipher:     %s\n", describeTransformation(s))

	store := app.Gateway.Backend()
	if store == keystore.BackendFile {
		store = fmt.Sprintf("%s (%s)", store, s.StorePath)
	}
	fmt.Fprintf(w, "Key store:  %s\n", store)
	if s.Store == keystore.BackendFile && s.StorePassword == "" {
		fmt.Fprintf(w, "Password:   %s\n", savedPasswordState(s))
	}

	ledger := s.IVLedger
	if ledger == config.LedgerBolt {
		ledger = fmt.Sprintf("%s (%s)", ledger, s.IVLedgerPath)
	} else {
		ledger += " (lost when the process exits)"
	}
	fmt.Fprintf(w, "IV ledger:  %s\n", ledger)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sensor:     %s\n", sensorState(app))
	if id := app.Sensor.EnrollmentID(); id != "" {
		fmt.Fprintf(w, "Enrollment: %s\n", id)
	}
	if locked, until := app.Sensor.LockedOut(); locked {
		if until.IsZero() {
			fmt.Fprintln(w, "Lockout:    until the next enrollment")
		} else {
			fmt.Fprintf(w, "Lockout:    until %s\n", until.Local().Format(time.RFC3339))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Key:        %s\n", keyState(ctx, app))
	fmt.Fprintf(w, "IV:         %s\n", ivState(app))

	var files []string
	if s.Store == keystore.BackendFile {
		files = append(files, s.StorePath)
	}
	if s.IVLedger == config.LedgerBolt {
		files = append(files, s.IVLedgerPath)
	}
	if len(files) > 0 {
		fmt.Fprint(w, git.Format(git.Check(".", files)))
	}

	return nil
}

func sensorState(app *App) string {
	switch {
	case app.Auth.IsAvailable():
		return "terminal PIN (available)"
	case !app.Sensor.IsHardwareDetected():
		return "terminal PIN (no terminal attached)"
	default:
		return "terminal PIN (not enrolled, run 'biolock enroll')"
	}
}

func keyState(ctx context.Context, app *App) string {
	store, err := app.Gateway.Open(ctx)
	if err != nil {
		return fmt.Sprintf("unknown (%s)", err)
	}
	defer store.Close()

	if !app.Gateway.HasAlias(store, app.Settings.Alias) {
		return "not created yet (created by the first encrypt)"
	}

	key, err := store.GetKey(app.Settings.Alias)
	if err != nil {
		return fmt.Sprintf("present (%s)", err)
	}
	defer key.Destroy()
	return fmt.Sprintf("present (created %s)", key.Created().Local().Format(time.DateOnly))
}

func ivState(app *App) string {
	ok, err := app.Ledger.Exists(app.Settings.Alias)
	switch {
	case err != nil:
		return fmt.Sprintf("unknown (%s)", err)
	case ok:
		return "stored"
	default:
		return "none (decrypt needs a prior encrypt)"
	}
}
