package cmd

import (
	"fmt"
	"io"

	"github.com/illarion/biolock/internal/crypto"
	"github.com/spf13/cobra"
)

func newEnrollCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "enroll",
		Short: "Enroll a new PIN",
		Long: `Enrolls a new PIN for the terminal sensor, replacing any previous one.

Keys created while another PIN was enrolled are permanently invalidated
unless BIOLOCK_INVALIDATE_ON_ENROLLMENT=false was set when they were created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, load, func(app *App) error {
				return Enroll(app, cmd.OutOrStdout())
			})
		},
	}
}

func newUnenrollCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "unenroll",
		Short: "Remove the enrolled PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, load, func(app *App) error {
				if err := app.Sensor.Unenroll(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "PIN removed")
				return nil
			})
		},
	}
}

// Enroll prompts for a new PIN twice and enrolls it
func Enroll(app *App, w io.Writer) error {
	if !app.Sensor.IsHardwareDetected() {
		return ErrNoTerminal
	}

	pin, err := ReadSecretConfirm("New PIN: ", "Confirm PIN: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(pin)

	replacing := app.Sensor.HasEnrolled()

	id, err := app.Sensor.Enroll(pin)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "PIN enrolled (%s)\n", id)
	if replacing {
		fmt.Fprintln(w, "Keys bound to the previous PIN can no longer be used")
	}
	return nil
}
