package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/illarion/biolock/internal/config"
	"github.com/illarion/biolock/internal/iv"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/illarion/biolock/internal/storage"
	"github.com/spf13/cobra"
)

func newCompactCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Compact the bbolt key store and IV ledger files",
		Long: `Compacts the file key store and the bolt IV ledger to reclaim unused disk
space. Files that are not configured or do not exist are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load(cmd)
			if err != nil {
				return err
			}
			return Compact(s, cmd.OutOrStdout())
		},
	}
}

// Compact compacts the configured bbolt files
func Compact(s *config.Settings, w io.Writer) error {
	compacted := 0

	if s.Store == keystore.BackendFile {
		done, err := compactFile(w, s.StorePath, func() error {
			db, err := storage.Open(s.StorePath)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Compact()
		})
		if err != nil {
			return err
		}
		if done {
			compacted++
		}
	}

	if s.IVLedger == config.LedgerBolt {
		done, err := compactFile(w, s.IVLedgerPath, func() error {
			ledger, err := iv.OpenBoltLedger(s.IVLedgerPath)
			if err != nil {
				return err
			}
			defer ledger.Close()
			return ledger.Compact()
		})
		if err != nil {
			return err
		}
		if done {
			compacted++
		}
	}

	if compacted == 0 {
		fmt.Fprintln(w, "Nothing to compact (keyring store and memory IV ledger)")
	}
	return nil
}

// compactFile runs compact on an existing file and reports the size change
func compactFile(w io.Writer, path string, compact func() error) (bool, error) {
	// Get file size before
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	sizeBefore := info.Size()

	if err := compact(); err != nil {
		return false, fmt.Errorf("failed to compact %s: %w", path, err)
	}

	// Get file size after
	info, err = os.Stat(path)
	if err != nil {
		return false, err
	}

	fmt.Fprintf(w, "Compacted %s: %s -> %s\n", path, formatSize(sizeBefore), formatSize(info.Size()))
	return true, nil
}
