package iv

import (
	"errors"
	"fmt"

	"github.com/illarion/biolock/internal/storage"
)

// BoltLedger keeps IVs in the ivs bucket of a bbolt file
type BoltLedger struct {
	db *storage.Storage
}

// OpenBoltLedger opens (creating if needed) a durable ledger at path.
// The file stays locked until Close.
func OpenBoltLedger(path string) (*BoltLedger, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	return &BoltLedger{db: db}, nil
}

// Close releases the ledger file
func (l *BoltLedger) Close() error {
	return l.db.Close()
}

// Compact reclaims unused space in the ledger file
func (l *BoltLedger) Compact() error {
	return l.db.Compact()
}

func (l *BoltLedger) Store(alias string, iv IV) error {
	if err := l.db.PutIV(alias, iv); err != nil {
		return fmt.Errorf("failed to store IV: %w", err)
	}
	return nil
}

func (l *BoltLedger) Retrieve(alias string) (IV, bool, error) {
	v, err := l.db.GetIV(alias)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to retrieve IV: %w", err)
	}
	return v, true, nil
}

func (l *BoltLedger) Exists(alias string) (bool, error) {
	return l.db.HasIV(alias)
}
