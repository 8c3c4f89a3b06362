package iv

import "sync"

// MemoryLedger keeps IVs in process memory
type MemoryLedger struct {
	mu    sync.RWMutex
	cache map[string]IV
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{cache: make(map[string]IV)}
}

func (l *MemoryLedger) Store(alias string, iv IV) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[alias] = append(IV(nil), iv...)
	return nil
}

func (l *MemoryLedger) Retrieve(alias string) (IV, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.cache[alias]
	if !ok {
		return nil, false, nil
	}
	return append(IV(nil), v...), true, nil
}

func (l *MemoryLedger) Exists(alias string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.cache[alias]
	return ok, nil
}
