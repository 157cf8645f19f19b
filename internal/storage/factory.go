package storage

import (
	"fmt"
	"strings"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// DefaultStoreKind is the backend used when none is configured. Runs are
// kept in memory unless a sqlite store is asked for explicitly.
func DefaultStoreKind() string {
	return KindMemory
}

// Kinds lists the backends compiled into this build.
func Kinds() []string {
	if sqliteAvailable {
		return []string{KindMemory, KindSQLite}
	}
	return []string{KindMemory}
}

func NewStore(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if sqlitePath == "" {
			return nil, fmt.Errorf("sqlite store requires a database path")
		}
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s (available: %s)", kind, strings.Join(Kinds(), "|"))
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
