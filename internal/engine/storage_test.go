package engine

import (
	"path/filepath"
	"testing"

	"bomcore/internal/infra/persistence/memory"
	"bomcore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemoryDriver(t *testing.T) {
	t.Setenv("BOMCORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(NewDefaultRulesEngine(nil))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv("BOMCORE_STORAGE_DRIVER", "")
	t.Setenv("BOMCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "bomcore.db"))
	store, err := OpenPersistentStore(NewDefaultRulesEngine(nil))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sqliteStore, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if err := sqliteStore.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("BOMCORE_STORAGE_DRIVER", "oracle")
	if _, err := OpenPersistentStore(NewDefaultRulesEngine(nil)); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
