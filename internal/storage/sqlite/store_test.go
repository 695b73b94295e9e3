package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen_MemoryWithSchema(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, MemoryPath)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}
	// Повторный вызов должен быть безопасным.
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("second ensure schema failed: %v", err)
	}

	var fk int
	if err := store.DB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("expected foreign keys enabled, got %d", fk)
	}

	for _, table := range []string{"orders", "products", "order_product", "outbox_messages"} {
		var name string
		err := store.DB().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s not created: %v", table, err)
		}
	}

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestOpen_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orders.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestNilStore(t *testing.T) {
	var store *Store
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected error for nil store")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close of nil store must be a no-op, got %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (id INT);\n\n CREATE TABLE b (id INT);  ")
	if len(got) != 2 || got[1] != "CREATE TABLE b (id INT)" {
		t.Fatalf("unexpected statements: %q", got)
	}
}
