package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "access.db")

		db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "access.db")

		db, err := Open(context.Background(), Config{Path: dbPath, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
	})

	t.Run("rejects empty path", func(t *testing.T) {
		if _, err := Open(context.Background(), Config{}); err == nil {
			t.Error("Open() with empty path should fail")
		}
	})
}

func TestDSN(t *testing.T) {
	plain := dsn(Config{Path: "/tmp/a.db", BusyTimeout: 2})
	if !strings.Contains(plain, "_busy_timeout=2000") {
		t.Errorf("dsn() = %q, want busy timeout in milliseconds", plain)
	}
	if strings.Contains(plain, "WAL") {
		t.Errorf("dsn() = %q, should not enable WAL", plain)
	}

	wal := dsn(Config{Path: "/tmp/a.db", WALMode: true})
	if !strings.Contains(wal, "_journal_mode=WAL") {
		t.Errorf("dsn() = %q, want WAL journal mode", wal)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestInTx_Commit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	err := InTx(ctx, db.DB, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "committed")
		return execErr
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}

	if got := countRows(t, db, "committed"); got != 1 {
		t.Errorf("expected 1 row, got %d", got)
	}
}

func TestInTx_RollbackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	boom := errors.New("boom")
	err := InTx(ctx, db.DB, func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "rolled_back"); execErr != nil {
			return execErr
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want %v", err, boom)
	}

	if got := countRows(t, db, "rolled_back"); got != 0 {
		t.Errorf("expected 0 rows after rollback, got %d", got)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)

	if stats := db.Stats(); stats.MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1 (SQLite single writer)", stats.MaxOpenConnections)
	}
}

func countRows(t *testing.T, db *DB, value string) int {
	t.Helper()

	var count int
	if err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM tx_test WHERE value = ?", value).Scan(&count); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	return count
}

// openTestDB creates a temporary database that is closed when the test ends.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	return db
}
