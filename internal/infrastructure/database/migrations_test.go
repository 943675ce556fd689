package database

import (
	"context"
	"testing"
	"testing/fstest"
)

// testMigrations is a two-step schema used to exercise the migrator.
func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"sql/20260301_120000_create_badges.up.sql": {
			Data: []byte("CREATE TABLE test_badges (id TEXT PRIMARY KEY, serial TEXT NOT NULL UNIQUE);"),
		},
		"sql/20260301_120000_create_badges.down.sql": {
			Data: []byte("DROP TABLE test_badges;"),
		},
		"sql/20260302_090000_create_keys.up.sql": {
			Data: []byte("CREATE TABLE test_keys (id TEXT PRIMARY KEY);"),
		},
		"sql/20260302_090000_create_keys.down.sql": {
			Data: []byte("DROP TABLE test_keys;"),
		},
		"sql/README.md": {
			Data: []byte("not a migration"),
		},
	}
}

// useMigrations swaps the package migration source for the duration of a test.
func useMigrations(t *testing.T, fsys fstest.MapFS, dir string) {
	t.Helper()

	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})

	if fsys == nil {
		MigrationsFS = nil
	} else {
		MigrationsFS = fsys
	}
	MigrationsDir = dir
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()

	var count int
	if err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?", name).Scan(&count); err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations(), "sql")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if !tableExists(t, db, "test_badges") || !tableExists(t, db, "test_keys") {
		t.Fatal("expected both migration tables to exist")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}
	if applied[0].Version != "20260301_120000" {
		t.Errorf("first applied version = %q, want oldest first", applied[0].Version)
	}

	// Running again is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, testMigrations(), "sql")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_keys") {
		t.Error("latest migration should have been rolled back")
	}
	if !tableExists(t, db, "test_badges") {
		t.Error("earlier migration should remain applied")
	}

	_, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "create_keys" {
		t.Errorf("pending = %+v, want create_keys", pending)
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	useMigrations(t, nil, ".")
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
	if err := db.MigrateDown(context.Background()); err != nil {
		t.Fatalf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrate_FailingMigrationRollsBack(t *testing.T) {
	fsys := testMigrations()
	fsys["sql/20260303_000000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE broken (;")}
	useMigrations(t, fsys, "sql")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail on invalid SQL")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("earlier migrations should stay applied, got %d", len(applied))
	}
	if len(pending) != 1 {
		t.Errorf("broken migration should remain pending, got %d", len(pending))
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"valid up migration", "20260301_120000_credentials.up.sql", "20260301_120000", true, true},
		{"valid down migration", "20260301_120000_credentials.down.sql", "20260301_120000", false, true},
		{"not sql file", "readme.txt", "", false, false},
		{"missing direction", "20260301_120000_credentials.sql", "", false, false},
		{"invalid format", "invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %v, want %v", version, tt.wantVersion)
			}
			if isUp != tt.wantIsUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260301_120000_credentials.up.sql", "credentials"},
		{"20260301_130000_access_events.down.sql", "access_events"},
		{"20260302_090000_add_issued_at_to_custody.up.sql", "add_issued_at_to_custody"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := extractMigrationName(tt.filename); got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
