// Package database provides SQLite connectivity for the access service.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Embedded, versioned schema migrations
//   - Transaction helpers used by the credential and audit stores
//
// The connection pool is pinned to a single connection. SQLite has one
// writer, and pinning keeps custody writes strictly ordered.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are registered by the migrations package.
package database
