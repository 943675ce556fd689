package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

const credentialColumns = "id, name, serial, created_at, updated_at"

// SQLiteStore implements Store on the credentials, credential_access, and
// credential_custody tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed credential store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create inserts a credential with its access and custody sets. The id is
// generated if empty.
func (s *SQLiteStore) Create(ctx context.Context, c *Credential) error {
	if err := ValidateCredential(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = GenerateID()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	c.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	c.UpdatedAt = c.CreatedAt

	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (id, name, serial, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Serial, now, now,
		); err != nil {
			if isPrimaryKeyViolation(err) {
				return fmt.Errorf("%w: id %s already exists", ErrInvalidCredential, c.ID)
			}
			if isUniqueViolation(err) {
				return ErrSerialExists
			}
			return fmt.Errorf("creating credential: %w", err)
		}
		if err := insertAccess(ctx, tx, c.ID, c.Access); err != nil {
			return err
		}
		for _, key := range c.Custody.Sorted() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO credential_custody (credential_id, key_id, issued_at) VALUES (?, ?, ?)`,
				c.ID, string(key), now,
			); err != nil {
				return fmt.Errorf("recording custody of %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if c.Access == nil {
		c.Access = IDSet{}
	}
	if c.Custody == nil {
		c.Custody = IDSet{}
	}
	return nil
}

// FindBySerial returns the credential with exactly this serial.
func (s *SQLiteStore) FindBySerial(ctx context.Context, serial string) (*Credential, error) {
	return s.getCredential(ctx, "SELECT "+credentialColumns+" FROM credentials WHERE serial = ?", serial)
}

// GetByID returns the credential with this id.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Credential, error) {
	return s.getCredential(ctx, "SELECT "+credentialColumns+" FROM credentials WHERE id = ?", id)
}

// List returns all credentials ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+credentialColumns+" FROM credentials ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}

	creds := []Credential{}
	index := make(map[string]int)
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[c.ID] = len(creds)
		creds = append(creds, *c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	rows.Close()

	// The connection pool holds one connection, so set rows are read only
	// after the credential cursor is closed.
	err = s.eachSetRow(ctx, "SELECT credential_id, resource_id FROM credential_access", func(id string, v ID) {
		if i, ok := index[id]; ok {
			creds[i].Access.Add(v)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("listing access: %w", err)
	}
	err = s.eachSetRow(ctx, "SELECT credential_id, key_id FROM credential_custody", func(id string, v ID) {
		if i, ok := index[id]; ok {
			creds[i].Custody.Add(v)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("listing custody: %w", err)
	}

	return creds, nil
}

// Update replaces the name and access set of an existing credential.
func (s *SQLiteStore) Update(ctx context.Context, c *Credential) error {
	if c == nil {
		return ErrInvalidCredential
	}
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if err := validateSet("access", c.Access); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE credentials SET name = ?, updated_at = ? WHERE id = ?`,
			c.Name, now, c.ID,
		)
		if err != nil {
			return fmt.Errorf("updating credential: %w", err)
		}
		rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		if rows == 0 {
			return ErrCredentialNotFound
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM credential_access WHERE credential_id = ?", c.ID); err != nil {
			return fmt.Errorf("clearing access: %w", err)
		}
		return insertAccess(ctx, tx, c.ID, c.Access)
	})
	if err != nil {
		return err
	}

	c.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	return nil
}

// SaveCustody replaces the custody set in one transaction. Keys that stay
// held keep their original issued_at.
func (s *SQLiteStore) SaveCustody(ctx context.Context, id string, custody IDSet) error {
	now := time.Now().UTC().Format(time.RFC3339)

	return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE credentials SET updated_at = ? WHERE id = ?`, now, id)
		if err != nil {
			return fmt.Errorf("touching credential: %w", err)
		}
		rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		if rows == 0 {
			return ErrCredentialNotFound
		}

		current, err := readSet(ctx, tx, "SELECT key_id FROM credential_custody WHERE credential_id = ?", id)
		if err != nil {
			return fmt.Errorf("reading custody: %w", err)
		}

		for _, key := range current.Sorted() {
			if custody.Has(key) {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM credential_custody WHERE credential_id = ? AND key_id = ?", id, string(key),
			); err != nil {
				return fmt.Errorf("releasing %s: %w", key, err)
			}
		}
		for _, key := range custody.Sorted() {
			if current.Has(key) {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO credential_custody (credential_id, key_id, issued_at) VALUES (?, ?, ?)", id, string(key), now,
			); err != nil {
				return fmt.Errorf("recording custody of %s: %w", key, err)
			}
		}
		return nil
	})
}

// Delete removes a credential. Access and custody rows cascade.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// Count returns the number of credentials.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM credentials").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting credentials: %w", err)
	}
	return count, nil
}

// getCredential scans one credential row and loads its sets.
func (s *SQLiteStore) getCredential(ctx context.Context, query string, arg string) (*Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}

	if c.Access, err = readSet(ctx, s.db,
		"SELECT resource_id FROM credential_access WHERE credential_id = ?", c.ID); err != nil {
		return nil, fmt.Errorf("reading access: %w", err)
	}
	if c.Custody, err = readSet(ctx, s.db,
		"SELECT key_id FROM credential_custody WHERE credential_id = ?", c.ID); err != nil {
		return nil, fmt.Errorf("reading custody: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) eachSetRow(ctx context.Context, query string, fn func(id string, v ID)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, v string
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		fn(id, ID(v))
	}
	return rows.Err()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readSet(ctx context.Context, q queryer, query, id string) (IDSet, error) {
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := IDSet{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		set.Add(ID(v))
	}
	return set, rows.Err()
}

func insertAccess(ctx context.Context, tx *sql.Tx, id string, access IDSet) error {
	for _, res := range access.Sorted() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO credential_access (credential_id, resource_id) VALUES (?, ?)", id, string(res),
		); err != nil {
			return fmt.Errorf("granting %s: %w", res, err)
		}
	}
	return nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanCredential scans the credential columns. Sets are left empty.
func scanCredential(s scanner) (*Credential, error) {
	var c Credential
	var createdAt, updatedAt string

	if err := s.Scan(&c.ID, &c.Name, &c.Serial, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("scanning credential: %w", err)
	}

	c.Access = IDSet{}
	c.Custody = IDSet{}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &c, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// isPrimaryKeyViolation reports whether err is a SQLite PRIMARY KEY constraint failure.
func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var _ Store = (*SQLiteStore)(nil)
