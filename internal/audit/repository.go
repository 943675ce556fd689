package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeFormat has fixed width so created_at sorts lexically.
	timeFormat = "2006-01-02T15:04:05.000000Z"
)

// Repository defines the interface for access event storage.
type Repository interface {
	Create(ctx context.Context, event *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores access events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new access event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an event. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if event.Details != nil {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshalling event details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_events (id, kind, serial, credential_id, subject, outcome, code, reason, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Kind), event.Serial,
		nullableString(event.CredentialID), nullableString(event.Subject),
		string(event.Outcome), nullableString(event.Code), nullableString(event.Reason),
		detailsJSON, event.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting access event: %w", err)
	}
	return nil
}

// NewEventID returns a new event id of the form evt-<uuid>.
func NewEventID() string {
	return "evt-" + uuid.NewString()
}

// nullableString returns nil for empty strings so nullable TEXT columns stay NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Serial != "" {
		conditions = append(conditions, "serial = ?")
		args = append(args, filter.Serial)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM access_events " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting access events: %w", err)
	}

	query := "SELECT id, kind, serial, credential_id, subject, outcome, code, reason, details, created_at FROM access_events " +
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?" //nolint:gosec // WHERE built from parameterised conditions
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var e Event
	var kind, outcome, createdAt string
	var credentialID, subject, code, reason, details sql.NullString

	if err := rows.Scan(&e.ID, &kind, &e.Serial, &credentialID, &subject,
		&outcome, &code, &reason, &details, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning access event: %w", err)
	}

	e.Kind = Kind(kind)
	e.Outcome = Outcome(outcome)
	e.CredentialID = credentialID.String
	e.Subject = subject.String
	e.Code = code.String
	e.Reason = reason.String

	if details.Valid && details.String != "" {
		var m map[string]any
		if json.Unmarshal([]byte(details.String), &m) == nil {
			e.Details = m
		}
	}

	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		t, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing access event timestamp %q: %w", createdAt, err)
		}
	}
	e.CreatedAt = t

	return &e, nil
}

var _ Repository = (*SQLiteRepository)(nil)
