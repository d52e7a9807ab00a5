// Package audit records who changed what through the gateway. Events hold a
// caller's token preview, never the token itself.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
)

// Outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

const maxDetailLen = 512

const (
	sqlInsertEvent = `INSERT INTO audit_events
		(id, at, transport, caller_preview, action, drive_id, path, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecentEvents = `SELECT id, at, transport, caller_preview, action, drive_id, path, outcome, detail
		FROM audit_events ORDER BY at DESC, rowid DESC LIMIT ?`
)

// Event is one audit record.
type Event struct {
	ID        string
	At        time.Time
	Transport string
	Caller    string // token preview
	Action    string
	Drive     driveid.ID
	Path      string
	Outcome   string
	Detail    string
}

// Recorder persists events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Store is the SQLite-backed Recorder.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

var _ Recorder = (*Store)(nil)

// Open opens or creates the audit database at dbPath and migrates it.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters apply the pragmas to every pooled connection.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("audit store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Record stores e, filling ID and At when unset.
func (s *Store) Record(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if e.At.IsZero() {
		e.At = s.nowFunc()
	}

	if len(e.Detail) > maxDetailLen {
		e.Detail = e.Detail[:maxDetailLen]
	}

	_, err := s.db.ExecContext(ctx, sqlInsertEvent,
		e.ID, e.At.UnixNano(), e.Transport, e.Caller, e.Action, e.Drive, e.Path, e.Outcome, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("audit: recording %s: %w", e.Action, err)
	}

	return nil
}

// Recent returns up to n events, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, sqlRecentEvents, n)
	if err != nil {
		return nil, fmt.Errorf("audit: querying events: %w", err)
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		var (
			e  Event
			at int64
		)

		if err := rows.Scan(&e.ID, &at, &e.Transport, &e.Caller, &e.Action, &e.Drive, &e.Path, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("audit: scanning event: %w", err)
		}

		e.At = time.Unix(0, at).UTC()
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterating events: %w", err)
	}

	return events, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
