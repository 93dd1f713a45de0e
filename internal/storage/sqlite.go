package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/betslip/internal/models"
	_ "modernc.org/sqlite"
)

const schema = `
-- Single-row key/value state: cached draft id.
CREATE TABLE IF NOT EXISTS slip_state (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- The serialized working set, one row per selection, insertion-ordered.
CREATE TABLE IF NOT EXISTS selections (
    event_id   TEXT PRIMARY KEY,
    outcome    TEXT     NOT NULL,
    price      REAL     NOT NULL,
    starts_at  DATETIME NOT NULL,
    added_at   DATETIME NOT NULL,
    save_state TEXT     NOT NULL DEFAULT 'IDLE',
    position   INTEGER  NOT NULL
);

-- Pending outbound writes that must survive process teardown.
CREATE TABLE IF NOT EXISTS outbox_writes (
    id          TEXT PRIMARY KEY,
    event_id    TEXT     NOT NULL,
    action      TEXT     NOT NULL,
    outcome     TEXT,
    price       REAL     NOT NULL DEFAULT 0,
    enqueued_at DATETIME NOT NULL,
    attempts    INTEGER  NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_outbox_enqueued ON outbox_writes(enqueued_at);
`

const draftIDKey = "draft_id"

// PendingWrite is one durable outbound draft mutation awaiting delivery.
type PendingWrite struct {
	ID         uuid.UUID
	EventID    string
	Action     models.PatchAction
	Outcome    string
	Price      float64
	EnqueuedAt time.Time
	Attempts   int
}

// SQLiteStore persists the working slip and the write outbox locally.
// Pure Go driver, no CGo.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// Serialized access: the engine writes synchronously from its own loop.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSelections replaces the persisted working set with the given one.
// Called synchronously on every mirror mutation so the persisted and
// in-memory representations never diverge.
func (s *SQLiteStore) SaveSelections(ctx context.Context, selections []models.Selection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM selections`); err != nil {
		return fmt.Errorf("failed to clear selections: %w", err)
	}

	for i, sel := range selections {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO selections (event_id, outcome, price, starts_at, added_at, save_state, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sel.EventID, sel.Outcome, sel.Price, sel.StartsAt.UTC(), sel.AddedAt.UTC(), string(sel.SaveState), i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert selection %s: %w", sel.EventID, err)
		}
	}

	return tx.Commit()
}

// LoadSelections rehydrates the working set, in insertion order.
func (s *SQLiteStore) LoadSelections(ctx context.Context) ([]models.Selection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, outcome, price, starts_at, added_at, save_state
		FROM selections ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query selections: %w", err)
	}
	defer rows.Close()

	var selections []models.Selection
	for rows.Next() {
		var sel models.Selection
		var state string
		if err := rows.Scan(&sel.EventID, &sel.Outcome, &sel.Price, &sel.StartsAt, &sel.AddedAt, &state); err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		sel.SaveState = models.SaveState(state)
		selections = append(selections, sel)
	}

	return selections, rows.Err()
}

// SaveDraftID caches the server-side draft identifier.
func (s *SQLiteStore) SaveDraftID(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slip_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		draftIDKey, id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save draft id: %w", err)
	}
	return nil
}

// LoadDraftID returns the cached draft identifier, or uuid.Nil if absent.
func (s *SQLiteStore) LoadDraftID(ctx context.Context) (uuid.UUID, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slip_state WHERE key = ?`, draftIDKey).Scan(&value)
	if err == sql.ErrNoRows {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load draft id: %w", err)
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse cached draft id %q: %w", value, err)
	}
	return id, nil
}

// ClearDraftID removes the cached draft identifier.
func (s *SQLiteStore) ClearDraftID(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slip_state WHERE key = ?`, draftIDKey); err != nil {
		return fmt.Errorf("failed to clear draft id: %w", err)
	}
	return nil
}

// EnqueueWrite records a pending draft mutation durably. Used on teardown
// so no settled-but-unsent edit is lost with the process.
func (s *SQLiteStore) EnqueueWrite(ctx context.Context, write PendingWrite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox_writes (id, event_id, action, outcome, price, enqueued_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		write.ID.String(), write.EventID, string(write.Action), write.Outcome, write.Price, write.EnqueuedAt.UTC(), write.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue write: %w", err)
	}
	return nil
}

// FetchPendingWrites returns up to limit pending writes, oldest first.
func (s *SQLiteStore) FetchPendingWrites(ctx context.Context, limit int) ([]PendingWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, action, outcome, price, enqueued_at, attempts
		FROM outbox_writes ORDER BY enqueued_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending writes: %w", err)
	}
	defer rows.Close()

	var writes []PendingWrite
	for rows.Next() {
		var w PendingWrite
		var id, action string
		var outcome sql.NullString
		if err := rows.Scan(&id, &w.EventID, &action, &outcome, &w.Price, &w.EnqueuedAt, &w.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan pending write: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse write id %q: %w", id, err)
		}
		w.ID = parsed
		w.Action = models.PatchAction(action)
		w.Outcome = outcome.String
		writes = append(writes, w)
	}

	return writes, rows.Err()
}

// DeleteWrite removes a delivered (or abandoned) pending write.
func (s *SQLiteStore) DeleteWrite(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox_writes WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete write: %w", err)
	}
	return nil
}

// BumpWriteAttempts increments the delivery counter for a pending write.
func (s *SQLiteStore) BumpWriteAttempts(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE outbox_writes SET attempts = attempts + 1 WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to bump write attempts: %w", err)
	}
	return nil
}

// DumpState returns the persisted state as JSON, for debugging.
func (s *SQLiteStore) DumpState(ctx context.Context) (string, error) {
	selections, err := s.LoadSelections(ctx)
	if err != nil {
		return "", err
	}
	draftID, err := s.LoadDraftID(ctx)
	if err != nil {
		return "", err
	}

	state := struct {
		DraftID    string             `json:"draft_id,omitempty"`
		Selections []models.Selection `json:"selections"`
	}{Selections: selections}
	if draftID != uuid.Nil {
		state.DraftID = draftID.String()
	}

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return string(out), nil
}
