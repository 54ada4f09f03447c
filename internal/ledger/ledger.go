// Package ledger provides an append-only history of mutating device calls.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/remote"
)

// EventType represents the outcome recorded in the ledger
type EventType string

const (
	EventMutationSucceeded EventType = "mutation_succeeded"
	EventMutationFailed    EventType = "mutation_failed"
)

// Entry represents a single ledger row
type Entry struct {
	ID        int64
	EventType EventType
	Timestamp time.Time
	Op        string
	RequestID string
	RelayID   int
	RuleID    int
	Status    int
	Error     string
	Payload   string
	Duration  time.Duration
}

// Ledger records mutation outcomes
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds an entry. Entries with a request id already present are ignored.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO mutation_ledger
			(event_type, timestamp, op, request_id, relay_id, rule_id, status, error, payload, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(e.EventType), e.Timestamp.UTC().Unix(), e.Op, e.RequestID, e.RelayID, e.RuleID,
		e.Status, e.Error, e.Payload, e.Duration.Milliseconds())
	return err
}

// RecordMutation appends the outcome of a device call. Storage errors are
// logged, never returned to the caller of the device call.
func (l *Ledger) RecordMutation(ctx context.Context, m remote.Mutation) {
	e := Entry{
		EventType: EventMutationSucceeded,
		Op:        m.Op,
		RequestID: m.RequestID,
		RelayID:   m.RelayID,
		RuleID:    m.RuleID,
		Status:    m.Status,
		Payload:   string(m.Payload),
		Duration:  m.Duration,
	}
	if m.Err != nil {
		e.EventType = EventMutationFailed
		e.Error = m.Err.Error()
	}

	// Record even when the call context is already cancelled.
	if err := l.Append(context.WithoutCancel(ctx), e); err != nil {
		log.Error().Err(err).Str("op", m.Op).Str("request_id", m.RequestID).Msg("Failed to record mutation")
	}
}

// HasRecorded reports whether a request id is already in the ledger.
func (l *Ledger) HasRecorded(ctx context.Context, requestID string) bool {
	if requestID == "" {
		return false
	}
	var exists int
	err := l.db.QueryRowContext(ctx, `
		SELECT 1 FROM mutation_ledger WHERE request_id = ? LIMIT 1
	`, requestID).Scan(&exists)
	return err == nil && exists == 1
}

const selectEntries = `
	SELECT id, event_type, timestamp, op, request_id, relay_id, rule_id, status, error, payload, duration_ms
	FROM mutation_ledger`

// Recent returns the newest entries first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectEntries+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetByType returns entries filtered by event type, newest first
func (l *Ledger) GetByType(ctx context.Context, eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectEntries+` WHERE event_type = ? ORDER BY id DESC LIMIT ?`,
		string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForRelay returns the entries touching one relay, newest first
func (l *Ledger) ForRelay(ctx context.Context, relayID, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectEntries+` WHERE relay_id = ? ORDER BY id DESC LIMIT ?`,
		relayID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the retention period
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().Unix()
	result, err := l.db.ExecContext(ctx, `DELETE FROM mutation_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var e Entry
		var requestID, errText, payload sql.NullString
		var relayID, ruleID, status, durationMs sql.NullInt64
		var ts int64

		if err := rows.Scan(&e.ID, &e.EventType, &ts, &e.Op, &requestID, &relayID, &ruleID,
			&status, &errText, &payload, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		e.Timestamp = time.Unix(ts, 0).UTC()
		e.RequestID = requestID.String
		e.RelayID = int(relayID.Int64)
		e.RuleID = int(ruleID.Int64)
		e.Status = int(status.Int64)
		e.Error = errText.String
		e.Payload = payload.String
		e.Duration = time.Duration(durationMs.Int64) * time.Millisecond

		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
