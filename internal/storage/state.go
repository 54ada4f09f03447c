// Package storage persists the last good dashboard view so a restart can
// render it before the first successful poll.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind namespaces stored payloads.
type Kind string

const (
	KindRelays   Kind = "relays"
	KindRules    Kind = "rules"
	KindSettings Kind = "settings"
)

// Store is a versioned JSON payload store keyed by (kind, id).
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the payload and version for (kind, id). A missing entry yields a
// nil payload and version 0.
func (s *Store) Get(ctx context.Context, kind Kind, id string) ([]byte, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, version FROM resource_state
		WHERE kind = ? AND id = ?
	`, string(kind), id).Scan(&payload, &version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return []byte(payload), version, nil
}

// Set upserts a payload and bumps its version.
func (s *Store) Set(ctx context.Context, kind Kind, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			version = version + 1,
			updated_at = excluded.updated_at
	`, string(kind), id, string(payload), time.Now().UTC().Unix())

	if err == nil {
		log.Debug().Str("kind", string(kind)).Str("id", id).Int("bytes", len(payload)).Msg("Stored state")
	}
	return err
}

// Delete removes one entry.
func (s *Store) Delete(ctx context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM resource_state WHERE kind = ? AND id = ?`, string(kind), id)
	return err
}

// GetAll returns every payload of a kind keyed by id.
func (s *Store) GetAll(ctx context.Context, kind Kind) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM resource_state WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		out[id] = []byte(payload)
	}
	return out, rows.Err()
}

// Clear removes all entries of a kind. An empty kind clears everything.
func (s *Store) Clear(ctx context.Context, kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if kind == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM resource_state`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM resource_state WHERE kind = ?`, string(kind))
	}
	return err
}
