// Package postgres implements colloquy.Checkpointer using PostgreSQL.
// Session state is stored as a JSONB blob keyed by session ID.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquy-dev/colloquy"
)

// Store implements colloquy.Checkpointer backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ colloquy.Checkpointer = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates all required tables and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			state JSONB NOT NULL,
			turn_count INTEGER NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS completed_flows (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			flow_name TEXT NOT NULL,
			result TEXT NOT NULL,
			completed_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS completed_flows_session_idx ON completed_flows(session_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Load returns the checkpointed state for a session, or nil when the
// session has no checkpoint yet.
func (s *Store) Load(ctx context.Context, sessionID string) (*colloquy.DialogueState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM sessions WHERE session_id = $1`, sessionID,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load session: %w", err)
	}

	var state colloquy.DialogueState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("postgres: decode session state: %w", err)
	}
	return &state, nil
}

// Save checkpoints the full session state, replacing any previous
// checkpoint, and journals newly completed flows.
func (s *Store) Save(ctx context.Context, sessionID string, state *colloquy.DialogueState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("postgres: encode session state: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (session_id, state, turn_count, updated_at)
		 VALUES ($1, $2::jsonb, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE SET
		   state = EXCLUDED.state,
		   turn_count = EXCLUDED.turn_count,
		   updated_at = EXCLUDED.updated_at`,
		sessionID, string(raw), state.TurnCount, colloquy.NowUnix())
	if err != nil {
		return fmt.Errorf("postgres: save session: %w", err)
	}

	for _, cf := range state.Completed {
		_, err = tx.Exec(ctx,
			`INSERT INTO completed_flows (id, session_id, flow_name, result, completed_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			cf.FlowID, sessionID, cf.FlowName, string(cf.State), cf.CompletedAt)
		if err != nil {
			return fmt.Errorf("postgres: save completed flow: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Delete removes a session checkpoint and its completed-flow journal.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM completed_flows WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("postgres: delete completed flows: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("postgres: delete session: %w", err)
	}
	return tx.Commit(ctx)
}

// ListSessions returns session IDs ordered by most recently updated first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id FROM sessions ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}
