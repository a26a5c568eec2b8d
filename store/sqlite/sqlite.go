// Package sqlite implements colloquy.Checkpointer using pure-Go SQLite.
// Zero CGO required. Session state is stored as a JSON blob keyed by
// session ID, which keeps the schema stable as the state shape evolves.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/colloquy-dev/colloquy"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements colloquy.Checkpointer backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ colloquy.Checkpointer = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")

	tables := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			turn_count INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS completed_flows (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			flow_name TEXT NOT NULL,
			result TEXT NOT NULL,
			completed_at INTEGER NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_completed_flows_session ON completed_flows(session_id)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Load returns the checkpointed state for a session, or nil when the
// session has no checkpoint yet.
func (s *Store) Load(ctx context.Context, sessionID string) (*colloquy.DialogueState, error) {
	start := time.Now()
	s.logger.Debug("sqlite: load session", "session_id", sessionID)

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		s.logger.Debug("sqlite: load session not found", "session_id", sessionID, "duration", time.Since(start))
		return nil, nil
	}
	if err != nil {
		s.logger.Error("sqlite: load session failed", "session_id", sessionID, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("load session: %w", err)
	}

	var state colloquy.DialogueState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	s.logger.Debug("sqlite: load session ok", "session_id", sessionID, "turn_count", state.TurnCount, "duration", time.Since(start))
	return &state, nil
}

// Save checkpoints the full session state, replacing any previous
// checkpoint, and journals newly completed flows.
func (s *Store) Save(ctx context.Context, sessionID string, state *colloquy.DialogueState) error {
	start := time.Now()
	s.logger.Debug("sqlite: save session", "session_id", sessionID, "turn_count", state.TurnCount)

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (session_id, state, turn_count, updated_at)
		 VALUES (?, ?, ?, ?)`,
		sessionID, string(raw), state.TurnCount, colloquy.NowUnix(),
	)
	if err != nil {
		s.logger.Error("sqlite: save session failed", "session_id", sessionID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("save session: %w", err)
	}

	for _, cf := range state.Completed {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO completed_flows (id, session_id, flow_name, result, completed_at)
			 VALUES (?, ?, ?, ?, ?)`,
			cf.FlowID, sessionID, cf.FlowName, string(cf.State), cf.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("save completed flow: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: save session commit failed", "session_id", sessionID, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: save session ok", "session_id", sessionID, "duration", time.Since(start))
	return nil
}

// Delete removes a session checkpoint and its completed-flow journal.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete session", "session_id", sessionID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM completed_flows WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete completed flows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: delete session commit failed", "session_id", sessionID, "error", err)
		return err
	}
	s.logger.Debug("sqlite: delete session ok", "session_id", sessionID, "duration", time.Since(start))
	return nil
}

// ListSessions returns session IDs ordered by most recently updated first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]string, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list sessions", "limit", limit)

	query := `SELECT session_id FROM sessions ORDER BY updated_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("sqlite: list sessions failed", "error", err)
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	s.logger.Debug("sqlite: list sessions ok", "count", len(ids), "duration", time.Since(start))
	return ids, rows.Err()
}

// DB returns the underlying *sql.DB for sharing with other components.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}
