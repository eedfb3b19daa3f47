// Package storage is the transactional tier: a SQLite-backed store with
// three independent record families (sessions, messages, assets).
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"MonaChat/internal/session"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// SchemaVersion is checked at connect time. Migrations are additive
// only: a mismatch re-runs the create-if-missing DDL, never drops data.
const SchemaVersion = 1

var (
	// ErrUnavailable means persistent storage could not be opened.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrWrite means a single write did not commit.
	ErrWrite = errors.New("storage write failed")
	// ErrNotFound means no record exists under the given key.
	ErrNotFound = errors.New("record not found")
)

// SessionRecord is the sessions-family row.
type SessionRecord struct {
	ID              string
	UserValues      map[string]any
	IsAuthenticated bool
}

// Store wraps the SQLite database. All methods are safe for concurrent
// use and every call either succeeds or surfaces an error; nothing is
// dropped silently.
type Store struct {
	path   string
	logger *slog.Logger
	tracer trace.Tracer

	mu        sync.Mutex
	db        *sql.DB
	connected bool

	msgWrites metric.Int64Counter
}

// Open prepares a store for the given database path. No I/O happens
// until Connect.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger,
		tracer: otel.Tracer("monachat/storage"),
	}
	meter := otel.Meter("monachat/storage")
	s.msgWrites, _ = meter.Int64Counter("storage.messages.persisted",
		metric.WithDescription("Messages written to the messages family"))
	return s
}

// Connect opens the database and ensures the record families exist. It
// is idempotent: concurrent calls result in exactly one schema setup.
func (s *Store) Connect(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "storage.connect")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create data dir: %v", ErrUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUnavailable, s.path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	if err := s.migrate(ctx, db); err != nil {
		db.Close()
		return err
	}

	s.db = db
	s.connected = true
	s.logger.Info("storage connected", "path", s.path, "schema_version", SchemaVersion)
	return nil
}

func (s *Store) migrate(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_values TEXT,
			is_authenticated INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			text TEXT NOT NULL,
			sender TEXT NOT NULL,
			type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			metadata TEXT,
			status TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);`,
		`CREATE TABLE IF NOT EXISTS assets (
			url TEXT PRIMARY KEY,
			data BLOB NOT NULL
		);`,
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin migration: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	for _, stmt := range ddl {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
		}
	}

	var version int
	err = tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
			return fmt.Errorf("%w: record schema version: %v", ErrUnavailable, err)
		}
	case err != nil:
		return fmt.Errorf("%w: read schema version: %v", ErrUnavailable, err)
	case version != SchemaVersion:
		// Additive migration only: the DDL above already ran, so just
		// bump the recorded version.
		if _, err := tx.ExecContext(ctx, "UPDATE schema_version SET version = ?", SchemaVersion); err != nil {
			return fmt.Errorf("%w: bump schema version: %v", ErrUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit migration: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.db.Close()
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, fmt.Errorf("%w: not connected", ErrUnavailable)
	}
	return s.db, nil
}

// PutSession upserts a sessions-family record by id.
func (s *Store) PutSession(ctx context.Context, rec SessionRecord) error {
	ctx, span := s.tracer.Start(ctx, "storage.put_session")
	defer span.End()

	db, err := s.handle()
	if err != nil {
		return err
	}

	values, err := json.Marshal(rec.UserValues)
	if err != nil {
		return fmt.Errorf("%w: encode user values: %v", ErrWrite, err)
	}
	auth := 0
	if rec.IsAuthenticated {
		auth = 1
	}
	_, err = db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sessions (id, user_values, is_authenticated) VALUES (?, ?, ?)",
		rec.ID, string(values), auth,
	)
	if err != nil {
		return fmt.Errorf("%w: session %s: %v", ErrWrite, rec.ID, err)
	}
	return nil
}

// GetSession loads a sessions-family record, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	db, err := s.handle()
	if err != nil {
		return SessionRecord{}, err
	}

	var rec SessionRecord
	var values sql.NullString
	var auth int
	err = db.QueryRowContext(ctx,
		"SELECT id, user_values, is_authenticated FROM sessions WHERE id = ?", id,
	).Scan(&rec.ID, &values, &auth)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("load session %s: %w", id, err)
	}
	rec.IsAuthenticated = auth != 0
	if values.Valid && values.String != "" {
		if err := json.Unmarshal([]byte(values.String), &rec.UserValues); err != nil {
			return SessionRecord{}, fmt.Errorf("decode user values for %s: %w", id, err)
		}
	}
	return rec, nil
}

// PutMessage writes one message record atomically. Messages are
// immutable: the same id is never written twice by the core, but the
// upsert keeps the call idempotent if a caller retries an acknowledged
// write.
func (s *Store) PutMessage(ctx context.Context, msg session.Message) error {
	ctx, span := s.tracer.Start(ctx, "storage.put_message")
	defer span.End()

	db, err := s.handle()
	if err != nil {
		return err
	}

	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", ErrWrite, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (id, session_id, text, sender, type, timestamp, metadata, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Text, msg.Sender, msg.Type, msg.Timestamp, string(meta), msg.Status,
	)
	if err != nil {
		return fmt.Errorf("%w: message %s: %v", ErrWrite, msg.ID, err)
	}
	if s.msgWrites != nil {
		s.msgWrites.Add(ctx, 1)
	}
	return nil
}

// History returns every message for the session in ascending timestamp
// order, equal stamps resolved by insertion order (rowid). The ORDER BY
// is a correctness requirement: the index scan has no inherent order,
// and a clamped clock can stamp consecutive messages identically.
func (s *Store) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	ctx, span := s.tracer.Start(ctx, "storage.history")
	defer span.End()

	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, session_id, text, sender, type, timestamp, metadata, status
		 FROM messages WHERE session_id = ? ORDER BY timestamp ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []session.Message
	for rows.Next() {
		var msg session.Message
		var meta sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Text, &msg.Sender, &msg.Type, &msg.Timestamp, &meta, &msg.Status); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", msg.ID, err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history for %s: %w", sessionID, err)
	}
	return out, nil
}

// PutAsset upserts a blob into the assets family, keyed by locator.
func (s *Store) PutAsset(ctx context.Context, url string, data []byte) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO assets (url, data) VALUES (?, ?)", url, data); err != nil {
		return fmt.Errorf("%w: asset %s: %v", ErrWrite, url, err)
	}
	return nil
}

// GetAsset loads a blob from the assets family, or ErrNotFound.
func (s *Store) GetAsset(ctx context.Context, url string) ([]byte, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var data []byte
	err = db.QueryRowContext(ctx, "SELECT data FROM assets WHERE url = ?", url).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: asset %s", ErrNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("load asset %s: %w", url, err)
	}
	return data, nil
}
