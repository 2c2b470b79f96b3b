package coord

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps sessions in a local SQLite file so several processes
// on one host can share state. Pub/sub only reaches subscribers in this process.
type SQLiteBackend struct {
	conn *sql.DB
	path string
	now  func() time.Time

	mu     sync.Mutex
	closed bool
	subs   map[string]map[*sqliteSubscription]struct{}
}

// OpenSQLite opens (and migrates) the database at path, creating parent
// directories as needed. WAL mode is enabled for concurrent readers.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	b := &SQLiteBackend{
		conn: conn,
		path: path,
		now:  time.Now,
		subs: make(map[string]map[*sqliteSubscription]struct{}),
	}
	if err := b.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) migrate() error {
	if _, err := b.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := b.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1SessionFields},
		{2, migrationV2SessionExpiry},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := b.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1SessionFields = `
CREATE TABLE IF NOT EXISTS session_fields (
	session_key TEXT NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (session_key, field)
);
`

const migrationV2SessionExpiry = `
CREATE TABLE IF NOT EXISTS session_expiry (
	session_key TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_expiry_expires_at ON session_expiry(expires_at);
`

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) available() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: sqlite backend closed", ErrBackendUnavailable)
	}
	return nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	if err := b.available(); err != nil {
		return err
	}
	if err := b.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (b *SQLiteBackend) SaveSession(ctx context.Context, sessionID string, fields map[string]string, ttl time.Duration) error {
	if err := b.available(); err != nil {
		return err
	}
	key := SessionKey(sessionID)

	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for field, value := range fields {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_fields (session_key, field, value) VALUES (?, ?, ?)
			ON CONFLICT(session_key, field) DO UPDATE SET value = excluded.value
		`, key, field, value); err != nil {
			tx.Rollback()
			return fmt.Errorf("save field %s: %w", field, err)
		}
	}
	if ttl > 0 {
		expires := b.now().Add(ttl).UnixMilli()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_expiry (session_key, expires_at) VALUES (?, ?)
			ON CONFLICT(session_key) DO UPDATE SET expires_at = excluded.expires_at
		`, key, expires); err != nil {
			tx.Rollback()
			return fmt.Errorf("save expiry: %w", err)
		}
	}
	return tx.Commit()
}

func (b *SQLiteBackend) LoadSession(ctx context.Context, sessionID string) (map[string]string, error) {
	if err := b.available(); err != nil {
		return nil, err
	}
	key := SessionKey(sessionID)

	var expires int64
	err := b.conn.QueryRowContext(ctx, "SELECT expires_at FROM session_expiry WHERE session_key = ?", key).Scan(&expires)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("load expiry: %w", err)
	case expires <= b.now().UnixMilli():
		if err := b.DeleteSession(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	rows, err := b.conn.QueryContext(ctx, "SELECT field, value FROM session_fields WHERE session_key = ?", key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}
	return fields, nil
}

func (b *SQLiteBackend) DeleteSession(ctx context.Context, sessionID string) error {
	if err := b.available(); err != nil {
		return err
	}
	key := SessionKey(sessionID)

	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, q := range []string{
		"DELETE FROM session_fields WHERE session_key = ?",
		"DELETE FROM session_expiry WHERE session_key = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return tx.Commit()
}

// PurgeExpired deletes every session whose TTL has passed.
// Returns the number of sessions deleted.
func (b *SQLiteBackend) PurgeExpired(ctx context.Context) (int64, error) {
	if err := b.available(); err != nil {
		return 0, err
	}
	now := b.now().UnixMilli()

	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM session_fields WHERE session_key IN (
			SELECT session_key FROM session_expiry WHERE expires_at <= ?
		)
	`, now); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM session_expiry WHERE expires_at <= ?", now)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, tx.Commit()
}

// Publish delivers payload to subscribers in this process. Slow subscribers
// lose messages instead of blocking the publisher.
func (b *SQLiteBackend) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: sqlite backend closed", ErrBackendUnavailable)
	}

	for sub := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case sub.out <- msg:
		default:
		}
	}
	return nil
}

func (b *SQLiteBackend) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: sqlite backend closed", ErrBackendUnavailable)
	}

	sub := &sqliteSubscription{backend: b, channel: channel, out: make(chan []byte, 64)}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*sqliteSubscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub, nil
}

func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for sub := range subs {
			close(sub.out)
		}
	}
	b.subs = nil
	b.mu.Unlock()

	return b.conn.Close()
}

type sqliteSubscription struct {
	backend *SQLiteBackend
	channel string
	out     chan []byte
}

func (s *sqliteSubscription) Messages() <-chan []byte { return s.out }

func (s *sqliteSubscription) Close() error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subs[s.channel]; ok {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			close(s.out)
		}
	}
	return nil
}
