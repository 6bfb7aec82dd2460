// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/minigpt/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAmbiguousID     = errors.New("session ID prefix is ambiguous")
	ErrClosed          = errors.New("archive is closed")
	ErrInvalidPath     = errors.New("invalid archive path")
)

// =============================================================================
// TYPES
// =============================================================================

// SessionMeta describes one archived session.
type SessionMeta struct {
	ID            string    `json:"id"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ExchangeCount int       `json:"exchange_count"`
	Preview       string    `json:"preview"` // first user message
}

// Archive is a SQLite-backed exchange archive. It is safe for concurrent use.
type Archive struct {
	db     *sql.DB
	path   string
	mu     sync.RWMutex
	closed bool
}

// =============================================================================
// OPEN / CLOSE
// =============================================================================

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Archive, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrInvalidPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	// The archive holds conversation text; keep it private.
	_ = os.Chmod(path, 0600)

	return &Archive{db: db, path: path}, nil
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.path
}

// Close closes the database. Further calls return ErrClosed.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

// =============================================================================
// WRITE
// =============================================================================

// Append records one exchange for sessionID, creating the session row on
// first use. A zero exchange timestamp is replaced with the current time.
func (a *Archive) Append(ctx context.Context, sessionID, modelName string, ex model.Exchange) error {
	if sessionID == "" {
		return errors.New("session ID is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}

	ts := ex.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	nanos := ts.UnixNano()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, model, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at, model = excluded.model`,
		sessionID, modelName, nanos, nanos)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exchanges (session_id, user_text, assistant_text, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, ex.User, ex.Assistant, nanos)
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}

	return tx.Commit()
}

// DeleteSession removes the session identified by id (or a unique prefix of
// it) and all its exchanges. It returns the full ID that was removed.
func (a *Archive) DeleteSession(ctx context.Context, id string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", ErrClosed
	}

	fullID, err := a.resolve(ctx, id)
	if err != nil {
		return "", err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exchanges WHERE session_id = ?`, fullID); err != nil {
		return "", fmt.Errorf("failed to delete exchanges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, fullID); err != nil {
		return "", fmt.Errorf("failed to delete session: %w", err)
	}
	return fullID, tx.Commit()
}

// DeleteAll removes every session and returns how many were removed.
func (a *Archive) DeleteAll(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrClosed
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exchanges`); err != nil {
		return 0, fmt.Errorf("failed to delete exchanges: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
}

// =============================================================================
// READ
// =============================================================================

// Sessions lists sessions, most recently updated first. limit <= 0 means all.
func (a *Archive) Sessions(ctx context.Context, limit int) ([]SessionMeta, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT s.id, s.model, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM exchanges e WHERE e.session_id = s.id),
		       COALESCE((SELECT e.user_text FROM exchanges e WHERE e.session_id = s.id ORDER BY e.id LIMIT 1), '')
		FROM sessions s
		ORDER BY s.updated_at DESC, s.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var m SessionMeta
		var created, updated int64
		if err := rows.Scan(&m.ID, &m.Model, &created, &updated, &m.ExchangeCount, &m.Preview); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		m.CreatedAt = time.Unix(0, created)
		m.UpdatedAt = time.Unix(0, updated)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Session returns the metadata of one session, looked up by ID or unique prefix.
func (a *Archive) Session(ctx context.Context, id string) (SessionMeta, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return SessionMeta{}, ErrClosed
	}

	fullID, err := a.resolve(ctx, id)
	if err != nil {
		return SessionMeta{}, err
	}

	var m SessionMeta
	var created, updated int64
	err = a.db.QueryRowContext(ctx, `
		SELECT s.id, s.model, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM exchanges e WHERE e.session_id = s.id),
		       COALESCE((SELECT e.user_text FROM exchanges e WHERE e.session_id = s.id ORDER BY e.id LIMIT 1), '')
		FROM sessions s WHERE s.id = ?`, fullID).
		Scan(&m.ID, &m.Model, &created, &updated, &m.ExchangeCount, &m.Preview)
	if err != nil {
		return SessionMeta{}, fmt.Errorf("failed to load session: %w", err)
	}
	m.CreatedAt = time.Unix(0, created)
	m.UpdatedAt = time.Unix(0, updated)
	return m, nil
}

// Exchanges returns a session's exchanges in the order they were appended.
func (a *Archive) Exchanges(ctx context.Context, id string) ([]model.Exchange, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	fullID, err := a.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT user_text, assistant_text, created_at
		FROM exchanges WHERE session_id = ? ORDER BY id`, fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchanges: %w", err)
	}
	defer rows.Close()

	var out []model.Exchange
	for rows.Next() {
		var ex model.Exchange
		var created int64
		if err := rows.Scan(&ex.User, &ex.Assistant, &created); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		ex.Timestamp = time.Unix(0, created)
		out = append(out, ex)
	}
	return out, rows.Err()
}

// resolve expands a session ID prefix to a full ID. Caller holds mu.
func (a *Archive) resolve(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", ErrSessionNotFound
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE substr(id, 1, ?) = ? LIMIT 2`,
		len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case len(ids) == 0:
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, prefix)
	case len(ids) > 1 && ids[0] != prefix && ids[1] != prefix:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	case len(ids) > 1:
		return prefix, nil
	}
	return ids[0], nil
}
