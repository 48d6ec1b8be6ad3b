package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_history (
	room_id    TEXT     NOT NULL,
	seq        INTEGER  NOT NULL,
	type       TEXT     NOT NULL,
	username   TEXT     NOT NULL,
	message    TEXT     NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (room_id, seq)
);

CREATE TABLE IF NOT EXISTS room_snapshots (
	room_id    TEXT     PRIMARY KEY,
	saved_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.HistorySnapshotter for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to seed data before use.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveHistory replaces the stored log of a room inside one transaction.
func (s *SQLiteStore) SaveHistory(ctx context.Context, roomID string, entries []store.HistoryEntry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM room_history WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO room_history (room_id, seq, type, username, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err = stmt.ExecContext(ctx, roomID, i, string(e.Type), e.Username, e.Message, e.Timestamp.UTC()); err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO room_snapshots (room_id, saved_at) VALUES (?, CURRENT_TIMESTAMP)
		ON CONFLICT(room_id) DO UPDATE SET saved_at = CURRENT_TIMESTAMP
	`, roomID); err != nil {
		return fmt.Errorf("mark snapshot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// LoadHistory returns the stored log of a room ordered oldest first.
func (s *SQLiteStore) LoadHistory(ctx context.Context, roomID string) ([]store.HistoryEntry, error) {
	var marker string
	err := s.db.QueryRowContext(ctx, `SELECT room_id FROM room_snapshots WHERE room_id = ?`, roomID).Scan(&marker)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, username, message, created_at
		FROM room_history
		WHERE room_id = ?
		ORDER BY seq ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]store.HistoryEntry, 0)
	for rows.Next() {
		e := store.HistoryEntry{RoomID: roomID}
		var entryType string
		if err := rows.Scan(&entryType, &e.Username, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Type = store.EntryType(entryType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
