package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no snapshot exists for a room.
var ErrNotFound = errors.New("history not found")

// EntryType distinguishes chat messages from system announcements.
type EntryType string

const (
	EntryTypeSystem  EntryType = "system"
	EntryTypeMessage EntryType = "message"
)

// HistoryEntry is a persisted room history line.
type HistoryEntry struct {
	Type      EntryType `json:"type"`
	RoomID    string    `json:"roomId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HistorySnapshotter saves and loads whole room history logs.
// Implementations overwrite the previous snapshot on every save.
type HistorySnapshotter interface {
	// SaveHistory replaces the stored log of a room.
	SaveHistory(ctx context.Context, roomID string, entries []HistoryEntry) error

	// LoadHistory returns the stored log of a room, oldest first.
	// Returns ErrNotFound if the room was never saved.
	LoadHistory(ctx context.Context, roomID string) ([]HistoryEntry, error)

	// Close releases underlying resources.
	Close() error
}
