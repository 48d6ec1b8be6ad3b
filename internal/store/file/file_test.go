package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

func TestSaveAndLoadHistory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "history")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	roomID := "u1+100" + "01J0000000000000000000000" + "1700000000000"
	entries := []store.HistoryEntry{
		{Type: store.EntryTypeSystem, RoomID: roomID, Username: "System", Message: "alice joined", Timestamp: time.Unix(1, 0).UTC()},
		{Type: store.EntryTypeMessage, RoomID: roomID, Username: "alice", Message: "hi", Timestamp: time.Unix(2, 0).UTC()},
	}

	if err := s.SaveHistory(ctx, roomID, entries); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadHistory(ctx, roomID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[1].Message != "hi" || !got[0].Timestamp.Equal(entries[0].Timestamp) {
		t.Fatalf("unexpected entries: %+v", got)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(files) != 0 {
		t.Fatalf("temp files left behind: %v", files)
	}
}

func TestLoadMissingRoom(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := s.LoadHistory(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = s.LoadHistory(context.Background(), "broken")
	if err == nil || errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestPathStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	p := s.path("../../etc/passwd")
	if filepath.Dir(p) != dir {
		t.Fatalf("path escaped store dir: %s", p)
	}
}
