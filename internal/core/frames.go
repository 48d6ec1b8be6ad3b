package core

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

// encoder turns system messages into wire frames.
type encoder struct {
	proto *proto.Protocol
	log   *zerolog.Logger
}

// frame builds and serializes a system message. It returns nil if kind is not
// declared in the protocol, which is a programming error and logged as such.
func (e encoder) frame(kind proto.SystemKind, data map[string]any) []byte {
	msg, err := e.proto.SystemMessage(kind, data)
	if err != nil {
		e.log.Error().Err(err).Msg("cannot build system message")
		return nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		e.log.Error().Err(err).Str("kind", string(kind)).Msg("cannot marshal system message")
		return nil
	}
	return b
}

func entryFields(entry HistoryEntry) map[string]any {
	return map[string]any{
		"roomId":    entry.RoomID,
		"username":  entry.Username,
		"message":   entry.Message,
		"timestamp": entry.Timestamp,
	}
}

func entryKind(entry HistoryEntry) proto.SystemKind {
	if entry.Type == EntryTypeSystem {
		return proto.KindSystem
	}
	return proto.KindMessage
}

func digestFields(entry HistoryEntry, previewLen int) map[string]any {
	return map[string]any{
		"roomId": entry.RoomID,
		"message": map[string]any{
			"username":  entry.Username,
			"preview":   preview(entry.Message, previewLen),
			"timestamp": entry.Timestamp,
		},
	}
}

// preview truncates text to at most n runes, marking the cut with an ellipsis.
func preview(text string, n int) string {
	if n <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
