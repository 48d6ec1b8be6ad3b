package core

import (
	"strings"
	"time"
)

// EntryType distinguishes chat messages from system announcements.
type EntryType string

const (
	EntryTypeSystem  EntryType = "system"
	EntryTypeMessage EntryType = "message"
)

// SystemUsername is the author of system history entries.
const SystemUsername = "System"

// HistoryEntry is one line of a room's history.
type HistoryEntry struct {
	Type      EntryType `json:"type"`
	RoomID    string    `json:"roomId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Participant is a member entitled to join a room. Mobile is the access key.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Mobile    string `json:"mobile"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// HistorySummary is the preview of a room's activity shipped with the room.
type HistorySummary struct {
	Count  int            `json:"count"`
	Recent []HistoryEntry `json:"recent"`
}

// Room is a conversation between participants.
// Label and ParticipantsCount are derived; call recompute after every
// membership change.
type Room struct {
	KeyName           string         `json:"keyName"`
	Label             string         `json:"label"`
	Description       string         `json:"description"`
	AvatarURL         string         `json:"avatarUrl"`
	Participants      []Participant  `json:"participants"`
	ParticipantsCount int            `json:"participantsCount"`
	DateOpen          time.Time      `json:"dateOpen"`
	DateClose         *time.Time     `json:"dateClose"`
	History           HistorySummary `json:"history"`
}

// HasAccess reports whether mobile belongs to a participant of the room.
func (r *Room) HasAccess(mobile string) bool {
	return r.indexOf(mobile) >= 0
}

func (r *Room) indexOf(mobile string) int {
	if mobile == "" {
		return -1
	}
	for i, p := range r.Participants {
		if p.Mobile == mobile {
			return i
		}
	}
	return -1
}

func (r *Room) recompute() {
	names := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		names = append(names, p.Name)
	}
	r.Label = strings.Join(names, "+")
	r.ParticipantsCount = len(r.Participants)
}

func (r *Room) clone() Room {
	c := *r
	c.Participants = append([]Participant(nil), r.Participants...)
	c.History.Recent = append([]HistoryEntry(nil), r.History.Recent...)
	if r.DateClose != nil {
		closed := *r.DateClose
		c.DateClose = &closed
	}
	return c
}
