package core

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/utils"
)

const recentSummarySize = 5

// RoomRegistry owns every Room and the MobileIndex that points into it.
// All methods are safe for concurrent use and return copies, never the
// stored rooms themselves.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	index *MobileIndex
	log   *zerolog.Logger
	now   func() time.Time
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry(logger *zerolog.Logger) *RoomRegistry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RoomRegistry{
		rooms: make(map[string]*Room),
		index: NewMobileIndex(),
		log:   logger,
		now:   time.Now,
	}
}

// CreateRoom stores a new room and indexes its participants. The creator is
// added first if no participant shares the creator's mobile. Participants
// repeating a mobile are dropped.
func (r *RoomRegistry) CreateRoom(creator Participant, participants []Participant, description, avatarURL string) Room {
	now := r.now()
	if creator.ID == "" {
		creator.ID = utils.NewID()
	}
	if creator.Name == "" {
		creator.Name = creator.Mobile
	}

	room := &Room{
		KeyName:     creator.ID + creator.Mobile + utils.NewToken() + strconv.FormatInt(now.UnixMilli(), 10),
		Description: description,
		AvatarURL:   avatarURL,
		DateOpen:    now,
		History:     HistorySummary{Recent: []HistoryEntry{}},
	}

	creatorListed := false
	for _, p := range participants {
		if p.Mobile == creator.Mobile {
			creatorListed = true
			break
		}
	}
	if !creatorListed {
		room.Participants = append(room.Participants, creator)
	}

	for _, p := range participants {
		if room.HasAccess(p.Mobile) {
			r.log.Debug().Str("mobile", p.Mobile).Msg("duplicate participant skipped")
			continue
		}
		if p.Mobile == creator.Mobile {
			if p.ID == "" {
				p.ID = creator.ID
			}
			if p.Name == "" {
				p.Name = creator.Name
			}
		}
		room.Participants = append(room.Participants, normalizeParticipant(p))
	}
	room.recompute()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[room.KeyName] = room
	for _, p := range room.Participants {
		r.index.Add(p.Mobile, room.KeyName)
	}
	return room.clone()
}

// AddParticipant appends p to the room unless its mobile is already present.
// Returns the stored participant and whether it was added.
func (r *RoomRegistry) AddParticipant(roomID string, p Participant) (Participant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Participant{}, false, ErrRoomNotFound
	}
	if i := room.indexOf(p.Mobile); i >= 0 {
		r.log.Debug().Str("room_id", roomID).Str("mobile", p.Mobile).Msg("participant already in room, skipping")
		return room.Participants[i], false, nil
	}

	p = normalizeParticipant(p)
	room.Participants = append(room.Participants, p)
	room.recompute()
	r.index.Add(p.Mobile, roomID)
	return p, true, nil
}

// RemoveParticipant removes the participant with the given id and prunes the
// mobile index.
func (r *RoomRegistry) RemoveParticipant(roomID, participantID string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Participant{}, ErrRoomNotFound
	}
	for i, p := range room.Participants {
		if p.ID != participantID {
			continue
		}
		room.Participants = append(room.Participants[:i:i], room.Participants[i+1:]...)
		room.recompute()
		r.index.Remove(p.Mobile, roomID)
		return p, nil
	}
	return Participant{}, ErrParticipantNotFound
}

// HasAccess is the access-control predicate for every room-scoped operation.
func (r *RoomRegistry) HasAccess(roomID, mobile string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	return ok && room.HasAccess(mobile)
}

// Get returns a copy of the room.
func (r *RoomRegistry) Get(roomID string) (Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return room.clone(), true
}

// RoomsForMobile returns the rooms mobile can access, oldest first.
func (r *RoomRegistry) RoomsForMobile(mobile string) []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]Room, 0)
	for _, id := range r.index.Rooms(mobile) {
		room, ok := r.rooms[id]
		if !ok || !room.HasAccess(mobile) {
			continue
		}
		rooms = append(rooms, room.clone())
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].DateOpen.Before(rooms[j].DateOpen)
	})
	return rooms
}

// RecordEntry updates the history summary embedded in the room.
func (r *RoomRegistry) RecordEntry(entry HistoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[entry.RoomID]
	if !ok {
		return
	}
	room.History.Count++
	room.History.Recent = append(room.History.Recent, entry)
	if over := len(room.History.Recent) - recentSummarySize; over > 0 {
		room.History.Recent = append(room.History.Recent[:0:0], room.History.Recent[over:]...)
	}
}

// Len returns the number of rooms.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func normalizeParticipant(p Participant) Participant {
	if p.ID == "" {
		p.ID = utils.NewID()
	}
	if p.Name == "" {
		p.Name = p.Mobile
	}
	return p
}
