package core

import "sort"

// MobileIndex maps a mobile number to the rooms it can access.
// It is not safe for concurrent use; RoomRegistry guards it with its own lock.
type MobileIndex struct {
	rooms map[string]map[string]struct{}
}

// NewMobileIndex creates an empty index.
func NewMobileIndex() *MobileIndex {
	return &MobileIndex{rooms: make(map[string]map[string]struct{})}
}

// Add records that mobile can access roomID.
func (m *MobileIndex) Add(mobile, roomID string) {
	set, ok := m.rooms[mobile]
	if !ok {
		set = make(map[string]struct{})
		m.rooms[mobile] = set
	}
	set[roomID] = struct{}{}
}

// Remove drops roomID from the rooms of mobile.
func (m *MobileIndex) Remove(mobile, roomID string) {
	set, ok := m.rooms[mobile]
	if !ok {
		return
	}
	delete(set, roomID)
	if len(set) == 0 {
		delete(m.rooms, mobile)
	}
}

// Rooms returns the room ids indexed for mobile in stable order.
func (m *MobileIndex) Rooms(mobile string) []string {
	set := m.rooms[mobile]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
