package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vovakirdan/wirechat-rooms/internal/metrics"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/utils"
)

func decode(env proto.Envelope, v any) *CoreError {
	if err := json.Unmarshal(env.Raw, v); err != nil {
		return errInvalidMessage(fmt.Sprintf("malformed %s message", env.Type))
	}
	return nil
}

// identify claims mobile for the session, or checks it against the claim
// already made.
func (h *Hub) identify(s *Session, mobile, username, userID string) *CoreError {
	if !proto.ValidMobile(mobile) {
		return errInvalidMobile("invalid mobile number")
	}
	if s.Mobile != "" && s.Mobile != mobile {
		return errInvalidMobile("mobile does not match this connection")
	}
	if s.Mobile == "" {
		s.Mobile = mobile
		s.UserID = userID
		if s.UserID == "" {
			s.UserID = utils.NewID()
		}
		h.log.Info().Str("session_id", s.ID).Str("mobile", mobile).Msg("session identified")
	}
	if username = strings.TrimSpace(username); username != "" {
		s.Username = username
	}
	if s.Username == "" {
		s.Username = mobile
	}
	return nil
}

// roomFor resolves a room the session is allowed to act on.
func (h *Hub) roomFor(s *Session, roomID string) (Room, *CoreError) {
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return Room{}, errRoomNotFound
	}
	if !room.HasAccess(s.Mobile) {
		return Room{}, errAccessDenied
	}
	return room, nil
}

func (h *Hub) participantsFrom(in []proto.ParticipantInput) ([]Participant, *CoreError) {
	out := make([]Participant, 0, len(in))
	for _, p := range in {
		mobile := strings.TrimSpace(p.Mobile)
		if !proto.ValidMobile(mobile) {
			return nil, errInvalidMobile("invalid participant mobile: " + p.Mobile)
		}
		out = append(out, Participant{
			ID:        p.ID,
			Name:      strings.TrimSpace(p.Name),
			Mobile:    mobile,
			AvatarURL: p.AvatarURL,
		})
	}
	return out, nil
}

func (h *Hub) systemEntry(roomID, text string) HistoryEntry {
	return HistoryEntry{
		Type:      EntryTypeSystem,
		RoomID:    roomID,
		Username:  SystemUsername,
		Message:   text,
		Timestamp: h.now().UTC(),
	}
}

func (h *Hub) record(entry HistoryEntry) {
	h.history.Append(entry)
	h.rooms.RecordEntry(entry)
}

func (h *Hub) sendRooms(s *Session) {
	h.send(s, proto.KindRoomsList, map[string]any{"rooms": h.rooms.RoomsForMobile(s.Mobile)})
}

func (h *Hub) sendHistory(s *Session, roomID string) {
	h.send(s, proto.KindHistory, map[string]any{
		"roomId":   roomID,
		"messages": h.history.Entries(roomID),
	})
}

// enterRoom moves the session into roomID, leaving its current room first.
func (h *Hub) enterRoom(s *Session, roomID string) {
	if s.RoomID != "" && s.RoomID != roomID {
		h.leaveRoom(s)
	}
	s.RoomID = roomID
}

// leaveRoom detaches the session and tells the remaining members.
func (h *Hub) leaveRoom(s *Session) {
	roomID := s.RoomID
	if roomID == "" {
		return
	}
	s.RoomID = ""

	entry := h.systemEntry(roomID, s.Username+" left")
	h.record(entry)
	h.broadcaster.Announce(roomID, entry, s.ID)
	h.log.Debug().Str("session_id", s.ID).Str("room_id", roomID).Msg("left room")
}

func (h *Hub) handleConnect(s *Session, env proto.Envelope) {
	var data proto.ConnectData
	if err := decode(env, &data); err != nil {
		h.sendError(s, err)
		return
	}
	if err := h.identify(s, data.Mobile, data.Username, data.UserID); err != nil {
		h.sendError(s, err)
		return
	}

	h.send(s, proto.KindNotification, map[string]any{
		"message":         "Welcome, " + s.Username,
		"userId":          s.UserID,
		"protocolVersion": h.proto.Version(),
	})
	h.sendRooms(s)
}

func (h *Hub) handleCreateRoom(s *Session, env proto.Envelope) {
	var data proto.CreateRoomData
	if err := decode(env, &data); err != nil {
		h.sendError(s, err)
		return
	}
	if err := h.identify(s, data.Mobile, data.Username, ""); err != nil {
		h.sendError(s, err)
		return
	}
	participants, err := h.participantsFrom(data.Participants)
	if err != nil {
		h.sendError(s, err)
		return
	}

	creator := Participant{ID: s.UserID, Name: s.Username, Mobile: s.Mobile}
	room := h.rooms.CreateRoom(creator, participants, data.Description, data.AvatarURL)
	metrics.RoomsCreated.Inc()
	h.log.Info().
		Str("room_id", room.KeyName).
		Str("mobile", s.Mobile).
		Int("participants", room.ParticipantsCount).
		Msg("room created")

	h.history.Create(room.KeyName)
	h.enterRoom(s, room.KeyName)

	room, _ = h.rooms.Get(room.KeyName)
	h.send(s, proto.KindRoomCreated, map[string]any{"roomId": room.KeyName, "room": room})
	h.broadcaster.AnnounceRoomCreated(room, s.ID)
}

func (h *Hub) handleJoinRoom(s *Session, env proto.Envelope) {
	var data proto.JoinRoomData
	if err := decode(env, &data); err != nil {
		h.sendError(s, err)
		return
	}
	if err := h.identify(s, data.Mobile, data.Username, ""); err != nil {
		h.sendError(s, err)
		return
	}
	if _, err := h.roomFor(s, data.RoomID); err != nil {
		h.sendError(s, err)
		return
	}

	if s.RoomID == data.RoomID {
		h.sendHistory(s, data.RoomID)
		return
	}

	h.enterRoom(s, data.RoomID)
	h.sendHistory(s, data.RoomID)

	entry := h.systemEntry(data.RoomID, s.Username+" joined")
	h.record(entry)
	h.broadcaster.Announce(data.RoomID, entry, "")
	h.log.Debug().Str("session_id", s.ID).Str("room_id", data.RoomID).Msg("joined room")
}

func (h *Hub) handleMessage(s *Session, env proto.Envelope) {
	var data proto.MessageData
	if err := decode(env, &data); err != nil {
		h.sendError(s, err)
		return
	}
	if strings.TrimSpace(data.Message) == "" {
		h.sendError(s, errInvalidMessage("message is empty"))
		return
	}
	if _, err := h.roomFor(s, data.RoomID); err != nil {
		h.sendError(s, err)
		return
	}

	entry := HistoryEntry{
		Type:      EntryTypeMessage,
		RoomID:    data.RoomID,
		Username:  data.Username,
		Message:   data.Message,
		Timestamp: h.now().UTC(),
	}
	h.record(entry)
	report := h.broadcaster.Deliver(data.RoomID, entry, s.ID)
	metrics.MessagesRouted.Inc()
	h.log.Debug().
		Str("room_id", data.RoomID).
		Str("session_id", s.ID).
		Int("full", report.Full).
		Int("digests", report.Digests).
		Int("failed", report.Failed).
		Msg("message routed")
}

func (h *Hub) handleLeaveRoom(s *Session, _ proto.Envelope) {
	if s.RoomID == "" {
		h.sendError(s, errInvalidMessage("not in a room"))
		return
	}
	roomID := s.RoomID
	h.leaveRoom(s)
	h.send(s, proto.KindNotification, map[string]any{"message": "left room", "roomId": roomID})
}

func (h *Hub) handleGetRooms(s *Session, env proto.Envelope) {
	var data proto.GetRoomsData
	if err := decode(env, &data); err != nil {
		h.sendError(s, err)
		return
	}
	if err := h.identify(s, data.Mobile, "", ""); err != nil {
		h.sendError(s, err)
		return
	}
	h.sendRooms(s)
}

func (h *Hub) handleAddParticipants(s *Session, env proto.Envelope) {
	var data proto.AddParticipantsData
	if err := decode(env, &data); err != nil {
		h.sendError(s, err)
		return
	}
	if err := h.identify(s, data.Mobile, "", ""); err != nil {
		h.sendError(s, err)
		return
	}
	if _, err := h.roomFor(s, data.RoomID); err != nil {
		h.sendError(s, err)
		return
	}
	candidates, cerr := h.participantsFrom(data.NewParticipants)
	if cerr != nil {
		h.sendError(s, cerr)
		return
	}

	var added []Participant
	for _, p := range candidates {
		stored, ok, err := h.rooms.AddParticipant(data.RoomID, p)
		if err != nil {
			h.sendError(s, errRoomNotFound)
			return
		}
		if ok {
			added = append(added, stored)
		}
	}

	room, _ := h.rooms.Get(data.RoomID)
	if len(added) == 0 {
		h.send(s, proto.KindNotification, map[string]any{
			"message": "no new participants",
			"roomId":  data.RoomID,
			"room":    room,
		})
		return
	}

	names := make([]string, 0, len(added))
	for _, p := range added {
		names = append(names, p.Name)
	}
	entry := h.systemEntry(data.RoomID, s.Username+" added "+strings.Join(names, ", "))
	h.record(entry)
	h.broadcaster.Announce(data.RoomID, entry, "")

	room, _ = h.rooms.Get(data.RoomID)
	if newRoom := h.enc.frame(proto.KindNewRoom, map[string]any{"room": room}); newRoom != nil {
		for _, p := range added {
			for _, other := range h.sessions.ByMobile(p.Mobile) {
				h.broadcaster.send(other, newRoom)
			}
		}
	}

	h.send(s, proto.KindNotification, map[string]any{
		"message": "participants added",
		"roomId":  data.RoomID,
		"room":    room,
	})
}

func (h *Hub) handleRemoveParticipant(s *Session, env proto.Envelope) {
	var data proto.RemoveParticipantData
	if err := decode(env, &data); err != nil {
		h.sendError(s, err)
		return
	}
	if err := h.identify(s, data.Mobile, "", ""); err != nil {
		h.sendError(s, err)
		return
	}
	if _, err := h.roomFor(s, data.RoomID); err != nil {
		h.sendError(s, err)
		return
	}

	removed, err := h.rooms.RemoveParticipant(data.RoomID, data.ParticipantID)
	if err != nil {
		h.sendError(s, errInvalidMessage("participant not found"))
		return
	}

	for _, other := range h.sessions.ByMobile(removed.Mobile) {
		if other.RoomID != data.RoomID {
			continue
		}
		other.RoomID = ""
		h.send(other, proto.KindNotification, map[string]any{
			"message": "removed from room",
			"roomId":  data.RoomID,
		})
	}

	entry := h.systemEntry(data.RoomID, s.Username+" removed "+removed.Name)
	h.record(entry)
	h.broadcaster.Announce(data.RoomID, entry, "")

	room, _ := h.rooms.Get(data.RoomID)
	h.send(s, proto.KindNotification, map[string]any{
		"message": "participant removed",
		"roomId":  data.RoomID,
		"room":    room,
	})
}
