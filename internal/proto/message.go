package proto

import (
	"encoding/json"
	"regexp"
)

// Inbound message types.
const (
	TypeConnect           = "connect"
	TypeCreateRoom        = "create_room"
	TypeJoinRoom          = "join_room"
	TypeMessage           = "message"
	TypeLeaveRoom         = "leave_room"
	TypeGetRooms          = "get_rooms"
	TypeAddParticipants   = "add_participants"
	TypeRemoveParticipant = "remove_participant"
)

// Error codes sent to clients. These values are part of the wire contract.
const (
	CodeInvalidMobile   = "INVALID_MOBILE"
	CodeInvalidMessage  = "INVALID_MESSAGE"
	CodeRoomNotFound    = "ROOM_NOT_FOUND"
	CodeAccessDenied    = "ACCESS_DENIED"
	CodeConnectionError = "CONNECTION_ERROR"
)

var mobilePattern = regexp.MustCompile(`^\+?[0-9]{3,15}$`)

// ValidMobile reports whether s looks like a phone number.
func ValidMobile(s string) bool {
	return mobilePattern.MatchString(s)
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// ConnectData identifies a session.
type ConnectData struct {
	Mobile   string `json:"mobile"`
	Username string `json:"username,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// ParticipantInput is a participant as supplied by a client. It decodes from
// either a bare mobile string or an object.
type ParticipantInput struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Mobile    string `json:"mobile"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// UnmarshalJSON accepts "+100" as shorthand for {"mobile":"+100"}.
func (p *ParticipantInput) UnmarshalJSON(data []byte) error {
	var mobile string
	if err := json.Unmarshal(data, &mobile); err == nil {
		*p = ParticipantInput{Mobile: mobile}
		return nil
	}
	type plain ParticipantInput
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ParticipantInput(v)
	return nil
}

// CreateRoomData requests a new room.
type CreateRoomData struct {
	Mobile       string             `json:"mobile"`
	Username     string             `json:"username,omitempty"`
	Description  string             `json:"description,omitempty"`
	AvatarURL    string             `json:"avatarUrl,omitempty"`
	Participants []ParticipantInput `json:"participants"`
}

// JoinRoomData requests to join a specific room.
type JoinRoomData struct {
	RoomID   string `json:"roomId"`
	Mobile   string `json:"mobile"`
	Username string `json:"username,omitempty"`
}

// MessageData is a chat message from the client.
type MessageData struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// GetRoomsData asks for the rooms a mobile can access.
type GetRoomsData struct {
	Mobile string `json:"mobile"`
}

// AddParticipantsData extends a room's membership.
type AddParticipantsData struct {
	RoomID          string             `json:"roomId"`
	Mobile          string             `json:"mobile"`
	NewParticipants []ParticipantInput `json:"newParticipants"`
}

// RemoveParticipantData removes one participant from a room.
type RemoveParticipantData struct {
	RoomID        string `json:"roomId"`
	Mobile        string `json:"mobile"`
	ParticipantID string `json:"participantId"`
}
