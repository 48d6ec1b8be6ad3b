package core

import (
	"errors"

	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrSessionClosed       = errors.New("session closed")
)

// CoreError wraps a client-visible code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func errInvalidMessage(msg string) *CoreError {
	return coreError(proto.CodeInvalidMessage, msg)
}

func errInvalidMobile(msg string) *CoreError {
	return coreError(proto.CodeInvalidMobile, msg)
}

var (
	errRoomNotFound = coreError(proto.CodeRoomNotFound, "room not found")
	errAccessDenied = coreError(proto.CodeAccessDenied, "access denied")
)
