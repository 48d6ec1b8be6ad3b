package utils

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a random identifier for sessions and participants.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns a lexically sortable random token. ulid.Make is
// monotonic within a process, so tokens never repeat even when generated in
// the same millisecond.
func NewToken() string {
	return ulid.Make().String()
}
