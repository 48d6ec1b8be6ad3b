package core

// CommandKind describes what happened on a connection.
type CommandKind int

const (
	// CommandConnect registers a new session.
	CommandConnect CommandKind = iota
	// CommandInbound carries a raw client frame.
	CommandInbound
	// CommandDisconnect reports that the transport is gone.
	CommandDisconnect
	// CommandPong reports a successful liveness probe.
	CommandPong
)

// Command is a connection event queued for the hub goroutine.
type Command struct {
	Kind      CommandKind
	SessionID string
	Conn      Conn
	Data      []byte
}
