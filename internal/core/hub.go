package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/metrics"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

// Options tunes the hub.
type Options struct {
	HeartbeatInterval time.Duration
	FlushInterval     time.Duration
	PreviewLength     int
	CommandBuffer     int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 30 * time.Second,
		FlushInterval:     time.Minute,
		PreviewLength:     defaultPreviewLength,
		CommandBuffer:     256,
	}
}

type handlerFunc func(s *Session, env proto.Envelope)

// Hub is the single dispatcher of the chat core. Every connection event and
// timer tick is processed on the goroutine running Run, so room membership,
// history and session state never see interleaved mutations.
type Hub struct {
	opts        Options
	proto       *proto.Protocol
	rooms       *RoomRegistry
	sessions    *SessionRegistry
	history     *HistoryStore
	broadcaster *Broadcaster
	enc         encoder
	handlers    map[string]handlerFunc
	log         *zerolog.Logger
	now         func() time.Time

	commands chan Command
	done     chan struct{}
}

// NewHub creates a hub. history may be nil for a memory-only hub.
func NewHub(p *proto.Protocol, history *HistoryStore, opts Options, logger *zerolog.Logger) *Hub {
	defaults := DefaultOptions()
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaults.FlushInterval
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = defaults.CommandBuffer
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if history == nil {
		history = NewHistoryStore(nil, DefaultHistoryOptions(), logger)
	}

	rooms := NewRoomRegistry(logger)
	sessions := NewSessionRegistry()
	h := &Hub{
		opts:        opts,
		proto:       p,
		rooms:       rooms,
		sessions:    sessions,
		history:     history,
		broadcaster: NewBroadcaster(rooms, sessions, p, opts.PreviewLength, logger),
		enc:         encoder{proto: p, log: logger},
		log:         logger,
		now:         time.Now,
		commands:    make(chan Command, opts.CommandBuffer),
		done:        make(chan struct{}),
	}
	h.handlers = map[string]handlerFunc{
		proto.TypeConnect:           h.handleConnect,
		proto.TypeCreateRoom:        h.handleCreateRoom,
		proto.TypeJoinRoom:          h.handleJoinRoom,
		proto.TypeMessage:           h.handleMessage,
		proto.TypeLeaveRoom:         h.handleLeaveRoom,
		proto.TypeGetRooms:          h.handleGetRooms,
		proto.TypeAddParticipants:   h.handleAddParticipants,
		proto.TypeRemoveParticipant: h.handleRemoveParticipant,
	}
	return h
}

// Run processes commands and timers until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(h.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	flush := time.NewTicker(h.opts.FlushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case cmd := <-h.commands:
			h.handle(cmd)
		case <-heartbeat.C:
			h.sweep()
		case <-flush.C:
			h.history.FlushAll()
		}
	}
}

// Wait blocks until Run has returned.
func (h *Hub) Wait() {
	<-h.done
}

// Connect registers a transport under sessionID, which the caller picks so
// the transport knows its id before the first probe.
func (h *Hub) Connect(sessionID string, conn Conn) {
	h.submit(Command{Kind: CommandConnect, SessionID: sessionID, Conn: conn})
}

// Receive queues a raw client frame.
func (h *Hub) Receive(sessionID string, data []byte) {
	h.submit(Command{Kind: CommandInbound, SessionID: sessionID, Data: data})
}

// Disconnect reports that the transport of a session is gone.
func (h *Hub) Disconnect(sessionID string) {
	h.submit(Command{Kind: CommandDisconnect, SessionID: sessionID})
}

// Pong reports a successful liveness probe.
func (h *Hub) Pong(sessionID string) {
	h.submit(Command{Kind: CommandPong, SessionID: sessionID})
}

// Protocol returns the protocol table the hub validates against.
func (h *Hub) Protocol() *proto.Protocol {
	return h.proto
}

// RoomsForMobile answers read-only queries outside the hub goroutine.
func (h *Hub) RoomsForMobile(mobile string) []Room {
	return h.rooms.RoomsForMobile(mobile)
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	return h.sessions.Len()
}

func (h *Hub) submit(cmd Command) {
	select {
	case h.commands <- cmd:
	case <-h.done:
	}
}

func (h *Hub) handle(cmd Command) {
	switch cmd.Kind {
	case CommandConnect:
		s := NewSession(cmd.SessionID, cmd.Conn)
		if !h.sessions.Add(s) {
			h.log.Error().Str("session_id", cmd.SessionID).Msg("duplicate session id")
			cmd.Conn.Close("duplicate session")
			return
		}
		metrics.SessionsActive.Set(float64(h.sessions.Len()))
		h.log.Debug().Str("session_id", s.ID).Msg("session connected")
	case CommandInbound:
		s, ok := h.sessions.Get(cmd.SessionID)
		if !ok {
			return
		}
		h.dispatch(s, cmd.Data)
	case CommandDisconnect:
		s, ok := h.sessions.Get(cmd.SessionID)
		if !ok {
			return
		}
		h.closeSession(s, "connection closed", true)
	case CommandPong:
		if s, ok := h.sessions.Get(cmd.SessionID); ok {
			s.alive = true
		}
	}
}

func (h *Hub) dispatch(s *Session, data []byte) {
	env, perr := h.proto.Validate(data)
	if perr != nil {
		h.sendError(s, coreError(perr.Code, perr.Msg))
		return
	}
	handler, ok := h.handlers[env.Type]
	if !ok {
		// declared in the protocol table but not implemented here
		h.sendError(s, errInvalidMessage("unsupported message type"))
		return
	}
	handler(s, env)
}

// closeSession removes s from the registry. When graceful and the session
// was in a room, the room is told that the user left. Removal happens once;
// later calls for the same session are no-ops.
func (h *Hub) closeSession(s *Session, reason string, graceful bool) {
	if _, removed := h.sessions.Remove(s.ID); !removed {
		return
	}
	if graceful && s.RoomID != "" {
		h.leaveRoom(s)
	}
	s.close(reason)
	metrics.SessionsActive.Set(float64(h.sessions.Len()))
	h.log.Debug().Str("session_id", s.ID).Str("reason", reason).Msg("session closed")
}

func (h *Hub) shutdown() {
	for _, s := range h.sessions.Snapshot() {
		h.sessions.Remove(s.ID)
		s.close("server shutting down")
	}
	metrics.SessionsActive.Set(0)
	close(h.done)
	h.log.Info().Msg("hub stopped")
}

func (h *Hub) send(s *Session, kind proto.SystemKind, data map[string]any) {
	frame := h.enc.frame(kind, data)
	if frame == nil {
		return
	}
	if err := s.Send(frame); err != nil {
		metrics.SendFailures.Inc()
		h.log.Debug().Err(err).Str("session_id", s.ID).Msg("send failed")
	}
}

func (h *Hub) sendError(s *Session, err *CoreError) {
	metrics.ProtocolErrors.WithLabelValues(err.Code).Inc()
	h.send(s, proto.KindError, map[string]any{"code": err.Code, "message": err.Message})
}
