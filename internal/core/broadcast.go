package core

import (
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/metrics"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

const defaultPreviewLength = 50

// DeliveryReport counts what a broadcast handed to transports.
type DeliveryReport struct {
	Full    int
	Digests int
	Failed  int
}

// Broadcaster resolves recipients for a room and sends each of them either
// the full message or a digest. Every send is independent; a failing
// transport never aborts the rest of the broadcast.
//
// Recipients are found by scanning all live sessions, which is linear in the
// number of connections per message.
type Broadcaster struct {
	rooms      *RoomRegistry
	sessions   *SessionRegistry
	enc        encoder
	previewLen int
	log        *zerolog.Logger
}

// NewBroadcaster wires a broadcaster to the registries.
func NewBroadcaster(rooms *RoomRegistry, sessions *SessionRegistry, p *proto.Protocol, previewLen int, logger *zerolog.Logger) *Broadcaster {
	if previewLen <= 0 {
		previewLen = defaultPreviewLength
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broadcaster{
		rooms:      rooms,
		sessions:   sessions,
		enc:        encoder{proto: p, log: logger},
		previewLen: previewLen,
		log:        logger,
	}
}

// Deliver sends entry in full to sessions currently in the room (except the
// excluded sender) and a digest to sessions with access that are elsewhere.
// An unknown room is silently dropped.
func (b *Broadcaster) Deliver(roomID string, entry HistoryEntry, excludeSessionID string) DeliveryReport {
	return b.deliver(roomID, entry, excludeSessionID, true)
}

// Announce sends entry in full to sessions in the room only. Used for system
// entries that are not worth a digest.
func (b *Broadcaster) Announce(roomID string, entry HistoryEntry, excludeSessionID string) DeliveryReport {
	return b.deliver(roomID, entry, excludeSessionID, false)
}

func (b *Broadcaster) deliver(roomID string, entry HistoryEntry, excludeSessionID string, digests bool) DeliveryReport {
	var report DeliveryReport

	room, ok := b.rooms.Get(roomID)
	if !ok {
		b.log.Debug().Str("room_id", roomID).Msg("deliver to unknown room dropped")
		return report
	}

	full := b.enc.frame(entryKind(entry), entryFields(entry))
	if full == nil {
		return report
	}
	var digest []byte
	if digests {
		digest = b.enc.frame(proto.KindMessageNotification, digestFields(entry, b.previewLen))
	}

	for _, s := range b.sessions.Snapshot() {
		if s.ID == excludeSessionID || !room.HasAccess(s.Mobile) {
			continue
		}
		switch {
		case s.RoomID == roomID:
			if b.send(s, full) {
				report.Full++
			} else {
				report.Failed++
			}
		case digest != nil:
			if b.send(s, digest) {
				report.Digests++
			} else {
				report.Failed++
			}
		}
	}

	metrics.FramesDelivered.WithLabelValues("full").Add(float64(report.Full))
	metrics.FramesDelivered.WithLabelValues("digest").Add(float64(report.Digests))
	return report
}

// AnnounceRoomCreated sends NEW_ROOM to every live session with access to
// room, whatever room they are in.
func (b *Broadcaster) AnnounceRoomCreated(room Room, excludeSessionID string) int {
	frame := b.enc.frame(proto.KindNewRoom, map[string]any{"room": room})
	if frame == nil {
		return 0
	}
	sent := 0
	for _, s := range b.sessions.Snapshot() {
		if s.ID == excludeSessionID || !room.HasAccess(s.Mobile) {
			continue
		}
		if b.send(s, frame) {
			sent++
		}
	}
	return sent
}

func (b *Broadcaster) send(s *Session, frame []byte) bool {
	if err := s.Send(frame); err != nil {
		metrics.SendFailures.Inc()
		b.log.Debug().Err(err).Str("session_id", s.ID).Msg("send failed, skipping recipient")
		return false
	}
	return true
}
