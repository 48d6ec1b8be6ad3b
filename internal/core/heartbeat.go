package core

import "github.com/vovakirdan/wirechat-rooms/internal/metrics"

// sweep probes every session. A session still marked not-alive from the
// previous sweep is evicted without a leave announcement; everyone else is
// marked not-alive and probed. A session therefore has to miss two
// consecutive probes before it is dropped.
func (h *Hub) sweep() {
	for _, s := range h.sessions.Snapshot() {
		if !s.alive {
			h.log.Info().Str("session_id", s.ID).Str("mobile", s.Mobile).Msg("heartbeat timeout, evicting session")
			h.closeSession(s, "heartbeat timeout", false)
			metrics.HeartbeatEvictions.Inc()
			continue
		}
		s.alive = false
		s.conn.Probe()
	}
}
