package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/metrics"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/utils"
)

const (
	writeTimeout = 10 * time.Second
	pingTimeout  = 10 * time.Second

	// close frame payload is 125 bytes including the status code
	maxCloseReason = 123
)

var (
	errConnClosed      = errors.New("connection closed")
	errSendBufferFull  = errors.New("send buffer full")
	errClosedByHub     = errors.New("closed by hub")
	errBinaryFrameSent = errors.New("binary frames are not supported")
)

// WSHandler upgrades HTTP connections and bridges them to hub sessions.
type WSHandler struct {
	hub        *core.Hub
	log        *zerolog.Logger
	sendBuffer int
	readLimit  int64
	rateLimit  int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:        hub,
		log:        logger,
		sendBuffer: cfg.SendBuffer,
		readLimit:  cfg.MaxMessageBytes,
		rateLimit:  cfg.RateLimitPerMinute,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	wc := newWSConn(utils.NewID(), conn, h.hub, h.sendBuffer, h.log)
	h.hub.Connect(wc.id, wc)
	defer h.hub.Disconnect(wc.id)
	h.log.Debug().Str("session_id", wc.id).Str("remote", r.RemoteAddr).Msg("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	limiter := newRateLimiter(h.rateLimit)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, wc, limiter)
	}()
	go func() {
		errCh <- wc.writeLoop(ctx)
	}()

	err = <-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
	case errors.Is(err, errClosedByHub):
		status = websocket.StatusGoingAway
		reason = wc.closeReason()
	default:
		if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			break
		}
		status = websocket.StatusInternalError
		reason = err.Error()
		h.log.Warn().Err(err).Str("session_id", wc.id).Msg("ws connection closed with error")
	}
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}

	_ = conn.Close(status, reason)
	cancel()
	<-errCh
	h.log.Debug().Str("session_id", wc.id).Str("reason", reason).Msg("ws disconnected")
}

func (h *WSHandler) readLoop(ctx context.Context, wc *wsConn, limiter *rateLimiter) error {
	for {
		typ, data, err := wc.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			h.reject(wc, proto.CodeConnectionError, errBinaryFrameSent.Error())
			continue
		}
		if !limiter.allow() {
			h.reject(wc, proto.CodeInvalidMessage, "rate limit exceeded")
			continue
		}
		h.hub.Receive(wc.id, data)
	}
}

// reject answers a frame the hub never sees.
func (h *WSHandler) reject(wc *wsConn, code, msg string) {
	metrics.ProtocolErrors.WithLabelValues(code).Inc()
	frame, err := h.hub.Protocol().SystemMessage(proto.KindError, map[string]any{"code": code, "message": msg})
	if err != nil {
		h.log.Error().Err(err).Msg("cannot build error frame")
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error().Err(err).Msg("cannot marshal error frame")
		return
	}
	if err := wc.Send(data); err != nil {
		h.log.Debug().Err(err).Str("session_id", wc.id).Msg("failed to send error frame")
	}
}

// wsConn is the core.Conn of a websocket session. Frames go through a bounded
// queue drained by writeLoop; a full queue fails the send instead of blocking
// the hub.
type wsConn struct {
	id   string
	conn *websocket.Conn
	hub  *core.Hub
	log  *zerolog.Logger

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	once   sync.Once
	reason string
}

func newWSConn(id string, conn *websocket.Conn, hub *core.Hub, buffer int, logger *zerolog.Logger) *wsConn {
	if buffer <= 0 {
		buffer = 64
	}
	return &wsConn{
		id:   id,
		conn: conn,
		hub:  hub,
		log:  logger,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// Probe pings the peer and reports a pong to the hub. The ping needs the
// concurrent reader in readLoop to see the answer.
func (c *wsConn) Probe() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if err := c.conn.Ping(ctx); err != nil {
			c.log.Debug().Err(err).Str("session_id", c.id).Msg("ws ping failed")
			return
		}
		c.hub.Pong(c.id)
	}()
}

func (c *wsConn) Close(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *wsConn) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *wsConn) writeLoop(ctx context.Context) error {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(ctx, frame); err != nil {
				return err
			}
		case <-c.done:
			// deliver what the hub queued before closing
			for {
				select {
				case frame := <-c.send:
					if err := c.write(ctx, frame); err != nil {
						return err
					}
				default:
					return errClosedByHub
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *wsConn) write(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		c.log.Error().Err(err).Str("session_id", c.id).Msg("write ws frame")
		return err
	}
	return nil
}
