package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

var errConnClosed = errors.New("conn closed")

type fakeConn struct {
	mu       sync.Mutex
	frames   []map[string]any
	read     int
	probes   int
	closed   bool
	reason   string
	failSend bool
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failSend {
		return errConnClosed
	}
	var msg map[string]any
	if err := json.Unmarshal(frame, &msg); err != nil {
		return err
	}
	c.frames = append(c.frames, msg)
	return nil
}

func (c *fakeConn) Probe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes++
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reason = reason
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// all returns every frame received so far of the given type.
func (c *fakeConn) all(frameType string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		if f["type"] == frameType {
			out = append(out, f)
		}
	}
	return out
}

// next consumes frames until one of the given type shows up.
func (c *fakeConn) next(frameType string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.read < len(c.frames) {
		f := c.frames[c.read]
		c.read++
		if f["type"] == frameType {
			return f
		}
	}
	return nil
}

func mustFrame(t *testing.T, c *fakeConn, frameType string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f := c.next(frameType); f != nil {
			return f
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected frame of type %q not received", frameType)
	return nil
}

func mustProtocol(t *testing.T) *proto.Protocol {
	t.Helper()
	p, err := proto.Default()
	if err != nil {
		t.Fatalf("load protocol: %v", err)
	}
	return p
}

func raw(t *testing.T, v map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// newTestHub returns a hub that is not running; tests drive it through
// handle and sweep on the test goroutine.
func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(mustProtocol(t), nil, DefaultOptions(), nil)
}

func connect(h *Hub, id string) *fakeConn {
	c := &fakeConn{}
	h.handle(Command{Kind: CommandConnect, SessionID: id, Conn: c})
	return c
}

func inbound(t *testing.T, h *Hub, id string, msg map[string]any) {
	t.Helper()
	h.handle(Command{Kind: CommandInbound, SessionID: id, Data: raw(t, msg)})
}
