package core

import "testing"

func TestSweepEvictsAfterTwoMissedProbes(t *testing.T) {
	h := newTestHub(t)
	c := connect(h, "s1")

	h.sweep()
	if c.probes != 1 || c.isClosed() {
		t.Fatalf("first sweep should probe only: probes=%d closed=%v", c.probes, c.isClosed())
	}
	if h.SessionCount() != 1 {
		t.Fatal("session should survive the first sweep")
	}

	h.sweep()
	if !c.isClosed() {
		t.Fatal("session should be closed after a missed probe")
	}
	if h.SessionCount() != 0 {
		t.Fatalf("expected no sessions, got %d", h.SessionCount())
	}
}

func TestSweepKeepsSessionThatAnswered(t *testing.T) {
	h := newTestHub(t)
	c := connect(h, "s1")

	for i := 0; i < 3; i++ {
		h.sweep()
		h.handle(Command{Kind: CommandPong, SessionID: "s1"})
	}
	if c.isClosed() || h.SessionCount() != 1 {
		t.Fatalf("responsive session was evicted: closed=%v count=%d", c.isClosed(), h.SessionCount())
	}
	if c.probes != 3 {
		t.Fatalf("expected 3 probes, got %d", c.probes)
	}
}

func TestEvictionIsSilentAndDisconnectIsNoop(t *testing.T) {
	h := newTestHub(t)
	alice := connect(h, "s1")
	bob := connect(h, "s2")

	inbound(t, h, "s1", map[string]any{"type": "create_room", "mobile": "+100", "participants": []string{"+200"}})
	roomID := mustFrame(t, alice, "room_created")["roomId"].(string)
	inbound(t, h, "s2", map[string]any{"type": "join_room", "roomId": roomID, "mobile": "+200"})
	mustFrame(t, alice, "system")

	// only bob keeps answering
	h.sweep()
	h.handle(Command{Kind: CommandPong, SessionID: "s2"})
	h.sweep()

	if !alice.isClosed() {
		t.Fatal("alice should have been evicted")
	}
	before := len(bob.all("system"))
	h.handle(Command{Kind: CommandDisconnect, SessionID: "s1"})
	if after := len(bob.all("system")); after != before {
		t.Fatalf("eviction and late disconnect must not announce: before=%d after=%d", before, after)
	}
}
