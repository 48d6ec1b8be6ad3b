package core

import (
	"context"
	"testing"
	"time"
)

func TestHubRoomScenario(t *testing.T) {
	h := newTestHub(t)
	alice := connect(h, "s1")
	bob := connect(h, "s2")
	carol := connect(h, "s3")

	inbound(t, h, "s1", map[string]any{"type": "connect", "mobile": "+100", "username": "alice"})
	welcome := mustFrame(t, alice, "notification")
	if welcome["protocolVersion"] == "" || welcome["userId"] == "" {
		t.Fatalf("welcome frame incomplete: %v", welcome)
	}
	mustFrame(t, alice, "rooms_list")

	inbound(t, h, "s1", map[string]any{"type": "create_room", "mobile": "+100", "participants": []string{"+100", "+200"}})
	created := mustFrame(t, alice, "room_created")
	roomID, _ := created["roomId"].(string)
	room, _ := created["room"].(map[string]any)
	if roomID == "" || room["participantsCount"] != float64(2) {
		t.Fatalf("unexpected room_created frame: %v", created)
	}

	inbound(t, h, "s2", map[string]any{"type": "join_room", "roomId": roomID, "mobile": "+200", "username": "bob"})
	history := mustFrame(t, bob, "history")
	msgs, ok := history["messages"].([]any)
	if !ok || len(msgs) != 0 {
		t.Fatalf("expected an empty history array for a new room, got %v", history["messages"])
	}
	if joined := mustFrame(t, bob, "system"); joined["message"] != "bob joined" {
		t.Fatalf("unexpected system frame for bob: %v", joined)
	}
	if joined := mustFrame(t, alice, "system"); joined["message"] != "bob joined" {
		t.Fatalf("unexpected system frame for alice: %v", joined)
	}

	inbound(t, h, "s3", map[string]any{"type": "connect", "mobile": "+300"})
	inbound(t, h, "s1", map[string]any{"type": "message", "roomId": roomID, "username": "alice", "message": "hi"})

	got := mustFrame(t, bob, "message")
	if got["message"] != "hi" || got["username"] != "alice" {
		t.Fatalf("unexpected message frame: %v", got)
	}
	if len(alice.all("message")) != 0 {
		t.Fatal("sender must not get its own message back")
	}
	if len(carol.all("message")) != 0 || len(carol.all("message_notification")) != 0 {
		t.Fatal("carol has no access and must receive nothing")
	}

	// carol tries to join uninvited
	inbound(t, h, "s3", map[string]any{"type": "join_room", "roomId": roomID, "mobile": "+300"})
	if e := mustFrame(t, carol, "error"); e["code"] != "ACCESS_DENIED" {
		t.Fatalf("expected ACCESS_DENIED, got %v", e)
	}

	// once added, carol gets digests while away
	inbound(t, h, "s1", map[string]any{"type": "add_participants", "roomId": roomID, "mobile": "+100", "newParticipants": []string{"+300"}})
	if nr := mustFrame(t, carol, "new_room"); nr["room"] == nil {
		t.Fatalf("expected NEW_ROOM with room payload, got %v", nr)
	}
	inbound(t, h, "s2", map[string]any{"type": "message", "roomId": roomID, "username": "bob", "message": "welcome carol"})
	digest := mustFrame(t, carol, "message_notification")
	if digest["roomId"] != roomID {
		t.Fatalf("unexpected digest: %v", digest)
	}

	final := h.history.Entries(roomID)
	if len(final) != 4 {
		t.Fatalf("expected 4 history entries, got %d: %+v", len(final), final)
	}
	if final[0].Message != "bob joined" || final[2].Type != EntryTypeSystem || final[3].Message != "welcome carol" {
		t.Fatalf("unexpected history: %+v", final)
	}
}

func TestHubRejectsInvalidFramesWithoutMutation(t *testing.T) {
	h := newTestHub(t)
	c := connect(h, "s1")

	inbound(t, h, "s1", map[string]any{"type": "create_room", "mobile": "+100"})
	e := mustFrame(t, c, "error")
	if e["code"] != "INVALID_MESSAGE" || e["message"] != "missing required field: participants" {
		t.Fatalf("unexpected error: %v", e)
	}
	if h.rooms.Len() != 0 {
		t.Fatal("invalid frame must not create a room")
	}

	h.handle(Command{Kind: CommandInbound, SessionID: "s1", Data: []byte("not json")})
	if e := mustFrame(t, c, "error"); e["code"] != "INVALID_MESSAGE" {
		t.Fatalf("unexpected error: %v", e)
	}

	inbound(t, h, "s1", map[string]any{"type": "teleport"})
	if e := mustFrame(t, c, "error"); e["code"] != "INVALID_MESSAGE" {
		t.Fatalf("unexpected error: %v", e)
	}
}

func TestHubMobileRules(t *testing.T) {
	h := newTestHub(t)
	c := connect(h, "s1")

	inbound(t, h, "s1", map[string]any{"type": "connect", "mobile": "not-a-phone"})
	if e := mustFrame(t, c, "error"); e["code"] != "INVALID_MOBILE" {
		t.Fatalf("expected INVALID_MOBILE, got %v", e)
	}

	inbound(t, h, "s1", map[string]any{"type": "connect", "mobile": "+100"})
	mustFrame(t, c, "rooms_list")

	inbound(t, h, "s1", map[string]any{"type": "get_rooms", "mobile": "+200"})
	if e := mustFrame(t, c, "error"); e["code"] != "INVALID_MOBILE" {
		t.Fatalf("expected INVALID_MOBILE for a different mobile, got %v", e)
	}
}

func TestHubJoinUnknownRoom(t *testing.T) {
	h := newTestHub(t)
	c := connect(h, "s1")

	inbound(t, h, "s1", map[string]any{"type": "join_room", "roomId": "nope", "mobile": "+100"})
	if e := mustFrame(t, c, "error"); e["code"] != "ROOM_NOT_FOUND" {
		t.Fatalf("expected ROOM_NOT_FOUND, got %v", e)
	}
}

func TestHubLeaveAndDisconnectAnnounce(t *testing.T) {
	h := newTestHub(t)
	alice := connect(h, "s1")
	bob := connect(h, "s2")

	inbound(t, h, "s1", map[string]any{"type": "create_room", "mobile": "+100", "username": "alice", "participants": []string{"+200"}})
	roomID := mustFrame(t, alice, "room_created")["roomId"].(string)
	inbound(t, h, "s2", map[string]any{"type": "join_room", "roomId": roomID, "mobile": "+200", "username": "bob"})
	mustFrame(t, alice, "system")

	inbound(t, h, "s1", map[string]any{"type": "leave_room"})
	mustFrame(t, alice, "notification")
	if left := mustFrame(t, bob, "system"); left["message"] != "bob joined" {
		t.Fatalf("expected bob's own join first, got %v", left)
	}
	if left := mustFrame(t, bob, "system"); left["message"] != "alice left" {
		t.Fatalf("expected alice left, got %v", left)
	}

	inbound(t, h, "s1", map[string]any{"type": "leave_room"})
	if e := mustFrame(t, alice, "error"); e["code"] != "INVALID_MESSAGE" {
		t.Fatalf("leaving twice should fail, got %v", e)
	}

	inbound(t, h, "s1", map[string]any{"type": "join_room", "roomId": roomID, "mobile": "+100"})
	mustFrame(t, bob, "system")
	h.handle(Command{Kind: CommandDisconnect, SessionID: "s1"})
	if left := mustFrame(t, bob, "system"); left["message"] != "alice left" {
		t.Fatalf("expected alice left on disconnect, got %v", left)
	}
	h.handle(Command{Kind: CommandDisconnect, SessionID: "s1"})
	if n := len(bob.all("system")); n != 4 {
		t.Fatalf("second disconnect must be a no-op, got %d system frames", n)
	}
}

func TestHubRemoveParticipant(t *testing.T) {
	h := newTestHub(t)
	alice := connect(h, "s1")
	bob := connect(h, "s2")

	inbound(t, h, "s1", map[string]any{"type": "create_room", "mobile": "+100", "participants": []string{"+200"}})
	created := mustFrame(t, alice, "room_created")
	roomID := created["roomId"].(string)
	inbound(t, h, "s2", map[string]any{"type": "join_room", "roomId": roomID, "mobile": "+200"})

	room, _ := h.rooms.Get(roomID)
	var bobID string
	for _, p := range room.Participants {
		if p.Mobile == "+200" {
			bobID = p.ID
		}
	}

	inbound(t, h, "s1", map[string]any{"type": "remove_participant", "roomId": roomID, "mobile": "+100", "participantId": bobID})
	if n := mustFrame(t, bob, "notification"); n["message"] != "removed from room" {
		t.Fatalf("unexpected notification: %v", n)
	}

	inbound(t, h, "s2", map[string]any{"type": "message", "roomId": roomID, "username": "bob", "message": "still here?"})
	if e := mustFrame(t, bob, "error"); e["code"] != "ACCESS_DENIED" {
		t.Fatalf("expected ACCESS_DENIED after removal, got %v", e)
	}
	if rooms := h.RoomsForMobile("+200"); len(rooms) != 0 {
		t.Fatalf("removed mobile still lists rooms: %v", rooms)
	}
}

func TestHubRunProcessesCommandsUntilCancelled(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := &fakeConn{}
	id := "s1"
	h.Connect(id, c)
	h.Receive(id, raw(t, map[string]any{"type": "connect", "mobile": "+100"}))
	mustFrame(t, c, "rooms_list")

	cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if !c.isClosed() {
		t.Fatal("shutdown should close live sessions")
	}
	// submissions after shutdown must not block
	h.Disconnect(id)
}
