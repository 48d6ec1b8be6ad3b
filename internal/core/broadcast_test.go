package core

import (
	"strings"
	"testing"
	"time"
)

type broadcastFixture struct {
	rooms    *RoomRegistry
	sessions *SessionRegistry
	b        *Broadcaster
}

func newBroadcastFixture(t *testing.T) *broadcastFixture {
	t.Helper()
	rooms := NewRoomRegistry(nil)
	sessions := NewSessionRegistry()
	return &broadcastFixture{
		rooms:    rooms,
		sessions: sessions,
		b:        NewBroadcaster(rooms, sessions, mustProtocol(t), 0, nil),
	}
}

func (f *broadcastFixture) session(id, mobile, roomID string) *fakeConn {
	c := &fakeConn{}
	s := NewSession(id, c)
	s.Mobile = mobile
	s.RoomID = roomID
	f.sessions.Add(s)
	return c
}

func TestDeliverFullDigestAndExclusion(t *testing.T) {
	f := newBroadcastFixture(t)
	room := f.rooms.CreateRoom(Participant{ID: "u1", Name: "alice", Mobile: "+100"},
		[]Participant{{Name: "bob", Mobile: "+200"}, {Name: "carol", Mobile: "+300"}}, "", "")
	other := f.rooms.CreateRoom(Participant{ID: "u4", Name: "dave", Mobile: "+400"}, nil, "", "")

	sender := f.session("s1", "+100", room.KeyName)
	bob := f.session("s2", "+200", room.KeyName)
	carol := f.session("s3", "+300", other.KeyName)
	dave := f.session("s4", "+400", room.KeyName)
	idle := f.session("s5", "", "")

	entry := HistoryEntry{Type: EntryTypeMessage, RoomID: room.KeyName, Username: "alice", Message: "hi", Timestamp: time.Now().UTC()}
	report := f.b.Deliver(room.KeyName, entry, "s1")

	if report.Full != 1 || report.Digests != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(sender.frames) != 0 {
		t.Fatalf("sender must not receive its own message: %v", sender.frames)
	}
	if msgs := bob.all("message"); len(msgs) != 1 || msgs[0]["message"] != "hi" {
		t.Fatalf("bob should get the full message: %v", bob.frames)
	}
	digests := carol.all("message_notification")
	if len(digests) != 1 || len(carol.frames) != 1 {
		t.Fatalf("carol should get exactly one digest: %v", carol.frames)
	}
	if digests[0]["roomId"] != room.KeyName {
		t.Fatalf("digest names the wrong room: %v", digests[0])
	}
	if len(dave.frames) != 0 {
		t.Fatalf("dave has no access and must receive nothing: %v", dave.frames)
	}
	if len(idle.frames) != 0 {
		t.Fatalf("unidentified session must receive nothing: %v", idle.frames)
	}
}

func TestDeliverSkipsSenderOutsideRoom(t *testing.T) {
	f := newBroadcastFixture(t)
	room := f.rooms.CreateRoom(Participant{ID: "u1", Name: "alice", Mobile: "+100"},
		[]Participant{{Name: "bob", Mobile: "+200"}}, "", "")
	elsewhere := f.rooms.CreateRoom(Participant{ID: "u1", Name: "alice", Mobile: "+100"}, nil, "", "")

	sender := f.session("s1", "+100", elsewhere.KeyName)
	bob := f.session("s2", "+200", "")

	entry := HistoryEntry{Type: EntryTypeMessage, RoomID: room.KeyName, Username: "alice", Message: "hi", Timestamp: time.Now().UTC()}
	report := f.b.Deliver(room.KeyName, entry, "s1")

	if report.Full != 0 || report.Digests != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(sender.frames) != 0 {
		t.Fatalf("sender must not get a digest of its own message: %v", sender.frames)
	}
	if len(bob.all("message_notification")) != 1 {
		t.Fatalf("bob should get a digest: %v", bob.frames)
	}
}

func TestDeliverContinuesAfterFailedSend(t *testing.T) {
	f := newBroadcastFixture(t)
	room := f.rooms.CreateRoom(Participant{ID: "u1", Name: "alice", Mobile: "+100"},
		[]Participant{{Mobile: "+200"}, {Mobile: "+300"}}, "", "")

	broken := f.session("s1", "+100", room.KeyName)
	broken.failSend = true
	f.session("s2", "+200", room.KeyName)
	f.session("s3", "+300", room.KeyName)

	entry := HistoryEntry{Type: EntryTypeMessage, RoomID: room.KeyName, Username: "x", Message: "hello"}
	report := f.b.Deliver(room.KeyName, entry, "")

	if report.Full != 2 || report.Failed != 1 {
		t.Fatalf("expected 2 delivered and 1 failed, got %+v", report)
	}
}

func TestDeliverUnknownRoomIsNoop(t *testing.T) {
	f := newBroadcastFixture(t)
	c := f.session("s1", "+100", "ghost")

	report := f.b.Deliver("ghost", HistoryEntry{RoomID: "ghost", Message: "boo"}, "")
	if report != (DeliveryReport{}) || len(c.frames) != 0 {
		t.Fatalf("expected nothing delivered, got %+v", report)
	}
}

func TestAnnounceSkipsDigests(t *testing.T) {
	f := newBroadcastFixture(t)
	room := f.rooms.CreateRoom(Participant{ID: "u1", Name: "alice", Mobile: "+100"},
		[]Participant{{Mobile: "+200"}}, "", "")

	in := f.session("s1", "+100", room.KeyName)
	away := f.session("s2", "+200", "")

	entry := HistoryEntry{Type: EntryTypeSystem, RoomID: room.KeyName, Username: SystemUsername, Message: "alice joined"}
	report := f.b.Announce(room.KeyName, entry, "")

	if report.Full != 1 || report.Digests != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(in.all("system")) != 1 {
		t.Fatalf("in-room session should get a system frame: %v", in.frames)
	}
	if len(away.frames) != 0 {
		t.Fatalf("out-of-room session should get nothing: %v", away.frames)
	}
}

func TestAnnounceRoomCreated(t *testing.T) {
	f := newBroadcastFixture(t)
	room := f.rooms.CreateRoom(Participant{ID: "u1", Name: "alice", Mobile: "+100"},
		[]Participant{{Mobile: "+200"}}, "", "")

	creator := f.session("s1", "+100", room.KeyName)
	invited := f.session("s2", "+200", "")
	stranger := f.session("s3", "+300", "")

	if sent := f.b.AnnounceRoomCreated(room, "s1"); sent != 1 {
		t.Fatalf("expected 1 NEW_ROOM, got %d", sent)
	}
	if len(creator.frames) != 0 || len(stranger.frames) != 0 {
		t.Fatal("only the invited participant should be told")
	}
	frames := invited.all("new_room")
	if len(frames) != 1 {
		t.Fatalf("expected NEW_ROOM frame, got %v", invited.frames)
	}
	r, _ := frames[0]["room"].(map[string]any)
	if r["keyName"] != room.KeyName {
		t.Fatalf("unexpected room payload: %v", frames[0])
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 50, "short"},
		{strings.Repeat("a", 50), 50, strings.Repeat("a", 50)},
		{strings.Repeat("a", 60), 50, strings.Repeat("a", 50) + "..."},
		{"привет мир", 6, "привет..."},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := preview(tt.in, tt.n); got != tt.want {
			t.Errorf("preview(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
