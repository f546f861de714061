package session

import (
	"errors"
	"sort"
	"testing"
	"time"
)

func TestSessions_CreateJoinFull(t *testing.T) {
	s := NewSessions()
	now := time.Unix(1000, 0)
	created := s.Create("ABC123", "host", now)
	if created.Host != "host" || len(created.Members) != 1 || created.Members[0] != "host" {
		t.Fatalf("Create=%+v", created)
	}
	if !created.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt=%v, want %v", created.CreatedAt, now)
	}

	hostID, err := s.Join("ABC123", "guest")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if hostID != "host" {
		t.Fatalf("hostID=%q, want host", hostID)
	}

	if _, err := s.Join("ABC123", "third"); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("third Join err=%v, want ErrSessionFull", err)
	}
	got, _ := s.Get("ABC123")
	if len(got.Members) != 2 || got.Members[0] != "host" || got.Members[1] != "guest" {
		t.Fatalf("Members=%v, want [host guest]", got.Members)
	}
}

func TestSessions_JoinUnknown(t *testing.T) {
	s := NewSessions()
	if _, err := s.Join("NOPE00", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err=%v, want ErrSessionNotFound", err)
	}
}

func TestSessions_CreateOverwritesSameCode(t *testing.T) {
	s := NewSessions()
	s.Create("ABC123", "first", time.Unix(1, 0))
	s.Join("ABC123", "guest")
	s.Create("ABC123", "second", time.Unix(2, 0))

	got, ok := s.Get("ABC123")
	if !ok {
		t.Fatalf("session missing after overwrite")
	}
	if got.Host != "second" || len(got.Members) != 1 || got.Members[0] != "second" {
		t.Fatalf("got=%+v, want only second", got)
	}
	if s.Len() != 1 {
		t.Fatalf("Len=%d, want 1", s.Len())
	}
}

func TestSessions_RemoveMember(t *testing.T) {
	s := NewSessions()
	s.Create("ABC123", "host", time.Unix(1, 0))
	s.Join("ABC123", "guest")

	after, ok := s.RemoveMember("ABC123", "host")
	if !ok {
		t.Fatalf("RemoveMember returned ok=false")
	}
	if len(after.Members) != 1 || after.Members[0] != "guest" {
		t.Fatalf("Members=%v, want [guest]", after.Members)
	}
	if after.Host != "host" {
		t.Fatalf("Host=%q, want host to be kept", after.Host)
	}

	after, _ = s.RemoveMember("ABC123", "guest")
	if len(after.Members) != 0 {
		t.Fatalf("Members=%v, want empty", after.Members)
	}
	if _, ok := s.Get("ABC123"); !ok {
		t.Fatalf("RemoveMember must not delete the session")
	}
	if _, ok := s.RemoveMember("MISSING", "x"); ok {
		t.Fatalf("RemoveMember on unknown code returned ok=true")
	}
}

func TestSessions_RemoveMemberDropsEveryOccurrence(t *testing.T) {
	s := NewSessions()
	s.Create("ABC123", "host", time.Unix(1, 0))
	s.Join("ABC123", "host")

	after, _ := s.RemoveMember("ABC123", "host")
	if len(after.Members) != 0 {
		t.Fatalf("Members=%v, want empty", after.Members)
	}
}

func TestSessions_SnapshotsAreIsolated(t *testing.T) {
	s := NewSessions()
	snap := s.Create("ABC123", "host", time.Unix(1, 0))
	snap.Members[0] = "mutated"
	got, _ := s.Get("ABC123")
	if got.Members[0] != "host" {
		t.Fatalf("registry mutated through snapshot: %v", got.Members)
	}
}

func TestSessions_DeleteAndSweep(t *testing.T) {
	s := NewSessions()
	s.Create("AAAAAA", "a", time.Unix(1, 0))
	s.Create("BBBBBB", "b", time.Unix(2, 0))
	s.Create("CCCCCC", "c", time.Unix(3, 0))

	if !s.Delete("AAAAAA") {
		t.Fatalf("Delete returned false")
	}
	if s.Delete("AAAAAA") {
		t.Fatalf("second Delete returned true")
	}

	evicted := s.Sweep(func(sess Session) bool { return sess.Host != "b" })
	sort.Strings(evicted)
	if len(evicted) != 1 || evicted[0] != "CCCCCC" {
		t.Fatalf("evicted=%v, want [CCCCCC]", evicted)
	}
	if s.Len() != 1 {
		t.Fatalf("Len=%d, want 1", s.Len())
	}
}

func TestSession_Peer(t *testing.T) {
	sess := Session{Members: []string{"a", "b"}}
	if p, ok := sess.Peer("a"); !ok || p != "b" {
		t.Fatalf("Peer(a)=%q,%v", p, ok)
	}
	if p, ok := sess.Peer("b"); !ok || p != "a" {
		t.Fatalf("Peer(b)=%q,%v", p, ok)
	}
	lone := Session{Members: []string{"a"}}
	if _, ok := lone.Peer("a"); ok {
		t.Fatalf("lone Peer returned ok=true")
	}
	// A sender that is no longer a member still reaches the first member.
	if p, ok := lone.Peer("x"); !ok || p != "a" {
		t.Fatalf("Peer(x)=%q,%v", p, ok)
	}
}
