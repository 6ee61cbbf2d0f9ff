package transport

import (
	"errors"
	"testing"
)

func TestSessionManager(t *testing.T) {
	sm := NewSessionManager()
	a := &Session{id: "a"}
	b := &Session{id: "b"}

	sm.Add(a)
	sm.Add(b)
	sm.Add(a)
	if sm.Count() != 2 {
		t.Fatalf("Count = %d, want 2", sm.Count())
	}
	if got, ok := sm.Get("a"); !ok || got != a {
		t.Fatal("Get(a) failed")
	}
	if ids := sm.IDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("IDs = %v", ids)
	}

	if !sm.Remove("a") {
		t.Fatal("Remove(a) should report removal")
	}
	if sm.Remove("a") {
		t.Fatal("second Remove(a) should be a no-op")
	}
	if sm.Count() != 1 {
		t.Fatalf("Count = %d after remove, want 1", sm.Count())
	}

	cleared := sm.Clear()
	if len(cleared) != 1 || cleared[0] != b || sm.Count() != 0 {
		t.Fatalf("Clear returned %v, count %d", cleared, sm.Count())
	}
	if sm.Remove("b") {
		t.Fatal("Remove after Clear must not decrement again")
	}
	if sm.Count() != 0 {
		t.Fatalf("Count = %d, want 0", sm.Count())
	}
}

func TestTpErrorMatching(t *testing.T) {
	err := ErrSessionNotFound.WithContext("abc")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("error with context should match its sentinel")
	}
	if errors.Is(err, ErrNotConnected) {
		t.Fatal("different codes must not match")
	}
	if err.Error() != "Error 1004: Session not found (context: abc)" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
