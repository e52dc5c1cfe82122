package state

import "testing"

func TestSetGetRoundTrip(t *testing.T) {
	s := New(Shared, nil)
	s.Set("exec-1", "k", "v")
	v, ok := s.Get("k")
	if !ok || v != "v" {
		t.Fatalf("expected k=v, got %v ok=%v", v, ok)
	}
}

func TestIsolatedHidesOtherExecutionsWrites(t *testing.T) {
	s := New(Isolated, nil)
	s.Set("exec-1", "k", "v")

	if _, ok := s.GetFor("exec-2", "k"); ok {
		t.Fatal("expected exec-2 to see key k as unset under ISOLATED")
	}
	if v, ok := s.GetFor("exec-1", "k"); !ok || v != "v" {
		t.Fatalf("expected exec-1 to see its own write, got %v ok=%v", v, ok)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New(Shared, nil)
	s.Set("exec-1", "a", 1)
	s.Set("exec-1", "b", "two")

	snap := s.Snapshot()

	other := New(Shared, nil)
	other.Restore(snap)

	for _, key := range []string{"a", "b"} {
		want, _ := s.Get(key)
		got, ok := other.Get(key)
		if !ok || got != want {
			t.Fatalf("key %q: want %v got %v (ok=%v)", key, want, got, ok)
		}
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	s := New(Shared, nil)
	s.Set("exec-1", "k", "v")
	s.Delete("k")
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}
