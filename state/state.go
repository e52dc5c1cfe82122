// Package state implements SharedState: a per-session key/value map with a
// configurable isolation policy and change notifications over an
// eventbus.Bus.
package state

import (
	"sync"

	"github.com/hiveagent/hive/eventbus"
)

// Isolation selects how writes from different executions within one session
// are visible to reads from other executions.
type Isolation string

const (
	// Isolated: each execution sees only keys it has itself written.
	Isolated Isolation = "ISOLATED"
	// Shared: every execution in the session sees every key. Default.
	Shared Isolation = "SHARED"
	// Synchronized: shared, but writes to one key are serialized by a
	// per-key lock held for the duration of each Set call. The lock is not
	// held across a node's run, so two nodes can interleave their writes.
	Synchronized Isolation = "SYNCHRONIZED"
)

type entry struct {
	value      any
	writerExec string
}

// SharedState is one session's key/value store. All operations are safe
// under concurrent access: a single read-write lock guards the map, and
// change notifications are published after the lock is released.
type SharedState struct {
	isolation Isolation
	bus       *eventbus.Bus

	mu       sync.RWMutex
	entries  map[string]entry
	keyLocks map[string]*sync.Mutex
	locksMu  sync.Mutex
}

// New creates a SharedState with the given isolation policy, publishing
// state_changed events on bus.
func New(isolation Isolation, bus *eventbus.Bus) *SharedState {
	if isolation == "" {
		isolation = Shared
	}
	return &SharedState{
		isolation: isolation,
		bus:       bus,
		entries:   make(map[string]entry),
		keyLocks:  make(map[string]*sync.Mutex),
	}
}

// Get reads key with no execution scope, so the ISOLATED filter is not
// applied (use GetFor for that). It implements graph.StateReader.
func (s *SharedState) Get(key string) (any, bool) {
	return s.GetFor("", key)
}

// GetFor reads key as seen by execID under the configured isolation policy.
// Under ISOLATED, a read for a key written by a different execution (or not
// written at all) returns "unset" (ok=false).
func (s *SharedState) GetFor(execID, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.isolation == Isolated && execID != "" && e.writerExec != "" && e.writerExec != execID {
		return nil, false
	}
	return e.value, true
}

// Set writes key=value on behalf of execID and emits state_changed with the
// old and new value. Under SYNCHRONIZED, the write is serialized by a
// per-key lock held only while this call runs; the lock is not exported.
// Set is always atomic with respect to other Set/Delete calls.
func (s *SharedState) Set(execID, key string, value any) {
	if s.isolation == Synchronized {
		s.lockKey(key)
		defer s.unlockKey(key)
	}

	s.mu.Lock()
	old, existed := s.entries[key]
	s.entries[key] = entry{value: value, writerExec: execID}
	s.mu.Unlock()

	if s.bus == nil {
		return
	}
	var oldValue any
	if existed {
		oldValue = old.value
	}
	s.bus.Publish(eventbus.Event{
		Type: eventbus.EventStateChanged,
		Data: map[string]any{
			"key": key,
			"old": oldValue,
			"new": value,
		},
	})
}

// Delete removes key, if present.
func (s *SharedState) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Snapshot returns an immutable copy of all keys and values, ignoring
// isolation (snapshots are session-wide by construction; callers wanting an
// execution-scoped view should filter by writer using WriterOf).
type Snapshot struct {
	Values  map[string]any
	writers map[string]string
}

// Snapshot captures the current state for checkpointing.
func (s *SharedState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make(map[string]any, len(s.entries))
	writers := make(map[string]string, len(s.entries))
	for k, e := range s.entries {
		values[k] = e.value
		writers[k] = e.writerExec
	}
	return Snapshot{Values: values, writers: writers}
}

// Restore replaces all entries with the contents of snap.
func (s *SharedState) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry, len(snap.Values))
	for k, v := range snap.Values {
		s.entries[k] = entry{value: v, writerExec: snap.writers[k]}
	}
}

// WriterOf reports which execution last wrote key, for ISOLATED reads.
func (s *SharedState) WriterOf(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e.writerExec, ok
}

func (s *SharedState) lockKey(key string) {
	s.locksMu.Lock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	s.locksMu.Unlock()
	l.Lock()
}

func (s *SharedState) unlockKey(key string) {
	s.locksMu.Lock()
	l := s.keyLocks[key]
	s.locksMu.Unlock()
	if l != nil {
		l.Unlock()
	}
}

// Isolation reports the configured isolation policy.
func (s *SharedState) Isolation() Isolation {
	return s.isolation
}
