// Package checkpoint defines the Store contract for persisting immutable
// execution snapshots, plus the Checkpoint value itself.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Load for an unknown (session, checkpoint) pair.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrSessionIDEmpty is returned when a caller omits the session id.
	ErrSessionIDEmpty = errors.New("checkpoint: session id is empty")
)

// Checkpoint is an immutable, persisted snapshot of execution state. Once
// written it is never mutated; restoring from it resets current node and
// visit counts to the snapshot.
type Checkpoint struct {
	CheckpointID              string         `json:"checkpoint_id"`
	SessionID                 string         `json:"session_id"`
	ExecutionID               string         `json:"execution_id"`
	CreatedAt                 time.Time      `json:"created_at"`
	SharedStateSnapshot       map[string]any `json:"shared_state_snapshot"`
	NodeConversationsSnapshot map[string]any `json:"node_conversations_snapshot"`
	CurrentNode               string         `json:"current_node"`
	VisitCounts               map[string]int `json:"visit_counts"`
}

// Store persists Checkpoints per session to durable storage, indexed by
// (session_id, checkpoint_id). Implementations must serialize operations
// per session and write atomically.
type Store interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, sessionID, checkpointID string) (Checkpoint, error)
	// List returns checkpoints for sessionID in creation order.
	List(ctx context.Context, sessionID string) ([]Checkpoint, error)
	// Evict removes checkpoints older than ttl, if ttl > 0. Implementations
	// with no eviction policy configured may treat this as a no-op.
	Evict(ctx context.Context, sessionID string, ttl time.Duration) error
}
