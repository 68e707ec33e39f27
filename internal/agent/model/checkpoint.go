package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// CheckpointStore persists the message log of each conversation thread.
//
// Save replaces the entire log for the thread in one atomic operation; a
// checkpoint is therefore either the pre-invocation log or the complete
// post-invocation log, never a partial write. Load on an unknown thread
// returns an empty state, not an error.
type CheckpointStore interface {
	// Load retrieves the checkpointed state for a thread.
	Load(ctx context.Context, threadID string) (*ConversationState, error)

	// Save atomically overwrites the thread's checkpoint with the given log.
	Save(ctx context.Context, threadID string, messages []*schema.Message) error

	// Clear removes the checkpoint for a thread.
	Clear(ctx context.Context, threadID string) error

	// MessageCount returns the number of checkpointed messages for a thread.
	MessageCount(ctx context.Context, threadID string) (int, error)
}

// ConversationState is the checkpointed snapshot of one thread.
type ConversationState struct {
	ThreadID string
	Messages []*schema.Message
}
