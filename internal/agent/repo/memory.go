package repo

import (
	"context"
	"sync"

	"github.com/askscout/agent/internal/agent/model"
	"github.com/cloudwego/eino/schema"
)

// MemoryCheckpointStore keeps thread checkpoints in-process. This is the
// reference store: state lives for the lifetime of the process only.
type MemoryCheckpointStore struct {
	mu      sync.RWMutex
	threads map[string][]*schema.Message
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		threads: make(map[string][]*schema.Message),
	}
}

func (s *MemoryCheckpointStore) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.threads[threadID]
	// Copy so graph handlers appending to the returned slice never alias
	// the checkpointed log.
	msgs := make([]*schema.Message, len(stored))
	copy(msgs, stored)
	return &model.ConversationState{ThreadID: threadID, Messages: msgs}, nil
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, threadID string, messages []*schema.Message) error {
	snapshot := make([]*schema.Message, len(messages))
	copy(snapshot, messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = snapshot
	return nil
}

func (s *MemoryCheckpointStore) Clear(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

func (s *MemoryCheckpointStore) MessageCount(ctx context.Context, threadID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads[threadID]), nil
}

var _ model.CheckpointStore = (*MemoryCheckpointStore)(nil)
