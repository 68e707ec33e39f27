package conversations

import (
	"context"
	"sync"

	"github.com/askscout/agent/internal/agent/model"
	logx "github.com/askscout/agent/pkg/logger"
	"github.com/cloudwego/eino/schema"
)

// Manager mediates all checkpoint access for the graph: loading history at
// the start of a run, persisting the full log at the end, and serializing
// runs per thread so two concurrent invocations of the same thread cannot
// race on the checkpoint (lost-update hazard). Distinct threads run in
// parallel without coordination.
type Manager struct {
	store model.CheckpointStore
	locks keyedMutex
}

func NewManager(store model.CheckpointStore) *Manager {
	return &Manager{store: store}
}

// Lock blocks until the thread's lock is held and returns the unlock func.
// Held for the full duration of one invocation.
func (m *Manager) Lock(threadID string) func() {
	return m.locks.Lock(threadID)
}

// LoadHistory returns the checkpointed message log for a thread, empty when
// the thread is new.
func (m *Manager) LoadHistory(ctx context.Context, threadID string) ([]*schema.Message, error) {
	state, err := m.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	logx.Debug().Str("thread_id", threadID).Int("messages", len(state.Messages)).Msg("loaded thread history")
	return state.Messages, nil
}

// Persist atomically overwrites the thread's checkpoint with the full log.
// Called exactly once per successful invocation; failed runs never reach it,
// so the previous checkpoint survives intact.
func (m *Manager) Persist(ctx context.Context, threadID string, messages []*schema.Message) error {
	if err := m.store.Save(ctx, threadID, messages); err != nil {
		return err
	}
	logx.Debug().Str("thread_id", threadID).Int("messages", len(messages)).Msg("persisted thread checkpoint")
	return nil
}

// Clear drops the thread's checkpoint, equivalent to starting fresh.
func (m *Manager) Clear(ctx context.Context, threadID string) error {
	return m.store.Clear(ctx, threadID)
}

// MessageCount reports the size of the checkpointed log.
func (m *Manager) MessageCount(ctx context.Context, threadID string) (int, error) {
	return m.store.MessageCount(ctx, threadID)
}

// keyedMutex provides one mutex per key, created on demand and dropped when
// the last holder releases it.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*lockEntry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
