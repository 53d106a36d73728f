// Package guard provides per-thread mutual exclusion around replying.
package guard

import (
	"context"
	"sync"

	"llama-bot/types"
)

// Locker grants exclusive reply rights for a thread. ok is false when another
// holder has the thread; release must be called once the reply is done.
type Locker interface {
	TryLock(ctx context.Context, id types.ThreadID) (release func(), ok bool, err error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[types.ThreadID]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[types.ThreadID]struct{})}
}

func (m *Memory) TryLock(ctx context.Context, id types.ThreadID) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[id]; busy {
		return nil, false, nil
	}
	m.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, id)
			m.mu.Unlock()
		})
	}, true, nil
}
