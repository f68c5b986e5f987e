package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/gsplat/splatrt/rt/sorter"
)

// Mailbox holds the newest sort result until a render loop takes it. A result
// that was never taken is replaced by the next one and counted as dropped.
type Mailbox struct {
	mu     sync.Mutex
	res    *sorter.Result
	signal chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewMailbox() *Mailbox {
	return &Mailbox{signal: make(chan struct{}, 1)}
}

// SortResult stores res, overwriting any unconsumed result.
func (m *Mailbox) SortResult(res *sorter.Result) {
	m.mu.Lock()
	if m.res != nil {
		m.dropped.Add(1)
	}
	m.res = res
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Take returns the pending result, or nil. Never blocks.
func (m *Mailbox) Take() *sorter.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.res
	m.res = nil
	if res != nil {
		m.delivered.Add(1)
	}
	return res
}

// Wait blocks until a result is available or ctx is done.
func (m *Mailbox) Wait(ctx context.Context) (*sorter.Result, error) {
	for {
		if res := m.Take(); res != nil {
			return res, nil
		}
		select {
		case <-m.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Dropped is the number of results overwritten before anyone took them.
func (m *Mailbox) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Mailbox) Delivered() uint64 {
	return m.delivered.Load()
}
