package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a hub after Close.
var ErrClosed = errors.New("realtime: hub closed")

// DefaultBuffer is the per-subscriber queue length of the Memory hub.
const DefaultBuffer = 64

type memSub struct {
	f      Filter
	ch     chan Change
	cancel context.CancelFunc
}

// Memory is an in-process Hub. Each subscriber has its own bounded queue and
// goroutine, so a slow handler never blocks Publish; when a queue is full the
// change is dropped for that subscriber and counted.
type Memory struct {
	mu     sync.RWMutex
	subs   map[*memSub]struct{}
	buffer int
	closed bool
}

// NewMemory returns an in-process hub. buffer <= 0 selects DefaultBuffer.
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Memory{subs: make(map[*memSub]struct{}), buffer: buffer}
}

// Publish queues c for every matching subscriber.
func (m *Memory) Publish(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	publishedTotal.WithLabelValues(c.Table, string(c.Event)).Inc()
	for s := range m.subs {
		if !s.f.Match(c) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			droppedTotal.WithLabelValues(c.Table).Inc()
		}
	}
	return nil
}

// Subscribe registers h for changes matching f.
func (m *Memory) Subscribe(ctx context.Context, f Filter, h Handler) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &memSub{f: f, ch: make(chan Change, m.buffer), cancel: cancel}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	sub := newSubscription(cancel)
	go func() {
		defer func() {
			m.remove(s)
			sub.Unsubscribe()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-s.ch:
				h(c)
			}
		}
	}()
	return sub, nil
}

// Subscribers returns the number of live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close stops every subscription. Later calls to Publish and Subscribe fail
// with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for s := range m.subs {
		s.cancel()
	}
	return nil
}

func (m *Memory) remove(s *memSub) {
	m.mu.Lock()
	delete(m.subs, s)
	m.mu.Unlock()
}
