package events

import (
	"context"
	"path"
	"sync"
)

// MemoryBus is an in-process Bus with the same channel/pattern addressing as
// RedisBus. It serves single-instance deployments and tests; swapping it for
// RedisBus is a wiring change only.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[*memorySub]struct{}
}

type memorySub struct {
	patterns []string
	out      chan Delivery
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySub]struct{})}
}

// Publish implements Bus. Subscribers that cannot keep up are skipped rather
// than blocked; the bus promises at most one delivery, not a backlog.
func (b *MemoryBus) Publish(_ context.Context, channel string, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if !sub.matches(channel) {
			continue
		}
		select {
		case sub.out <- Delivery{Channel: channel, Envelope: env}:
		default:
		}
	}
	return nil
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(ctx context.Context, patterns ...string) (<-chan Delivery, error) {
	sub := &memorySub{
		patterns: patterns,
		out:      make(chan Delivery, 64),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		close(sub.out)
	}()
	return sub.out, nil
}

func (s *memorySub) matches(channel string) bool {
	for _, p := range s.patterns {
		if ok, _ := path.Match(p, channel); ok {
			return true
		}
	}
	return false
}
