package queue

import (
	"context"
	"errors"
)

// ErrQueueFull is returned when an enqueue would block on a full buffer.
var ErrQueueFull = errors.New("execution queue is full")

// MemoryQueue is an in-process queue for single-binary deployments and
// tests. It keeps the competing-consumers contract: each submission is
// received by exactly one consumer.
type MemoryQueue struct {
	jobs chan Submission
}

// NewMemoryQueue creates a queue buffering up to size submissions.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{jobs: make(chan Submission, size)}
}

// Submit implements Queue.
func (q *MemoryQueue) Submit(_ context.Context, sub Submission) error {
	select {
	case q.jobs <- sub:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume implements Consumer.
func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Job, error) {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case sub := <-q.jobs:
				select {
				case out <- Job{Submission: sub}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
