package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_SubmitThenConsume(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := Submission{
		Code:     "print(input())",
		Language: "python",
		Input:    "5",
		RoomID:   "r1",
	}
	require.NoError(t, q.Submit(ctx, sub))

	jobs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case job := <-jobs:
		require.Equal(t, sub, job.Submission)
		require.NoError(t, job.Ack())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job")
	}
}

func TestMemoryQueue_EachJobGoesToOneConsumer(t *testing.T) {
	q := NewMemoryQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, q.Submit(ctx, Submission{RoomID: "r1", Language: "python"}))
	}

	jobsA, err := q.Consume(ctx)
	require.NoError(t, err)
	jobsB, err := q.Consume(ctx)
	require.NoError(t, err)

	received := 0
	deadline := time.After(2 * time.Second)
	for received < n {
		select {
		case <-jobsA:
			received++
		case <-jobsB:
			received++
		case <-deadline:
			t.Fatalf("received %d of %d jobs", received, n)
		}
	}

	// Nothing left over: every submission was delivered exactly once.
	select {
	case <-jobsA:
		t.Fatal("unexpected extra job")
	case <-jobsB:
		t.Fatal("unexpected extra job")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryQueue_FullBufferRejects(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, Submission{RoomID: "r1"}))
	require.ErrorIs(t, q.Submit(ctx, Submission{RoomID: "r2"}), ErrQueueFull)
}
