package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"gitlab.com/secp/services/codecollab/cmd/execution-service/internal/sandbox"
	"gitlab.com/secp/services/codecollab/internal/events"
	"gitlab.com/secp/services/codecollab/internal/queue"
	"gitlab.com/secp/services/codecollab/internal/rooms"
)

func echoDocker(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho ran\n"), 0o755))
	return path
}

func newTestService(t *testing.T) (*Service, *events.MemoryBus, *rooms.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	runner := sandbox.NewRunner(sandbox.Config{
		HostDir:      t.TempDir(),
		DockerBinary: echoDocker(t),
		Timeout:      5 * time.Second,
	})
	bus := events.NewMemoryBus()
	store := rooms.NewStore(rdb)
	return New(runner, bus, store), bus, store
}

func TestHandle_PublishesExactlyOneResult(t *testing.T) {
	svc, bus, store := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)

	results, err := bus.Subscribe(ctx, events.ExecutionResultPattern)
	require.NoError(t, err)

	q := queue.NewMemoryQueue(1)
	require.NoError(t, q.Submit(ctx, queue.Submission{
		Code: "print(input())", Language: "python", Input: "5", RoomID: "r1",
	}))
	jobs, err := q.Consume(ctx)
	require.NoError(t, err)
	job := <-jobs

	svc.Handle(ctx, job)

	select {
	case d := <-results:
		require.Equal(t, "execution:result:r1", d.Channel)
		require.Equal(t, events.ExecutionResult, d.Envelope.Message.Event)
		require.Equal(t, "r1", d.Envelope.Message.RoomID)
		require.NotNil(t, d.Envelope.Output)
		require.Contains(t, *d.Envelope.Output, "ran")
	case <-time.After(2 * time.Second):
		t.Fatal("no execution result published")
	}

	select {
	case d := <-results:
		t.Fatalf("second result published on %s", d.Channel)
	case <-time.After(100 * time.Millisecond):
	}

	// The room's output buffer carries the last result for late joiners.
	room, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.Contains(t, room.Output, "ran")
}

func TestHandle_UnsupportedLanguageStillReportsResult(t *testing.T) {
	svc, bus, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := bus.Subscribe(ctx, events.ExecutionResultPattern)
	require.NoError(t, err)

	svc.Handle(ctx, queue.Job{Submission: queue.Submission{
		Code: "puts 1", Language: "ruby", RoomID: "r1",
	}})

	select {
	case d := <-results:
		require.Contains(t, *d.Envelope.Output, "Execution failed")
		require.Contains(t, *d.Envelope.Output, "unsupported language")
	case <-time.After(2 * time.Second):
		t.Fatal("no result for failed submission")
	}
}

func TestHandle_VanishedRoomStillPublishes(t *testing.T) {
	svc, bus, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := bus.Subscribe(ctx, events.ExecutionResultPattern)
	require.NoError(t, err)

	// Everyone left mid-run: the room is gone, but the result must still be
	// published for any client that reconnects.
	svc.Handle(ctx, queue.Job{Submission: queue.Submission{
		Code: "print(1)", Language: "python", RoomID: "ghost",
	}})

	select {
	case d := <-results:
		require.Equal(t, "execution:result:ghost", d.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("no result published for vanished room")
	}
}
