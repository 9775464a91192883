package rooms

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStoreWithRedis(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb), mr
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, _ := newTestStoreWithRedis(t)
	return store
}

func TestStore_JoinOrCreate_CreatesWithSoleMember(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	room, err := store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, room.ActiveUsers)
	require.Equal(t, LanguageJavaScript, room.Language)

	exists, err := store.Exists(ctx, "r1")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestStore_JoinOrCreate_DuplicateUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)

	_, err = store.JoinOrCreate(ctx, "alice", "r1")
	require.ErrorIs(t, err, ErrDuplicateUser)

	// The failed join must not have touched the room.
	room, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, room.ActiveUsers)
}

func TestStore_Leave_LastMemberDeletesRoom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)
	_, err = store.JoinOrCreate(ctx, "bob", "r1")
	require.NoError(t, err)

	room, err := store.Leave(ctx, "r1", "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, room.ActiveUsers)

	room, err = store.Leave(ctx, "r1", "bob")
	require.NoError(t, err)
	require.Empty(t, room.ActiveUsers)

	exists, err := store.Exists(ctx, "r1")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = store.Get(ctx, "r1")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestStore_Leave_UserNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)

	_, err = store.Leave(ctx, "r1", "mallory")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = store.Leave(ctx, "missing", "alice")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestStore_Create_OverExistingFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "alice", "r1")
	require.NoError(t, err)

	_, err = store.Create(ctx, "bob", "r1")
	require.ErrorIs(t, err, ErrRoomExists)
}

// A reservation holds no members, so the creator's own join must succeed
// rather than trip the duplicate-username check.
func TestStore_Create_ThenJoinSameUsername(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	room, err := store.Create(ctx, "alice", "r1")
	require.NoError(t, err)
	require.Empty(t, room.ActiveUsers)

	room, err = store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, room.ActiveUsers)
}

func TestStore_Create_UnjoinedReservationExpires(t *testing.T) {
	store, mr := newTestStoreWithRedis(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "alice", "r1")
	require.NoError(t, err)

	mr.FastForward(pendingRoomTTL + time.Second)

	exists, err := store.Exists(ctx, "r1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStore_Create_FirstJoinMakesRoomPermanent(t *testing.T) {
	store, mr := newTestStoreWithRedis(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "alice", "r1")
	require.NoError(t, err)
	_, err = store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)

	mr.FastForward(pendingRoomTTL + time.Second)

	room, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, room.ActiveUsers)
}

func TestStore_Mutate_MissingRoom(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Mutate(context.Background(), "missing", func(r *Room) error {
		r.Code = "x"
		return nil
	})
	require.ErrorIs(t, err, ErrRoomNotFound)
}

// Concurrent chat appends must all survive: if Mutate were a bare
// read-modify-write, interleaved writers would drop each other's messages.
func TestStore_Mutate_ConcurrentAppendsLoseNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Mutate(ctx, "r1", func(r *Room) error {
				r.AddChatMessage(ChatMessage{Author: "alice", Text: fmt.Sprintf("msg-%d", i)})
				return nil
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	room, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, room.ChatMessages, writers)

	seen := make(map[string]bool)
	for _, msg := range room.ChatMessages {
		seen[msg.Text] = true
	}
	for i := 0; i < writers; i++ {
		require.True(t, seen[fmt.Sprintf("msg-%d", i)], "lost msg-%d", i)
	}
}

// The final code value must be exactly one writer's submission, never an
// interleaving.
func TestStore_Mutate_ConcurrentCodeUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)

	const writers = 8
	submitted := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		submitted[i] = fmt.Sprintf("print(%d)", i)
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			_, err := store.Mutate(ctx, "r1", func(r *Room) error {
				r.Code = code
				return nil
			})
			require.NoError(t, err)
		}(submitted[i])
	}
	wg.Wait()

	room, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.Contains(t, submitted, room.Code)
}

func TestStore_Mutate_FnErrorAbortsWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.JoinOrCreate(ctx, "alice", "r1")
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	_, err = store.Mutate(ctx, "r1", func(r *Room) error {
		r.Code = "should not persist"
		return boom
	})
	require.ErrorIs(t, err, boom)

	room, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.NotEqual(t, "should not persist", room.Code)
}
