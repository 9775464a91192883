// Package rooms holds the shared room state and the Redis-backed store every
// gateway instance mutates it through.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const roomKeyPrefix = "room:"

// pendingRoomTTL bounds how long a room created over REST may sit with no
// members before it is reclaimed. The first join rewrites the key without an
// expiry, making the room permanent.
const pendingRoomTTL = 5 * time.Minute

// maxTxRetries bounds the optimistic retry loop under heavy contention.
const maxTxRetries = 16

// Store persists rooms as JSON values in Redis, one key per room. All writes
// go through optimistic WATCH transactions so concurrent mutators of the same
// room never lose an update; callers are never handed a raw get+set pair.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a Store backed by the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func roomKey(roomID string) string {
	return roomKeyPrefix + roomID
}

// Get returns the current state of a room, or ErrRoomNotFound.
func (s *Store) Get(ctx context.Context, roomID string) (*Room, error) {
	data, err := s.rdb.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	room := &Room{}
	if err := json.Unmarshal(data, room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return room, nil
}

// Exists reports whether the room is present in the store.
func (s *Store) Exists(ctx context.Context, roomID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return false, fmt.Errorf("check room %s: %w", roomID, err)
	}
	return n > 0, nil
}

// Create reserves a new empty room for username to join over the WebSocket.
// The creator is not made a member here; it enters through JoinOrCreate like
// everyone else, so create-then-join with the same username always works. An
// unjoined reservation expires after pendingRoomTTL. Creating over an
// existing id fails with ErrRoomExists.
func (s *Store) Create(ctx context.Context, username, roomID string) (*Room, error) {
	room := NewRoom(roomID)
	data, err := json.Marshal(room)
	if err != nil {
		return nil, err
	}
	ok, err := s.rdb.SetNX(ctx, roomKey(roomID), data, pendingRoomTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("create room %s: %w", roomID, err)
	}
	if !ok {
		return nil, ErrRoomExists
	}
	log.Printf("[rooms] room %s created by user %s", roomID, username)
	return room, nil
}

// JoinOrCreate adds username to the room, creating the room first if it does
// not exist. Joining a room the username is already active in fails with
// ErrDuplicateUser.
func (s *Store) JoinOrCreate(ctx context.Context, username, roomID string) (*Room, error) {
	room, err := s.update(ctx, roomID, true, func(r *Room) error {
		if r.HasUser(username) {
			return ErrDuplicateUser
		}
		r.AddUser(username)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[rooms] user %s joined room %s", username, roomID)
	return room, nil
}

// Leave removes username from the room, failing with ErrUserNotFound when the
// user is not a member. The room is deleted once its last member leaves.
func (s *Store) Leave(ctx context.Context, roomID, username string) (*Room, error) {
	room, err := s.update(ctx, roomID, false, func(r *Room) error {
		if !r.HasUser(username) {
			return ErrUserNotFound
		}
		r.RemoveUser(username)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(room.ActiveUsers) == 0 {
		log.Printf("[rooms] room %s deleted as it is empty", roomID)
	} else {
		log.Printf("[rooms] user %s left room %s", username, roomID)
	}
	return room, nil
}

// Mutate applies fn to the room's current state and commits the result in one
// indivisible step. fn may be called more than once if concurrent writers
// force a retry, so it must be a pure transformation of its argument.
func (s *Store) Mutate(ctx context.Context, roomID string, fn func(*Room) error) (*Room, error) {
	return s.update(ctx, roomID, false, fn)
}

// update runs fn against the room under a WATCH transaction and commits with
// MULTI/EXEC, retrying when another writer races the commit. When allowCreate
// is set a missing key yields a fresh room instead of ErrRoomNotFound. A room
// whose membership empties is deleted rather than written back, keeping the
// exists-iff-occupied invariant inside the same transaction; TTL-bounded REST
// reservations are the only rooms that exist unoccupied.
func (s *Store) update(ctx context.Context, roomID string, allowCreate bool, fn func(*Room) error) (*Room, error) {
	key := roomKey(roomID)
	var room *Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if !allowCreate {
				return ErrRoomNotFound
			}
			room = NewRoom(roomID)
		case err != nil:
			return fmt.Errorf("get room %s: %w", roomID, err)
		default:
			room = &Room{}
			if err := json.Unmarshal(data, room); err != nil {
				return fmt.Errorf("decode room %s: %w", roomID, err)
			}
		}

		if err := fn(room); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(room.ActiveUsers) == 0 {
				pipe.Del(ctx, key)
				return nil
			}
			next, err := json.Marshal(room)
			if err != nil {
				return err
			}
			// Expiration 0 also clears a pending-room TTL on first join.
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return room, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return nil, err
		}
	}
	return nil, ErrTooMuchContention
}
