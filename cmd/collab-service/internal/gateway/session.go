package gateway

import "github.com/google/uuid"

// sendBuffer bounds how many outbound envelopes a slow client may lag
// behind before it is dropped.
const sendBuffer = 256

// Session is the per-connection state owned by one gateway instance. It is
// never persisted or shared across instances; its fields are only written by
// the connection's own read loop.
type Session struct {
	ID            string
	Username      string
	RoomID        string
	ExplicitLeave bool

	// Send carries marshaled envelopes to the connection's write loop.
	Send chan []byte
}

// NewSession creates an unbound session for a fresh connection.
func NewSession() *Session {
	return &Session{
		ID:   uuid.NewString(),
		Send: make(chan []byte, sendBuffer),
	}
}

// InRoom reports whether the session has joined a room.
func (s *Session) InRoom() bool {
	return s.RoomID != ""
}
