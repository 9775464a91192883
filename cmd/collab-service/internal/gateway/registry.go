package gateway

import (
	"encoding/json"
	"log"
	"sync"

	"gitlab.com/secp/services/codecollab/internal/events"
)

// Registry tracks which sessions of this instance are subscribed to which
// room. It is instance-local: other instances learn about events through the
// bus, never through each other's registries.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[*Session]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[*Session]struct{})}
}

// Add subscribes a session to a room's broadcasts.
func (r *Registry) Add(roomID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions, ok := r.rooms[roomID]
	if !ok {
		sessions = make(map[*Session]struct{})
		r.rooms[roomID] = sessions
	}
	sessions[s] = struct{}{}
}

// Remove unsubscribes a session from a room's broadcasts.
func (r *Registry) Remove(roomID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(r.rooms, roomID)
	}
}

// Broadcast delivers an envelope to every local session subscribed to the
// room. A session whose send buffer is full is skipped; the write loop will
// tear the connection down on its own if the client has stalled for good.
func (r *Registry) Broadcast(roomID string, env events.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[gateway] dropping unencodable envelope for room %s: %v", roomID, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.rooms[roomID] {
		select {
		case s.Send <- data:
		default:
		}
	}
}
