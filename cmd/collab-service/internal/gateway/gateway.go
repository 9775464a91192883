// Package gateway handles inbound room messages from connected clients,
// applies them to the shared room store, and publishes the resulting events
// for every instance to fan out.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gitlab.com/secp/services/codecollab/internal/chatlog"
	"gitlab.com/secp/services/codecollab/internal/events"
	"gitlab.com/secp/services/codecollab/internal/rooms"
)

// Inbound is a client message read off the socket. Type selects the handler;
// the remaining fields are per-type payloads.
type Inbound struct {
	Type        string             `json:"type"`
	Username    string             `json:"username,omitempty"`
	RoomID      string             `json:"roomId,omitempty"`
	Language    string             `json:"language,omitempty"`
	Input       *string            `json:"input,omitempty"`
	Code        *string            `json:"code,omitempty"`
	ChatMessage *rooms.ChatMessage `json:"chatMessage,omitempty"`
	Value       string             `json:"value,omitempty"`
	IsLoading   bool               `json:"isLoading,omitempty"`
}

var (
	errNotInRoom     = errors.New("session is not bound to a room")
	errBadJoin       = errors.New("join requires username and roomId")
	errBadChat       = errors.New("chatMessage requires a chatMessage payload")
	errUnknownType   = errors.New("unknown message type")
	errAlreadyJoined = errors.New("session already joined this room")
)

// Gateway applies client messages to the room store and publishes the
// matching events on the bus.
type Gateway struct {
	store    *rooms.Store
	bus      events.Bus
	registry *Registry
	chat     *chatlog.Log
}

// New creates a gateway. chat may be nil when archiving is not configured.
func New(store *rooms.Store, bus events.Bus, registry *Registry, chat *chatlog.Log) *Gateway {
	return &Gateway{store: store, bus: bus, registry: registry, chat: chat}
}

// Run subscribes to the bus and forwards every delivery to the local
// sessions of its room. It returns when ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	deliveries, err := g.bus.Subscribe(ctx, events.RoomPattern, events.ExecutionResultPattern)
	if err != nil {
		return err
	}
	for d := range deliveries {
		g.registry.Broadcast(d.Envelope.Message.RoomID, d.Envelope)
	}
	return nil
}

// HandleMessage dispatches one inbound client message. Handler failures are
// converted to an ERROR envelope addressed to this session only; they are
// never broadcast and never tear down the connection.
func (g *Gateway) HandleMessage(ctx context.Context, s *Session, raw []byte) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.sendError(s, fmt.Errorf("malformed message: %w", err))
		return
	}

	var err error
	switch msg.Type {
	case "join":
		err = g.handleJoin(ctx, s, msg.Username, msg.RoomID)
	case "leave":
		err = g.handleLeave(ctx, s)
	case "languageChange":
		err = g.handleLanguageChange(ctx, s, msg.Language)
	case "inputChange":
		err = g.handleInputChange(ctx, s, msg.Input)
	case "codeUpdate":
		err = g.handleCodeUpdate(ctx, s, msg.Code)
	case "chatMessage":
		err = g.handleChatMessage(ctx, s, msg.ChatMessage)
	case "buttonStatus":
		err = g.handleButtonStatus(ctx, s, msg.Value, msg.IsLoading)
	default:
		err = fmt.Errorf("%w: %q", errUnknownType, msg.Type)
	}
	if err != nil {
		g.sendError(s, err)
	}
}

// HandleDisconnect cleans up after an ungraceful disconnect. If the client
// already left explicitly the departure was broadcast then, and this is a
// no-op.
func (g *Gateway) HandleDisconnect(ctx context.Context, s *Session) {
	if !s.InRoom() {
		return
	}
	roomID := s.RoomID
	g.registry.Remove(roomID, s)
	if s.ExplicitLeave {
		return
	}

	log.Printf("[gateway] user %s disconnected from room %s (session %s)", s.Username, roomID, s.ID)
	room, err := g.store.Leave(ctx, roomID, s.Username)
	if err != nil {
		log.Printf("[gateway] disconnect cleanup for room %s: %v", roomID, err)
		return
	}
	env := events.Envelope{
		Message: events.Message{
			Event:    events.LeaveRoom,
			RoomID:   roomID,
			Username: s.Username,
			Text:     s.Username + " disconnected from the room.",
		},
		Users: room.ActiveUsers,
	}
	if err := g.bus.Publish(ctx, events.RoomChannel(roomID), env); err != nil {
		log.Printf("[gateway] publish disconnect for room %s: %v", roomID, err)
	}
}

func (g *Gateway) handleJoin(ctx context.Context, s *Session, username, roomID string) error {
	if username == "" || roomID == "" {
		return errBadJoin
	}
	if s.InRoom() {
		if s.RoomID == roomID {
			return errAlreadyJoined
		}
		// Switching rooms: release the old binding first, or the session
		// would keep receiving the old room's broadcasts and hold a seat in
		// its membership that no disconnect ever cleans up.
		if err := g.handleLeave(ctx, s); err != nil {
			log.Printf("[gateway] leaving room %s before joining %s: %v", s.RoomID, roomID, err)
			g.registry.Remove(s.RoomID, s)
			s.RoomID = ""
		}
	}
	room, err := g.store.JoinOrCreate(ctx, username, roomID)
	if err != nil {
		return err
	}

	s.Username = username
	s.RoomID = roomID
	s.ExplicitLeave = false
	g.registry.Add(roomID, s)

	// Full snapshot, not a delta: the joiner must see consistent state no
	// matter how many edits preceded it.
	env := events.Envelope{
		Message: events.Message{
			Event:    events.JoinRoom,
			RoomID:   roomID,
			Username: username,
			Text:     "User " + username + " joined room",
		},
		Code:         events.String(room.Code),
		Language:     events.String(string(room.Language)),
		Input:        events.String(room.Input),
		Output:       events.String(room.Output),
		Users:        room.ActiveUsers,
		ChatMessages: room.ChatMessages,
	}
	return g.bus.Publish(ctx, events.RoomChannel(roomID), env)
}

func (g *Gateway) handleLeave(ctx context.Context, s *Session) error {
	if !s.InRoom() {
		return errNotInRoom
	}
	roomID, username := s.RoomID, s.Username

	// Mark before removal so the disconnect handler that follows the close
	// does not broadcast the same departure again.
	s.ExplicitLeave = true

	room, err := g.store.Leave(ctx, roomID, username)
	if err != nil {
		return err
	}
	g.registry.Remove(roomID, s)
	s.RoomID = ""

	env := events.Envelope{
		Message: events.Message{
			Event:    events.LeaveRoom,
			RoomID:   roomID,
			Username: username,
			Text:     username + " has left the room.",
		},
		Users: room.ActiveUsers,
	}
	return g.bus.Publish(ctx, events.RoomChannel(roomID), env)
}

func (g *Gateway) handleLanguageChange(ctx context.Context, s *Session, language string) error {
	if !s.InRoom() {
		return errNotInRoom
	}
	lang, err := rooms.ParseLanguage(language)
	if err != nil {
		return err
	}
	if _, err := g.store.Mutate(ctx, s.RoomID, func(r *rooms.Room) error {
		r.Language = lang
		return nil
	}); err != nil {
		return err
	}
	env := events.Envelope{
		Message:  events.Message{Event: events.LanguageChange, RoomID: s.RoomID},
		Language: events.String(string(lang)),
	}
	return g.bus.Publish(ctx, events.RoomChannel(s.RoomID), env)
}

func (g *Gateway) handleInputChange(ctx context.Context, s *Session, input *string) error {
	if !s.InRoom() {
		return errNotInRoom
	}
	if input == nil {
		input = events.String("")
	}
	if _, err := g.store.Mutate(ctx, s.RoomID, func(r *rooms.Room) error {
		r.Input = *input
		return nil
	}); err != nil {
		return err
	}
	env := events.Envelope{
		Message: events.Message{Event: events.InputChange, RoomID: s.RoomID},
		Input:   input,
	}
	return g.bus.Publish(ctx, events.RoomChannel(s.RoomID), env)
}

func (g *Gateway) handleCodeUpdate(ctx context.Context, s *Session, code *string) error {
	if !s.InRoom() {
		return errNotInRoom
	}
	if code == nil {
		code = events.String("")
	}
	if _, err := g.store.Mutate(ctx, s.RoomID, func(r *rooms.Room) error {
		r.Code = *code
		return nil
	}); err != nil {
		return err
	}
	env := events.Envelope{
		Message: events.Message{Event: events.CodeUpdate, RoomID: s.RoomID},
		Code:    code,
	}
	return g.bus.Publish(ctx, events.RoomChannel(s.RoomID), env)
}

func (g *Gateway) handleChatMessage(ctx context.Context, s *Session, msg *rooms.ChatMessage) error {
	if !s.InRoom() {
		return errNotInRoom
	}
	if msg == nil {
		return errBadChat
	}
	if _, err := g.store.Mutate(ctx, s.RoomID, func(r *rooms.Room) error {
		r.AddChatMessage(*msg)
		return nil
	}); err != nil {
		return err
	}
	if err := g.chat.Append(ctx, s.RoomID, *msg); err != nil {
		// The room state already carries the message; losing the archive
		// copy is not worth failing the send.
		log.Printf("[gateway] chat archive for room %s: %v", s.RoomID, err)
	}
	env := events.Envelope{
		Message:     events.Message{Event: events.ChatMessage, RoomID: s.RoomID},
		ChatMessage: msg,
	}
	return g.bus.Publish(ctx, events.RoomChannel(s.RoomID), env)
}

// handleButtonStatus relays the run button's loading state. It is a pure
// broadcast with no store mutation.
func (g *Gateway) handleButtonStatus(ctx context.Context, s *Session, value string, isLoading bool) error {
	if !s.InRoom() {
		return errNotInRoom
	}
	env := events.Envelope{
		Message:   events.Message{Event: events.ButtonStatus, RoomID: s.RoomID},
		Value:     events.String(value),
		IsLoading: events.Bool(isLoading),
	}
	return g.bus.Publish(ctx, events.RoomChannel(s.RoomID), env)
}

// errorSendWait is how long sendError waits on a congested send buffer.
// Ordinary broadcasts are droppable; error replies get a grace period so a
// client is not left thinking its message succeeded.
const errorSendWait = time.Second

// sendError delivers an ERROR envelope to the originating session only.
func (g *Gateway) sendError(s *Session, cause error) {
	log.Printf("[gateway] session %s: %v", s.ID, cause)
	env := events.Envelope{
		Message: events.Message{
			Event:    events.Error,
			RoomID:   s.RoomID,
			Username: s.Username,
			Text:     "Unexpected error: " + cause.Error(),
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	timer := time.NewTimer(errorSendWait)
	defer timer.Stop()
	select {
	case s.Send <- data:
	case <-timer.C:
		log.Printf("[gateway] session %s: send buffer full, error envelope dropped: %v", s.ID, cause)
	}
}
