// Package events defines the room event envelope and the pub/sub fabric that
// fans events out to every gateway instance.
package events

import "gitlab.com/secp/services/codecollab/internal/rooms"

// Event kinds carried in the broadcast envelope.
const (
	JoinRoom        = "JOIN_ROOM"
	LeaveRoom       = "LEAVE_ROOM"
	LanguageChange  = "LANGUAGE_CHANGE"
	InputChange     = "INPUT_CHANGE"
	CodeUpdate      = "CODE_UPDATE"
	ChatMessage     = "CHAT_MESSAGE"
	ButtonStatus    = "BUTTON_STATUS"
	ExecutionResult = "EXECUTION_RESULT"
	Error           = "ERROR"
)

// Message is the event descriptor every envelope carries.
type Message struct {
	Event    string `json:"event"`
	RoomID   string `json:"roomId"`
	Username string `json:"username,omitempty"`
	Text     string `json:"message,omitempty"`
}

// Envelope is the wire format delivered to room subscribers: the event
// descriptor plus the kind-specific payload fields flattened next to it.
// Join events carry the full room snapshot; every later edit carries only
// the field that changed. String fields are pointers so a snapshot can send
// an empty buffer while delta events omit untouched fields entirely.
type Envelope struct {
	Message      Message             `json:"message"`
	Code         *string             `json:"code,omitempty"`
	Language     *string             `json:"language,omitempty"`
	Input        *string             `json:"input,omitempty"`
	Output       *string             `json:"output,omitempty"`
	Users        []string            `json:"users,omitempty"`
	ChatMessages []rooms.ChatMessage `json:"chatMessages,omitempty"`
	ChatMessage  *rooms.ChatMessage  `json:"chatMessage,omitempty"`
	Value        *string             `json:"value,omitempty"`
	IsLoading    *bool               `json:"isLoading,omitempty"`
}

// String returns a pointer to s for optional envelope fields.
func String(s string) *string { return &s }

// Bool returns a pointer to b for optional envelope fields.
func Bool(b bool) *bool { return &b }
