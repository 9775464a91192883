package rooms

import (
	"fmt"
	"strings"
)

// Language identifies one of the pre-provisioned execution runtimes.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageJava       Language = "java"
	LanguageCPP        Language = "cpp"
)

// ParseLanguage maps a client-supplied language name onto the closed set of
// supported runtimes. Matching is case-insensitive; anything outside the set
// fails with ErrUnsupportedLanguage.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "python":
		return LanguagePython, nil
	case "javascript":
		return LanguageJavaScript, nil
	case "java":
		return LanguageJava, nil
	case "cpp":
		return LanguageCPP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
}

// defaultCode is what the editor shows in a freshly created room.
const defaultCode = `// Welcome to the Collaborative Code Editor
// Start coding here...

function helloWorld() {
  console.log("Hello, world!");
}

helloWorld();`

// ChatMessage is one entry in a room's chat history.
type ChatMessage struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Room is the shared state of one collaborative session. It is stored as a
// single JSON value in Redis so every gateway instance sees the same view.
type Room struct {
	ID           string        `json:"id"`
	ActiveUsers  []string      `json:"activeUsers"`
	Code         string        `json:"code"`
	Input        string        `json:"input"`
	Output       string        `json:"output"`
	Language     Language      `json:"language"`
	ChatMessages []ChatMessage `json:"chatMessages"`
}

// NewRoom creates an empty room with the editor defaults.
func NewRoom(id string) *Room {
	return &Room{
		ID:           id,
		ActiveUsers:  []string{},
		Code:         defaultCode,
		Language:     LanguageJavaScript,
		ChatMessages: []ChatMessage{},
	}
}

// HasUser reports whether username is an active member of the room.
func (r *Room) HasUser(username string) bool {
	for _, u := range r.ActiveUsers {
		if u == username {
			return true
		}
	}
	return false
}

// AddUser adds username to the member set. Adding a user twice is a no-op.
func (r *Room) AddUser(username string) {
	if r.HasUser(username) {
		return
	}
	r.ActiveUsers = append(r.ActiveUsers, username)
}

// RemoveUser removes username from the member set if present.
func (r *Room) RemoveUser(username string) {
	for i, u := range r.ActiveUsers {
		if u == username {
			r.ActiveUsers = append(r.ActiveUsers[:i], r.ActiveUsers[i+1:]...)
			return
		}
	}
}

// AddChatMessage appends a message to the room's chat history.
func (r *Room) AddChatMessage(msg ChatMessage) {
	r.ChatMessages = append(r.ChatMessages, msg)
}
