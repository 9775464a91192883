package rooms

import "errors"

var (
	// ErrRoomNotFound is returned when the requested room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists is returned when creating over an id that is taken.
	ErrRoomExists = errors.New("room with given ID already exists")

	// ErrUserNotFound is returned when the user is not a member of the room.
	ErrUserNotFound = errors.New("user not found in room")

	// ErrDuplicateUser is returned when the username is already active in
	// the room. Usernames are unique per room, not globally.
	ErrDuplicateUser = errors.New("user name is already taken")

	// ErrUnsupportedLanguage is returned for languages outside the
	// supported set.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrTooMuchContention is returned when an optimistic room update keeps
	// colliding with concurrent writers and runs out of retries.
	ErrTooMuchContention = errors.New("room update aborted after repeated conflicts")
)
