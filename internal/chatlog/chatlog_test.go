package chatlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/secp/services/codecollab/internal/rooms"
)

// A nil log is the disabled configuration; every operation must be a safe
// no-op so callers never branch on whether archiving is wired up.
func TestNilLogIsDisabled(t *testing.T) {
	var l *Log
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, "r1", rooms.ChatMessage{Author: "alice", Text: "hi"}))

	history, err := l.History(ctx, "r1", 10)
	require.NoError(t, err)
	require.Nil(t, history)

	require.NoError(t, l.Close())
}
