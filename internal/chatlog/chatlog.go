// Package chatlog archives room chat messages to PostgreSQL. Room state
// itself lives in Redis and disappears when the last member leaves; the chat
// log is the durable record that survives room deletion and keeps the
// in-room history from being the only copy as it grows.
package chatlog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"gitlab.com/secp/services/codecollab/internal/rooms"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id BIGSERIAL PRIMARY KEY,
	room_id TEXT NOT NULL,
	author TEXT NOT NULL,
	body TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages (room_id, id);
`

// Log writes chat messages through to Postgres. A nil *Log is a valid,
// disabled log: every method is a no-op, so callers do not branch on
// whether archiving is configured.
type Log struct {
	db *sql.DB
}

// Open connects to Postgres, ensures the schema, and returns the log.
func Open(databaseURL string) (*Log, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure chat_messages schema: %w", err)
	}

	log.Println("[chatlog] PostgreSQL connection established")
	return &Log{db: db}, nil
}

// Append records one chat message for the room.
func (l *Log) Append(ctx context.Context, roomID string, msg rooms.ChatMessage) error {
	if l == nil {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO chat_messages (room_id, author, body) VALUES ($1, $2, $3)`,
		roomID, msg.Author, msg.Text,
	)
	if err != nil {
		return fmt.Errorf("failed to archive chat message: %w", err)
	}
	return nil
}

// History returns up to limit archived messages for the room in send order.
func (l *Log) History(ctx context.Context, roomID string, limit int) ([]rooms.ChatMessage, error) {
	if l == nil {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT author, body FROM chat_messages WHERE room_id = $1 ORDER BY id LIMIT $2`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	defer rows.Close()

	var history []rooms.ChatMessage
	for rows.Next() {
		var msg rooms.ChatMessage
		if err := rows.Scan(&msg.Author, &msg.Text); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		history = append(history, msg)
	}
	return history, rows.Err()
}

// Close releases the database connection.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
