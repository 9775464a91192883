package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gitlab.com/secp/services/codecollab/internal/chatlog"
	"gitlab.com/secp/services/codecollab/internal/rooms"
)

const defaultHistoryLimit = 200

// ChatHistory returns a room's archived chat messages. Unlike the in-room
// history, the archive outlives the room itself.
func ChatHistory(chat *chatlog.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["roomId"]

		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		history, err := chat.History(r.Context(), roomID, limit)
		if err != nil {
			log.Printf("[handlers] chat history for room %s: %v", roomID, err)
			http.Error(w, "Failed to load chat history", http.StatusInternalServerError)
			return
		}
		if history == nil {
			history = []rooms.ChatMessage{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(history)
	}
}
