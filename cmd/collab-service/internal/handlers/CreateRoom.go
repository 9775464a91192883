package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"gitlab.com/secp/services/codecollab/internal/rooms"
)

// CreateRoom reserves a new room over REST for clients that want a room id
// before connecting. The caller still enters through the WebSocket join, so
// the reservation holds no members and expires if nobody joins it.
func CreateRoom(store *rooms.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var roomRequest struct {
			Username string `json:"username"`
			RoomID   string `json:"roomId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&roomRequest); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if roomRequest.Username == "" {
			http.Error(w, "username is required", http.StatusBadRequest)
			return
		}
		if roomRequest.RoomID == "" {
			roomRequest.RoomID = uuid.NewString()
		}

		createdRoom, err := store.Create(r.Context(), roomRequest.Username, roomRequest.RoomID)
		if err != nil {
			if errors.Is(err, rooms.ErrRoomExists) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, "Failed to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(createdRoom)
	}
}
