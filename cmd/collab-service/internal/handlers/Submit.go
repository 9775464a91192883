package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"gitlab.com/secp/services/codecollab/internal/queue"
	"gitlab.com/secp/services/codecollab/internal/ratelimit"
	"gitlab.com/secp/services/codecollab/internal/rooms"
)

// Submit accepts an execution submission, validates the language, and
// enqueues it for the worker pool. It returns as soon as the submission is
// queued; the result arrives later on the room's broadcast channel.
func Submit(q queue.Queue, limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sub queue.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if sub.RoomID == "" {
			http.Error(w, "roomId is required", http.StatusBadRequest)
			return
		}

		// Reject unsupported languages here, before anything reaches the
		// sandbox tier.
		lang, err := rooms.ParseLanguage(sub.Language)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sub.Language = string(lang)

		if err := limiter.CheckSubmit(r.Context(), sub.RoomID); err != nil {
			http.Error(w, "Submission limit reached, try again shortly", http.StatusTooManyRequests)
			return
		}

		if err := q.Submit(r.Context(), sub); err != nil {
			log.Printf("[handlers] enqueue submission for room %s: %v", sub.RoomID, err)
			http.Error(w, "Failed to enqueue submission", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
