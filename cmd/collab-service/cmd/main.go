package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"gitlab.com/secp/services/codecollab/cmd/collab-service/internal/config"
	"gitlab.com/secp/services/codecollab/cmd/collab-service/internal/gateway"
	"gitlab.com/secp/services/codecollab/cmd/collab-service/internal/handlers"
	"gitlab.com/secp/services/codecollab/internal/chatlog"
	"gitlab.com/secp/services/codecollab/internal/events"
	"gitlab.com/secp/services/codecollab/internal/queue"
	"gitlab.com/secp/services/codecollab/internal/ratelimit"
	"gitlab.com/secp/services/codecollab/internal/rooms"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Shared infrastructure: Redis backs room state, fan-out, and the
	// submission limiter; RabbitMQ carries execution submissions.
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	store := rooms.NewStore(rdb)
	bus := events.NewRedisBus(rdb)
	limiter := ratelimit.NewLimiter(rdb, ratelimit.SubmitLimits{
		PerRoom:    cfg.SubmitLimit,
		RoomWindow: time.Minute,
	})

	execQueue, err := queue.DialAMQP(cfg.AMQPURL, cfg.QueueName)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer execQueue.Close()

	// Chat archiving is optional; without a DATABASE_URL the nil log keeps
	// every archive call a no-op.
	var chat *chatlog.Log
	if cfg.DatabaseURL != "" {
		chat, err = chatlog.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open chat log: %v", err)
		}
		defer chat.Close()
	}

	registry := gateway.NewRegistry()
	gw := gateway.New(store, bus, registry, chat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := gw.Run(ctx); err != nil {
			log.Fatalf("Event fan-out stopped: %v", err)
		}
	}()

	r := mux.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handlers.ServeWs(gw, w, r)
	})
	r.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	r.HandleFunc("/rooms", handlers.CreateRoom(store)).Methods("POST")
	r.HandleFunc("/rooms/{roomId}/chat", handlers.ChatHistory(chat)).Methods("GET")
	r.HandleFunc("/api/submit", handlers.Submit(execQueue, limiter)).Methods("POST")

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Starting collab service on :%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down collab service...")
	cancel()

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Collab service exited")
}
