package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"gitlab.com/secp/services/codecollab/cmd/execution-service/internal/config"
	"gitlab.com/secp/services/codecollab/cmd/execution-service/internal/sandbox"
	"gitlab.com/secp/services/codecollab/cmd/execution-service/internal/service"
	"gitlab.com/secp/services/codecollab/internal/events"
	"gitlab.com/secp/services/codecollab/internal/queue"
	"gitlab.com/secp/services/codecollab/internal/rooms"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	bus := events.NewRedisBus(rdb)
	store := rooms.NewStore(rdb)

	execQueue, err := queue.DialAMQP(cfg.AMQPURL, cfg.QueueName)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer execQueue.Close()

	runner := sandbox.NewRunner(sandbox.Config{
		HostDir: cfg.CodeHostDir,
		Timeout: cfg.ExecTimeout,
	})
	svc := service.New(runner, bus, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs, err := execQueue.Consume(ctx)
	if err != nil {
		log.Fatalf("Failed to consume queue: %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down execution service...")
		cancel()
	}()

	log.Printf("Execution service consuming queue %s", cfg.QueueName)
	svc.Run(ctx, jobs)
	log.Println("Execution service exited")
}
