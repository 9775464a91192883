// Package service consumes execution submissions and publishes their results
// back to the submitting room's broadcast channel.
package service

import (
	"context"
	"errors"
	"log"

	"gitlab.com/secp/services/codecollab/cmd/execution-service/internal/sandbox"
	"gitlab.com/secp/services/codecollab/internal/events"
	"gitlab.com/secp/services/codecollab/internal/queue"
	"gitlab.com/secp/services/codecollab/internal/rooms"
)

// Service runs submissions from the queue and emits exactly one
// EXECUTION_RESULT per submission.
type Service struct {
	runner *sandbox.Runner
	bus    events.Bus
	store  *rooms.Store
}

// New creates the execution service.
func New(runner *sandbox.Runner, bus events.Bus, store *rooms.Store) *Service {
	return &Service{runner: runner, bus: bus, store: store}
}

// Run processes jobs until the channel closes or ctx is cancelled.
func (s *Service) Run(ctx context.Context, jobs <-chan queue.Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			s.Handle(ctx, job)
		}
	}
}

// Handle runs one job. Sandbox failures become output text so the room
// always hears back; only a bus publish failure leaves the job unacked for
// redelivery.
func (s *Service) Handle(ctx context.Context, job queue.Job) {
	sub := job.Submission
	log.Printf("[execution] received submission for room %s (%s)", sub.RoomID, sub.Language)

	output, err := s.runner.Run(ctx, sub.Language, sub.Code, sub.Input)
	if err != nil {
		output = "Execution failed: " + err.Error()
	}

	// Record the result on the room so late joiners see the last output.
	// The room may already be gone if everyone left mid-run.
	if _, err := s.store.Mutate(ctx, sub.RoomID, func(r *rooms.Room) error {
		r.Output = output
		return nil
	}); err != nil && !errors.Is(err, rooms.ErrRoomNotFound) {
		log.Printf("[execution] store result for room %s: %v", sub.RoomID, err)
	}

	env := events.Envelope{
		Message: events.Message{Event: events.ExecutionResult, RoomID: sub.RoomID},
		Output:  events.String(output),
	}
	if err := s.bus.Publish(ctx, events.ExecutionResultChannel(sub.RoomID), env); err != nil {
		log.Printf("[execution] publish result for room %s: %v", sub.RoomID, err)
		return
	}
	log.Printf("[execution] execution completed for room %s", sub.RoomID)

	if err := job.Ack(); err != nil {
		log.Printf("[execution] ack for room %s: %v", sub.RoomID, err)
	}
}
