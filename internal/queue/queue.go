// Package queue carries execution submissions from gateway instances to the
// worker pool over a durable, at-least-once work queue.
package queue

import "context"

// Submission is one request to execute code, immutable once enqueued.
type Submission struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input"`
	RoomID   string `json:"roomId"`
}

// Job is a submission delivered to a worker. Ack confirms processing; an
// unacked job is redelivered after a worker crash, so the pipeline tolerates
// a duplicate run.
type Job struct {
	Submission Submission
	ack        func() error
}

// Ack confirms the job so it is not redelivered.
func (j Job) Ack() error {
	if j.ack == nil {
		return nil
	}
	return j.ack()
}

// Queue is the submission side of the work queue. Submit returns as soon as
// the submission is enqueued; it never waits for execution.
type Queue interface {
	Submit(ctx context.Context, sub Submission) error
}

// Consumer is the worker side. Each submission is delivered to exactly one of
// the competing consumers.
type Consumer interface {
	Consume(ctx context.Context) (<-chan Job, error)
}
