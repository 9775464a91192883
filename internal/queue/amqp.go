package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue is the production queue, a durable RabbitMQ queue with persistent
// messages and competing consumers.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	name string
}

// DialAMQP connects to the broker and declares the durable execution queue.
func DialAMQP(url, queueName string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	return &AMQPQueue{conn: conn, ch: ch, name: queueName}, nil
}

// Submit implements Queue.
func (q *AMQPQueue) Submit(ctx context.Context, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	err = q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("enqueue submission: %w", err)
	}
	log.Printf("[queue] submission for room %s sent to queue %s", sub.RoomID, q.name)
	return nil
}

// Consume implements Consumer. Jobs are acked manually after the worker has
// published a result; prefetch is one so slow runs do not starve idle
// workers.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Job, error) {
	if err := q.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume queue %s: %w", q.name, err)
	}

	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var sub Submission
				if err := json.Unmarshal(d.Body, &sub); err != nil {
					log.Printf("[queue] rejecting malformed submission: %v", err)
					d.Nack(false, false)
					continue
				}
				delivery := d
				job := Job{
					Submission: sub,
					ack:        func() error { return delivery.Ack(false) },
				}
				select {
				case out <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the channel and connection.
func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
