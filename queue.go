// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueDefinition represents the queue a consumer declares on its channel.
// It encapsulates properties such as name, durability, auto-delete behavior,
// exclusivity, message TTL and maximum length.
type QueueDefinition struct {
	name      string
	durable   bool
	delete    bool
	exclusive bool
	withTTL   bool
	ttl       time.Duration
	maxLength int64
}

// NewQueue creates a new queue definition with the given name.
// By default, queues are transient, auto-deleted, and not exclusive.
// You can chain methods to configure additional properties.
//
// Example usage:
//
//	queueDef := amqplink.NewQueue("my-queue").Durable(true).Delete(false).WithTTL(time.Minute)
//
// Note: If the queue already exists with different properties, the declaration fails
// and the consumer stays disconnected until the next connection.
func NewQueue(name string) *QueueDefinition {
	return &QueueDefinition{name: name, durable: false, delete: true, exclusive: false}
}

// Durable sets the durability flag for the queue.
// Durable queues survive broker restarts.
func (q *QueueDefinition) Durable(d bool) *QueueDefinition {
	q.durable = d
	return q
}

// Delete sets the auto-delete flag for the queue.
// Auto-deleted queues are removed when no longer in use.
func (q *QueueDefinition) Delete(d bool) *QueueDefinition {
	q.delete = d
	return q
}

// Exclusive sets the exclusive flag for the queue.
// Exclusive queues can only be used by the connection that created them
// and are deleted when that connection closes.
func (q *QueueDefinition) Exclusive(e bool) *QueueDefinition {
	q.exclusive = e
	return q
}

// WithTTL sets a Time-To-Live (TTL) for messages in the queue.
// Messages that remain in the queue longer than the TTL will be automatically removed.
func (q *QueueDefinition) WithTTL(ttl time.Duration) *QueueDefinition {
	q.withTTL = true
	q.ttl = ttl
	return q
}

// WithMaxLength caps the number of ready messages kept by the queue.
func (q *QueueDefinition) WithMaxLength(n int64) *QueueDefinition {
	q.maxLength = n
	return q
}

// Name returns the name of the queue.
func (q *QueueDefinition) Name() string {
	return q.name
}

func (q *QueueDefinition) args() amqp.Table {
	args := amqp.Table{}
	if q.withTTL {
		args["x-message-ttl"] = q.ttl.Milliseconds()
	}
	if q.maxLength > 0 {
		args["x-max-length"] = q.maxLength
	}

	return args
}

// declare declares the queue on ch.
func (q *QueueDefinition) declare(ch AMQPChannel) (amqp.Queue, error) {
	return ch.QueueDeclare(q.name, q.durable, q.delete, q.exclusive, false, q.args())
}
