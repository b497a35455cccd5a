// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

type (
	// AMQPChannel defines the interface for a RabbitMQ channel.
	// It abstracts the operations that a component performs on the channel it owns:
	// declaring its exchange and queue, binding them, and publishing or consuming messages.
	AMQPChannel interface {
		// ExchangeDeclare declares an exchange on the channel.
		// The exchange will be created if it doesn't already exist.
		// Parameters:
		//   - name: The name of the exchange
		//   - kind: The exchange type (direct, fanout, topic, headers)
		//   - durable: Survive broker restarts
		//   - autoDelete: Delete when no longer used
		//   - internal: Can only be published to by other exchanges
		//   - noWait: Don't wait for a server confirmation
		//   - args: Additional arguments
		ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error

		// QueueDeclare declares a queue on the channel.
		// The queue will be created if it doesn't already exist.
		// Parameters:
		//   - name: The name of the queue
		//   - durable: Survive broker restarts
		//   - autoDelete: Delete when no longer used
		//   - exclusive: Used by only one connection and deleted when that connection closes
		//   - noWait: Don't wait for a server confirmation
		//   - args: Additional arguments
		// Returns the queue and any error encountered.
		QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)

		// QueueBind binds a queue to an exchange.
		// Parameters:
		//   - name: The name of the queue
		//   - key: The routing key to use
		//   - exchange: The name of the exchange
		//   - noWait: Don't wait for a server confirmation
		//   - args: Additional arguments
		QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error

		// Qos controls how many unacknowledged deliveries the server keeps in flight
		// for the consumers of this channel.
		Qos(prefetchCount, prefetchSize int, global bool) error

		// Consume starts delivering messages from a queue.
		// Parameters:
		//   - queue: The name of the queue
		//   - consumer: The consumer tag (empty string to have the server generate one)
		//   - autoAck: Acknowledge messages automatically when delivered
		//   - exclusive: Request exclusive consumer access
		//   - noLocal: Don't deliver messages published on this connection
		//   - noWait: Don't wait for a server confirmation
		//   - args: Additional arguments
		// Returns a channel of delivered messages and any error encountered.
		Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)

		// PublishWithContext publishes a message to an exchange.
		// Parameters:
		//   - ctx: Context bounding the publish
		//   - exchange: The name of the exchange
		//   - key: The routing key to use
		//   - mandatory: Return message if it can't be routed to a queue
		//   - immediate: Return message if it can't be delivered to a consumer immediately
		//   - msg: The message to publish
		PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error

		// IsClosed reports whether the channel is closed.
		IsClosed() bool

		// Close closes the channel.
		Close() error

		// NotifyClose registers a listener for the channel shutdown.
		// A nil error is delivered on a graceful close.
		NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	}
)
