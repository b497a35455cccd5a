// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"crypto/tls"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type (
	// RMQConnection defines the interface for a RabbitMQ connection.
	// It abstracts the underlying AMQP connection and provides methods
	// for creating channels, retrieving connection state, and closing the connection.
	RMQConnection interface {
		// Channel creates a new channel on the connection.
		Channel() (AMQPChannel, error)

		// ConnectionState returns the TLS connection state if TLS is enabled.
		ConnectionState() tls.ConnectionState

		// IsClosed checks if the connection is closed.
		IsClosed() bool

		// Close gracefully closes the connection and all its channels.
		// It waits for confirmation from the server.
		Close() error

		// CloseDeadline closes the connection, giving up on the server confirmation
		// once the deadline is reached.
		CloseDeadline(deadline time.Time) error

		// NotifyClose registers a listener for the connection shutdown.
		// A nil error is delivered on a graceful close.
		NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	}

	// amqpConnection adapts *amqp.Connection so Channel returns the AMQPChannel abstraction.
	amqpConnection struct {
		*amqp.Connection
	}
)

// Channel opens a new channel on the underlying connection.
func (c *amqpConnection) Channel() (AMQPChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

// dial is a variable that holds the function to establish a connection to RabbitMQ.
// It allows for mocking in tests.
var dial = func(uri string, cfg amqp.Config) (RMQConnection, error) {
	conn, err := amqp.DialConfig(uri, cfg)
	if err != nil {
		return nil, err
	}

	return &amqpConnection{conn}, nil
}
