// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type (
	// BrokerConfig holds the timing and identification settings of a ConnectionBroker.
	// Zero fields fall back to the matching DefaultBrokerConfig value.
	BrokerConfig struct {
		// PollInterval is the fixed delay between two connection attempts.
		PollInterval time.Duration
		// CloseTimeout bounds the connection close on shutdown.
		CloseTimeout time.Duration
		// Heartbeat is the AMQP heartbeat negotiated with the server.
		Heartbeat time.Duration
		// DialTimeout bounds the TCP dial and the AMQP handshake.
		DialTimeout time.Duration
		// ConnectionName is reported to the server as the client connection name.
		ConnectionName string
	}

	// ConnectionBroker owns the physical connection to one RabbitMQ server.
	// A background monitor opens the connection and reopens it whenever it drops;
	// callers create channels on demand and follow the connection through status events.
	ConnectionBroker struct {
		info ConnectionInfo
		cfg  BrokerConfig

		mu     sync.RWMutex
		conn   RMQConnection
		closed bool

		monitor  *connectionMonitor
		relay    *eventRelay
		shutdown sync.Once
	}
)

// DefaultBrokerConfig holds the settings used when none are given.
var DefaultBrokerConfig = BrokerConfig{
	PollInterval:   5 * time.Second,
	CloseTimeout:   5 * time.Second,
	Heartbeat:      10 * time.Second,
	DialTimeout:    30 * time.Second,
	ConnectionName: "amqplink",
}

func (c BrokerConfig) withDefaults() BrokerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultBrokerConfig.PollInterval
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultBrokerConfig.CloseTimeout
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultBrokerConfig.Heartbeat
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultBrokerConfig.DialTimeout
	}
	if c.ConnectionName == "" {
		c.ConnectionName = DefaultBrokerConfig.ConnectionName
	}

	return c
}

// NewConnectionBroker validates info, keeps a private copy of it and starts the
// connection monitor. The first connection attempt is made right away in the background;
// the outcome is reported through StatusCreated or StatusCreationFailed.
// Events emitted before a listener subscribes are not replayed, IsConnected is authoritative.
func NewConnectionBroker(info *ConnectionInfo, config ...BrokerConfig) (*ConnectionBroker, error) {
	b, err := newConnectionBroker(info, config...)
	if err != nil {
		return nil, err
	}

	b.start()

	return b, nil
}

// newConnectionBroker builds a broker whose monitor is not running yet,
// so that listeners can subscribe before the first attempt.
func newConnectionBroker(info *ConnectionInfo, config ...BrokerConfig) (*ConnectionBroker, error) {
	if info == nil {
		return nil, ErrInvalidHost
	}

	if err := info.Validate(); err != nil {
		logrus.WithError(err).Error("amqplink invalid connection info")
		return nil, err
	}

	cfg := DefaultBrokerConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	b := &ConnectionBroker{
		info:  *info,
		cfg:   cfg.withDefaults(),
		relay: newEventRelay("broker"),
	}

	b.monitor = newConnectionMonitor(b.info, b.cfg, b)

	return b, nil
}

func (b *ConnectionBroker) start() {
	b.monitor.start()
}

// ConnectionInfo returns the validated connection settings of the broker.
func (b *ConnectionBroker) ConnectionInfo() ConnectionInfo {
	return b.info
}

// IsConnected reports whether a connection exists and is open.
func (b *ConnectionBroker) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.conn != nil && !b.conn.IsClosed()
}

// CreateChannel opens a new channel on the current connection.
// The channel belongs to the caller, who is responsible for closing it.
func (b *ConnectionBroker) CreateChannel() (AMQPChannel, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.conn == nil || b.conn.IsClosed() {
		cause := ErrConnectionBroken.wrap(fmt.Sprintf("connection to %s is broken", b.info.Host), nil)
		return nil, ErrChannelCreate.wrap(fmt.Sprintf("failure to create channel on %s", b.info.Address()), cause)
	}

	ch, err := b.conn.Channel()
	if err != nil {
		logrus.WithError(err).WithField("address", b.info.Address()).Error("amqplink failure to create channel")
		return nil, ErrChannelCreate.wrap(fmt.Sprintf("failure to create channel on %s", b.info.Address()), err)
	}

	return ch, nil
}

// Subscribe registers a listener for the broker status events.
func (b *ConnectionBroker) Subscribe(listener StatusListener) SubscriptionID {
	return b.relay.subscribe(listener)
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (b *ConnectionBroker) Unsubscribe(id SubscriptionID) {
	b.relay.unsubscribe(id)
}

// Shutdown stops the monitor, closes the connection and emits a final StatusShutdown,
// after which every listener is dropped. Calling Shutdown more than once is a no-op.
func (b *ConnectionBroker) Shutdown() {
	b.shutdown.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.monitor.stop()

		b.mu.Lock()
		conn := b.conn
		b.conn = nil
		b.mu.Unlock()

		if conn != nil && !conn.IsClosed() {
			if err := conn.CloseDeadline(time.Now().Add(b.cfg.CloseTimeout)); err != nil {
				logrus.WithError(err).WithField("address", b.info.Address()).Warn("amqplink failure to close connection")
			}
		}

		b.monitor.release()

		logrus.WithField("address", b.info.Address()).Info("amqplink connection broker shut down")

		b.relay.close(StatusEvent{
			Status: StatusShutdown,
			Detail: fmt.Sprintf("connection to %s shut down", b.info.Host),
		})
	})
}

func (b *ConnectionBroker) publish(conn RMQConnection) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.conn = conn

	return true
}

func (b *ConnectionBroker) emit(event StatusEvent) {
	b.relay.emit(event)
}
