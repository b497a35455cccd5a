// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type (
	// statusBroker is what a ComponentSupervisor needs from its broker.
	// *ConnectionBroker implements it.
	statusBroker interface {
		CreateChannel() (AMQPChannel, error)
		IsConnected() bool
		Subscribe(listener StatusListener) SubscriptionID
		Unsubscribe(id SubscriptionID)
		Shutdown()
		ConnectionInfo() ConnectionInfo
	}

	// ComponentSupervisor owns the channel of one producer or consumer.
	//
	// It opens the channel through its broker, declares its exchange right after the
	// channel opens and closes the channel again whenever the broker connection or the
	// channel itself goes away. Once Connect has been called the supervisor reconnects on
	// its own each time the broker reports a new connection, until Disconnect or Shutdown.
	//
	// Every broker status event is forwarded unchanged to the supervisor listeners,
	// together with the StatusDisconnected events of its own channel.
	ComponentSupervisor struct {
		name     string
		broker   statusBroker
		exchange *ExchangeDefinition

		// onOpen runs once the exchange is declared on a new channel,
		// onClose right before the channel is closed. Both run under mu.
		onOpen  func(ch AMQPChannel) error
		onClose func()

		mu         sync.Mutex
		connected  bool
		wanted     bool
		terminated bool
		details    string
		channel    AMQPChannel

		relay     *eventRelay
		brokerSub SubscriptionID
		shutdown  sync.Once
		done      chan struct{}
	}
)

// NewComponentSupervisor creates a broker for info and a supervisor declaring exchange on
// the channels it opens. The supervisor stays disconnected until Connect is called.
func NewComponentSupervisor(info *ConnectionInfo, exchange *ExchangeDefinition, config ...BrokerConfig) (*ComponentSupervisor, error) {
	if err := validateExchange(exchange); err != nil {
		return nil, err
	}

	broker, err := newConnectionBroker(info, config...)
	if err != nil {
		return nil, err
	}

	s := newComponentSupervisor("supervisor", broker, exchange)
	broker.start()

	return s, nil
}

func newComponentSupervisor(name string, broker statusBroker, exchange *ExchangeDefinition) *ComponentSupervisor {
	s := &ComponentSupervisor{
		name:     name,
		broker:   broker,
		exchange: exchange,
		relay:    newEventRelay(name),
		done:     make(chan struct{}),
	}

	s.brokerSub = broker.Subscribe(s.onBrokerEvent)

	return s
}

func validateExchange(exchange *ExchangeDefinition) error {
	if exchange == nil || exchange.name == "" {
		return ErrInvalidExchange
	}

	return nil
}

// Connect opens a channel, declares the exchange and runs the role specific setup.
// It fails with ErrConnectionBroken when the broker has no connection; the supervisor
// then connects by itself as soon as the broker reports one.
func (s *ComponentSupervisor) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return ErrConnectionBroken.wrap(fmt.Sprintf("%s is shut down", s.name), nil)
	}

	s.wanted = true

	return s.connectLocked()
}

// Disconnect closes the channel and stops reconnecting on broker events.
func (s *ComponentSupervisor) Disconnect(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wanted = false
	s.disconnectLocked(reason)
}

// Shutdown disconnects, then detaches from the broker and shuts it down.
// The supervisor listeners receive a final StatusShutdown. Calling it again is a no-op.
func (s *ComponentSupervisor) Shutdown(reason string) {
	s.shutdown.Do(func() {
		if reason == "" {
			reason = fmt.Sprintf("%s shut down", s.name)
		}

		s.mu.Lock()
		s.terminated = true
		s.wanted = false
		s.disconnectLocked(reason)
		s.mu.Unlock()

		close(s.done)

		s.broker.Unsubscribe(s.brokerSub)
		s.broker.Shutdown()

		logrus.WithField("component", s.name).Info("amqplink " + reason)

		s.relay.close(StatusEvent{Status: StatusShutdown, Detail: reason})
	})
}

// IsConnected reports whether the supervisor holds an open channel with its exchange declared.
func (s *ComponentSupervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected
}

// Details returns the reason of the last failure or disconnection.
func (s *ComponentSupervisor) Details() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.details
}

// Subscribe registers a listener for the supervisor status events.
func (s *ComponentSupervisor) Subscribe(listener StatusListener) SubscriptionID {
	return s.relay.subscribe(listener)
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (s *ComponentSupervisor) Unsubscribe(id SubscriptionID) {
	s.relay.unsubscribe(id)
}

func (s *ComponentSupervisor) connectLocked() error {
	if s.connected {
		return nil
	}

	s.disconnectLocked("")

	if !s.broker.IsConnected() {
		info := s.broker.ConnectionInfo()
		err := ErrConnectionBroken.wrap(fmt.Sprintf("connection to %s is broken", info.Host), nil)
		s.details = err.Error()
		return err
	}

	ch, err := s.broker.CreateChannel()
	if err != nil {
		s.details = err.Error()
		return err
	}

	if err := s.init(ch); err != nil {
		s.details = err.Error()
		s.closeChannel(ch)
		return err
	}

	if s.onOpen != nil {
		if err := s.onOpen(ch); err != nil {
			logrus.WithError(err).WithField("component", s.name).Error("amqplink failure to set up channel")
			s.details = err.Error()
			s.closeChannel(ch)
			return err
		}
	}

	s.channel = ch
	s.connected = true
	s.details = ""

	logrus.
		WithField("component", s.name).
		WithField("exchange", s.exchange.name).
		Info("amqplink channel opened")

	return nil
}

// init watches the channel for closure and declares the exchange.
func (s *ComponentSupervisor) init(ch AMQPChannel) error {
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go s.watchChannel(ch, closed)

	if err := s.exchange.declare(ch); err != nil {
		logrus.
			WithError(err).
			WithField("exchange", s.exchange.name).
			Error("amqplink failure to declare exchange")

		return ErrExchangeCreate.wrap(fmt.Sprintf("failure to declare exchange %q", s.exchange.name), err)
	}

	return nil
}

func (s *ComponentSupervisor) watchChannel(ch AMQPChannel, closed <-chan *amqp.Error) {
	err, ok := <-closed

	reason := "channel closed"
	if ok && err != nil {
		reason = fmt.Sprintf("channel closed: %s", err.Error())
	}

	s.channelLost(ch, reason)
}

// channelLost disconnects when ch is still the current channel.
// Closures of channels already replaced or closed by the supervisor are ignored.
func (s *ComponentSupervisor) channelLost(ch AMQPChannel, reason string) {
	s.mu.Lock()
	if s.terminated || s.channel != ch {
		s.mu.Unlock()
		return
	}
	s.disconnectLocked(reason)
	s.mu.Unlock()

	logrus.WithField("component", s.name).Warn("amqplink " + reason)

	// a broker drop is reported by the broker itself
	if s.broker.IsConnected() {
		s.relay.emit(StatusEvent{Status: StatusDisconnected, Detail: reason})
	}
}

func (s *ComponentSupervisor) disconnectLocked(reason string) {
	if s.channel != nil {
		ch := s.channel
		s.channel = nil

		if s.onClose != nil {
			s.onClose()
		}

		s.closeChannel(ch)
	}

	s.connected = false
	if reason != "" {
		s.details = reason
	}
}

func (s *ComponentSupervisor) closeChannel(ch AMQPChannel) {
	if ch.IsClosed() {
		return
	}

	if err := ch.Close(); err != nil {
		closeErr := ErrChannelClose.wrap(fmt.Sprintf("failure to close channel of %s", s.name), err)
		logrus.WithError(closeErr).WithField("component", s.name).Warn("amqplink failure to close channel")
	}
}

// withChannel runs fn with the current channel, holding the supervisor lock.
func (s *ComponentSupervisor) withChannel(fn func(ch AMQPChannel) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.channel == nil {
		return ErrConnectionBroken.wrap(fmt.Sprintf("%s is not connected", s.name), nil)
	}

	return fn(s.channel)
}

func (s *ComponentSupervisor) onBrokerEvent(event StatusEvent) {
	s.mu.Lock()
	if !s.terminated {
		switch event.Status {
		case StatusDisconnected, StatusCreationFailed, StatusRecoveryFailed, StatusShutdown:
			s.disconnectLocked(event.Detail)
		case StatusCreated, StatusRecoveryCompleted:
			if s.wanted {
				if err := s.connectLocked(); err != nil {
					logrus.WithError(err).WithField("component", s.name).Error("amqplink failure to reconnect")
				}
			}
		}
	}
	s.mu.Unlock()

	s.relay.emit(event)
}
