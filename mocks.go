// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// =============================================================================
// MockAMQPChannel - Mock implementation of AMQPChannel interface for testing
// =============================================================================

// MockAMQPChannel is a mock implementation of AMQPChannel interface for testing.
// Like a real channel it closes every NotifyClose receiver when it is closed.
type MockAMQPChannel struct {
	mu sync.Mutex

	exchangeDeclareError error
	queueDeclareError    error
	queueDeclareQueue    amqp.Queue
	queueBindError       error
	qosError             error
	consumeError         error
	consumeChannel       chan amqp.Delivery
	publishError         error
	closed               bool
	closeError           error
	notified             bool
	notifyCloseChannels  []chan *amqp.Error

	exchangeDeclares []DeclaredExchange
	queueDeclares    []string
	queueBinds       []BoundQueue
	prefetchCount    int
	consumerTags     []string
	closeCalls       int
	// publishedMessages captures published messages for verification
	publishedMessages []PublishedMessage
}

// DeclaredExchange captures an exchange declaration.
type DeclaredExchange struct {
	Name       string
	Kind       string
	Durable    bool
	AutoDelete bool
	Args       amqp.Table
}

// BoundQueue captures a queue binding.
type BoundQueue struct {
	Queue    string
	Key      string
	Exchange string
}

// PublishedMessage captures the details of a published message
type PublishedMessage struct {
	Exchange   string
	Key        string
	Mandatory  bool
	Immediate  bool
	Publishing amqp.Publishing
}

func NewMockAMQPChannel() *MockAMQPChannel {
	return &MockAMQPChannel{
		queueDeclareQueue: amqp.Queue{Name: "test-queue"},
		consumeChannel:    make(chan amqp.Delivery),
	}
}

func (m *MockAMQPChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exchangeDeclares = append(m.exchangeDeclares, DeclaredExchange{
		Name:       name,
		Kind:       kind,
		Durable:    durable,
		AutoDelete: autoDelete,
		Args:       args,
	})

	return m.exchangeDeclareError
}

func (m *MockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queueDeclareError != nil {
		return amqp.Queue{}, m.queueDeclareError
	}
	m.queueDeclares = append(m.queueDeclares, name)

	queue := m.queueDeclareQueue
	if name != "" {
		queue.Name = name
	}
	return queue, nil
}

func (m *MockAMQPChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queueBindError != nil {
		return m.queueBindError
	}
	m.queueBinds = append(m.queueBinds, BoundQueue{Queue: name, Key: key, Exchange: exchange})
	return nil
}

func (m *MockAMQPChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.qosError != nil {
		return m.qosError
	}
	m.prefetchCount = prefetchCount
	return nil
}

func (m *MockAMQPChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consumeError != nil {
		return nil, m.consumeError
	}
	m.consumerTags = append(m.consumerTags, consumer)
	return m.consumeChannel, nil
}

func (m *MockAMQPChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	// Capture published message for verification in tests
	m.publishedMessages = append(m.publishedMessages, PublishedMessage{
		Exchange:   exchange,
		Key:        key,
		Mandatory:  mandatory,
		Immediate:  immediate,
		Publishing: msg,
	})
	return nil
}

func (m *MockAMQPChannel) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

func (m *MockAMQPChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCalls++
	m.closed = true
	m.closeNotifiersLocked(nil)
	return m.closeError
}

func (m *MockAMQPChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.notified {
		close(receiver)
		return receiver
	}
	m.notifyCloseChannels = append(m.notifyCloseChannels, receiver)
	return receiver
}

func (m *MockAMQPChannel) closeNotifiersLocked(err *amqp.Error) {
	if m.notified {
		return
	}
	m.notified = true

	for _, ch := range m.notifyCloseChannels {
		if err != nil {
			select {
			case ch <- err:
			default:
			}
		}
		close(ch)
	}
}

// Helper methods for testing
func (m *MockAMQPChannel) SetExchangeDeclareError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchangeDeclareError = err
}

func (m *MockAMQPChannel) SetQueueDeclareError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDeclareError = err
}

func (m *MockAMQPChannel) SetQueueBindError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueBindError = err
}

func (m *MockAMQPChannel) SetQosError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qosError = err
}

func (m *MockAMQPChannel) SetConsumeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumeError = err
}

func (m *MockAMQPChannel) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

func (m *MockAMQPChannel) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeError = err
}

// Deliver pushes a delivery to the running consumer, failing after timeout.
func (m *MockAMQPChannel) Deliver(d amqp.Delivery, timeout time.Duration) bool {
	select {
	case m.consumeChannel <- d:
		return true
	case <-time.After(timeout):
		return false
	}
}

// EndDeliveries closes the delivery stream, as the server does when the consumer is cancelled.
func (m *MockAMQPChannel) EndDeliveries() {
	close(m.consumeChannel)
}

// TriggerClose simulates a channel closed by the server.
func (m *MockAMQPChannel) TriggerClose(err *amqp.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.closeNotifiersLocked(err)
}

func (m *MockAMQPChannel) DeclaredExchanges() []DeclaredExchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeclaredExchange(nil), m.exchangeDeclares...)
}

func (m *MockAMQPChannel) DeclaredQueues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queueDeclares...)
}

func (m *MockAMQPChannel) BoundQueues() []BoundQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BoundQueue(nil), m.queueBinds...)
}

func (m *MockAMQPChannel) PrefetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefetchCount
}

func (m *MockAMQPChannel) ConsumerTags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.consumerTags...)
}

func (m *MockAMQPChannel) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// GetPublishedMessages returns all captured published messages
func (m *MockAMQPChannel) GetPublishedMessages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.publishedMessages...)
}

// GetLastPublishedMessage returns the last published message, or nil if none
func (m *MockAMQPChannel) GetLastPublishedMessage() *PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.publishedMessages) == 0 {
		return nil
	}
	msg := m.publishedMessages[len(m.publishedMessages)-1]
	return &msg
}

// =============================================================================
// MockRMQConnection - Mock implementation of RMQConnection interface for testing
// =============================================================================

// MockRMQConnection is a mock implementation of RMQConnection interface for testing
type MockRMQConnection struct {
	mu sync.Mutex

	channels        []*MockAMQPChannel
	connectionState tls.ConnectionState
	closed          bool
	closeError      error
	channelError    error
	notified        bool
	notifyChannels  []chan *amqp.Error
	deadline        time.Time
}

func NewMockRMQConnection() *MockRMQConnection {
	return &MockRMQConnection{}
}

func (m *MockRMQConnection) Channel() (AMQPChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.channelError != nil {
		return nil, m.channelError
	}
	channel := NewMockAMQPChannel()
	m.channels = append(m.channels, channel)
	return channel, nil
}

func (m *MockRMQConnection) ConnectionState() tls.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectionState
}

func (m *MockRMQConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockRMQConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.closeNotifiersLocked(nil)
	return m.closeError
}

func (m *MockRMQConnection) CloseDeadline(deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deadline = deadline
	m.closed = true
	m.closeNotifiersLocked(nil)
	return m.closeError
}

func (m *MockRMQConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.notified {
		close(receiver)
		return receiver
	}
	m.notifyChannels = append(m.notifyChannels, receiver)
	return receiver
}

func (m *MockRMQConnection) closeNotifiersLocked(err *amqp.Error) {
	if m.notified {
		return
	}
	m.notified = true

	for _, ch := range m.notifyChannels {
		if err != nil {
			select {
			case ch <- err:
			default:
			}
		}
		close(ch)
	}
}

// Helper methods for testing
func (m *MockRMQConnection) SetChannelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelError = err
}

func (m *MockRMQConnection) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeError = err
}

func (m *MockRMQConnection) SetConnectionState(state tls.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectionState = state
}

// Channels returns the channels opened so far.
func (m *MockRMQConnection) Channels() []*MockAMQPChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockAMQPChannel(nil), m.channels...)
}

// Deadline returns the deadline given to CloseDeadline.
func (m *MockRMQConnection) Deadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline
}

// TriggerClose simulates a connection dropped by the server.
func (m *MockRMQConnection) TriggerClose(err *amqp.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.closeNotifiersLocked(err)
}

// =============================================================================
// MockBroker - Mock implementation of the broker seen by a ComponentSupervisor
// =============================================================================

// MockBroker is a broker whose connectivity and status events are driven by the test.
type MockBroker struct {
	mu sync.Mutex

	info          ConnectionInfo
	connected     bool
	channelError  error
	channels      []*MockAMQPChannel
	newChannel    func() *MockAMQPChannel
	listeners     map[SubscriptionID]StatusListener
	shutdownCalls int
}

func NewMockBroker() *MockBroker {
	return &MockBroker{
		info:       *NewConnectionInfo("localhost"),
		newChannel: NewMockAMQPChannel,
		listeners:  map[SubscriptionID]StatusListener{},
	}
}

func (m *MockBroker) CreateChannel() (AMQPChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrChannelCreate.wrap("failure to create channel", ErrConnectionBroken)
	}
	if m.channelError != nil {
		return nil, ErrChannelCreate.wrap("failure to create channel", m.channelError)
	}

	ch := m.newChannel()
	m.channels = append(m.channels, ch)
	return ch, nil
}

func (m *MockBroker) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockBroker) Subscribe(listener StatusListener) SubscriptionID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := SubscriptionID(uuid.New())
	m.listeners[id] = listener
	return id
}

func (m *MockBroker) Unsubscribe(id SubscriptionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

func (m *MockBroker) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownCalls++
	m.connected = false
}

func (m *MockBroker) ConnectionInfo() ConnectionInfo {
	return m.info
}

// Helper methods for testing
func (m *MockBroker) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *MockBroker) SetChannelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelError = err
}

// SetChannelFactory replaces the constructor of the channels handed out by CreateChannel.
func (m *MockBroker) SetChannelFactory(factory func() *MockAMQPChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newChannel = factory
}

// Emit delivers event synchronously to every listener.
func (m *MockBroker) Emit(event StatusEvent) {
	m.mu.Lock()
	listeners := make([]StatusListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

func (m *MockBroker) Channels() []*MockAMQPChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockAMQPChannel(nil), m.channels...)
}

// LastChannel returns the most recent channel, or nil if none was created.
func (m *MockBroker) LastChannel() *MockAMQPChannel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.channels) == 0 {
		return nil
	}
	return m.channels[len(m.channels)-1]
}

func (m *MockBroker) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *MockBroker) ShutdownCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdownCalls
}

// =============================================================================
// MockAcknowledger - Mock implementation of acknowledger interface for testing
// =============================================================================

// MockAcknowledger is a mock implementation of acknowledger interface for testing
type MockAcknowledger struct {
	mu sync.Mutex

	ackFunc  func(multiple bool) error
	nackFunc func(multiple, requeue bool) error
	acked    []uint64
}

func (m *MockAcknowledger) Ack(tag uint64, multiple bool) error {
	m.mu.Lock()
	m.acked = append(m.acked, tag)
	m.mu.Unlock()

	if m.ackFunc != nil {
		return m.ackFunc(multiple)
	}
	return nil
}

func (m *MockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	if m.nackFunc != nil {
		return m.nackFunc(multiple, requeue)
	}
	return nil
}

func (m *MockAcknowledger) Reject(tag uint64, requeue bool) error {
	if m.nackFunc != nil {
		return m.nackFunc(false, requeue)
	}
	return nil
}

// Acked returns the delivery tags acknowledged so far.
func (m *MockAcknowledger) Acked() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.acked...)
}
