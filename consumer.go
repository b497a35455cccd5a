// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// ConsumerConfig configures a Consumer.
	ConsumerConfig struct {
		// PrefetchCount is the number of unacknowledged deliveries the server keeps in flight.
		PrefetchCount int
		Broker        BrokerConfig
	}

	// Consumer receives the messages routed to its queue.
	//
	// On every channel it opens it declares the exchange and the queue, binds them with the
	// exchange routing key and starts consuming. Deliveries are handed out one at a time by
	// Receive, which acknowledges them.
	Consumer struct {
		*ComponentSupervisor

		queue    *QueueDefinition
		prefetch int
		tracer   trace.Tracer

		inbox chan amqp.Delivery

		// stop ends the forwarding of the current channel deliveries. Guarded by the supervisor lock.
		stop chan struct{}
	}
)

// DefaultConsumerConfig holds the settings used when none are given.
var DefaultConsumerConfig = ConsumerConfig{
	PrefetchCount: 1,
	Broker:        DefaultBrokerConfig,
}

// NewConsumer creates a consumer with its own broker.
// Call Connect to start consuming.
func NewConsumer(info *ConnectionInfo, exchange *ExchangeDefinition, queue *QueueDefinition, config ...ConsumerConfig) (*Consumer, error) {
	if err := validateExchange(exchange); err != nil {
		return nil, err
	}

	if queue == nil {
		return nil, ErrInvalidQueue
	}

	cfg := DefaultConsumerConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	broker, err := newConnectionBroker(info, cfg.Broker)
	if err != nil {
		return nil, err
	}

	c := newConsumer(broker, exchange, queue, cfg)
	broker.start()

	return c, nil
}

func newConsumer(broker statusBroker, exchange *ExchangeDefinition, queue *QueueDefinition, cfg ConsumerConfig) *Consumer {
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = DefaultConsumerConfig.PrefetchCount
	}

	c := &Consumer{
		queue:    queue,
		prefetch: cfg.PrefetchCount,
		tracer:   otel.Tracer("amqplink-consumer"),
		inbox:    make(chan amqp.Delivery),
	}

	c.ComponentSupervisor = newComponentSupervisor("consumer", broker, exchange)
	c.onOpen = c.open
	c.onClose = c.close

	return c
}

// Receive blocks until the next message arrives and returns its body.
// An empty body is returned as nil.
func (c *Consumer) Receive(ctx context.Context) ([]byte, error) {
	_, body, err := c.ReceiveWithContext(ctx)
	return body, err
}

// ReceiveWithContext is like Receive and also returns a context carrying the consumer span,
// whose parent is the trace context found in the message headers.
func (c *Consumer) ReceiveWithContext(ctx context.Context) (context.Context, []byte, error) {
	var delivery amqp.Delivery

	select {
	case <-ctx.Done():
		return ctx, nil, ctx.Err()
	case <-c.done:
		return ctx, nil, ErrConnectionBroken.wrap("consumer is shut down", nil)
	case delivery = <-c.inbox:
	}

	spanCtx, span := NewConsumerSpan(c.tracer, delivery.Headers, c.queue.name)
	defer span.End()

	if err := delivery.Ack(false); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ack failed")

		logrus.
			WithContext(spanCtx).
			WithError(err).
			WithField("messageId", delivery.MessageId).
			Error("amqplink failure to ack message")

		return spanCtx, nil, ErrConsume.wrap(fmt.Sprintf("failure to ack message from %q", c.queue.name), err)
	}

	logrus.
		WithContext(spanCtx).
		WithField("messageId", delivery.MessageId).
		Debug("amqplink message received")

	if len(delivery.Body) == 0 {
		return spanCtx, nil, nil
	}

	return spanCtx, delivery.Body, nil
}

func (c *Consumer) open(ch AMQPChannel) error {
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return ErrConsume.wrap(fmt.Sprintf("failure to set prefetch count %d", c.prefetch), err)
	}

	q, err := c.queue.declare(ch)
	if err != nil {
		return ErrQueueCreate.wrap(fmt.Sprintf("failure to declare queue %q", c.queue.name), err)
	}

	binding := NewQueueBinding().
		Queue(q.Name).
		Exchange(c.exchange.name).
		RoutingKey(c.exchange.routingKey)

	if err := binding.bind(ch); err != nil {
		return ErrQueueCreate.wrap(fmt.Sprintf("failure to bind queue %q to exchange %q", q.Name, c.exchange.name), err)
	}

	tag := uuid.NewString()
	deliveries, err := ch.Consume(q.Name, tag, false, c.queue.exclusive, false, false, nil)
	if err != nil {
		return ErrConsume.wrap(fmt.Sprintf("failure to consume queue %q", q.Name), err)
	}

	logrus.
		WithField("queue", q.Name).
		WithField("consumerTag", tag).
		Info("amqplink consumer started")

	stop := make(chan struct{})
	c.stop = stop
	go c.forward(ch, deliveries, stop)

	return nil
}

func (c *Consumer) close() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Consumer) forward(ch AMQPChannel, deliveries <-chan amqp.Delivery, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case d, ok := <-deliveries:
			if !ok {
				c.channelLost(ch, fmt.Sprintf("delivery stream of queue %q closed", c.queue.name))
				return
			}

			select {
			case c.inbox <- d:
			case <-stop:
				// unacked deliveries are requeued by the server once the channel closes
				return
			}
		}
	}
}
