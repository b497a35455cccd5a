// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import amqp "github.com/rabbitmq/amqp091-go"

type (
	// ExchangeKind is the RabbitMQ exchange type.
	ExchangeKind string

	// ExchangeDefinition describes the single exchange a component declares on its channel.
	// By default exchanges are transient and auto-deleted, mirroring the properties a
	// component gets when nothing is configured.
	ExchangeDefinition struct {
		name       string
		kind       ExchangeKind
		durable    bool
		delete     bool
		routingKey string
		params     map[string]any
	}
)

const (
	FanoutExchange          ExchangeKind = "fanout"
	DirectExchange          ExchangeKind = "direct"
	TopicExchange           ExchangeKind = "topic"
	HeadersExchange         ExchangeKind = "headers"
	XDelayedMessageExchange ExchangeKind = "x-delayed-message"
)

func (k ExchangeKind) String() string {
	return string(k)
}

// NewExchange creates a transient, auto-deleted exchange definition of the given kind.
//
// Example usage:
//
//	exchange := amqplink.NewExchange("orders", amqplink.TopicExchange).
//		Durable(true).
//		Delete(false).
//		RoutingKey("order.created")
func NewExchange(name string, kind ExchangeKind) *ExchangeDefinition {
	return &ExchangeDefinition{name: name, kind: kind, durable: false, delete: true}
}

// NewDirectExchange creates a direct exchange definition.
func NewDirectExchange(name string) *ExchangeDefinition {
	return NewExchange(name, DirectExchange)
}

// NewFanoutExchange creates a fanout exchange definition.
func NewFanoutExchange(name string) *ExchangeDefinition {
	return NewExchange(name, FanoutExchange)
}

// NewTopicExchange creates a topic exchange definition.
func NewTopicExchange(name string) *ExchangeDefinition {
	return NewExchange(name, TopicExchange)
}

// NewHeadersExchange creates a headers exchange definition.
func NewHeadersExchange(name string) *ExchangeDefinition {
	return NewExchange(name, HeadersExchange)
}

func NewDirectExchanges(names []string) []*ExchangeDefinition {
	return newExchanges(names, DirectExchange)
}

func NewFanoutExchanges(names []string) []*ExchangeDefinition {
	return newExchanges(names, FanoutExchange)
}

func newExchanges(names []string, kind ExchangeKind) []*ExchangeDefinition {
	exchanges := make([]*ExchangeDefinition, 0, len(names))
	for _, name := range names {
		exchanges = append(exchanges, NewExchange(name, kind))
	}

	return exchanges
}

// Durable sets whether the exchange survives broker restarts.
func (e *ExchangeDefinition) Durable(d bool) *ExchangeDefinition {
	e.durable = d
	return e
}

// Delete sets whether the exchange is removed once no queue is bound to it.
func (e *ExchangeDefinition) Delete(d bool) *ExchangeDefinition {
	e.delete = d
	return e
}

// Params sets the extra arguments sent with the declaration.
func (e *ExchangeDefinition) Params(p map[string]any) *ExchangeDefinition {
	e.params = p
	return e
}

// RoutingKey sets the key producers publish with and consumers bind their queue with.
func (e *ExchangeDefinition) RoutingKey(key string) *ExchangeDefinition {
	e.routingKey = key
	return e
}

func (e *ExchangeDefinition) Name() string {
	return e.name
}

func (e *ExchangeDefinition) Kind() ExchangeKind {
	return e.kind
}

func (e *ExchangeDefinition) Key() string {
	return e.routingKey
}

// declare declares the exchange on ch.
func (e *ExchangeDefinition) declare(ch AMQPChannel) error {
	return ch.ExchangeDeclare(e.name, e.kind.String(), e.durable, e.delete, false, false, amqp.Table(e.params))
}
