// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import amqp "github.com/rabbitmq/amqp091-go"

// QueueBindingDefinition binds a consumer queue to its exchange.
type QueueBindingDefinition struct {
	routingKey string
	queue      string
	exchange   string
	args       map[string]any
}

func NewQueueBinding() *QueueBindingDefinition {
	return &QueueBindingDefinition{}
}

func (b *QueueBindingDefinition) RoutingKey(key string) *QueueBindingDefinition {
	b.routingKey = key
	return b
}

func (b *QueueBindingDefinition) Queue(name string) *QueueBindingDefinition {
	b.queue = name
	return b
}

func (b *QueueBindingDefinition) Exchange(name string) *QueueBindingDefinition {
	b.exchange = name
	return b
}

func (b *QueueBindingDefinition) Args(args map[string]any) *QueueBindingDefinition {
	b.args = args
	return b
}

// bind binds the queue on ch.
func (b *QueueBindingDefinition) bind(ch AMQPChannel) error {
	return ch.QueueBind(b.queue, b.routingKey, b.exchange, false, amqp.Table(b.args))
}
