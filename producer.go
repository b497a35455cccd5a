// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Producer publishes raw payloads to its exchange with the exchange routing key.
type Producer struct {
	*ComponentSupervisor

	appName string
	tracer  trace.Tracer
}

// NewProducer creates a producer with its own broker.
// Call Connect before sending.
func NewProducer(appName string, info *ConnectionInfo, exchange *ExchangeDefinition, config ...BrokerConfig) (*Producer, error) {
	if err := validateExchange(exchange); err != nil {
		return nil, err
	}

	broker, err := newConnectionBroker(info, config...)
	if err != nil {
		return nil, err
	}

	p := newProducer(appName, broker, exchange)
	broker.start()

	return p, nil
}

func newProducer(appName string, broker statusBroker, exchange *ExchangeDefinition) *Producer {
	return &Producer{
		ComponentSupervisor: newComponentSupervisor("producer", broker, exchange),
		appName:             appName,
		tracer:              otel.Tracer("amqplink-producer"),
	}
}

// Send publishes body. The delivery mode and extra headers can be set with an OptionsBuilder:
//
//	err := producer.Send(ctx, body, amqplink.NewOption().WithDeliveryModePersistent().Build()...)
//
// The trace context of ctx travels in the message headers.
// Send fails with ErrConnectionBroken while the producer is not connected.
func (p *Producer) Send(ctx context.Context, body []byte, options ...*Option) error {
	ctx, span := NewProducerSpan(ctx, p.tracer, p.exchange.name)
	defer span.End()

	headers := amqp.Table{}
	deliveryMode := amqp.Transient
	contentType := "application/octet-stream"
	expiration := ""

	for _, opt := range options {
		if opt == nil {
			continue
		}

		switch opt.Key {
		case OptionDeliveryModeKey:
			if mode, ok := opt.Value.(uint8); ok {
				deliveryMode = mode
			}
		case OptionContentTypeKey:
			if ct, ok := opt.Value.(string); ok && ct != "" {
				contentType = ct
			}
		case OptionExpirationKey:
			if exp, ok := opt.Value.(string); ok {
				expiration = exp
			}
		case OptionHeadersKey:
			if h, ok := opt.Value.(map[string]any); ok {
				for k, v := range h {
					headers[k] = v
				}
			}
		}
	}

	AMQPPropagator.Inject(ctx, AMQPHeader(headers))

	msg := amqp.Publishing{
		Headers:      headers,
		ContentType:  contentType,
		DeliveryMode: deliveryMode,
		Expiration:   expiration,
		MessageId:    newMessageID(),
		AppId:        p.appName,
		Timestamp:    time.Now(),
		Body:         body,
	}

	err := p.withChannel(func(ch AMQPChannel) error {
		if err := ch.PublishWithContext(ctx, p.exchange.name, p.exchange.routingKey, false, false, msg); err != nil {
			return ErrPublish.wrap(fmt.Sprintf("failure to publish to exchange %q", p.exchange.name), err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")

		logrus.
			WithContext(ctx).
			WithError(err).
			WithField("exchange", p.exchange.name).
			Error("amqplink failure to publish message")

		return err
	}

	logrus.
		WithContext(ctx).
		WithField("exchange", p.exchange.name).
		WithField("messageId", msg.MessageId).
		Debug("amqplink message published")

	return nil
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
