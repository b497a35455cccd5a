// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type (
	// OptionKey names a publishing option understood by Producer.Send.
	OptionKey string

	// Option is a single publishing option.
	Option struct {
		Key   OptionKey
		Value any
	}

	// OptionsBuilder accumulates publishing options.
	OptionsBuilder struct {
		options []*Option
	}
)

const (
	OptionDeliveryModeKey OptionKey = "DeliveryMode"
	OptionHeadersKey      OptionKey = "Headers"
	OptionContentTypeKey  OptionKey = "ContentType"
	OptionExpirationKey   OptionKey = "Expiration"
)

func NewOption() *OptionsBuilder {
	return &OptionsBuilder{options: []*Option{}}
}

func (b *OptionsBuilder) WithOption(option *Option) *OptionsBuilder {
	b.options = append(b.options, option)
	return b
}

func (b *OptionsBuilder) WithDeliveryMode(deliveryMode uint8) *OptionsBuilder {
	b.options = append(b.options, &Option{Key: OptionDeliveryModeKey, Value: deliveryMode})
	return b
}

func (b *OptionsBuilder) WithDeliveryModeTransient() *OptionsBuilder {
	b.options = append(b.options, &Option{Key: OptionDeliveryModeKey, Value: amqp.Transient})
	return b
}

func (b *OptionsBuilder) WithDeliveryModePersistent() *OptionsBuilder {
	b.options = append(b.options, &Option{Key: OptionDeliveryModeKey, Value: amqp.Persistent})
	return b
}

func (b *OptionsBuilder) WithHeaders(headers map[string]any) *OptionsBuilder {
	b.options = append(b.options, &Option{Key: OptionHeadersKey, Value: headers})
	return b
}

// WithContentType overrides the default "application/octet-stream" content type.
func (b *OptionsBuilder) WithContentType(contentType string) *OptionsBuilder {
	b.options = append(b.options, &Option{Key: OptionContentTypeKey, Value: contentType})
	return b
}

// WithExpiration sets a per message TTL. The server drops the message once it expires.
func (b *OptionsBuilder) WithExpiration(ttl time.Duration) *OptionsBuilder {
	b.options = append(b.options, &Option{Key: OptionExpirationKey, Value: strconv.FormatInt(ttl.Milliseconds(), 10)})
	return b
}

func (b *OptionsBuilder) Build() []*Option {
	return b.options
}
