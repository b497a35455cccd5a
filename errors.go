// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import "fmt"

// ErrorKind classifies a TransportError. Two errors of the same kind match with errors.Is.
type ErrorKind string

const (
	CredentialErrorKind       ErrorKind = "credential"
	ConnectionBrokenErrorKind ErrorKind = "connection-broken"
	ChannelCreateErrorKind    ErrorKind = "channel-create"
	ChannelCloseErrorKind     ErrorKind = "channel-close"
	ExchangeCreateErrorKind   ErrorKind = "exchange-create"
	QueueCreateErrorKind      ErrorKind = "queue-create"
	ConsumeErrorKind          ErrorKind = "consume"
	PublishErrorKind          ErrorKind = "publish"
	InvalidHostErrorKind      ErrorKind = "invalid-host"
	InvalidPortErrorKind      ErrorKind = "invalid-port"
	InvalidExchangeErrorKind  ErrorKind = "invalid-exchange"
	InvalidQueueErrorKind     ErrorKind = "invalid-queue"
)

// TransportError represents an error raised by the connection broker, the TLS material
// builder or a component supervisor.
// It carries a kind, a human readable message and, optionally, the underlying cause.
type TransportError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewTransportError creates a new TransportError of the given kind.
func NewTransportError(kind ErrorKind, msg string) *TransportError {
	return &TransportError{Kind: kind, Message: msg}
}

// Error implements the error interface and returns the error message,
// followed by the cause when there is one.
func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Message
	}

	if e.Message == "" {
		return e.Err.Error()
	}

	return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a TransportError of the same kind.
func (e *TransportError) Is(target error) bool {
	t, ok := target.(*TransportError)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// wrap builds a new error of the same kind with a specific message and cause.
func (e *TransportError) wrap(msg string, cause error) *TransportError {
	return &TransportError{Kind: e.Kind, Message: msg, Err: cause}
}

var (
	// ErrCredential is returned when a certificate or keystore cannot be loaded or parsed.
	ErrCredential = NewTransportError(CredentialErrorKind, "failure to load credentials")

	// ErrConnectionBroken is returned when an operation needs a live connection and there is none.
	ErrConnectionBroken = NewTransportError(ConnectionBrokenErrorKind, "connection to the broker is broken")

	// ErrChannelCreate is returned when a channel cannot be opened.
	ErrChannelCreate = NewTransportError(ChannelCreateErrorKind, "failure to create channel")

	// ErrChannelClose is returned when a channel cannot be closed cleanly.
	ErrChannelClose = NewTransportError(ChannelCloseErrorKind, "failure to close channel")

	// ErrExchangeCreate is returned when the exchange declaration fails.
	ErrExchangeCreate = NewTransportError(ExchangeCreateErrorKind, "failure to declare exchange")

	// ErrQueueCreate is returned when the queue declaration or binding fails.
	ErrQueueCreate = NewTransportError(QueueCreateErrorKind, "failure to declare queue")

	// ErrConsume is returned when a consumer cannot be started or its delivery stream ended.
	ErrConsume = NewTransportError(ConsumeErrorKind, "failure to consume")

	// ErrPublish is returned when a message cannot be published.
	ErrPublish = NewTransportError(PublishErrorKind, "failure to publish")

	// ErrInvalidHost is returned by ConnectionInfo.Validate when the host is empty.
	ErrInvalidHost = NewTransportError(InvalidHostErrorKind, "connection host cannot be empty")

	// ErrInvalidPort is returned by ConnectionInfo.Validate when the port is out of range.
	ErrInvalidPort = NewTransportError(InvalidPortErrorKind, "connection port must be between 1 and 65535")

	// ErrInvalidExchange is returned when a component is built without an exchange name.
	ErrInvalidExchange = NewTransportError(InvalidExchangeErrorKind, "exchange name cannot be empty")

	// ErrInvalidQueue is returned when a consumer is built without a queue definition.
	ErrInvalidQueue = NewTransportError(InvalidQueueErrorKind, "queue definition cannot be nil")
)
