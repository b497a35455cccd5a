// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// connectionSink is the part of the broker the monitor is allowed to touch.
	connectionSink interface {
		// IsConnected reports whether the published connection is still open.
		IsConnected() bool

		// publish hands a freshly opened connection over to the broker.
		// It reports false when the broker no longer accepts connections.
		publish(conn RMQConnection) bool

		// emit forwards a status event to the broker listeners.
		emit(event StatusEvent)
	}

	// connectionMonitor (re)opens the broker connection on a fixed cadence.
	// Every field below the channel set is owned by the monitor goroutine.
	connectionMonitor struct {
		info   ConnectionInfo
		cfg    BrokerConfig
		sink   connectionSink
		tracer trace.Tracer

		ctx    context.Context
		cancel context.CancelFunc
		done   chan struct{}

		started  atomic.Bool
		attempts atomic.Int64
		// live is set while the published connection is counted in connectionUp.
		live atomic.Bool

		// notify receives the close notification of the published connection.
		notify chan *amqp.Error
		// errorState is set for the length of an unbroken failure streak.
		errorState bool
		// recovering is set once an established connection dropped, until a new one is opened.
		recovering bool
		// recoveryAnnounced is set once StatusRecoveryStarted was emitted for the current recovery.
		recoveryAnnounced bool
	}
)

func newConnectionMonitor(info ConnectionInfo, cfg BrokerConfig, sink connectionSink) *connectionMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &connectionMonitor{
		info:   info,
		cfg:    cfg,
		sink:   sink,
		tracer: otel.Tracer("amqplink-monitor"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (m *connectionMonitor) start() {
	if m.started.Swap(true) {
		return
	}

	go m.run()
}

// stop cancels the monitor and waits for its goroutine to exit, for at most the close timeout.
// No connection attempt starts once stop has been called; an attempt already dialing is
// abandoned by the broker when it completes.
func (m *connectionMonitor) stop() {
	m.cancel()

	if !m.started.Load() {
		return
	}

	select {
	case <-m.done:
	case <-time.After(m.cfg.CloseTimeout):
		logrus.
			WithField("address", m.info.Address()).
			Warn("amqplink connection monitor still dialing, giving up waiting")
	}
}

// attemptCount returns the number of connection attempts made so far.
func (m *connectionMonitor) attemptCount() int64 {
	return m.attempts.Load()
}

func (m *connectionMonitor) run() {
	defer close(m.done)

	logrus.WithField("address", m.info.Address()).Info("amqplink connection monitor started")

	timer := time.NewTimer(m.cfg.PollInterval)
	defer timer.Stop()

	for {
		if m.ctx.Err() != nil {
			break
		}

		m.tick()

		// the poll interval runs from the end of the attempt, however long the dial took
		timer.Reset(m.cfg.PollInterval)
		if !m.wait(timer.C) {
			break
		}
	}

	logrus.WithField("address", m.info.Address()).Info("amqplink connection monitor stopped")
}

// wait blocks until the next attempt is due, reporting connection drops meanwhile.
// It returns false when the monitor is stopped.
func (m *connectionMonitor) wait(due <-chan time.Time) bool {
	for {
		select {
		case <-m.ctx.Done():
			return false
		case <-due:
			return true
		case err, ok := <-m.notify:
			if m.ctx.Err() != nil {
				return false
			}
			m.reportDrop(err, ok)
		}
	}
}

func (m *connectionMonitor) tick() {
	if m.sink.IsConnected() {
		return
	}

	// The connection is gone but its close notification was not received yet.
	if m.notify != nil {
		select {
		case err, ok := <-m.notify:
			m.reportDrop(err, ok)
		default:
			m.reportDrop(nil, false)
		}
	}

	m.attempt()
}

func (m *connectionMonitor) reportDrop(err *amqp.Error, ok bool) {
	m.notify = nil
	m.recovering = true
	m.release()

	detail := fmt.Sprintf("connection to %s closed", m.info.Host)
	if ok && err != nil {
		detail = fmt.Sprintf("connection to %s broken: %s", m.info.Host, err.Error())
	}

	logrus.
		WithField("address", m.info.Address()).
		Warn("amqplink " + detail)

	m.sink.emit(StatusEvent{Status: StatusDisconnected, Detail: detail})
}

func (m *connectionMonitor) attempt() {
	if m.ctx.Err() != nil {
		return
	}

	n := m.attempts.Add(1)

	ctx, span := m.tracer.Start(m.ctx, "amqplink.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("server.address", m.info.Host),
			attribute.Int("server.port", m.info.Port),
			attribute.Bool("amqplink.tls", m.info.TLSEnabled),
			attribute.Int64("amqplink.attempt", n),
		))
	defer span.End()

	if m.recovering && !m.recoveryAnnounced {
		m.recoveryAnnounced = true
		m.sink.emit(StatusEvent{
			Status: StatusRecoveryStarted,
			Detail: fmt.Sprintf("recovering connection to %s", m.info.Host),
		})
	}

	logrus.
		WithContext(ctx).
		WithField("address", m.info.Address()).
		WithField("attempt", n).
		Debug("amqplink connecting to rabbitmq...")

	conn, notify, err := m.connect()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		connectionAttemptsTotal.WithLabelValues(m.info.Address(), "failure").Inc()
		m.fail(ctx, err)
		return
	}

	if !m.sink.publish(conn) {
		logrus.WithContext(ctx).Debug("amqplink broker shut down while dialing, dropping connection")
		_ = conn.Close()
		return
	}

	connectionAttemptsTotal.WithLabelValues(m.info.Address(), "success").Inc()
	if !m.live.Swap(true) {
		connectionUp.WithLabelValues(m.info.Address()).Inc()
	}
	span.SetStatus(codes.Ok, "connected")

	if m.info.TLSEnabled {
		version := tls.VersionName(conn.ConnectionState().Version)
		span.SetAttributes(attribute.String("tls.protocol.version", version))
		logrus.
			WithContext(ctx).
			WithField("address", m.info.Address()).
			WithField("tlsVersion", version).
			Info("amqplink tls session negotiated")
	}

	m.notify = notify
	m.errorState = false

	if m.recovering {
		m.recovering = false
		m.recoveryAnnounced = false
		m.sink.emit(StatusEvent{
			Status: StatusRecoveryCompleted,
			Detail: fmt.Sprintf("connection to %s recovered", m.info.Host),
		})
	}

	msg := fmt.Sprintf("connection established to %s", m.info.Host)
	logrus.WithContext(ctx).WithField("address", m.info.Address()).Info("amqplink " + msg)
	m.sink.emit(StatusEvent{Status: StatusCreated, Detail: msg})
}

// release removes the published connection from connectionUp, at most once per connection.
func (m *connectionMonitor) release() {
	if m.live.Swap(false) {
		connectionUp.WithLabelValues(m.info.Address()).Dec()
	}
}

// fail reports a failed attempt once per failure streak.
func (m *connectionMonitor) fail(ctx context.Context, err error) {
	logrus.
		WithContext(ctx).
		WithError(err).
		WithField("address", m.info.Address()).
		Debug("amqplink connection attempt failed")

	if m.errorState {
		return
	}
	m.errorState = true

	status := StatusCreationFailed
	if m.recovering {
		status = StatusRecoveryFailed
	}

	msg := fmt.Sprintf("failure to establish connection to %s: %s", m.info.Host, err.Error())
	logrus.
		WithContext(ctx).
		WithError(err).
		WithField("address", m.info.Address()).
		Error("amqplink failure to establish connection, retrying every " + m.cfg.PollInterval.String())

	m.sink.emit(StatusEvent{Status: status, Detail: msg})
}

// connect builds the dial configuration, opens the connection and registers its close notification.
func (m *connectionMonitor) connect() (RMQConnection, chan *amqp.Error, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(m.cfg.ConnectionName)

	cfg := amqp.Config{
		Vhost:      m.info.vhost(),
		Heartbeat:  m.cfg.Heartbeat,
		Locale:     "en_US",
		Properties: props,
		Dial:       amqp.DefaultDial(m.cfg.DialTimeout),
	}

	if m.info.TLSEnabled {
		material, err := BuildTLSMaterial(&m.info)
		if err != nil {
			return nil, nil, err
		}

		cfg.TLSClientConfig = material.Config
		if material.External {
			cfg.SASL = []amqp.Authentication{&amqp.ExternalAuth{}}
		}
	}

	if cfg.SASL == nil && m.info.hasUserPassword() {
		cfg.SASL = []amqp.Authentication{&amqp.PlainAuth{Username: m.info.Username, Password: m.info.Password}}
	}

	uri := fmt.Sprintf("%s://%s/", m.info.scheme(), m.info.Address())

	conn, err := dial(uri, cfg)
	if err != nil {
		return nil, nil, err
	}

	notify := conn.NotifyClose(make(chan *amqp.Error, 1))

	return conn, notify, nil
}
