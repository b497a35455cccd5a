// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConnectionStatus is the kind of a status event emitted by a broker or a component supervisor.
type ConnectionStatus int

const (
	StatusCreated ConnectionStatus = iota + 1
	StatusCreationFailed
	StatusDisconnected
	StatusRecoveryStarted
	StatusRecoveryCompleted
	StatusRecoveryFailed
	StatusShutdown
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusCreationFailed:
		return "creation-failed"
	case StatusDisconnected:
		return "disconnected"
	case StatusRecoveryStarted:
		return "recovery-started"
	case StatusRecoveryCompleted:
		return "recovery-completed"
	case StatusRecoveryFailed:
		return "recovery-failed"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

type (
	// StatusEvent is a status transition with a human readable detail.
	StatusEvent struct {
		Status ConnectionStatus
		Detail string
	}

	// StatusListener receives status events. Listeners of one emitter are called
	// sequentially, in emission order, from a goroutine owned by the emitter.
	StatusListener func(StatusEvent)

	// SubscriptionID identifies a listener registration.
	SubscriptionID uuid.UUID
)

// eventRelay fans status events out to the subscribed listeners.
// Events are queued without bound and delivered by a single goroutine, so emitting
// never blocks and a listener may call back into its emitter, Shutdown included.
type eventRelay struct {
	source string

	mu        sync.Mutex
	listeners map[SubscriptionID]StatusListener
	order     []SubscriptionID
	queue     []StatusEvent
	closed    bool

	wake chan struct{}
	done chan struct{}
}

func newEventRelay(source string) *eventRelay {
	r := &eventRelay{
		source:    source,
		listeners: map[SubscriptionID]StatusListener{},
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	go r.run()

	return r
}

func (r *eventRelay) subscribe(listener StatusListener) SubscriptionID {
	id := SubscriptionID(uuid.New())

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return id
	}

	r.listeners[id] = listener
	r.order = append(r.order, id)

	return id
}

func (r *eventRelay) unsubscribe(id SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[id]; !ok {
		return
	}

	delete(r.listeners, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// emit queues an event. It reports false once the relay has been closed.
func (r *eventRelay) emit(event StatusEvent) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.queue = append(r.queue, event)
	r.mu.Unlock()

	statusEventsTotal.WithLabelValues(r.source, event.Status.String()).Inc()
	r.signal()

	return true
}

// close queues the final event, stops accepting new ones and drops every
// listener once the queue has been drained.
func (r *eventRelay) close(final StatusEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, final)
	r.closed = true
	r.mu.Unlock()

	statusEventsTotal.WithLabelValues(r.source, final.Status.String()).Inc()
	r.signal()
}

func (r *eventRelay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *eventRelay) run() {
	defer close(r.done)

	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.mu.Unlock()
			<-r.wake
			r.mu.Lock()
		}

		if len(r.queue) == 0 {
			r.listeners = map[SubscriptionID]StatusListener{}
			r.order = nil
			r.mu.Unlock()
			return
		}

		event := r.queue[0]
		r.queue = r.queue[1:]

		listeners := make([]StatusListener, 0, len(r.order))
		for _, id := range r.order {
			listeners = append(listeners, r.listeners[id])
		}
		r.mu.Unlock()

		for _, l := range listeners {
			r.deliver(l, event)
		}
	}
}

func (r *eventRelay) deliver(listener StatusListener, event StatusEvent) {
	defer func() {
		if p := recover(); p != nil {
			logrus.
				WithField("source", r.source).
				WithField("status", event.Status.String()).
				Errorf("amqplink status listener panicked: %v", p)
		}
	}()

	listener(event)
}
