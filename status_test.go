// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder collects status events delivered to a listener.
type eventRecorder struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (r *eventRecorder) listener(event StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusEvent(nil), r.events...)
}

func (r *eventRecorder) statuses() []ConnectionStatus {
	var statuses []ConnectionStatus
	for _, e := range r.all() {
		statuses = append(statuses, e.Status)
	}
	return statuses
}

func (r *eventRecorder) count(status ConnectionStatus) int {
	n := 0
	for _, e := range r.all() {
		if e.Status == status {
			n++
		}
	}
	return n
}

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status   ConnectionStatus
		expected string
	}{
		{status: StatusCreated, expected: "created"},
		{status: StatusCreationFailed, expected: "creation-failed"},
		{status: StatusDisconnected, expected: "disconnected"},
		{status: StatusRecoveryStarted, expected: "recovery-started"},
		{status: StatusRecoveryCompleted, expected: "recovery-completed"},
		{status: StatusRecoveryFailed, expected: "recovery-failed"},
		{status: StatusShutdown, expected: "shutdown"},
		{status: ConnectionStatus(0), expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestEventRelay_DeliversInOrder(t *testing.T) {
	relay := newEventRelay("test")
	first, second := &eventRecorder{}, &eventRecorder{}
	relay.subscribe(first.listener)
	relay.subscribe(second.listener)

	expected := []ConnectionStatus{StatusCreationFailed, StatusCreated, StatusDisconnected, StatusRecoveryStarted, StatusRecoveryCompleted}
	for _, s := range expected {
		require.True(t, relay.emit(StatusEvent{Status: s}))
	}

	require.Eventually(t, func() bool { return len(second.all()) == len(expected) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, expected, first.statuses())
	assert.Equal(t, expected, second.statuses())
}

func TestEventRelay_Unsubscribe(t *testing.T) {
	relay := newEventRelay("test")
	kept, removed := &eventRecorder{}, &eventRecorder{}
	relay.subscribe(kept.listener)
	id := relay.subscribe(removed.listener)

	relay.unsubscribe(id)
	relay.unsubscribe(id)
	relay.emit(StatusEvent{Status: StatusCreated})

	require.Eventually(t, func() bool { return len(kept.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, removed.all())
}

func TestEventRelay_CloseDeliversFinalEventThenDropsListeners(t *testing.T) {
	relay := newEventRelay("test")
	rec := &eventRecorder{}
	relay.subscribe(rec.listener)

	relay.emit(StatusEvent{Status: StatusCreated})
	relay.close(StatusEvent{Status: StatusShutdown, Detail: "bye"})
	relay.close(StatusEvent{Status: StatusShutdown, Detail: "again"})

	select {
	case <-relay.done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after close")
	}

	assert.Equal(t, []StatusEvent{{Status: StatusCreated}, {Status: StatusShutdown, Detail: "bye"}}, rec.all())
	assert.False(t, relay.emit(StatusEvent{Status: StatusCreated}))
	assert.Empty(t, relay.listeners)
}

func TestEventRelay_ListenerMayCallBack(t *testing.T) {
	relay := newEventRelay("test")
	rec := &eventRecorder{}

	relay.subscribe(func(e StatusEvent) {
		if e.Status == StatusCreated {
			// emitting and closing from a listener must not deadlock
			relay.emit(StatusEvent{Status: StatusDisconnected})
			relay.close(StatusEvent{Status: StatusShutdown})
		}
	})
	relay.subscribe(rec.listener)

	relay.emit(StatusEvent{Status: StatusCreated})

	select {
	case <-relay.done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Equal(t, []ConnectionStatus{StatusCreated, StatusDisconnected, StatusShutdown}, rec.statuses())
}

func TestEventRelay_RecoversListenerPanic(t *testing.T) {
	relay := newEventRelay("test")
	rec := &eventRecorder{}

	relay.subscribe(func(StatusEvent) { panic("listener failure") })
	relay.subscribe(rec.listener)

	relay.emit(StatusEvent{Status: StatusCreated})
	relay.emit(StatusEvent{Status: StatusDisconnected})

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
}
