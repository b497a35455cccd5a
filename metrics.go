// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "amqplink",
		Name:      "connection_attempts_total",
		Help:      "Connection attempts made by the broker monitors, by broker address and result.",
	}, []string{"address", "result"})

	statusEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "amqplink",
		Name:      "status_events_total",
		Help:      "Status events emitted, by source and status.",
	}, []string{"source", "status"})

	connectionUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "amqplink",
		Name:      "connection_up",
		Help:      "Number of established broker connections, by broker address.",
	}, []string{"address"})
)

// RegisterMetrics registers the amqplink collectors on reg.
// Registering twice on the same registerer is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{connectionAttemptsTotal, statusEventsTotal, connectionUp} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}

	return nil
}
