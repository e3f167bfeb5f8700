// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes bridge runtime counters as Prometheus gauges
// and counters, serveable either over the registry's own HTTP handler or
// rendered directly in text exposition format, mirroring
// cmd/tcgdiskstat's metricCollector/expfmt pairing.
package metrics

import (
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Registry bundles the gauges/counters the coordinator and queue layers
// update every turn.
type Registry struct {
	reg *prometheus.Registry

	QueueOccupancy  *prometheus.GaugeVec
	CreditRemaining *prometheus.GaugeVec
	SubsystemTurns  *prometheus.CounterVec
	PollTimeouts    prometheus.Counter
}

// New constructs a Registry with every metric registered.
func New() *Registry {
	r := &Registry{reg: prometheus.NewPedanticRegistry()}

	r.QueueOccupancy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridge_queue_occupancy",
		Help: "Number of records currently buffered in a paired queue.",
	}, []string{"queue", "direction"})

	r.CreditRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridge_credit_remaining",
		Help: "Sender-side credit remaining for a host->HW queue type.",
	}, []string{"queue"})

	r.SubsystemTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_subsystem_turns_total",
		Help: "Coordinator turns in which a subsystem reported useful work.",
	}, []string{"subsystem"})

	r.PollTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridge_poll_timeouts_total",
		Help: "chan_put busy-polls that exceeded MaxSpin without the HW side asserting avail.",
	})

	r.reg.MustRegister(r.QueueOccupancy, r.CreditRemaining, r.SubsystemTurns, r.PollTimeouts)
	return r
}

// Handler returns the standard Prometheus-scrape HTTP handler for
// --metrics-addr, mirroring the registry/handler split client_golang's
// own examples use.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// WriteText renders every registered metric family in the Prometheus text
// exposition format, for the --debug-dump-style fallback path when no
// HTTP listener is running, mirroring cmd/tcgdiskstat's direct expfmt use.
func (r *Registry) WriteText(w io.Writer) error {
	mfs, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: encode: %w", err)
		}
	}
	return nil
}
