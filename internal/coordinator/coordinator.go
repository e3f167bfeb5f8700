// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coordinator implements the single-threaded main loop that
// fairly services the five subsystems in a fixed priority order each
// turn, detects global termination, and backs off when idle, per
// spec.md §4.9.
package coordinator

import (
	"log"
	"time"

	"github.com/cloudgfe/host-bridge/internal/metrics"
	"github.com/cloudgfe/host-bridge/internal/subsystem"
)

// IdleBackoff is the sleep applied when no subsystem did work on a turn,
// so the coordinator does not spin a CPU core at 100% while genuinely
// idle (spec.md §4.9's "sleeping is optional" suggestion, applied
// conservatively).
const IdleBackoff = 200 * time.Microsecond

// QueueStat is one paired queue's occupancy, reported by Coordinator's
// optional QueueStats hook for the bridge_queue_occupancy gauge.
type QueueStat struct {
	Queue     string
	Direction string
	Occupancy int
}

// CreditStat is one host->HW queue's remaining send credit, reported by
// Coordinator's optional CreditStats hook for the bridge_credit_remaining
// gauge.
type CreditStat struct {
	Queue     string
	Remaining int
}

// Coordinator drives one turn at a time over the five subsystems in the
// fixed priority order spec.md §4.9 mandates: virtio first (it may
// preempt the rest of the turn on useful work), then terminal, PC-trace,
// run-control, and the debug-module bridge last.
type Coordinator struct {
	RunControl  *subsystem.RunControl
	Terminal    *subsystem.Terminal
	PCTrace     *subsystem.PCTrace
	Virtio      *subsystem.VirtioBridge
	DebugModule *subsystem.DebugModuleBridge
	Log         *log.Logger

	// Metrics is optional; when set, each subsystem's turn-count counter
	// is incremented whenever its Step reports useful work, and
	// QueueStats/CreditStats (if set) are polled once per turn to refresh
	// the queue-occupancy and credit gauges.
	Metrics     *metrics.Registry
	QueueStats  func() []QueueStat
	CreditStats func() []CreditStat

	idleIterations int
}

// New constructs a Coordinator over the given subsystem set. Any subsystem
// pointer except rc may be nil to disable that subsystem (e.g. no virtio
// device attached), in which case its turn is simply skipped. rc must be
// non-nil: Run checks it for termination and every subsystem error is
// raised through it.
func New(rc *subsystem.RunControl, term *subsystem.Terminal, pct *subsystem.PCTrace, virtio *subsystem.VirtioBridge, dbg *subsystem.DebugModuleBridge, logger *log.Logger) *Coordinator {
	return &Coordinator{RunControl: rc, Terminal: term, PCTrace: pct, Virtio: virtio, DebugModule: dbg, Log: logger}
}

// countTurn increments the named subsystem's turn counter if metrics
// collection is enabled and the turn actually did work.
func (c *Coordinator) countTurn(name string, did bool) {
	if c.Metrics == nil || !did {
		return
	}
	c.Metrics.SubsystemTurns.WithLabelValues(name).Inc()
}

// updateQueueMetrics refreshes the queue-occupancy and credit gauges from
// QueueStats/CreditStats, if metrics collection and the corresponding hook
// are both set.
func (c *Coordinator) updateQueueMetrics() {
	if c.Metrics == nil {
		return
	}
	if c.QueueStats != nil {
		for _, s := range c.QueueStats() {
			c.Metrics.QueueOccupancy.WithLabelValues(s.Queue, s.Direction).Set(float64(s.Occupancy))
		}
	}
	if c.CreditStats != nil {
		for _, s := range c.CreditStats() {
			c.Metrics.CreditRemaining.WithLabelValues(s.Queue).Set(float64(s.Remaining))
		}
	}
}

// Run executes turns until the run-control subsystem's grace window has
// elapsed after termination, then emits the final shutdown word and
// returns the process exit code.
func (c *Coordinator) Run() (int, error) {
	for {
		now := time.Now()

		if c.RunControl.Terminating && c.RunControl.GraceElapsed(now) {
			if err := c.RunControl.EmitShutdown(); err != nil {
				c.Log.Printf("shutdown word: %v", err)
			}
			return c.RunControl.ExitCode(), nil
		}

		if c.turn(now) {
			continue
		}

		c.idleIterations++
		time.Sleep(IdleBackoff)
	}
}

// turn runs exactly one pass over the subsystems in priority order,
// returning true if any subsystem did useful work. When virtio did work
// the pass ends there, before the lower-priority subsystems are visited
// (spec.md §4.9 step 2), and the caller re-enters immediately. Per spec.md §7's
// propagation policy, any subsystem error is logged and converted into a
// fatal termination rather than propagated or silently dropped.
func (c *Coordinator) turn(now time.Time) bool {
	c.updateQueueMetrics()
	anyWork := false

	if c.Virtio != nil {
		did, err := c.Virtio.Step()
		if err != nil {
			c.Log.Printf("virtio: %v", err)
			c.RunControl.Fault(now)
		}
		c.countTurn("virtio", did)
		if did {
			return true
		}
	}

	if c.Terminal != nil {
		did, err := c.Terminal.Step()
		if err != nil {
			c.Log.Printf("terminal: %v", err)
			c.RunControl.Fault(now)
		}
		c.countTurn("terminal", did)
		anyWork = anyWork || did
	}

	if c.PCTrace != nil {
		did, err := c.PCTrace.Step()
		if err != nil {
			c.Log.Printf("pc-trace: %v", err)
			c.RunControl.Fault(now)
		}
		c.countTurn("pctrace", did)
		anyWork = anyWork || did
	}

	if c.RunControl != nil {
		did, err := c.RunControl.Step(now)
		if err != nil {
			c.Log.Printf("run-control: %v", err)
			c.RunControl.Fault(now)
		}
		c.countTurn("runcontrol", did)
		anyWork = anyWork || did
	}

	if c.DebugModule != nil {
		did, err := c.DebugModule.Step()
		if err != nil {
			c.Log.Printf("debug-module: %v", err)
			c.RunControl.Fault(now)
		}
		c.countTurn("debugmodule", did)
		anyWork = anyWork || did
	}

	return anyWork
}
