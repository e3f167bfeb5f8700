// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package subsystem implements the five HW-facing services the coordinator
// pumps each turn: run-control, terminal, PC-trace, the virtio bridge, and
// the debug-module bridge (spec.md §4.8).
package subsystem

import (
	"fmt"
	"log"
	"time"

	"github.com/cloudgfe/host-bridge/internal/chanmux"
)

// RunControlConfig is the sequence of first-pass control words, per
// spec.md §4.8.1. Their bit layout is hardware-specific and out of scope
// for this repository; each is delivered as an opaque 32-bit word.
type RunControlConfig struct {
	VerbosityAndLogDelay uint32
	WatchTohostAddr      uint32
	PCTraceConfig        uint32
	DDR4IsLoaded         uint32
}

// GraceWindow is the fixed delay between a termination condition and the
// final shutdown control word, per spec.md §4.8.1 ("order 100 ms").
const GraceWindow = 100 * time.Millisecond

// TerminationReason records why a run ended.
type TerminationReason int

const (
	NotTerminating TerminationReason = iota
	TerminationTestPass
	TerminationTestFail
	TerminationFatalStatus
)

// StatusWord is status-channel payload, per spec.md §4.8.1.
type StatusWord struct {
	TohostValue uint16
	Flags       uint8
	SocStatus   uint8
}

// DecodeStatusWord unpacks a status-channel word as
// {tohost_value:16, flags:8, soc_status:8}.
func DecodeStatusWord(word uint32) StatusWord {
	return StatusWord{
		TohostValue: uint16(word & 0xFFFF),
		Flags:       uint8((word >> 16) & 0xFF),
		SocStatus:   uint8((word >> 24) & 0xFF),
	}
}

// RunControl is the run-control subsystem's state machine: it emits the
// first-pass configuration sequence, then polls the status channel every
// turn until it observes termination.
type RunControl struct {
	Mux    *chanmux.Mux
	Config RunControlConfig
	Log    *log.Logger

	firstPassStep int
	firstPassDone bool

	Reason          TerminationReason
	FailingTestNum  uint16
	Terminating     bool
	TerminatingAt   time.Time
	shutdownWord    uint32
	shutdownEmitted bool
}

// NewRunControl constructs a RunControl subsystem.
func NewRunControl(mux *chanmux.Mux, cfg RunControlConfig, logger *log.Logger) *RunControl {
	return &RunControl{Mux: mux, Config: cfg, Log: logger, shutdownWord: 0xFFFFFFFF}
}

// Step runs one coordinator turn: while the first-pass sequence is still
// being emitted it sends the next control word; once it is passive it
// polls the status channel and raises Terminating accordingly.
func (r *RunControl) Step(now time.Time) (bool, error) {
	if !r.firstPassDone {
		return true, r.stepFirstPass()
	}
	if r.Terminating {
		return false, nil
	}
	word, ok, err := r.Mux.GetHW(chanmux.ChanStatus)
	if err != nil {
		return false, fmt.Errorf("run-control: status poll: %w", err)
	}
	if !ok {
		return false, nil
	}
	status := DecodeStatusWord(word)
	switch {
	case status.SocStatus != 0:
		r.raiseTermination(TerminationFatalStatus, now)
		r.Log.Printf("fatal soc_status=0x%x tohost=0x%x", status.SocStatus, status.TohostValue)
	case status.TohostValue != 0:
		if status.TohostValue == 1 {
			r.raiseTermination(TerminationTestPass, now)
		} else {
			r.FailingTestNum = status.TohostValue >> 1
			r.raiseTermination(TerminationTestFail, now)
			r.Log.Printf("test failed, test number %d", r.FailingTestNum)
		}
	}
	return true, nil
}

func (r *RunControl) stepFirstPass() error {
	words := []uint32{
		r.Config.VerbosityAndLogDelay,
		r.Config.WatchTohostAddr,
		r.Config.PCTraceConfig,
		r.Config.DDR4IsLoaded,
	}
	if r.firstPassStep >= len(words) {
		r.firstPassDone = true
		return nil
	}
	if err := r.Mux.PutHost(chanmux.ChanControl, words[r.firstPassStep]); err != nil {
		return fmt.Errorf("run-control: first-pass word %d: %w", r.firstPassStep, err)
	}
	r.firstPassStep++
	if r.firstPassStep >= len(words) {
		r.firstPassDone = true
	}
	return nil
}

func (r *RunControl) raiseTermination(reason TerminationReason, now time.Time) {
	if r.Terminating {
		return
	}
	r.Reason = reason
	r.Terminating = true
	r.TerminatingAt = now
}

// Fault raises termination with TerminationFatalStatus, for the
// coordinator to call when a subsystem turn reports an error: per spec.md
// §7's propagation policy, every subsystem error becomes a log line and
// terminating=true, never a swallowed error or a propagated exception.
func (r *RunControl) Fault(now time.Time) {
	r.raiseTermination(TerminationFatalStatus, now)
}

// GraceElapsed reports whether the grace window since termination was
// raised has passed.
func (r *RunControl) GraceElapsed(now time.Time) bool {
	return r.Terminating && now.Sub(r.TerminatingAt) >= GraceWindow
}

// EmitShutdown sends the final shutdown control word once, per spec.md
// §4.8.1's termination protocol.
func (r *RunControl) EmitShutdown() error {
	if r.shutdownEmitted {
		return nil
	}
	if err := r.Mux.PutHost(chanmux.ChanControl, r.shutdownWord); err != nil {
		return fmt.Errorf("run-control: shutdown word: %w", err)
	}
	r.shutdownEmitted = true
	return nil
}

// ExitCode reports the process exit code implied by the termination
// reason, per spec.md §7's "TEST PASSED"/"TEST FAILED" user-visible rule.
func (r *RunControl) ExitCode() int {
	if r.Reason == TerminationTestPass {
		return 0
	}
	return 1
}
