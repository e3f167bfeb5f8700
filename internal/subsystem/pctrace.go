// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package subsystem

import (
	"fmt"
	"io"

	"github.com/cloudgfe/host-bridge/internal/chanmux"
)

// PCTraceRecord is one assembled instruction-trace entry, per spec.md
// §4.8.3's six-word grouping.
type PCTraceRecord struct {
	Cycle   uint64
	Instret uint64
	PC      uint64
}

// PCTrace consumes words from the PC-trace channel, groups them six at a
// time (cycle-lo, cycle-hi, instret-lo, instret-hi, pc-lo, pc-hi), and
// writes one formatted record per group to Sink.
type PCTrace struct {
	Mux  *chanmux.Mux
	Sink io.Writer

	words [6]uint32
	n     int
}

// NewPCTrace constructs a PCTrace subsystem. Sink is an explicit
// io.Writer, never a hardcoded stdout/file choice, per spec.md §9.
func NewPCTrace(mux *chanmux.Mux, sink io.Writer) *PCTrace {
	return &PCTrace{Mux: mux, Sink: sink}
}

// Step non-blocking-dequeues one PC-trace word, emitting a formatted
// record once six have accumulated.
func (p *PCTrace) Step() (bool, error) {
	word, ok, err := p.Mux.GetHW(chanmux.ChanPCTrace)
	if err != nil {
		return false, fmt.Errorf("pc-trace: chan_get_nb: %w", err)
	}
	if !ok {
		return false, nil
	}
	p.words[p.n] = word
	p.n++
	if p.n < 6 {
		return true, nil
	}
	p.n = 0
	rec := PCTraceRecord{
		Cycle:   uint64(p.words[0]) | uint64(p.words[1])<<32,
		Instret: uint64(p.words[2]) | uint64(p.words[3])<<32,
		PC:      uint64(p.words[4]) | uint64(p.words[5])<<32,
	}
	fmt.Fprintf(p.Sink, "cycle=%d  instret=%d  pc=0x%016x\n", rec.Cycle, rec.Instret, rec.PC)
	return true, nil
}
