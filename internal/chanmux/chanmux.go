// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chanmux implements the channel multiplexer: on top of a single
// peek/poke register window, it exposes the bank of independent,
// unidirectional FIFO "channels" that every subsystem service is built
// from, per spec.md §4.7.
package chanmux

import (
	"fmt"

	"github.com/cloudgfe/host-bridge/internal/bridgeerr"
	"github.com/cloudgfe/host-bridge/internal/metrics"
)

// RegisterAccess is the single-beat register interface the multiplexer is
// built on — satisfied by *busaxi.Adapter in production and by a trivial
// in-memory fake in tests, so chanmux and its callers never need the full
// credit/framing/transport stack to exercise channel logic.
type RegisterAccess interface {
	Peek(address uint32) (uint32, error)
	Poke(address uint32, word uint32) error
}

// Base addresses for the two FIFO banks.
const (
	HostToHWBase uint32 = 0x1000
	HWToHostBase uint32 = 0x0000
)

// Stable channel ids, per spec.md §4.7's roster table.
const (
	ChanControl        = 0 // host->HW: control/command words
	ChanUARTIn         = 1 // host->HW: UART input
	ChanVirtioMMIOResp = 2 // host->HW: virtio MMIO response
	ChanDebugReq       = 3 // host->HW: debug-module request
	ChanVirtioIRQ      = 4 // host->HW: virtio IRQ notification

	ChanStatus        = 0 // HW->host: status word
	ChanUARTOut       = 1 // HW->host: UART output
	ChanVirtioMMIOReq = 2 // HW->host: virtio MMIO request
	ChanDebugResp     = 3 // HW->host: debug-module response
	ChanPCTrace       = 4 // HW->host: PC trace word
)

// MaxSpin bounds chan_put's busy-poll on avail_addr, per spec.md §4.7's
// "order of 10^5 iterations; exceeding it is a fault".
const MaxSpin = 100_000

// Mux drives chan_put/chan_get_nb over a register Adapter.
type Mux struct {
	Reg RegisterAccess

	// Metrics is optional; when set, a chan_put that exhausts MaxSpin
	// without the HW side asserting avail increments its poll-timeout
	// counter.
	Metrics *metrics.Registry
}

// New constructs a Mux over the given register adapter.
func New(reg RegisterAccess) *Mux {
	return &Mux{Reg: reg}
}

func dataAddr(base uint32, id uint32) uint32 {
	return base + (id << 3)
}

func availAddr(base uint32, id uint32) uint32 {
	return dataAddr(base, id) | 4
}

// Put busy-polls chan's avail word until it reads 1, then pokes word into
// chan's data word. Bounded to MaxSpin iterations.
func (m *Mux) Put(base uint32, id uint32, word uint32) error {
	avail := availAddr(base, id)
	for i := 0; i < MaxSpin; i++ {
		v, err := m.Reg.Peek(avail)
		if err != nil {
			return err
		}
		if v == 1 {
			return m.Reg.Poke(dataAddr(base, id), word)
		}
	}
	if m.Metrics != nil {
		m.Metrics.PollTimeouts.Inc()
	}
	return fmt.Errorf("%w: channel %d avail never asserted after %d spins", bridgeerr.ErrPollTimeout, id, MaxSpin)
}

// GetNB peeks chan's avail word; if 0 it returns (0, false) without
// touching the data word. If 1, it peeks the data word and returns
// (word, true).
func (m *Mux) GetNB(base uint32, id uint32) (uint32, bool, error) {
	avail := availAddr(base, id)
	v, err := m.Reg.Peek(avail)
	if err != nil {
		return 0, false, err
	}
	if v == 0 {
		return 0, false, nil
	}
	word, err := m.Reg.Peek(dataAddr(base, id))
	if err != nil {
		return 0, false, err
	}
	return word, true, nil
}

// PutHost enqueues word onto the host->HW channel id.
func (m *Mux) PutHost(id uint32, word uint32) error {
	return m.Put(HostToHWBase, id, word)
}

// GetHW dequeues from the HW->host channel id, non-blocking.
func (m *Mux) GetHW(id uint32) (uint32, bool, error) {
	return m.GetNB(HWToHostBase, id)
}
