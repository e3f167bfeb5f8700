// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package subsystem

import (
	"bufio"
	"fmt"
	"io"
	"log"

	"github.com/cloudgfe/host-bridge/internal/chanmux"
	"github.com/cloudgfe/host-bridge/internal/taskqueue"
)

// KeyboardQueueCapacity is the bounded line buffer size between the
// keyboard-reader thread and the coordinator's terminal worker, per
// spec.md §4.8.2.
const KeyboardQueueCapacity = 512

// OutputLineCapacity is the HW->host side's line-assembly buffer size.
const OutputLineCapacity = 256

// MaxIdlePasses bounds how many empty UART-out polls the output
// line-assembler tolerates before flushing a partial line without a
// newline, to surface prompts that never emit one.
const MaxIdlePasses = 64

// Terminal is the terminal subsystem: a single-producer/single-consumer
// keyboard queue feeding chan_put on the UART-input channel, and a
// chan_get_nb poll of the UART-output channel assembling a line buffer
// flushed to Out.
type Terminal struct {
	Mux *chanmux.Mux
	Out io.Writer
	Log *log.Logger

	Keyboard *taskqueue.Queue[byte]

	outLine    [OutputLineCapacity]byte
	outLen     int
	idlePasses int
	writer     *bufio.Writer
}

// NewTerminal constructs a Terminal subsystem. ReadKeyboard should be
// launched on its own goroutine by the caller; it feeds the returned
// Terminal's Keyboard queue.
func NewTerminal(mux *chanmux.Mux, out io.Writer, logger *log.Logger) *Terminal {
	return &Terminal{
		Mux:      mux,
		Out:      out,
		Log:      logger,
		Keyboard: taskqueue.New[byte](KeyboardQueueCapacity),
		writer:   bufio.NewWriter(out),
	}
}

// ReadKeyboard blocks reading r one byte at a time and pushes each onto the
// Keyboard queue, per spec.md §4.8.2's dedicated keyboard-reader thread.
// Intended to run on its own goroutine for the lifetime of the process.
func ReadKeyboard(r io.Reader, q *taskqueue.Queue[byte]) {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if !q.Push(buf[0]) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Step drains at most one keyboard byte to chan_put and polls the
// UART-output channel once, returning whether either direction did work.
func (t *Terminal) Step() (bool, error) {
	did := false

	if b, ok := t.Keyboard.TryPop(); ok {
		if err := t.Mux.PutHost(chanmux.ChanUARTIn, uint32(b)); err != nil {
			return did, fmt.Errorf("terminal: uart-in chan_put: %w", err)
		}
		did = true
	}

	word, ok, err := t.Mux.GetHW(chanmux.ChanUARTOut)
	if err != nil {
		return did, fmt.Errorf("terminal: uart-out chan_get_nb: %w", err)
	}
	if !ok {
		t.idlePasses++
		if t.outLen > 0 && t.idlePasses >= MaxIdlePasses {
			t.flush()
		}
		return did, nil
	}
	did = true
	t.idlePasses = 0

	for shift := 0; shift < 32; shift += 8 {
		packed := byte(word >> shift)
		if packed&0x80 == 0 {
			continue // high bit is the per-character valid flag
		}
		ch := packed &^ 0x80
		t.appendChar(ch)
	}
	return did, nil
}

func (t *Terminal) appendChar(ch byte) {
	t.outLine[t.outLen] = ch
	t.outLen++

	flush := ch == '\n' || (ch < 0x20 && ch != '\t') || t.outLen >= OutputLineCapacity
	if flush {
		t.flush()
	}
}

func (t *Terminal) flush() {
	if t.outLen == 0 {
		return
	}
	if _, err := t.writer.Write(t.outLine[:t.outLen]); err != nil {
		t.Log.Printf("terminal: output write: %v", err)
	}
	if err := t.writer.Flush(); err != nil {
		t.Log.Printf("terminal: output flush: %v", err)
	}
	t.outLen = 0
}
