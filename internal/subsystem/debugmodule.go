// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package subsystem

import (
	"fmt"
	"log"

	"github.com/cloudgfe/host-bridge/internal/chanmux"
	"github.com/cloudgfe/host-bridge/internal/taskqueue"
)

// DMIQueueCapacity bounds the request/response queues between the GDB
// server thread and the coordinator, per spec.md §4.8.5.
const DMIQueueCapacity = 8

// DMI operation codes packed into the request word's op:8 field.
const (
	DMIOpRead  uint8 = 0
	DMIOpWrite uint8 = 1
)

// DMIRequest is one debug-module-interface transaction requested by the
// GDB server thread.
type DMIRequest struct {
	Op   uint8
	Addr uint32 // 24 bits significant
	Data uint32 // valid only when Op == DMIOpWrite
}

// DMIResponse is the debug-module's reply to a DMIRequest.
type DMIResponse struct {
	Data uint32
}

// EncodeDMIRequestWord packs {op:8, addr:24} into one word, per spec.md
// §4.8.5.
func EncodeDMIRequestWord(op uint8, addr uint32) uint32 {
	return uint32(op)<<24 | (addr & 0x00FFFFFF)
}

// DebugModuleBridge is the debug-module/GDB bridge subsystem. A GDB server
// running on its own thread pushes requests onto Requests and, for reads,
// blocks popping Responses; the coordinator drives the channel-mux side.
type DebugModuleBridge struct {
	Mux *chanmux.Mux
	Log *log.Logger

	Requests  *taskqueue.Queue[DMIRequest]
	Responses *taskqueue.Queue[DMIResponse]

	pendingRead bool
}

// NewDebugModuleBridge constructs a DebugModuleBridge.
func NewDebugModuleBridge(mux *chanmux.Mux, logger *log.Logger) *DebugModuleBridge {
	return &DebugModuleBridge{
		Mux:       mux,
		Log:       logger,
		Requests:  taskqueue.New[DMIRequest](DMIQueueCapacity),
		Responses: taskqueue.New[DMIResponse](DMIQueueCapacity),
	}
}

// DMIWrite is the blocking operation the GDB server thread calls; it
// enqueues a write request and returns once it is accepted onto the
// bounded queue.
func (d *DebugModuleBridge) DMIWrite(addr uint32, data uint32) {
	d.Requests.Push(DMIRequest{Op: DMIOpWrite, Addr: addr, Data: data})
}

// DMIRead is the blocking operation the GDB server thread calls; it
// enqueues a read request and blocks on the response queue, relying on
// single-outstanding semantics (GDB is serial, spec.md §4.8.5).
func (d *DebugModuleBridge) DMIRead(addr uint32) uint32 {
	d.Requests.Push(DMIRequest{Op: DMIOpRead, Addr: addr})
	resp, _ := d.Responses.Pop()
	return resp.Data
}

// Step non-blocking-dequeues one DMI request and chan_puts it, then
// non-blocking-reads one HW->host debug word, delivering it as the
// response to the pending read, per spec.md §4.8.5.
func (d *DebugModuleBridge) Step() (bool, error) {
	did := false

	if req, ok := d.Requests.TryPop(); ok {
		word := EncodeDMIRequestWord(req.Op, req.Addr)
		if err := d.Mux.PutHost(chanmux.ChanDebugReq, word); err != nil {
			return did, fmt.Errorf("debug-module: request chan_put: %w", err)
		}
		if req.Op == DMIOpWrite {
			if err := d.Mux.PutHost(chanmux.ChanDebugReq, req.Data); err != nil {
				return did, fmt.Errorf("debug-module: write-data chan_put: %w", err)
			}
		} else {
			d.pendingRead = true
		}
		did = true
	}

	word, ok, err := d.Mux.GetHW(chanmux.ChanDebugResp)
	if err != nil {
		return did, fmt.Errorf("debug-module: response chan_get_nb: %w", err)
	}
	if ok {
		did = true
		if d.pendingRead {
			d.Responses.Push(DMIResponse{Data: word})
			d.pendingRead = false
		} else {
			d.Log.Printf("debug-module: unexpected response word 0x%x with no outstanding read", word)
		}
	}

	return did, nil
}
