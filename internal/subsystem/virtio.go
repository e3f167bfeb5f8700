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

// VirtioRequestQueueCapacity and VirtioIRQQueueCapacity bound the
// service-thread-facing queues, per spec.md §4.8.4.
const (
	VirtioRequestQueueCapacity  = 64
	VirtioIRQQueueCapacity      = 16
	VirtioResponseQueueCapacity = 64
)

// VirtioRequest is one decoded MMIO request from HW, per spec.md §4.8.4's
// encoding: bit 0 of the address word is the direction flag, bits 1..31
// carry the target offset with addr & ~0x3.
type VirtioRequest struct {
	Write  bool
	Offset uint32
	Data   uint32 // valid only when Write is true
}

// DecodeVirtioRequestAddr splits a raw address word into its direction
// flag and target offset.
func DecodeVirtioRequestAddr(addrWord uint32) (write bool, offset uint32) {
	return addrWord&1 != 0, addrWord &^ 0x3
}

// VirtioResponse is what the emulated-device library returns for one
// request: Data for reads, ignored for writes (an ack either way).
type VirtioResponse struct {
	Data uint32
}

// VirtioDevice is the external emulated-device collaborator the core
// calls into and receives IRQ callbacks from (spec.md §9's "Non-goals").
// The core defines only this interface; the emulator implementation is an
// external collaborator.
type VirtioDevice interface {
	// HandleRequest resolves offset to a device register: for a read it
	// returns the register's value; for a write it consumes data and the
	// return value is ignored.
	HandleRequest(write bool, offset uint32, data uint32) (uint32, error)
}

// VirtioBridge is the virtio MMIO bridge subsystem: it maintains the
// request-from-HW, response-to-HW, and IRQ-to-HW queues and advances at
// most one MMIO transaction, by one phase, per Step call, per spec.md
// §4.8.4 and §4.9.
type VirtioBridge struct {
	Mux    *chanmux.Mux
	Device VirtioDevice
	Log    *log.Logger

	// IRQ is fed by the device's IRQ callback on its own goroutine; the
	// callback captures only this queue handle, not the bridge, per
	// spec.md §9.
	IRQ *taskqueue.Queue[struct{}]

	pendingAddr *uint32
}

// NewVirtioBridge constructs a VirtioBridge over the given device.
func NewVirtioBridge(mux *chanmux.Mux, dev VirtioDevice, logger *log.Logger) *VirtioBridge {
	return &VirtioBridge{
		Mux:    mux,
		Device: dev,
		Log:    logger,
		IRQ:    taskqueue.New[struct{}](VirtioIRQQueueCapacity),
	}
}

// Step advances at most one MMIO transaction by one phase: with no request
// pending it dequeues the address word; with one pending it dequeues the
// data word (for writes) and then sends the response. A read therefore
// takes two Step calls and a write at least two. The address word (and,
// for writes, the data word) is dequeued before any response, so a
// multi-word request is never partially reordered against the response it
// provokes (spec.md §4.8.4's ordering guarantee). It also drains one
// pending IRQ notification, if any, after the MMIO step.
func (v *VirtioBridge) Step() (bool, error) {
	did := false

	if v.pendingAddr == nil {
		word, ok, err := v.Mux.GetHW(chanmux.ChanVirtioMMIOReq)
		if err != nil {
			return did, fmt.Errorf("virtio: request addr chan_get_nb: %w", err)
		}
		if ok {
			addr := word
			v.pendingAddr = &addr
			did = true
		}
	} else {
		write, offset := DecodeVirtioRequestAddr(*v.pendingAddr)
		if !write {
			result, err := v.Device.HandleRequest(false, offset, 0)
			if err != nil {
				return did, fmt.Errorf("virtio: read offset 0x%x: %w", offset, err)
			}
			if err := v.Mux.PutHost(chanmux.ChanVirtioMMIOResp, result); err != nil {
				return did, fmt.Errorf("virtio: read response chan_put: %w", err)
			}
			v.pendingAddr = nil
			did = true
		} else {
			data, ok, err := v.Mux.GetHW(chanmux.ChanVirtioMMIOReq)
			if err != nil {
				return did, fmt.Errorf("virtio: write data chan_get_nb: %w", err)
			}
			if ok {
				if _, err := v.Device.HandleRequest(true, offset, data); err != nil {
					return did, fmt.Errorf("virtio: write offset 0x%x: %w", offset, err)
				}
				if err := v.Mux.PutHost(chanmux.ChanVirtioMMIOResp, 0); err != nil {
					return did, fmt.Errorf("virtio: write ack chan_put: %w", err)
				}
				v.pendingAddr = nil
				did = true
			}
		}
	}

	if _, ok := v.IRQ.TryPop(); ok {
		if err := v.Mux.PutHost(chanmux.ChanVirtioIRQ, 1); err != nil {
			return did, fmt.Errorf("virtio: irq chan_put: %w", err)
		}
		did = true
	}

	return did, nil
}
