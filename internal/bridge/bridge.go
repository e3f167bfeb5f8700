// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bridge wires every layer (wire, queue, framing, transport,
// pump, busaxi, chanmux, subsystem, coordinator) into the single value
// cmd/cloudgfe-host constructs once at startup, per spec.md §9's "no
// file-scope mutable state" design note.
package bridge

import (
	"fmt"
	"io"
	"os"

	"github.com/cloudgfe/host-bridge/internal/busaxi"
	"github.com/cloudgfe/host-bridge/internal/chanmux"
	"github.com/cloudgfe/host-bridge/internal/coordinator"
	"github.com/cloudgfe/host-bridge/internal/framing"
	"github.com/cloudgfe/host-bridge/internal/hostlog"
	"github.com/cloudgfe/host-bridge/internal/image"
	"github.com/cloudgfe/host-bridge/internal/metrics"
	"github.com/cloudgfe/host-bridge/internal/pump"
	"github.com/cloudgfe/host-bridge/internal/queue"
	"github.com/cloudgfe/host-bridge/internal/subsystem"
	"github.com/cloudgfe/host-bridge/internal/transport"
	"golang.org/x/term"
)

// Config carries every piece of external state a Bridge needs to start:
// the values internal/cli.Flags resolves into, plus the collaborators
// spec.md's Non-goals call external (a VirtioDevice, an already-loaded
// boot image).
type Config struct {
	SimAddr string // defaults to transport.DefaultSimAddr, ignored when KernelDevice is set

	// KernelDevice selects spec.md §4.4 case (b): a real kernel-device pair
	// driven directly, bypassing the codec/queue/pump stack entirely. Nil
	// selects case (a), the simulator transport dialed at SimAddr.
	KernelDevice transport.DeviceBackend

	BootImage  *image.Image // may be nil: nothing to bulk-load
	RunControl subsystem.RunControlConfig

	Virtio   subsystem.VirtioDevice // nil disables the virtio bridge
	PCTrace  io.Writer              // nil disables the PC-trace subsystem
	Terminal io.Writer              // nil disables the terminal subsystem, keyboard side included

	Logs *hostlog.Set

	Metrics *metrics.Registry // nil disables metrics collection
}

// Bridge owns every runtime layer. Constructed once by New and passed
// explicitly to the coordinator; nothing here is a package-level global,
// per spec.md §9.
type Bridge struct {
	// Transport and Engine are nil on the real kernel-device path (case
	// (b)), which bypasses both entirely; Burst and Mux are always set.
	Transport transport.Transport
	Engine    *framing.Engine
	Pump      *pump.Pump
	Burst     *busaxi.Adapter
	Mux       *chanmux.Mux

	device transport.DeviceBackend

	RunControl  *subsystem.RunControl
	Terminal    *subsystem.Terminal
	PCTrace     *subsystem.PCTrace
	Virtio      *subsystem.VirtioBridge
	DebugModule *subsystem.DebugModuleBridge

	Coordinator *coordinator.Coordinator

	// termState is the saved terminal state to restore on exit, set only
	// when stdin was a terminal New put into raw mode for the keyboard
	// reader. Nil otherwise.
	termState *term.State
}

// New dials the simulator transport (or, when cfg.KernelDevice is set,
// uses that device directly), builds every layer above it, and wires the
// subsystem set the Config requests. Subsystems whose
// collaborator is absent from Config (no PCTrace sink, no Virtio device)
// are simply left nil; the coordinator already treats a nil subsystem
// pointer as "skip this turn."
func New(cfg Config) (*Bridge, error) {
	b := &Bridge{}

	var burst *busaxi.Adapter
	if cfg.KernelDevice != nil {
		b.device = cfg.KernelDevice
		burst = busaxi.NewDevice(cfg.KernelDevice)
	} else {
		addr := cfg.SimAddr
		if addr == "" {
			addr = transport.DefaultSimAddr
		}
		t, err := transport.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("bridge: dial simulator: %w", err)
		}

		hostQ := queue.NewHostQueues()
		hwQ := queue.NewHWQueues()
		engine := framing.New(hostQ, hwQ)
		p := pump.New(engine, t)
		burst = busaxi.New(p)

		b.Transport = t
		b.Engine = engine
		b.Pump = p
	}
	mux := chanmux.New(burst)
	mux.Metrics = cfg.Metrics

	b.Burst = burst
	b.Mux = mux

	logs := cfg.Logs
	if logs == nil {
		logs = hostlog.NewSet(os.Stdout)
	}

	b.RunControl = subsystem.NewRunControl(mux, cfg.RunControl, logs.Logger("runcontrol"))

	if cfg.Terminal != nil {
		b.Terminal = subsystem.NewTerminal(mux, cfg.Terminal, logs.Logger("term"))
		stdinFD := int(os.Stdin.Fd())
		if term.IsTerminal(stdinFD) {
			if st, err := term.MakeRaw(stdinFD); err != nil {
				logs.Logger("term").Printf("make stdin raw: %v", err)
			} else {
				b.termState = st
			}
		}
		go subsystem.ReadKeyboard(os.Stdin, b.Terminal.Keyboard)
	}

	if cfg.PCTrace != nil {
		b.PCTrace = subsystem.NewPCTrace(mux, cfg.PCTrace)
	}

	if cfg.Virtio != nil {
		b.Virtio = subsystem.NewVirtioBridge(mux, cfg.Virtio, logs.Logger("virtio"))
	}

	b.DebugModule = subsystem.NewDebugModuleBridge(mux, logs.Logger("gdbstub"))

	b.Coordinator = coordinator.New(b.RunControl, b.Terminal, b.PCTrace, b.Virtio, b.DebugModule, logs.Logger("bridge"))
	b.Coordinator.Metrics = cfg.Metrics
	b.Coordinator.QueueStats = b.queueStats
	b.Coordinator.CreditStats = b.creditStats

	if cfg.BootImage != nil {
		if err := b.loadBootImage(cfg.BootImage); err != nil {
			if b.Transport != nil {
				b.Transport.Close()
			}
			if b.device != nil {
				b.device.Close()
			}
			return nil, err
		}
	}

	return b, nil
}

// loadBootImage bulk-writes every segment of img through the burst
// adapter before the coordinator's first turn, per spec.md §6's
// addr_base floor-alignment requirement (left to the external loader to
// satisfy; this only walks the already-aligned segments in order).
func (b *Bridge) loadBootImage(img *image.Image) error {
	for _, seg := range img.Sorted() {
		if err := b.Burst.BulkWrite(seg.Data, uint64(seg.Addr)); err != nil {
			return fmt.Errorf("bridge: load boot image at 0x%x: %w", seg.Addr, err)
		}
	}
	return nil
}

// Run hands off to the coordinator's main loop, restoring stdin's terminal
// mode (if New put it into raw mode) and closing whichever backend New
// opened (simulator transport or kernel device) on the way out, whatever
// the outcome.
func (b *Bridge) Run() (int, error) {
	if b.Transport != nil {
		defer b.Transport.Close()
	}
	if b.device != nil {
		defer b.device.Close()
	}
	if b.termState != nil {
		defer term.Restore(int(os.Stdin.Fd()), b.termState)
	}
	return b.Coordinator.Run()
}

// queueStats reports every paired queue's occupancy for metrics, or nil on
// the kernel-device path, which has no queues to report.
func (b *Bridge) queueStats() []coordinator.QueueStat {
	if b.Engine == nil {
		return nil
	}
	host := b.Engine.Host
	hw := b.Engine.HW
	return []coordinator.QueueStat{
		{Queue: "wr_addr", Direction: "host", Occupancy: host.WrAddr.Occupancy()},
		{Queue: "wr_data", Direction: "host", Occupancy: host.WrData.Occupancy()},
		{Queue: "rd_addr", Direction: "host", Occupancy: host.RdAddr.Occupancy()},
		{Queue: "lwr_addr", Direction: "host", Occupancy: host.LWrAddr.Occupancy()},
		{Queue: "lwr_data", Direction: "host", Occupancy: host.LWrData.Occupancy()},
		{Queue: "lrd_addr", Direction: "host", Occupancy: host.LRdAddr.Occupancy()},
		{Queue: "wr_resp", Direction: "hw", Occupancy: hw.WrResp.Occupancy()},
		{Queue: "rd_data", Direction: "hw", Occupancy: hw.RdData.Occupancy()},
		{Queue: "lwr_resp", Direction: "hw", Occupancy: hw.LWrResp.Occupancy()},
		{Queue: "lrd_data", Direction: "hw", Occupancy: hw.LRdData.Occupancy()},
	}
}

// creditStats reports the host side's remaining send credit per queue for
// metrics, or nil on the kernel-device path.
func (b *Bridge) creditStats() []coordinator.CreditStat {
	if b.Engine == nil {
		return nil
	}
	host := b.Engine.Host
	return []coordinator.CreditStat{
		{Queue: "wr_addr", Remaining: host.CreditWrAddr},
		{Queue: "wr_data", Remaining: host.CreditWrData},
		{Queue: "rd_addr", Remaining: host.CreditRdAddr},
		{Queue: "lwr_addr", Remaining: host.CreditLWrAddr},
		{Queue: "lwr_data", Remaining: host.CreditLWrData},
		{Queue: "lrd_addr", Remaining: host.CreditLRdAddr},
	}
}

// StateSnapshot is a plain-data view of the queue/credit state, suitable
// for spew.Dump the way cmd/tcgstorage and cmd/opalctl dump a Session or
// Level0Discovery value for --debug-dump diagnostics.
type StateSnapshot struct {
	HostOccupancy map[string]int
	HWOccupancy   map[string]int
	HostCredit    map[string]int
	HWPending     map[string]int
	Terminating   bool
}

// Snapshot captures the current queue occupancy and credit state. On the
// kernel-device path (no Engine, no queues) every map is empty.
func (b *Bridge) Snapshot() StateSnapshot {
	if b.Engine == nil {
		return StateSnapshot{Terminating: b.RunControl.Terminating}
	}
	host := b.Engine.Host
	hw := b.Engine.HW
	return StateSnapshot{
		HostOccupancy: map[string]int{
			"wr_addr":  host.WrAddr.Occupancy(),
			"wr_data":  host.WrData.Occupancy(),
			"rd_addr":  host.RdAddr.Occupancy(),
			"lwr_addr": host.LWrAddr.Occupancy(),
			"lwr_data": host.LWrData.Occupancy(),
			"lrd_addr": host.LRdAddr.Occupancy(),
		},
		HWOccupancy: map[string]int{
			"wr_resp":  hw.WrResp.Occupancy(),
			"rd_data":  hw.RdData.Occupancy(),
			"lwr_resp": hw.LWrResp.Occupancy(),
			"lrd_data": hw.LRdData.Occupancy(),
		},
		HostCredit: map[string]int{
			"wr_addr":  host.CreditWrAddr,
			"wr_data":  host.CreditWrData,
			"rd_addr":  host.CreditRdAddr,
			"lwr_addr": host.CreditLWrAddr,
			"lwr_data": host.CreditLWrData,
			"lrd_addr": host.CreditLRdAddr,
		},
		HWPending: map[string]int{
			"wr_resp":  hw.PendingWrResp,
			"rd_data":  hw.PendingRdData,
			"lwr_resp": hw.PendingLWrResp,
			"lrd_data": hw.PendingLRdData,
		},
		Terminating: b.RunControl.Terminating,
	}
}
