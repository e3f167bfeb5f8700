// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/cloudgfe/host-bridge/internal/bridge"
	"github.com/cloudgfe/host-bridge/internal/cli"
	"github.com/cloudgfe/host-bridge/internal/hostlog"
	"github.com/cloudgfe/host-bridge/internal/metrics"
	"github.com/cloudgfe/host-bridge/internal/transport"
)

const (
	programName = "cloudgfe-host"
	programDesc = "Host-side runtime bridging a user-mode program to a memory-mapped FPGA/simulator accelerator"
)

func main() {
	flags, err := cli.Parse(programName, programDesc, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logs := hostlog.NewSet(os.Stdout)
	if flags.GDBPort != "" {
		if err := logs.RouteToFile("gdbstub", "log_gdbstub.txt"); err != nil {
			log.Fatalf("open log_gdbstub.txt: %v", err)
		}
	}
	if err := logs.RouteToFile("virtio", "log_virtio.txt"); err != nil {
		log.Fatalf("open log_virtio.txt: %v", err)
	}
	defer logs.Close()

	cfg := bridge.Config{
		Logs:     logs,
		Terminal: os.Stdout,
		PCTrace:  os.Stdout,
	}

	if flags.MetricsAddr != "" {
		reg := metrics.New()
		cfg.Metrics = reg
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		go func() {
			if err := http.ListenAndServe(flags.MetricsAddr, mux); err != nil {
				logs.Logger("bridge").Printf("metrics listener: %v", err)
			}
		}()
	}

	if flags.UsesKernelDevice() {
		dev, err := transport.OpenKernelDevice(flags.DeviceReadDMA, flags.DeviceWriteDMA, flags.DeviceRegs)
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg.KernelDevice = dev
		logs.Logger("bridge").Printf("attaching to real kernel device (read-dma=%s write-dma=%s regs=%s), bypassing the simulator codec", flags.DeviceReadDMA, flags.DeviceWriteDMA, flags.DeviceRegs)
	} else if flags.DeviceReadDMA != "" || flags.DeviceWriteDMA != "" || flags.DeviceRegs != "" {
		log.Fatalf("--device-read-dma, --device-write-dma, and --device-regs must all be given together")
	}

	if flags.ELF != "" || flags.MemHex32 != "" {
		logs.Logger("bridge").Printf("boot image loading (--elf/--memhex32) requires an external ELF/memhex32 loader; none is wired into this build, skipping preload")
	}
	if flags.BlockDev != "" || flags.TunDev != "" {
		logs.Logger("bridge").Printf("--blockdev/--tundev name an external virtio device backing store; no VirtioDevice implementation is wired into this build, the virtio bridge subsystem is disabled")
	}
	if flags.GDBPort != "" {
		logs.Logger("gdbstub").Printf("--gdbport %s requested; the GDB remote-protocol server is an external collaborator and is not wired into this build, the debug-module bridge's DMI queues are ready for one", flags.GDBPort)
	}

	b, err := bridge.New(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if flags.DebugDump {
		defer func() {
			spew.Config.Indent = "  "
			spew.Dump(b.Snapshot())
		}()
	}

	code, err := b.Run()
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
	os.Exit(code)
}
