// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cli parses the bridge's command-line surface with
// github.com/alecthomas/kong, the same library cmd/gosedctl and
// cmd/sedlockctl use, per spec.md §6.
package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/alecthomas/kong"
)

// Flags is the flat command-line surface spec.md §6 names: named options
// with a string value each, no sub-commands.
type Flags struct {
	ELF         string `flag:"" optional:"" type:"novalue" name:"elf" help:"Path to an ELF image to load before reset."`
	MemHex32    string `flag:"" optional:"" type:"novalue" name:"memhex32" help:"Path to a memhex32 image to load before reset."`
	GDBPort     string `flag:"" optional:"" type:"novalue" name:"gdbport" help:"TCP port to listen on for a GDB remote-protocol connection."`
	BlockDev    string `flag:"" optional:"" type:"novalue" name:"blockdev" help:"Path to a block device backing the virtio-blk device."`
	TunDev      string `flag:"" optional:"" type:"novalue" name:"tundev" help:"Name of a TUN device backing the virtio-net device."`
	MetricsAddr string `flag:"" optional:"" help:"Address to serve Prometheus metrics on, e.g. 127.0.0.1:9400."`
	DebugDump   bool   `flag:"" optional:"" help:"Pretty-print the bridge state snapshot on exit."`

	// DeviceReadDMA/DeviceWriteDMA/DeviceRegs select spec.md §4.4 case (b):
	// a real kernel-device pair. All three must be given together to
	// attach to real hardware instead of the simulator transport.
	DeviceReadDMA  string `flag:"" optional:"" type:"novalue" name:"device-read-dma" help:"Path to the kernel device node backing read-DMA, for a real accelerator attachment."`
	DeviceWriteDMA string `flag:"" optional:"" type:"novalue" name:"device-write-dma" help:"Path to the kernel device node backing write-DMA, for a real accelerator attachment."`
	DeviceRegs     string `flag:"" optional:"" type:"novalue" name:"device-regs" help:"Path to the kernel device node backing register I/O, for a real accelerator attachment."`
}

// UsesKernelDevice reports whether every flag needed to attach to a real
// kernel-device pair (spec.md §4.4 case (b)) was supplied.
func (f *Flags) UsesKernelDevice() bool {
	return f.DeviceReadDMA != "" && f.DeviceWriteDMA != "" && f.DeviceRegs != ""
}

// noValueMapper rejects a flag value that looks like another flag, the
// way AccessibleFileMapper rejects a path before it reaches application
// logic: here "the next token may not start with -" per spec.md §6.
func noValueMapper() kong.MapperFunc {
	return func(ctx *kong.DecodeContext, target reflect.Value) error {
		if target.Kind() != reflect.String {
			return fmt.Errorf(`"novalue" type must be applied to a string not %s`, target.Type())
		}
		var value string
		if err := ctx.Scan.PopValueInto("value", &value); err != nil {
			return err
		}
		if strings.HasPrefix(value, "-") {
			return fmt.Errorf("flag value %q may not start with '-'", value)
		}
		target.SetString(value)
		return nil
	}
}

// Parse parses args (excluding argv[0]) into a Flags value. --help/-h is
// handled by kong itself, which prints usage and exits 0. An unknown flag
// or a malformed value is returned as an error; cmd/cloudgfe-host prints
// it and exits 1.
func Parse(programName, programDesc string, args []string) (*Flags, error) {
	var flags Flags
	parser, err := kong.New(&flags,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.NamedMapper("novalue", noValueMapper()),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true, Summary: true}),
	)
	if err != nil {
		return nil, fmt.Errorf("cli: build parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}
	return &flags, nil
}
