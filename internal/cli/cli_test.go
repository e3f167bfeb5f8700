// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cli

import "testing"

func TestParseAcceptsEveryNamedFlag(t *testing.T) {
	flags, err := Parse("cloudgfe-host", "test", []string{
		"--elf", "boot.elf",
		"--gdbport", "3333",
		"--metrics-addr", "127.0.0.1:9400",
		"--debug-dump",
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if flags.ELF != "boot.elf" {
		t.Errorf("ELF = %q, want %q", flags.ELF, "boot.elf")
	}
	if flags.GDBPort != "3333" {
		t.Errorf("GDBPort = %q, want %q", flags.GDBPort, "3333")
	}
	if flags.MetricsAddr != "127.0.0.1:9400" {
		t.Errorf("MetricsAddr = %q, want %q", flags.MetricsAddr, "127.0.0.1:9400")
	}
	if !flags.DebugDump {
		t.Errorf("DebugDump = false, want true")
	}
	if flags.MemHex32 != "" || flags.BlockDev != "" || flags.TunDev != "" {
		t.Errorf("unset flags should default to empty strings, got MemHex32=%q BlockDev=%q TunDev=%q", flags.MemHex32, flags.BlockDev, flags.TunDev)
	}
}

func TestParseRejectsMissingValueLookingLikeAFlag(t *testing.T) {
	_, err := Parse("cloudgfe-host", "test", []string{"--elf", "--gdbport"})
	if err == nil {
		t.Fatalf("Parse() with a flag value starting with '-' should have failed")
	}
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	_, err := Parse("cloudgfe-host", "test", []string{"--not-a-real-flag"})
	if err == nil {
		t.Fatalf("Parse() with an unknown flag should have failed")
	}
}

func TestParseWithNoArgsDefaultsEverythingEmpty(t *testing.T) {
	flags, err := Parse("cloudgfe-host", "test", nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if flags.ELF != "" || flags.DebugDump {
		t.Errorf("Parse() with no args should leave every flag at its zero value, got %+v", flags)
	}
	if flags.UsesKernelDevice() {
		t.Errorf("UsesKernelDevice() = true with no device flags set")
	}
}

func TestParseAcceptsDeviceFlags(t *testing.T) {
	flags, err := Parse("cloudgfe-host", "test", []string{
		"--device-read-dma", "/dev/cloudgfe0_rd",
		"--device-write-dma", "/dev/cloudgfe0_wr",
		"--device-regs", "/dev/cloudgfe0_regs",
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if flags.DeviceReadDMA != "/dev/cloudgfe0_rd" || flags.DeviceWriteDMA != "/dev/cloudgfe0_wr" || flags.DeviceRegs != "/dev/cloudgfe0_regs" {
		t.Errorf("device flags = %+v, want all three populated", flags)
	}
	if !flags.UsesKernelDevice() {
		t.Errorf("UsesKernelDevice() = false with all three device flags set")
	}
}

func TestUsesKernelDeviceRequiresAllThree(t *testing.T) {
	cases := []Flags{
		{},
		{DeviceReadDMA: "/dev/r"},
		{DeviceWriteDMA: "/dev/w"},
		{DeviceRegs: "/dev/g"},
		{DeviceReadDMA: "/dev/r", DeviceWriteDMA: "/dev/w"},
		{DeviceReadDMA: "/dev/r", DeviceRegs: "/dev/g"},
		{DeviceWriteDMA: "/dev/w", DeviceRegs: "/dev/g"},
	}
	for i, f := range cases {
		if f.UsesKernelDevice() {
			t.Errorf("case %d: UsesKernelDevice() = true, want false for partial flags %+v", i, f)
		}
	}
}
