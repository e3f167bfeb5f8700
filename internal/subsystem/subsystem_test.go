// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package subsystem

import (
	"bytes"
	"io"
	"log"
	"testing"
	"time"

	"github.com/cloudgfe/host-bridge/internal/chanmux"
)

// fakeRegisters is a trivial in-memory chanmux.RegisterAccess, giving
// subsystem tests direct control over channel data/avail words without
// driving the full credit/framing/transport stack.
type fakeRegisters struct {
	regs map[uint32]uint32
}

func newFakeRegisters() *fakeRegisters {
	return &fakeRegisters{regs: map[uint32]uint32{}}
}

func (f *fakeRegisters) Peek(address uint32) (uint32, error) { return f.regs[address], nil }
func (f *fakeRegisters) Poke(address uint32, word uint32) error {
	f.regs[address] = word
	return nil
}

func newTestLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// setHWAvail marks a HW->host channel as having a word ready.
func setHWAvail(f *fakeRegisters, id uint32, word uint32) {
	f.regs[chanAvailHW(id)] = 1
	f.regs[chanDataHW(id)] = word
}

func chanDataHW(id uint32) uint32 { return chanmux.HWToHostBase + (id << 3) }
func chanAvailHW(id uint32) uint32 { return chanDataHW(id) | 4 }
func chanAvailHost(id uint32) uint32 { return chanmux.HostToHWBase + (id << 3) | 4 }

func TestRunControlFirstPassThenStatusPoll(t *testing.T) {
	f := newFakeRegisters()
	f.regs[chanAvailHost(chanmux.ChanControl)] = 1 // HW always has room
	mux := chanmux.New(f)
	cfg := RunControlConfig{VerbosityAndLogDelay: 1, WatchTohostAddr: 2, PCTraceConfig: 3, DDR4IsLoaded: 4}
	rc := NewRunControl(mux, cfg, newTestLogger())

	now := time.Unix(0, 0)
	for i := 0; i < 4; i++ {
		did, err := rc.Step(now)
		if err != nil {
			t.Fatalf("first-pass step %d: %v", i, err)
		}
		if !did {
			t.Fatalf("first-pass step %d reported no work", i)
		}
	}
	if !rc.firstPassDone {
		t.Fatalf("expected first pass to be done after 4 steps")
	}

	// Steady state: no status word yet.
	if did, err := rc.Step(now); err != nil || did {
		t.Fatalf("expected no work with no status word, got did=%v err=%v", did, err)
	}

	// Status word signaling test pass (tohost_value=1).
	setHWAvail(f, chanmux.ChanStatus, 1)
	did, err := rc.Step(now)
	if err != nil {
		t.Fatalf("status step: %v", err)
	}
	if !did || !rc.Terminating || rc.Reason != TerminationTestPass {
		t.Fatalf("expected termination with TestPass, got did=%v terminating=%v reason=%v", did, rc.Terminating, rc.Reason)
	}

	if rc.GraceElapsed(now) {
		t.Fatalf("grace window should not have elapsed immediately")
	}
	if !rc.GraceElapsed(now.Add(GraceWindow + time.Millisecond)) {
		t.Fatalf("grace window should have elapsed after GraceWindow")
	}
	if rc.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0 for a passing test", rc.ExitCode())
	}
}

func TestRunControlFailingTest(t *testing.T) {
	f := newFakeRegisters()
	f.regs[chanAvailHost(chanmux.ChanControl)] = 1
	mux := chanmux.New(f)
	rc := NewRunControl(mux, RunControlConfig{}, newTestLogger())
	now := time.Unix(0, 0)
	for i := 0; i < 4; i++ {
		if _, err := rc.Step(now); err != nil {
			t.Fatalf("first-pass step %d: %v", i, err)
		}
	}

	setHWAvail(f, chanmux.ChanStatus, 7<<1) // failing test number 7
	if _, err := rc.Step(now); err != nil {
		t.Fatalf("status step: %v", err)
	}
	if rc.Reason != TerminationTestFail || rc.FailingTestNum != 7 {
		t.Fatalf("reason=%v failingTestNum=%d, want TestFail/7", rc.Reason, rc.FailingTestNum)
	}
	if rc.ExitCode() != 1 {
		t.Errorf("ExitCode = %d, want 1 for a failing test", rc.ExitCode())
	}
}

func TestPCTraceGroupsSixWords(t *testing.T) {
	f := newFakeRegisters()
	mux := chanmux.New(f)
	var sink bytes.Buffer
	pt := NewPCTrace(mux, &sink)

	words := []uint32{0x1, 0x0, 0x2, 0x0, 0x3, 0x0}
	for i, w := range words {
		setHWAvail(f, chanmux.ChanPCTrace, w)
		did, err := pt.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if !did {
			t.Fatalf("step %d reported no work", i)
		}
		f.regs[chanAvailHW(chanmux.ChanPCTrace)] = 0
	}

	want := "cycle=1  instret=2  pc=0x0000000000000003\n"
	if sink.String() != want {
		t.Errorf("sink = %q, want %q", sink.String(), want)
	}
}

func TestTerminalUARTOutUnpacksValidChars(t *testing.T) {
	f := newFakeRegisters()
	mux := chanmux.New(f)
	var out bytes.Buffer
	term := NewTerminal(mux, &out, newTestLogger())

	// Pack 'h','i' with valid bits set, and two invalid (unused) slots.
	word := uint32(0x80|'h') | uint32(0x80|'i')<<8
	setHWAvail(f, chanmux.ChanUARTOut, word)

	did, err := term.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !did {
		t.Fatalf("expected work done")
	}
	if term.outLen != 2 {
		t.Fatalf("outLen = %d, want 2", term.outLen)
	}

	setHWAvail(f, chanmux.ChanUARTOut, uint32(0x80|'\n'))
	if _, err := term.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if out.String() != "hi\n" {
		t.Errorf("output = %q, want %q", out.String(), "hi\n")
	}
}

func TestTerminalKeyboardDrain(t *testing.T) {
	f := newFakeRegisters()
	f.regs[chanAvailHost(chanmux.ChanUARTIn)] = 1
	mux := chanmux.New(f)
	var out bytes.Buffer
	term := NewTerminal(mux, &out, newTestLogger())
	term.Keyboard.Push('A')

	did, err := term.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !did {
		t.Fatalf("expected work done draining keyboard queue")
	}
	if f.regs[chanmux.HostToHWBase+(chanmux.ChanUARTIn<<3)] != uint32('A') {
		t.Errorf("UART-in data register not set to 'A'")
	}
}

type fakeVirtioDevice struct {
	reads  map[uint32]uint32
	writes map[uint32]uint32
}

func (d *fakeVirtioDevice) HandleRequest(write bool, offset uint32, data uint32) (uint32, error) {
	if write {
		d.writes[offset] = data
		return 0, nil
	}
	return d.reads[offset], nil
}

func TestVirtioBridgeReadThenWriteOrdering(t *testing.T) {
	f := newFakeRegisters()
	f.regs[chanAvailHost(chanmux.ChanVirtioMMIOResp)] = 1
	mux := chanmux.New(f)
	dev := &fakeVirtioDevice{reads: map[uint32]uint32{0x40000008: 0x99}, writes: map[uint32]uint32{}}
	vb := NewVirtioBridge(mux, dev, newTestLogger())

	// Read request at 0x40000008 (direction bit 0 = read). The address
	// phase and the response each consume one Step call, matching the
	// coordinator's one-MMIO-transaction-touch-per-turn granularity.
	setHWAvail(f, chanmux.ChanVirtioMMIOReq, 0x40000008)
	did, err := vb.Step()
	if err != nil {
		t.Fatalf("read-addr step: %v", err)
	}
	if !did || vb.pendingAddr == nil {
		t.Fatalf("expected pending address phase after read-addr step")
	}
	f.regs[chanAvailHW(chanmux.ChanVirtioMMIOReq)] = 0
	if did, err = vb.Step(); err != nil || !did {
		t.Fatalf("read-response step: did=%v err=%v", did, err)
	}
	respAddr := chanmux.HostToHWBase + (chanmux.ChanVirtioMMIOResp << 3)
	if f.regs[respAddr] != 0x99 {
		t.Fatalf("response register = 0x%x, want 0x99", f.regs[respAddr])
	}
	if vb.pendingAddr != nil {
		t.Fatalf("expected pending address cleared after the response")
	}

	// Write request at 0x40000010 with data 0xAA55 (direction bit 0 = write).
	setHWAvail(f, chanmux.ChanVirtioMMIOReq, 0x40000011)
	if did, err = vb.Step(); err != nil || !did {
		t.Fatalf("write-addr step: did=%v err=%v", did, err)
	}
	if vb.pendingAddr == nil {
		t.Fatalf("expected pending address phase awaiting write data")
	}
	f.regs[chanAvailHW(chanmux.ChanVirtioMMIOReq)] = 0
	setHWAvail(f, chanmux.ChanVirtioMMIOReq, 0xAA55)
	if did, err = vb.Step(); err != nil || !did {
		t.Fatalf("write-data step: did=%v err=%v", did, err)
	}
	if dev.writes[0x40000010] != 0xAA55 {
		t.Fatalf("device write at offset 0x40000010 = 0x%x, want 0xAA55", dev.writes[0x40000010])
	}
}

func TestDebugModuleBridgeSingleOutstandingRead(t *testing.T) {
	f := newFakeRegisters()
	f.regs[chanAvailHost(chanmux.ChanDebugReq)] = 1
	mux := chanmux.New(f)
	db := NewDebugModuleBridge(mux, newTestLogger())

	readDone := make(chan uint32, 1)
	go func() { readDone <- db.DMIRead(0x100) }()

	// Wait for the request to land on the bounded queue before stepping.
	for db.Requests.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	if _, err := db.Step(); err != nil {
		t.Fatalf("request step: %v", err)
	}
	if !db.pendingRead {
		t.Fatalf("expected a pending read after issuing the DMI request")
	}

	setHWAvail(f, chanmux.ChanDebugResp, 0xABCD)
	if _, err := db.Step(); err != nil {
		t.Fatalf("response step: %v", err)
	}

	select {
	case got := <-readDone:
		if got != 0xABCD {
			t.Fatalf("DMIRead = 0x%x, want 0xABCD", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("DMIRead did not complete")
	}
}
