// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport implements the opaque byte pipe between the host
// runtime and the hardware accelerator (real or simulated). Everything
// above this package, and the codec below it, agree only on "send N bytes,
// receive N bytes" (spec.md §4.4).
package transport

// PollMode selects whether Recv blocks until n bytes are available or
// returns immediately reporting whether they are.
type PollMode int

const (
	Blocking PollMode = iota
	Polling
)

// RecvStatus is Recv's availability result under Polling mode.
type RecvStatus int

const (
	RecvOK RecvStatus = iota
	RecvUnavailable
)

// Transport is the byte pipe to/from the accelerator. Send must deliver
// the whole buffer or report a fatal error; Recv, under Polling, reports
// RecvUnavailable rather than blocking when fewer than n bytes are ready.
//
// The TCP-backed simulator client implements this interface. The real
// kernel-device pair does not: it implements DeviceBackend, and the burst
// and register adapters branch on which of the two they hold.
type Transport interface {
	Send(b []byte) error
	Recv(n int, mode PollMode, out []byte) (RecvStatus, error)
	Close() error
}
