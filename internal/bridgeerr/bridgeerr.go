// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bridgeerr defines the error kinds shared across every layer of
// the bridge (spec.md §7). Each is a sentinel so callers can test with
// errors.Is after a layer wraps it with added context via fmt.Errorf's %w.
package bridgeerr

import "errors"

var (
	// ErrInvalidArgument signals a violation of an alignment/boundary
	// pre-condition, an unknown channel id, or malformed CLI input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransportFault signals a short read/write, a non-OK bus response,
	// or a misplaced last beat. A mismatched frame length is reported as
	// ErrProtocolFault.
	ErrTransportFault = errors.New("transport fault")

	// ErrQueueOverflow signals an enqueue on a full queue. Credits
	// guarantee this never happens after construction; seeing this error
	// is a design-level bug, not a recoverable runtime condition.
	ErrQueueOverflow = errors.New("queue overflow")

	// ErrPollTimeout signals a bounded busy-wait for channel availability
	// exceeded its spin budget, indicating a hardware hang.
	ErrPollTimeout = errors.New("poll timeout")

	// ErrProtocolFault signals a received packet whose declared length
	// did not match the bytes consumed, or whose channel tag is unknown.
	ErrProtocolFault = errors.New("protocol fault")

	// ErrFatal wraps a non-recoverable OS error from the transport; the
	// program aborts after logging it.
	ErrFatal = errors.New("fatal transport error")
)
