// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package queue

import "github.com/cloudgfe/host-bridge/internal/wire"

// HostCapacity and HWCapacity are the fixed ring capacities from spec.md
// §3: host->HW queues hold 16 entries (mask 0x0F), HW->host queues hold
// 128 (mask 0x7F).
const (
	HostCapacity = 16
	HWCapacity   = 128
)

// HostQueues holds the six host->HW paired queues: the host is the
// producer for each, so alongside each ring it keeps the sender-credit
// counter that says how many free slots currently exist at HW's matching
// receive ring. Credit is consumed on send and restored only when an
// incoming HW->host packet reports it.
//
// Keeping ring and credit as named fields on one struct, rather than in
// file-scope globals, follows the teacher's Session value in
// pkg/core/session.go, which keeps TSN/HSN/sequence counters the same way.
type HostQueues struct {
	WrAddr  *Ring[wire.WrAddr64]
	WrData  *Ring[wire.WrData512]
	RdAddr  *Ring[wire.RdAddr64]
	LWrAddr *Ring[wire.LWrAddr32]
	LWrData *Ring[wire.LWrData32]
	LRdAddr *Ring[wire.LRdAddr32]

	CreditWrAddr  int
	CreditWrData  int
	CreditRdAddr  int
	CreditLWrAddr int
	CreditLWrData int
	CreditLRdAddr int
}

// NewHostQueues constructs the six host->HW rings at their fixed capacity.
// Credits start at zero until the first incoming packet reports the
// receiver's real capacity.
func NewHostQueues() *HostQueues {
	return &HostQueues{
		WrAddr:  NewRing[wire.WrAddr64](HostCapacity),
		WrData:  NewRing[wire.WrData512](HostCapacity),
		RdAddr:  NewRing[wire.RdAddr64](HostCapacity),
		LWrAddr: NewRing[wire.LWrAddr32](HostCapacity),
		LWrData: NewRing[wire.LWrData32](HostCapacity),
		LRdAddr: NewRing[wire.LRdAddr32](HostCapacity),
	}
}

// HWQueues holds the four HW->host paired queues. The host is the consumer
// for each, so alongside each ring it keeps a pending-credit accumulator:
// every time a subsystem dequeues a record, the accumulator increments,
// and the framing engine drains it into the next outgoing packet's
// return-credit header before zeroing it.
type HWQueues struct {
	WrResp  *Ring[wire.WrResp16]
	RdData  *Ring[wire.RdData512]
	LWrResp *Ring[wire.LWrResp]
	LRdData *Ring[wire.LRdData32]

	PendingWrResp  int
	PendingRdData  int
	PendingLWrResp int
	PendingLRdData int
}

// NewHWQueues constructs the four HW->host rings at their fixed capacity.
func NewHWQueues() *HWQueues {
	return &HWQueues{
		WrResp:  NewRing[wire.WrResp16](HWCapacity),
		RdData:  NewRing[wire.RdData512](HWCapacity),
		LWrResp: NewRing[wire.LWrResp](HWCapacity),
		LRdData: NewRing[wire.LRdData32](HWCapacity),
	}
}

// DequeueWrResp removes and returns the head WrResp16, crediting the
// pending-report accumulator for the framing engine's next send.
func (q *HWQueues) DequeueWrResp() (wire.WrResp16, bool) {
	v, ok := q.WrResp.Dequeue()
	if ok {
		q.PendingWrResp++
	}
	return v, ok
}

// DequeueRdData removes and returns the head RdData512, crediting the
// pending-report accumulator for the framing engine's next send.
func (q *HWQueues) DequeueRdData() (wire.RdData512, bool) {
	v, ok := q.RdData.Dequeue()
	if ok {
		q.PendingRdData++
	}
	return v, ok
}

// DequeueLWrResp removes and returns the head LWrResp, crediting the
// pending-report accumulator for the framing engine's next send.
func (q *HWQueues) DequeueLWrResp() (wire.LWrResp, bool) {
	v, ok := q.LWrResp.Dequeue()
	if ok {
		q.PendingLWrResp++
	}
	return v, ok
}

// DequeueLRdData removes and returns the head LRdData32, crediting the
// pending-report accumulator for the framing engine's next send.
func (q *HWQueues) DequeueLRdData() (wire.LRdData32, bool) {
	v, ok := q.LRdData.Dequeue()
	if ok {
		q.PendingLRdData++
	}
	return v, ok
}
