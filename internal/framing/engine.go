// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package framing implements the credit/framing engine: it selects one
// paired queue to transmit per call, embeds return credits owed to the
// remote, and on the receive side restores the sender's credits and
// demultiplexes one decoded record into its queue.
//
// Grounded on pkg/core/communication.go's Send/Receive packetization: a
// fixed struct header is assembled first, the body is appended, and the
// whole buffer is handed to the transport in one shot.
package framing

import (
	"fmt"

	"github.com/cloudgfe/host-bridge/internal/bridgeerr"
	"github.com/cloudgfe/host-bridge/internal/queue"
	"github.com/cloudgfe/host-bridge/internal/wire"
)

// HostToHWCreditBytes is K for packets the host sends: one byte per
// HW->host queue type (4), plus one reserved byte for forward
// compatibility, per spec.md §3.
const HostToHWCreditBytes = 5

// HWToHostCreditBytes is K for packets the host receives: one byte per
// host->HW queue type (6), per spec.md §3.
const HWToHostCreditBytes = 6

// Engine holds a reference to both queue directions and drives the credit
// protocol between them. It carries no transport state of its own.
type Engine struct {
	Host *queue.HostQueues
	HW   *queue.HWQueues
}

// New constructs a framing Engine over the given queue state.
func New(host *queue.HostQueues, hw *queue.HWQueues) *Engine {
	return &Engine{Host: host, HW: hw}
}

// BuildOutgoingPacket implements spec.md §4.3's build_outgoing_packet. It
// returns the encoded packet and true if a frame (payload or
// credits-only) was produced, or nil, false if there is nothing to do.
func (e *Engine) BuildOutgoingPacket() ([]byte, bool) {
	credits := [HostToHWCreditBytes]byte{
		byte(saturate(e.HW.PendingWrResp)),
		byte(saturate(e.HW.PendingRdData)),
		byte(saturate(e.HW.PendingLWrResp)),
		byte(saturate(e.HW.PendingLRdData)),
		0, // reserved
	}
	e.HW.PendingWrResp = 0
	e.HW.PendingRdData = 0
	e.HW.PendingLWrResp = 0
	e.HW.PendingLRdData = 0

	if payload, tag, ok := e.selectOutgoingPayload(); ok {
		return buildPacket(credits[:], byte(tag), payload), true
	}

	anyCredit := false
	for _, c := range credits {
		if c != 0 {
			anyCredit = true
			break
		}
	}
	if anyCredit {
		return buildPacket(credits[:], byte(wire.TagCreditsOnly), nil), true
	}
	return nil, false
}

// selectOutgoingPayload walks the host->HW queues in the fixed priority
// order from spec.md §4.3: address queues before data queues before the
// read-address queue before the AXI4-Lite queues, chosen to minimize
// head-of-line blocking on write bursts.
func (e *Engine) selectOutgoingPayload() (payload []byte, tag wire.ChanTag, ok bool) {
	h := e.Host
	switch {
	case !h.WrAddr.Empty() && h.CreditWrAddr > 0:
		r, _ := h.WrAddr.Dequeue()
		h.CreditWrAddr--
		b := wire.EncodeWrAddr64(r)
		return b[:], wire.TagWrAddr64, true
	case !h.WrData.Empty() && h.CreditWrData > 0:
		r, _ := h.WrData.Dequeue()
		h.CreditWrData--
		b := wire.EncodeWrData512(r)
		return b[:], wire.TagWrData512, true
	case !h.RdAddr.Empty() && h.CreditRdAddr > 0:
		r, _ := h.RdAddr.Dequeue()
		h.CreditRdAddr--
		b := wire.EncodeRdAddr64(r)
		return b[:], wire.TagRdAddr64, true
	case !h.LWrAddr.Empty() && h.CreditLWrAddr > 0:
		r, _ := h.LWrAddr.Dequeue()
		h.CreditLWrAddr--
		b := wire.EncodeLWrAddr32(r)
		return b[:], wire.TagLWrAddr32, true
	case !h.LWrData.Empty() && h.CreditLWrData > 0:
		r, _ := h.LWrData.Dequeue()
		h.CreditLWrData--
		b := wire.EncodeLWrData32(r)
		return b[:], wire.TagLWrData32, true
	case !h.LRdAddr.Empty() && h.CreditLRdAddr > 0:
		r, _ := h.LRdAddr.Dequeue()
		h.CreditLRdAddr--
		b := wire.EncodeLRdAddr32(r)
		return b[:], wire.TagLRdAddr32, true
	default:
		return nil, 0, false
	}
}

// buildPacket assembles byte 0 (length), the credit vector, the tag byte,
// and the payload into one packet.
func buildPacket(credits []byte, tag byte, payload []byte) []byte {
	length := 1 + len(credits) + 1 + len(payload)
	pkt := make([]byte, 0, length)
	pkt = append(pkt, byte(length))
	pkt = append(pkt, credits...)
	pkt = append(pkt, tag)
	pkt = append(pkt, payload...)
	return pkt
}

// saturate clamps a credit accumulator to the wire byte's [0, 255] range,
// per spec.md §3's "credits saturate at 255".
func saturate(n int) int {
	if n > 255 {
		return 255
	}
	return n
}

// ConsumeIncomingPacket implements spec.md §4.3's consume_incoming_packet:
// it validates the declared length, restores this side's sender credits
// for the six host->HW queue types from the embedded return-credit bytes,
// and (unless the packet is credits-only) decodes the payload and enqueues
// it into the matching HW->host receive queue.
func (e *Engine) ConsumeIncomingPacket(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty packet", bridgeerr.ErrProtocolFault)
	}
	declared := int(b[0])
	if declared != len(b) {
		return fmt.Errorf("%w: declared length %d, got %d bytes", bridgeerr.ErrProtocolFault, declared, len(b))
	}
	if len(b) < 1+HWToHostCreditBytes+1 {
		return fmt.Errorf("%w: packet too short for header", bridgeerr.ErrProtocolFault)
	}
	credits := b[1 : 1+HWToHostCreditBytes]
	e.Host.CreditWrAddr += int(credits[0])
	e.Host.CreditWrData += int(credits[1])
	e.Host.CreditRdAddr += int(credits[2])
	e.Host.CreditLWrAddr += int(credits[3])
	e.Host.CreditLWrData += int(credits[4])
	e.Host.CreditLRdAddr += int(credits[5])

	tag := wire.ChanTag(b[1+HWToHostCreditBytes])
	payload := b[1+HWToHostCreditBytes+1:]

	switch tag {
	case wire.TagCreditsOnly:
		if len(payload) != 0 {
			return fmt.Errorf("%w: credits-only packet carried a payload", bridgeerr.ErrProtocolFault)
		}
		return nil
	case wire.TagWrResp16:
		if len(payload) != wire.WireSizeWrResp16 {
			return fmt.Errorf("%w: Wr-Resp-16 payload length %d", bridgeerr.ErrProtocolFault, len(payload))
		}
		if !e.HW.WrResp.Enqueue(wire.DecodeWrResp16(payload)) {
			return fmt.Errorf("%w: Wr-Resp-16 queue full", bridgeerr.ErrQueueOverflow)
		}
	case wire.TagRdData512:
		if len(payload) != wire.WireSizeRdData512 {
			return fmt.Errorf("%w: Rd-Data-512 payload length %d", bridgeerr.ErrProtocolFault, len(payload))
		}
		if !e.HW.RdData.Enqueue(wire.DecodeRdData512(payload)) {
			return fmt.Errorf("%w: Rd-Data-512 queue full", bridgeerr.ErrQueueOverflow)
		}
	case wire.TagLWrResp:
		if len(payload) != wire.WireSizeLWrResp {
			return fmt.Errorf("%w: L-Wr-Resp payload length %d", bridgeerr.ErrProtocolFault, len(payload))
		}
		if !e.HW.LWrResp.Enqueue(wire.DecodeLWrResp(payload)) {
			return fmt.Errorf("%w: L-Wr-Resp queue full", bridgeerr.ErrQueueOverflow)
		}
	case wire.TagLRdData32:
		if len(payload) != wire.WireSizeLRdData32 {
			return fmt.Errorf("%w: L-Rd-Data-32 payload length %d", bridgeerr.ErrProtocolFault, len(payload))
		}
		if !e.HW.LRdData.Enqueue(wire.DecodeLRdData32(payload)) {
			return fmt.Errorf("%w: L-Rd-Data-32 queue full", bridgeerr.ErrQueueOverflow)
		}
	default:
		return fmt.Errorf("%w: unknown channel tag %d", bridgeerr.ErrProtocolFault, tag)
	}
	return nil
}
