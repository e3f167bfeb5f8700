// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pump ties the credit/framing engine to a byte-pipe transport:
// it is the one piece of glue every adapter busy-waits on to make
// progress, so it lives on its own rather than duplicated in burst,
// register, and channel-mux code.
package pump

import (
	"fmt"

	"github.com/cloudgfe/host-bridge/internal/bridgeerr"
	"github.com/cloudgfe/host-bridge/internal/framing"
	"github.com/cloudgfe/host-bridge/internal/transport"
)

// MaxSpin bounds defensive busy-wait loops against a genuinely stuck
// transport. Not mandated by spec.md for burst/register waits (only
// spec.md §4.7's channel busy-poll is explicitly bounded), but applied
// uniformly so a protocol bug surfaces as ErrPollTimeout instead of
// hanging the process forever.
const MaxSpin = 1 << 20

// Pump drains one outgoing packet (if any) to the transport and decodes
// one incoming packet (if any) per Step call.
type Pump struct {
	Engine *framing.Engine
	T      transport.Transport
}

// New constructs a Pump over the given engine and transport.
func New(e *framing.Engine, t transport.Transport) *Pump {
	return &Pump{Engine: e, T: t}
}

// Step runs at most one send and one receive attempt, returning whether
// either did useful work.
func (p *Pump) Step() (bool, error) {
	did := false

	if pkt, ok := p.Engine.BuildOutgoingPacket(); ok {
		if err := p.T.Send(pkt); err != nil {
			return did, err
		}
		did = true
	}

	var lenByte [1]byte
	status, err := p.T.Recv(1, transport.Polling, lenByte[:])
	if err != nil {
		return did, err
	}
	if status == transport.RecvUnavailable {
		return did, nil
	}
	total := int(lenByte[0])
	if total < 1 {
		return did, fmt.Errorf("%w: declared packet length %d", bridgeerr.ErrProtocolFault, total)
	}
	pkt := make([]byte, total)
	pkt[0] = lenByte[0]
	if total > 1 {
		if _, err := p.T.Recv(total-1, transport.Blocking, pkt[1:]); err != nil {
			return did, err
		}
	}
	if err := p.Engine.ConsumeIncomingPacket(pkt); err != nil {
		return did, err
	}
	return true, nil
}

// SpinUntil repeatedly steps the pump until cond reports true, returning
// ErrPollTimeout if it does not become true within MaxSpin iterations.
func (p *Pump) SpinUntil(cond func() bool) error {
	for i := 0; i < MaxSpin; i++ {
		if cond() {
			return nil
		}
		if _, err := p.Step(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: condition not met after %d spins", bridgeerr.ErrPollTimeout, MaxSpin)
}
