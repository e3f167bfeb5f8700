// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package busaxi

import (
	"fmt"

	"github.com/cloudgfe/host-bridge/internal/bridgeerr"
	"github.com/cloudgfe/host-bridge/internal/wire"
)

// Peek reads a single 32-bit word from the AXI4-Lite register space.
func (a *Adapter) Peek(address uint32) (uint32, error) {
	if a.Device != nil {
		return a.Device.RegPeek(address)
	}
	req := wire.LRdAddr32{Addr: address}
	if err := a.enqueueLRdAddr(req); err != nil {
		return 0, err
	}
	var rd wire.LRdData32
	if err := a.Pump.SpinUntil(func() bool {
		v, ok := a.Pump.Engine.HW.DequeueLRdData()
		if !ok {
			return false
		}
		rd = v
		return true
	}); err != nil {
		return 0, err
	}
	if rd.Resp != wire.RespOKAY {
		return 0, fmt.Errorf("%w: peek(0x%x) resp=0x%x (want OKAY)", bridgeerr.ErrTransportFault, address, rd.Resp)
	}
	return rd.Data, nil
}

// Poke writes a single 32-bit word to the AXI4-Lite register space, all
// four byte lanes enabled.
func (a *Adapter) Poke(address uint32, word uint32) error {
	if a.Device != nil {
		return a.Device.RegPoke(address, word)
	}
	if err := a.enqueueLWrAddr(wire.LWrAddr32{Addr: address}); err != nil {
		return err
	}
	if err := a.enqueueLWrData(wire.LWrData32{Data: word, Strb: 0x0F}); err != nil {
		return err
	}
	var resp wire.LWrResp
	if err := a.Pump.SpinUntil(func() bool {
		v, ok := a.Pump.Engine.HW.DequeueLWrResp()
		if !ok {
			return false
		}
		resp = v
		return true
	}); err != nil {
		return err
	}
	if resp.Resp != wire.RespOKAY {
		return fmt.Errorf("%w: poke(0x%x, 0x%x) resp=0x%x (want OKAY)", bridgeerr.ErrTransportFault, address, word, resp.Resp)
	}
	return nil
}

func (a *Adapter) enqueueLRdAddr(rec wire.LRdAddr32) error {
	return a.Pump.SpinUntil(func() bool {
		if a.Pump.Engine.Host.LRdAddr.Full() {
			return false
		}
		a.Pump.Engine.Host.LRdAddr.Enqueue(rec)
		return true
	})
}

func (a *Adapter) enqueueLWrAddr(rec wire.LWrAddr32) error {
	return a.Pump.SpinUntil(func() bool {
		if a.Pump.Engine.Host.LWrAddr.Full() {
			return false
		}
		a.Pump.Engine.Host.LWrAddr.Enqueue(rec)
		return true
	})
}

func (a *Adapter) enqueueLWrData(rec wire.LWrData32) error {
	return a.Pump.SpinUntil(func() bool {
		if a.Pump.Engine.Host.LWrData.Full() {
			return false
		}
		a.Pump.Engine.Host.LWrData.Enqueue(rec)
		return true
	})
}
