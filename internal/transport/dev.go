// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/dswarbrick/smart/ioctl"
	"golang.org/x/sys/unix"

	"github.com/cloudgfe/host-bridge/internal/bridgeerr"
)

// DeviceBackend is the real-hardware counterpart of Transport for the
// kernel-device path (spec.md §4.4 case (b)): one file descriptor for
// read-DMA, one for write-DMA, and one handle for register I/O. Unlike
// Transport, a DeviceBackend is driven directly by the burst and register
// adapters; the wire codec never runs on this path.
//
// Opened the way pkg/drive/drive_nix.go opens a raw device node
// (os.OpenFile with O_RDWR); DMA transfers go through golang.org/x/sys/unix's
// positioned pread/pwrite the way a raw block/char device is driven without
// the stdlib's buffering assumptions, and register access goes through an
// ioctl built with github.com/dswarbrick/smart/ioctl, the same request/
// response-struct-over-ioctl shape pkg/drive/sgio.execGenericIO and
// pkg/drive/nvme_nix.go's NVME_IOCTL_ADMIN_CMD use for passthrough I/O.
type DeviceBackend interface {
	ReadDMA(addr uint64, out []byte) error
	WriteDMA(addr uint64, data []byte) error
	RegPeek(addr uint32) (uint32, error)
	RegPoke(addr uint32, val uint32) error
	Close() error
}

// regXfer mirrors the kernel driver's register-access ioctl payload: one
// word read or written at a given register offset.
type regXfer struct {
	addr uint32
	data uint32
}

// Register-access ioctl request codes, computed the same way
// pkg/drive/nvme_nix.go's NVME_IOCTL_ADMIN_CMD is: ioctl.Iowr(type, nr, size).
var (
	ioctlRegPeek = ioctl.Iowr('b', 0x00, unsafe.Sizeof(regXfer{}))
	ioctlRegPoke = ioctl.Iowr('b', 0x01, unsafe.Sizeof(regXfer{}))
)

type kernelDevice struct {
	readDMA  *os.File
	writeDMA *os.File
	regs     *os.File
}

// OpenKernelDevice opens the three device nodes backing a real accelerator
// attachment.
func OpenKernelDevice(readDMAPath, writeDMAPath, regsPath string) (DeviceBackend, error) {
	rd, err := os.OpenFile(readDMAPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", bridgeerr.ErrFatal, readDMAPath, err)
	}
	wd, err := os.OpenFile(writeDMAPath, os.O_WRONLY, 0)
	if err != nil {
		rd.Close()
		return nil, fmt.Errorf("%w: open %s: %v", bridgeerr.ErrFatal, writeDMAPath, err)
	}
	rg, err := os.OpenFile(regsPath, os.O_RDWR, 0)
	if err != nil {
		rd.Close()
		wd.Close()
		return nil, fmt.Errorf("%w: open %s: %v", bridgeerr.ErrFatal, regsPath, err)
	}
	return &kernelDevice{readDMA: rd, writeDMA: wd, regs: rg}, nil
}

func (d *kernelDevice) ReadDMA(addr uint64, out []byte) error {
	n, err := unix.Pread(int(d.readDMA.Fd()), out, int64(addr))
	if err != nil || n != len(out) {
		return fmt.Errorf("%w: short read-DMA at 0x%x (%d/%d bytes): %v", bridgeerr.ErrTransportFault, addr, n, len(out), err)
	}
	return nil
}

func (d *kernelDevice) WriteDMA(addr uint64, data []byte) error {
	n, err := unix.Pwrite(int(d.writeDMA.Fd()), data, int64(addr))
	if err != nil || n != len(data) {
		return fmt.Errorf("%w: short write-DMA at 0x%x (%d/%d bytes): %v", bridgeerr.ErrTransportFault, addr, n, len(data), err)
	}
	return nil
}

func (d *kernelDevice) RegPeek(addr uint32) (uint32, error) {
	x := regXfer{addr: addr}
	if err := ioctl.Ioctl(d.regs.Fd(), ioctlRegPeek, uintptr(unsafe.Pointer(&x))); err != nil {
		return 0, fmt.Errorf("%w: register peek ioctl at 0x%x: %v", bridgeerr.ErrTransportFault, addr, err)
	}
	return x.data, nil
}

func (d *kernelDevice) RegPoke(addr uint32, val uint32) error {
	x := regXfer{addr: addr, data: val}
	if err := ioctl.Ioctl(d.regs.Fd(), ioctlRegPoke, uintptr(unsafe.Pointer(&x))); err != nil {
		return fmt.Errorf("%w: register poke ioctl at 0x%x: %v", bridgeerr.ErrTransportFault, addr, err)
	}
	return nil
}

func (d *kernelDevice) Close() error {
	d.readDMA.Close()
	d.writeDMA.Close()
	return d.regs.Close()
}
