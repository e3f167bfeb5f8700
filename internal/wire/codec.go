// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import "encoding/binary"

// Encode/Decode are total and infallible on well-formed inputs: every field
// whose declared width is a multiple of 8 bits occupies width/8 bytes,
// little-endian; every narrower field occupies exactly one byte with unused
// high bits zero. Fields are placed back to back in declaration order with
// no padding between them.

// EncodeWrAddr64 packs an address-phase record (Wr-Addr-64 or Rd-Addr-64
// layout) into its fixed 18-byte wire form.
func EncodeWrAddr64(r WrAddr64) [WireSizeWrAddr64]byte {
	var b [WireSizeWrAddr64]byte
	binary.LittleEndian.PutUint16(b[0:2], r.ID)
	binary.LittleEndian.PutUint64(b[2:10], r.Addr)
	b[10] = r.Len
	b[11] = r.Size
	b[12] = r.Burst
	b[13] = r.Lock
	b[14] = r.Cache
	b[15] = r.Prot
	b[16] = r.Qos
	b[17] = r.Region
	return b
}

// DecodeWrAddr64 reconstructs an address-phase record from its wire form.
// b must be exactly WireSizeWrAddr64 bytes.
func DecodeWrAddr64(b []byte) WrAddr64 {
	_ = b[17] // bounds check hint
	return WrAddr64{
		ID:     binary.LittleEndian.Uint16(b[0:2]),
		Addr:   binary.LittleEndian.Uint64(b[2:10]),
		Len:    b[10],
		Size:   b[11],
		Burst:  b[12],
		Lock:   b[13],
		Cache:  b[14],
		Prot:   b[15],
		Qos:    b[16],
		Region: b[17],
	}
}

// EncodeRdAddr64 packs a read-address-phase record into its wire form.
func EncodeRdAddr64(r RdAddr64) [WireSizeRdAddr64]byte {
	return EncodeWrAddr64(WrAddr64(r))
}

// DecodeRdAddr64 reconstructs a read-address-phase record from its wire form.
func DecodeRdAddr64(b []byte) RdAddr64 {
	return RdAddr64(DecodeWrAddr64(b))
}

// EncodeWrData512 packs a write-data-beat record into its 73-byte wire form.
func EncodeWrData512(r WrData512) [WireSizeWrData512]byte {
	var b [WireSizeWrData512]byte
	copy(b[0:64], r.Data[:])
	binary.LittleEndian.PutUint64(b[64:72], r.Strb)
	b[72] = r.Last
	return b
}

// DecodeWrData512 reconstructs a write-data-beat record from its wire form.
func DecodeWrData512(b []byte) WrData512 {
	_ = b[72]
	var r WrData512
	copy(r.Data[:], b[0:64])
	r.Strb = binary.LittleEndian.Uint64(b[64:72])
	r.Last = b[72]
	return r
}

// EncodeWrResp16 packs a write-response record into its 3-byte wire form.
func EncodeWrResp16(r WrResp16) [WireSizeWrResp16]byte {
	var b [WireSizeWrResp16]byte
	binary.LittleEndian.PutUint16(b[0:2], r.ID)
	b[2] = r.Resp
	return b
}

// DecodeWrResp16 reconstructs a write-response record from its wire form.
func DecodeWrResp16(b []byte) WrResp16 {
	_ = b[2]
	return WrResp16{
		ID:   binary.LittleEndian.Uint16(b[0:2]),
		Resp: b[2],
	}
}

// EncodeRdData512 packs a read-data-beat record into its 68-byte wire form.
func EncodeRdData512(r RdData512) [WireSizeRdData512]byte {
	var b [WireSizeRdData512]byte
	binary.LittleEndian.PutUint16(b[0:2], r.ID)
	copy(b[2:66], r.Data[:])
	b[66] = r.Resp
	b[67] = r.Last
	return b
}

// DecodeRdData512 reconstructs a read-data-beat record from its wire form.
func DecodeRdData512(b []byte) RdData512 {
	_ = b[67]
	var r RdData512
	r.ID = binary.LittleEndian.Uint16(b[0:2])
	copy(r.Data[:], b[2:66])
	r.Resp = b[66]
	r.Last = b[67]
	return r
}

// EncodeLWrAddr32 packs an AXI4-Lite write-address record into its 5-byte
// wire form.
func EncodeLWrAddr32(r LWrAddr32) [WireSizeLWrAddr32]byte {
	var b [WireSizeLWrAddr32]byte
	binary.LittleEndian.PutUint32(b[0:4], r.Addr)
	b[4] = r.Prot
	return b
}

// DecodeLWrAddr32 reconstructs an AXI4-Lite write-address record.
func DecodeLWrAddr32(b []byte) LWrAddr32 {
	_ = b[4]
	return LWrAddr32{
		Addr: binary.LittleEndian.Uint32(b[0:4]),
		Prot: b[4],
	}
}

// EncodeLWrData32 packs an AXI4-Lite write-data record into its 5-byte wire
// form.
func EncodeLWrData32(r LWrData32) [WireSizeLWrData32]byte {
	var b [WireSizeLWrData32]byte
	binary.LittleEndian.PutUint32(b[0:4], r.Data)
	b[4] = r.Strb
	return b
}

// DecodeLWrData32 reconstructs an AXI4-Lite write-data record.
func DecodeLWrData32(b []byte) LWrData32 {
	_ = b[4]
	return LWrData32{
		Data: binary.LittleEndian.Uint32(b[0:4]),
		Strb: b[4],
	}
}

// EncodeLRdAddr32 packs an AXI4-Lite read-address record into its 5-byte
// wire form.
func EncodeLRdAddr32(r LRdAddr32) [WireSizeLRdAddr32]byte {
	var b [WireSizeLRdAddr32]byte
	binary.LittleEndian.PutUint32(b[0:4], r.Addr)
	b[4] = r.Prot
	return b
}

// DecodeLRdAddr32 reconstructs an AXI4-Lite read-address record.
func DecodeLRdAddr32(b []byte) LRdAddr32 {
	_ = b[4]
	return LRdAddr32{
		Addr: binary.LittleEndian.Uint32(b[0:4]),
		Prot: b[4],
	}
}

// EncodeLWrResp packs an AXI4-Lite write-response record into its 1-byte
// wire form.
func EncodeLWrResp(r LWrResp) [WireSizeLWrResp]byte {
	return [WireSizeLWrResp]byte{r.Resp}
}

// DecodeLWrResp reconstructs an AXI4-Lite write-response record.
func DecodeLWrResp(b []byte) LWrResp {
	_ = b[0]
	return LWrResp{Resp: b[0]}
}

// EncodeLRdData32 packs an AXI4-Lite read-data record into its 5-byte wire
// form.
func EncodeLRdData32(r LRdData32) [WireSizeLRdData32]byte {
	var b [WireSizeLRdData32]byte
	binary.LittleEndian.PutUint32(b[0:4], r.Data)
	b[4] = r.Resp
	return b
}

// DecodeLRdData32 reconstructs an AXI4-Lite read-data record.
func DecodeLRdData32(b []byte) LRdData32 {
	_ = b[4]
	return LRdData32{
		Data: binary.LittleEndian.Uint32(b[0:4]),
		Resp: b[4],
	}
}
