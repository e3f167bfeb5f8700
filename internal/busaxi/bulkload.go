// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package busaxi

// BulkWrite chunks an address-indexed byte image into 4KB-aligned,
// 64-byte-aligned windows and writes each with BurstWrite, satisfying
// spec.md §4.5's "Multi-page writes" rule before any single call reaches
// the adapter. addr must itself be 64-byte aligned, per spec.md §6's
// requirement that addr_base be floor-aligned to 64 bytes before the
// first burst.
//
// Grounded on pkg/drive/drive.go's SecurityProtocols/Certificate helpers,
// which likewise wrap one low-level primitive with buffer framing logic
// above it.
func (a *Adapter) BulkWrite(data []byte, addr uint64) error {
	for len(data) > 0 {
		pageOffset := addr % PageSize
		chunk := PageSize - pageOffset
		if chunk > uint64(len(data)) {
			chunk = uint64(len(data))
		}
		if err := a.BurstWrite(data[:chunk], int(chunk), addr); err != nil {
			return err
		}
		data = data[chunk:]
		addr += chunk
	}
	return nil
}
