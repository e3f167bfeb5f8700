// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package image defines the value types the bulk-load path accepts from
// the external ELF and memhex32 loaders. Parsing either format is an
// external collaborator's job per spec.md's Non-goals; this package only
// defines the address-indexed byte image the core consumes and a small
// helper to turn it into contiguous, bulkload-ready windows.
package image

import "sort"

// Segment is one contiguous run of bytes destined for a fixed load
// address, the common shape both an ELF program header and a memhex32
// record reduce to.
type Segment struct {
	Addr uint32
	Data []byte
}

// Image is an address-indexed byte image assembled by an external
// ELF or memhex32 loader and handed to internal/busaxi's BulkWrite.
type Image struct {
	Segments []Segment
}

// Sorted returns the image's segments ordered by ascending load address,
// the order busaxi.BulkWrite expects so its 4KB-window chunking never has
// to look back.
func (img *Image) Sorted() []Segment {
	out := make([]Segment, len(img.Segments))
	copy(out, img.Segments)
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// TotalBytes sums every segment's length, for progress reporting.
func (img *Image) TotalBytes() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}
