// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import "testing"

func TestSortedOrdersByAscendingAddr(t *testing.T) {
	img := &Image{Segments: []Segment{
		{Addr: 0x2000, Data: []byte{3, 4}},
		{Addr: 0x1000, Data: []byte{1, 2}},
		{Addr: 0x1800, Data: []byte{5}},
	}}
	got := img.Sorted()
	want := []uint32{0x1000, 0x1800, 0x2000}
	for i, w := range want {
		if got[i].Addr != w {
			t.Errorf("Sorted()[%d].Addr = %#x, want %#x", i, got[i].Addr, w)
		}
	}
}

func TestSortedDoesNotMutateOriginal(t *testing.T) {
	img := &Image{Segments: []Segment{
		{Addr: 0x2000, Data: []byte{1}},
		{Addr: 0x1000, Data: []byte{2}},
	}}
	img.Sorted()
	if img.Segments[0].Addr != 0x2000 {
		t.Errorf("Sorted() mutated the receiver's Segments order")
	}
}

func TestTotalBytesSumsAllSegments(t *testing.T) {
	img := &Image{Segments: []Segment{
		{Data: []byte{1, 2, 3}},
		{Data: []byte{4, 5}},
		{Data: nil},
	}}
	if got := img.TotalBytes(); got != 5 {
		t.Errorf("TotalBytes() = %d, want 5", got)
	}
}

func TestEmptyImage(t *testing.T) {
	img := &Image{}
	if got := img.TotalBytes(); got != 0 {
		t.Errorf("TotalBytes() on empty image = %d, want 0", got)
	}
	if got := img.Sorted(); len(got) != 0 {
		t.Errorf("Sorted() on empty image = %v, want empty", got)
	}
}
