// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package queue

import "testing"

func TestRingEnqueueDequeueFIFO(t *testing.T) {
	r := NewRing[int](4)
	for i := 0; i < 4; i++ {
		if !r.Enqueue(i) {
			t.Fatalf("Enqueue(%d) reported full", i)
		}
	}
	if r.Enqueue(4) {
		t.Fatalf("Enqueue on a full ring should report false")
	}
	for i := 0; i < 4; i++ {
		got, ok := r.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() reported empty early")
		}
		if got != i {
			t.Errorf("Dequeue() = %d, want %d", got, i)
		}
	}
	if _, ok := r.Dequeue(); ok {
		t.Errorf("Dequeue() on empty ring reported ok = true")
	}
}

func TestRingPeekHeadDoesNotRemove(t *testing.T) {
	r := NewRing[string](2)
	r.Enqueue("a")
	r.Enqueue("b")
	for i := 0; i < 3; i++ {
		got, ok := r.PeekHead()
		if !ok || got != "a" {
			t.Fatalf("PeekHead() = %q, %v; want %q, true", got, ok, "a")
		}
	}
	if occ := r.Occupancy(); occ != 2 {
		t.Errorf("Occupancy() = %d, want 2", occ)
	}
}

func TestRingEmptyDequeueReturnsZeroValue(t *testing.T) {
	r := NewRing[int](1)
	got, ok := r.Dequeue()
	if ok {
		t.Fatalf("Dequeue() on empty ring reported ok = true")
	}
	if got != 0 {
		t.Errorf("Dequeue() on empty ring returned %d, want zero value", got)
	}
}

func TestRingWrapsAroundIndices(t *testing.T) {
	r := NewRing[int](3)
	r.Enqueue(1)
	r.Enqueue(2)
	r.Dequeue()
	r.Enqueue(3)
	r.Enqueue(4)
	if !r.Full() {
		t.Fatalf("ring should be full after wrap-around fill")
	}
	want := []int{2, 3, 4}
	for _, w := range want {
		got, ok := r.Dequeue()
		if !ok || got != w {
			t.Errorf("Dequeue() = %d, %v; want %d, true", got, ok, w)
		}
	}
}

func TestRingOccupancyNeverExceedsCapacity(t *testing.T) {
	r := NewRing[int](2)
	for i := 0; i < 10; i++ {
		r.Enqueue(i)
		if occ := r.Occupancy(); occ < 0 || occ > r.Capacity() {
			t.Fatalf("Occupancy() = %d out of range [0, %d]", occ, r.Capacity())
		}
	}
}
