// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cregion

import (
	"unsafe"

	"github.com/AlxHnr/CRegion/internal/debug"
	"github.com/AlxHnr/CRegion/internal/fatal"
	"github.com/AlxHnr/CRegion/internal/safemath"
	"github.com/AlxHnr/CRegion/internal/xunsafe"
)

// destructorState tracks where a chunk is in its destructor life cycle.
// States only move forward: disabled to enabled to called, or disabled
// straight to called.
type destructorState uint32

const (
	destructorDisabled destructorState = iota
	destructorEnabled
	destructorCalled
)

// header precedes the object bytes of every chunk handed out by a pool.
// Given an object pointer, subtracting one header recovers the owning pool
// and the list linkage in O(1).
type header struct {
	state destructorState
	mp    *Mempool

	// Neighbors in whichever list the chunk is currently on.
	prev, next *header
}

const headerSize = int(unsafe.Sizeof(header{}))

// Object pointers keep the region's 8-byte alignment only as long as the
// header size is a multiple of 8. The negation underflows uintptr, and
// compilation fails, if a header change ever breaks this.
const _ = -(unsafe.Sizeof(header{}) % granularity)

// FailableDestructor is run on an enabled object when it is passed to
// [DestroyObject]. A non-nil error is routed into the failure channel.
type FailableDestructor func(obj unsafe.Pointer) error

// Mempool recycles fixed-size object slots carved from a region. The pool
// is bound to the region's lifetime and is destroyed with it, never
// independently.
type Mempool struct {
	_ xunsafe.NoCopy

	region   *Region
	explicit FailableDestructor
	implicit ReleaseCallback

	// The size of an object plus its header.
	chunkSize int

	// All live chunks, most recently allocated first. Required for the
	// implicit-destructor sweep at release.
	allocated *header

	// Explicitly destroyed chunks ready for reuse, most recent first.
	released *header
}

// NewMempool returns a pool allocating objects of objectSize bytes from r.
// The returned pool is bound to the lifetime of the region.
//
// explicit is run by [DestroyObject]; implicit is run at region release
// for every object whose destructor was enabled and that was never
// explicitly destroyed. Either destructor may be nil, in which case it is
// ignored.
func NewMempool(r *Region, objectSize int, explicit FailableDestructor, implicit ReleaseCallback) *Mempool {
	if objectSize == 0 {
		fatal.Failf("unable to create memory pool for allocating zero size objects")
	}

	mp := &Mempool{
		region:    r,
		explicit:  explicit,
		implicit:  implicit,
		chunkSize: safemath.Add(headerSize, objectSize),
	}
	r.Attach(destroyObjects, unsafe.Pointer(mp))

	return mp
}

// destroyObjects runs the implicit destructor over every enabled object
// still in the pool. It is attached to the owning region at pool
// construction, so it runs when the region is released.
func destroyObjects(data unsafe.Pointer) {
	mp := (*Mempool)(data)
	if mp.implicit == nil {
		return
	}

	for h := mp.allocated; h != nil; h = h.next {
		if h.state == destructorEnabled {
			mp.implicit(objectOf(h))
		}
	}
}

func objectOf(h *header) unsafe.Pointer {
	return unsafe.Pointer(xunsafe.ByteAdd[byte](h, headerSize))
}

func headerOf(ptr *byte) *header {
	return xunsafe.ByteAdd[header](ptr, -headerSize)
}

// Alloc returns an uninitialized object slot aligned to 8, reusing the
// most recently released slot if one exists.
func (mp *Mempool) Alloc() *byte {
	h := mp.availableChunk()

	h.state = destructorDisabled
	h.mp = mp
	h.prev = nil

	// Prepend to the allocated chunk list.
	h.next = mp.allocated
	mp.allocated = h
	if h.next != nil {
		h.next.prev = h
	}

	return (*byte)(objectOf(h))
}

// availableChunk pops the next reusable chunk, carving a fresh one from
// the region when none are ready for reuse.
func (mp *Mempool) availableChunk() *header {
	if mp.released == nil {
		return xunsafe.Cast[header](mp.region.Alloc(mp.chunkSize))
	}

	h := mp.released
	mp.released = h.next
	if mp.released != nil {
		mp.released.prev = nil
	}

	return h
}

// EnableObjectDestructor enables the destructors of the given object. This
// is how callers signal that an object is fully initialized; objects whose
// destructor was never enabled are destroyed without running either
// destructor.
func EnableObjectDestructor(ptr *byte) {
	h := headerOf(ptr)
	debug.Assert(h.state != destructorCalled,
		"enabling the destructor of a destroyed object %p", ptr)

	h.state = destructorEnabled
}

// DestroyObject returns the given object's slot to its pool and, if the
// object's destructor was enabled, runs the pool's explicit destructor on
// it. Passing the same object twice without reallocating it is a fatal
// error.
func DestroyObject(ptr *byte) {
	h := headerOf(ptr)
	mp := h.mp

	if h.state == destructorCalled {
		fatal.Failf("passed the same object to CR_DestroyObject() twice")
	}
	enabled := h.state == destructorEnabled
	h.state = destructorCalled

	// Detach from the allocated chunk list.
	if h.prev != nil {
		h.prev.next = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	if h == mp.allocated {
		mp.allocated = mp.allocated.next
	}

	// Prepend to the released chunk list before running the destructor, so
	// the destructor can allocate from and return objects to this pool.
	h.prev = nil
	h.next = mp.released
	mp.released = h
	if h.next != nil {
		h.next.prev = h
	}

	if enabled && mp.explicit != nil {
		if err := mp.explicit(unsafe.Pointer(ptr)); err != nil {
			fatal.Failf("%s", err)
		}
	}
}
