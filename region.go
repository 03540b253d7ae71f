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

// granularity is the alignment of all aligned allocations.
const granularity = 8

// Region is an arena: a chain of backing blocks served from a bump
// frontier, released all at once.
type Region struct {
	_ xunsafe.NoCopy

	// Bump frontier of the current backing block.
	next, end xunsafe.Addr[byte]

	// Capacity of the current backing block. Always a power of 2.
	cap int

	// All backing blocks owned by this region, most recent first.
	blocks *block

	// Callbacks to run on release, most recently attached first.
	callbacks *callbackNode

	releasing bool
}

// ReleaseCallback consumes the opaque data pointer it was attached with.
// Release callbacks run during [Region.Release] and must not fail.
type ReleaseCallback func(data unsafe.Pointer)

type callbackNode struct {
	fn   ReleaseCallback
	data unsafe.Pointer
	next *callbackNode
}

// NewRegion returns a fresh region with one backing block already
// allocated.
func NewRegion() *Region {
	r := &Region{}
	r.grow(0)
	return r
}

// Alloc returns size bytes of uninitialized memory aligned to 8. The
// allocation consumes size rounded up to the next multiple of 8 from the
// frontier, so consecutive aligned allocations sit at predictable strides.
func (r *Region) Alloc(size int) *byte {
	if size == 0 {
		fatal.Failf("unable to allocate 0 bytes")
	}

	return r.bump(safemath.RoundUp(size, granularity), granularity)
}

// AllocUnaligned returns size bytes of uninitialized memory with no
// alignment guarantee and no size rounding.
func (r *Region) AllocUnaligned(size int) *byte {
	if size == 0 {
		fatal.Failf("unable to allocate 0 bytes")
	}
	if size < 0 {
		fatal.Failf("overflow calculating object size")
	}

	return r.bump(size, 1)
}

// bump carves size bytes off the current block, padding the frontier to
// align first. size must already include any rounding the caller wants.
func (r *Region) bump(size, align int) *byte {
	pad := r.next.Padding(align)
	if alwaysFreshAlloc || pad+size > r.end.Sub(r.next) {
		r.grow(size)
		pad = 0 // fresh blocks start aligned
	}

	p := r.next.ByteAdd(pad).AssertValid()
	r.next = r.next.ByteAdd(pad + size)
	r.log("alloc", "%p, %d:%d", p, size, align)

	return p
}

// grow links in a fresh backing block of at least the given size and moves
// the frontier onto it. Whatever was left in the previous block is
// abandoned until release.
func (r *Region) grow(size int) {
	xunsafe.Escape(r)
	want := max(size, r.cap*2, 1)
	if alwaysFreshAlloc {
		// Each block holds a single allocation, so it is sized by the
		// request alone instead of doubling with every allocation.
		want = max(size, 1)
	}
	n := suggestSize(want)
	p := newBlockMemory(n, r)

	r.blocks = &block{data: p, size: n, next: r.blocks}
	r.next = xunsafe.AddrOf(p)
	r.end = r.next.ByteAdd(n)
	r.cap = n
	r.log("grow", "%v:%v:%d", r.next, r.end, r.cap)
}

// Attach registers fn on the region's callback list. Release runs the
// callbacks in reverse attachment order. Attaching from within a release
// callback is not allowed.
func (r *Region) Attach(fn ReleaseCallback, data unsafe.Pointer) {
	debug.Assert(!r.releasing, "attach during release of region %p", r)

	r.callbacks = &callbackNode{fn: fn, data: data, next: r.callbacks}
}

// Release runs all attached callbacks in LIFO order, then drops every
// backing block. The region must not be used afterwards; callbacks must
// not call back into the region.
func (r *Region) Release() {
	debug.Assert(!r.releasing, "re-entrant release of region %p", r)
	r.releasing = true
	r.log("release", "current block of %d bytes", r.cap)

	for cb := r.callbacks; cb != nil; cb = cb.next {
		cb.fn(cb.data)
	}

	r.callbacks = nil
	r.blocks = nil
	r.next, r.end, r.cap = 0, 0, 0
}

func (r *Region) log(op, format string, args ...any) {
	debug.Log([]any{"%p %v:%v", r, r.next, r.end}, op, format, args...)
}
