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

	"github.com/AlxHnr/CRegion/internal/fatal"
	"github.com/AlxHnr/CRegion/internal/safemath"
	"github.com/AlxHnr/CRegion/internal/xunsafe"
)

// growableHeader precedes every growable allocation and is how
// [EnsureCapacity] finds its way back to the owning region. Its size must
// stay a multiple of 8 so the user pointer keeps the region's alignment
// guarantee.
type growableHeader struct {
	region   *Region
	capacity int
}

const growableHeaderSize = int(unsafe.Sizeof(growableHeader{}))

const _ = -(unsafe.Sizeof(growableHeader{}) % granularity)

// AllocGrowable returns size bytes of uninitialized memory aligned to 8,
// tagged for later expansion via [EnsureCapacity]. The size checks run
// before the region is touched.
func (r *Region) AllocGrowable(size int) *byte {
	return r.allocGrowable(checkGrowableSize(size))
}

func checkGrowableSize(size int) int {
	if size == 0 {
		fatal.Failf("unable to allocate 0 bytes")
	}
	return safemath.RoundUp(size, granularity)
}

func (r *Region) allocGrowable(rounded int) *byte {
	p := r.bump(safemath.Add(growableHeaderSize, rounded), granularity)

	hdr := xunsafe.Cast[growableHeader](p)
	hdr.region = r
	hdr.capacity = rounded

	return xunsafe.ByteAdd[byte](p, growableHeaderSize)
}

// EnsureCapacity returns memory holding the contents of ptr with room for
// at least size bytes. If the capacity backing ptr already suffices, ptr
// is returned unchanged; otherwise a larger allocation (at least double
// the old capacity) is taken from the owning region, the old contents are
// copied over, and the new pointer is returned. The old memory stays owned
// by the region until release.
//
// ptr must come from [Region.AllocGrowable] or a previous EnsureCapacity
// call. As a convenience, a nil ptr allocates fresh growable memory from
// the global region.
func EnsureCapacity(ptr *byte, size int) *byte {
	rounded := checkGrowableSize(size)
	if ptr == nil {
		return GetGlobalRegion().allocGrowable(rounded)
	}

	hdr := xunsafe.ByteAdd[growableHeader](ptr, -growableHeaderSize)
	if size <= hdr.capacity {
		return ptr
	}

	r := hdr.region
	newCap := rounded
	if double := hdr.capacity * 2; double > newCap {
		newCap = double
	}

	// If the growable memory is still the frontier's most recent
	// allocation, the current block can absorb the growth in place.
	end := xunsafe.AddrOf(ptr).ByteAdd(hdr.capacity)
	if !alwaysFreshAlloc && end == r.next &&
		newCap-hdr.capacity <= r.end.Sub(r.next) {
		r.next = r.next.ByteAdd(newCap - hdr.capacity)
		hdr.capacity = newCap
		r.log("grow in place", "%p, %d", ptr, newCap)
		return ptr
	}

	q := r.allocGrowable(newCap)
	xunsafe.Copy(q, ptr, hdr.capacity)
	r.log("grow by copy", "%p->%p, %d->%d", ptr, q, hdr.capacity, newCap)
	return q
}
