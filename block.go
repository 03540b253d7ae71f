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
	"math/bits"
	"reflect"

	"github.com/AlxHnr/CRegion/internal/fatal"
	"github.com/AlxHnr/CRegion/internal/xunsafe"
	"github.com/AlxHnr/CRegion/internal/xunsafe/layout"
)

// block tracks one backing allocation. The bytes themselves live in a
// traceable chunk (see newBlockMemory); this struct only carries the
// metadata and chains the blocks together.
type block struct {
	data *byte
	size int
	next *block
}

// minBlockSizeLog is the size of a region's initial backing block, log 2.
const minBlockSizeLog = 12

func suggestSizeLog(bytes int) uint {
	// Snap to the next power of two.
	return max(minBlockSizeLog, uint(bits.Len(uint(bytes)-1)))
}

// suggestSize suggests a block size by rounding up to a power of 2.
func suggestSize(bytes int) int {
	log := suggestSizeLog(bytes)
	if log >= bits.UintSize-1 {
		fatal.Failf("overflow calculating object size")
	}
	return 1 << log
}

// newBlockMemory allocates size bytes of garbage-collected memory and
// returns a pointer to them.
//
// The allocation also stores owner in such a way that as long as any
// pointer into the returned bytes is live, the owning region will be
// marked as live by the garbage collector. Tracing through the region
// reaches every other block, the callback list, and any pools bound to
// the region.
func newBlockMemory(size int, owner *Region) *byte {
	// This needs to be done with reflection, because we need a
	// weirdly-shaped allocation: a bunch of bytes followed by a pointer.
	//
	// To avoid the overhead of hammering reflection, we cache the shape for
	// each power of two size. For non-powers of two, we hammer reflection
	// every time; the block sizing policy never takes that path.
	size = layout.RoundUp(size, layout.Align[*Region]())

	var shape reflect.Type
	if isPow2(size) {
		shape = shapes[bits.TrailingZeros(uint(size))]
	} else {
		shape = blockShape(size)
	}

	p := (*byte)(reflect.New(shape).UnsafePointer())
	xunsafe.ByteStore(p, size, owner)

	return p
}

// Pre-allocate a shape for every power of 2.
var shapes [bits.UintSize - 1]reflect.Type

func init() {
	for i := range shapes {
		shapes[i] = blockShape(1 << i)
	}
}

func blockShape(size int) reflect.Type {
	return reflect.StructOf([]reflect.StructField{
		{Name: "Data", Type: reflect.ArrayOf(size, reflect.TypeFor[byte]())},
		{Name: "Region", Type: reflect.TypeFor[*Region]()},
	})
}

func isPow2(n int) bool {
	return n&(n-1) == 0
}
