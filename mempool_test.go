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

package cregion_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/AlxHnr/CRegion"
)

const ptrSize = int(unsafe.Sizeof(uintptr(0)))

// checkedPoolAlloc wraps Mempool.Alloc and checks the returned memory.
func checkedPoolAlloc(t *testing.T, mp *cregion.Mempool) *byte {
	t.Helper()

	p := mp.Alloc()
	require.NotNil(t, p)
	if uintptr(unsafe.Pointer(p))%8 != 0 {
		t.Fatalf("mempool returned unaligned memory: %p", p)
	}
	return p
}

// Destructors for asserting that exactly one of the two destructors runs.
// Objects are pointers to an int owned by the test.

func setTo173Explicit(obj unsafe.Pointer) error {
	**(**int)(obj) = 173
	return nil
}

func setToMinus91Implicit(data unsafe.Pointer) {
	**(**int)(data) = -91
}

func failingDestructor(unsafe.Pointer) error {
	return errors.New("this is a test error")
}

// allocateIntsFromPool populates the pool's internal lists so the object
// under test is not always the first, last, or only one.
func allocateIntsFromPool(t *testing.T, pool *cregion.Mempool, dummy *int, rng *rand.Rand) {
	t.Helper()

	for range rng.Intn(5) {
		ptr := checkedPoolAlloc(t, pool)
		*(**int)(unsafe.Pointer(ptr)) = dummy

		if rng.Intn(2) == 0 {
			cregion.EnableObjectDestructor(ptr)
		}
	}
}

//nolint:tparallel // The tests swap the process-global failure handler.
func TestMempoolCreation(t *testing.T) {
	rng := rand.New(rand.NewSource(107))
	r := cregion.NewRegion()
	defer r.Release()

	for size := 1; size < 107; size++ {
		require.NotNil(t, cregion.NewMempool(r, size, nil, nil))

		requireFatal(t, "unable to create memory pool for allocating zero size objects",
			func() { cregion.NewMempool(r, 0, nil, nil) })
		requireFatal(t, "overflow calculating object size",
			func() { cregion.NewMempool(r, math.MaxInt-rng.Intn(5), nil, nil) })
	}
}

func TestMempoolAllocation(t *testing.T) {
	rng := rand.New(rand.NewSource(320))

	for range 10 {
		r := cregion.NewRegion()

		objectSize := rng.Intn(320) + 1
		pool := cregion.NewMempool(r, objectSize, nil, nil)
		require.NotNil(t, pool)

		chunks := make([]allocatedChunk, rng.Intn(600)+2)
		for index := range chunks {
			chunks[index].data = checkedPoolAlloc(t, pool)
			chunks[index].size = objectSize
			fillBytes(chunks[index].data, objectSize, byte(rng.Intn(math.MaxInt8)))
		}

		requireNoOverlaps(t, chunks)
		r.Release()
	}
}

// destroyFunc destroys the object under test, optionally injecting extra
// checks around the destruction.
type destroyFunc func(t *testing.T, ptr *byte)

func destroy(t *testing.T, ptr *byte) {
	t.Helper()
	cregion.DestroyObject(ptr)
}

func destroyAndCatchError(t *testing.T, ptr *byte) {
	t.Helper()
	requireFatal(t, "this is a test error", func() { cregion.DestroyObject(ptr) })
}

//nolint:tparallel // The tests swap the process-global failure handler.
func TestDestructorCalling(t *testing.T) {
	rng := rand.New(rand.NewSource(173))

	// The explicit destructor must only be called by DestroyObject, if
	// enabled and not nil. The implicit destructor must only be called at
	// region release, if enabled, not nil, and the object was never passed
	// to DestroyObject.
	tests := []struct {
		name         string
		explicit     cregion.FailableDestructor
		implicit     cregion.ReleaseCallback
		enable       bool
		destroy      destroyFunc
		afterDestroy int
		afterRelease int
	}{
		{"enabled destroyed both set", setTo173Explicit, setToMinus91Implicit, true, destroy, 173, 173},
		{"enabled destroyed implicit only", nil, setToMinus91Implicit, true, destroy, 12, 12},
		{"enabled destroyed explicit only", setTo173Explicit, nil, true, destroy, 173, 173},
		{"enabled destroyed none set", nil, nil, true, destroy, 12, 12},
		{"disabled destroyed both set", setTo173Explicit, setToMinus91Implicit, false, destroy, 12, 12},
		{"disabled destroyed implicit only", nil, setToMinus91Implicit, false, destroy, 12, 12},
		{"disabled destroyed explicit only", setTo173Explicit, nil, false, destroy, 12, 12},
		{"disabled destroyed none set", nil, nil, false, destroy, 12, 12},
		{"enabled released both set", setTo173Explicit, setToMinus91Implicit, true, nil, 12, -91},
		{"enabled released implicit only", nil, setToMinus91Implicit, true, nil, 12, -91},
		{"enabled released explicit only", setTo173Explicit, nil, true, nil, 12, 12},
		{"enabled released none set", nil, nil, true, nil, 12, 12},
		{"disabled released both set", setTo173Explicit, setToMinus91Implicit, false, nil, 12, 12},
		{"disabled released implicit only", nil, setToMinus91Implicit, false, nil, 12, 12},
		{"disabled released explicit only", setTo173Explicit, nil, false, nil, 12, 12},
		{"disabled released none set", nil, nil, false, nil, 12, 12},

		{"failing caught with implicit", failingDestructor, setToMinus91Implicit, true, destroyAndCatchError, 12, 12},
		{"failing caught without implicit", failingDestructor, nil, true, destroyAndCatchError, 12, 12},
		{"failing disabled destroyed with implicit", failingDestructor, setToMinus91Implicit, false, destroy, 12, 12},
		{"failing disabled destroyed without implicit", failingDestructor, nil, false, destroy, 12, 12},
		{"failing enabled released with implicit", failingDestructor, setToMinus91Implicit, true, nil, 12, -91},
		{"failing enabled released without implicit", failingDestructor, nil, true, nil, 12, 12},
		{"failing disabled released with implicit", failingDestructor, setToMinus91Implicit, false, nil, 12, 12},
		{"failing disabled released without implicit", failingDestructor, nil, false, nil, 12, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 25 {
				r := cregion.NewRegion()

				pool := cregion.NewMempool(r, ptrSize, tt.explicit, tt.implicit)
				require.NotNil(t, pool)

				dummy := 0
				allocateIntsFromPool(t, pool, &dummy, rng)
				ptr := checkedPoolAlloc(t, pool)
				allocateIntsFromPool(t, pool, &dummy, rng)

				value := 12
				*(**int)(unsafe.Pointer(ptr)) = &value

				if tt.enable {
					cregion.EnableObjectDestructor(ptr)
				}
				require.Equal(t, 12, value)

				if tt.destroy != nil {
					tt.destroy(t, ptr)
					require.Equal(t, tt.afterDestroy, value)
				}

				r.Release()
				require.Equal(t, tt.afterRelease, value)
			}
		})
	}
}

//nolint:tparallel // The tests swap the process-global failure handler.
func TestDoubleDestroy(t *testing.T) {
	const twice = "passed the same object to CR_DestroyObject() twice"

	r := cregion.NewRegion()
	defer r.Release()

	pool := cregion.NewMempool(r, 128, nil, nil)
	require.NotNil(t, pool)

	ptr1 := checkedPoolAlloc(t, pool)
	cregion.DestroyObject(ptr1)
	requireFatal(t, twice, func() { cregion.DestroyObject(ptr1) })
	requireFatal(t, twice, func() { cregion.DestroyObject(ptr1) })

	ptr1 = checkedPoolAlloc(t, pool)
	ptr2 := checkedPoolAlloc(t, pool)
	ptr3 := checkedPoolAlloc(t, pool)
	cregion.DestroyObject(ptr3)
	cregion.DestroyObject(ptr1)
	requireFatal(t, twice, func() { cregion.DestroyObject(ptr1) })
	requireFatal(t, twice, func() { cregion.DestroyObject(ptr3) })
	requireFatal(t, twice, func() { cregion.DestroyObject(ptr3) })

	ptr1 = checkedPoolAlloc(t, pool)
	cregion.DestroyObject(ptr2)
	requireFatal(t, twice, func() { cregion.DestroyObject(ptr2) })
	requireFatal(t, twice, func() { cregion.DestroyObject(ptr3) })
	ptr3 = checkedPoolAlloc(t, pool)

	cregion.DestroyObject(ptr3)
	cregion.DestroyObject(ptr1)
}

func TestReuseOrder(t *testing.T) {
	r := cregion.NewRegion()
	defer r.Release()

	const objectSize = 8 // one double
	pool := cregion.NewMempool(r, objectSize, nil, nil)
	require.NotNil(t, pool)

	chunks := make([]allocatedChunk, 7)
	for index := range 3 {
		chunks[index] = allocatedChunk{data: checkedPoolAlloc(t, pool), size: objectSize}
	}
	requireNoOverlaps(t, chunks[:3])

	// Released slots come back most recently destroyed first.
	cregion.DestroyObject(chunks[2].data)
	cregion.DestroyObject(chunks[0].data)
	cregion.DestroyObject(chunks[1].data)
	require.Same(t, chunks[1].data, checkedPoolAlloc(t, pool))
	require.Same(t, chunks[0].data, checkedPoolAlloc(t, pool))
	require.Same(t, chunks[2].data, checkedPoolAlloc(t, pool))

	chunks[3] = allocatedChunk{data: checkedPoolAlloc(t, pool), size: objectSize}
	requireNoOverlaps(t, chunks[:4])

	chunks[4] = allocatedChunk{data: checkedPoolAlloc(t, pool), size: objectSize}
	requireNoOverlaps(t, chunks[:5])

	cregion.DestroyObject(chunks[4].data)
	require.Same(t, chunks[4].data, checkedPoolAlloc(t, pool))
	cregion.DestroyObject(chunks[4].data)
	require.Same(t, chunks[4].data, checkedPoolAlloc(t, pool))

	cregion.DestroyObject(chunks[3].data)
	cregion.DestroyObject(chunks[0].data)
	cregion.DestroyObject(chunks[4].data)
	require.Same(t, chunks[4].data, checkedPoolAlloc(t, pool))
	require.Same(t, chunks[0].data, checkedPoolAlloc(t, pool))
	require.Same(t, chunks[3].data, checkedPoolAlloc(t, pool))

	chunks[5] = allocatedChunk{data: checkedPoolAlloc(t, pool), size: objectSize}
	requireNoOverlaps(t, chunks[:6])

	chunks[6] = allocatedChunk{data: checkedPoolAlloc(t, pool), size: objectSize}
	requireNoOverlaps(t, chunks[:7])
}

// TestDestructorReentry asserts that an explicit destructor can allocate
// from and destroy into its own pool. It does not check which slot the
// nested allocation receives.
func TestDestructorReentry(t *testing.T) {
	r := cregion.NewRegion()
	defer r.Release()

	var pool *cregion.Mempool
	reentrant := func(obj unsafe.Pointer) error {
		mp := *(**cregion.Mempool)(obj)
		require.Same(t, pool, mp)

		nested := checkedPoolAlloc(t, mp)

		// Objects must be releasable while a destructor is running, even
		// with their own destructor disabled.
		cregion.DestroyObject(nested)
		return nil
	}

	pool = cregion.NewMempool(r, ptrSize, reentrant, nil)
	require.NotNil(t, pool)

	ptr := checkedPoolAlloc(t, pool)
	*(**cregion.Mempool)(unsafe.Pointer(ptr)) = pool
	cregion.EnableObjectDestructor(ptr)
	cregion.DestroyObject(ptr)
}
