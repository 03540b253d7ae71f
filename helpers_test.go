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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/AlxHnr/CRegion"
	"github.com/AlxHnr/CRegion/internal/fatal"
)

// fatalError is panicked by the test failure handler so that the exact
// message of a failure can be recovered and asserted. This stands in for
// the long-jump harness the failure channel was designed around.
type fatalError string

// catchFatal runs f and reports the failure message it produced, if any.
// Tests using this helper swap a process-global handler and therefore must
// not run in parallel.
func catchFatal(t *testing.T, f func()) (msg string, failed bool) {
	t.Helper()

	prev := fatal.SetHandler(func(m string) { panic(fatalError(m)) })
	defer fatal.SetHandler(prev)

	defer func() {
		switch r := recover().(type) {
		case nil:
		case fatalError:
			msg, failed = string(r), true
		default:
			panic(r)
		}
	}()

	f()
	return
}

// requireFatal asserts that f fails through the failure channel with
// exactly the given message.
func requireFatal(t *testing.T, want string, f func()) {
	t.Helper()

	msg, failed := catchFatal(t, f)
	require.True(t, failed, "expected failure: %s", want)
	require.Equal(t, want, msg)
}

func requireAligned(t *testing.T, p *byte) {
	t.Helper()

	if uintptr(unsafe.Pointer(p))%8 != 0 {
		t.Fatalf("allocation is not aligned properly: %p", p)
	}
}

// checkedAlloc wraps Region.Alloc and checks the returned memory.
func checkedAlloc(t *testing.T, r *cregion.Region, size int) *byte {
	t.Helper()

	p := r.Alloc(size)
	require.NotNil(t, p)
	requireAligned(t, p)
	return p
}

// checkedAllocUnaligned wraps Region.AllocUnaligned and checks the
// returned memory.
func checkedAllocUnaligned(t *testing.T, r *cregion.Region, size int) *byte {
	t.Helper()

	p := r.AllocUnaligned(size)
	require.NotNil(t, p)
	return p
}

// allocatedChunk pairs an allocation with its requested size for overlap
// checking.
type allocatedChunk struct {
	data *byte
	size int
}

// requireNoOverlaps asserts that no two of the given chunks share bytes.
func requireNoOverlaps(t *testing.T, chunks []allocatedChunk) {
	t.Helper()
	require.Greater(t, len(chunks), 1)

	for outer := range len(chunks) - 1 {
		for inner := outer + 1; inner < len(chunks); inner++ {
			a, b := chunks[outer], chunks[inner]

			aStart := uintptr(unsafe.Pointer(a.data))
			bStart := uintptr(unsafe.Pointer(b.data))
			if aStart+uintptr(a.size) > bStart && aStart < bStart+uintptr(b.size) {
				t.Fatalf("allocated chunks overlap: %p+%d and %p+%d",
					a.data, a.size, b.data, b.size)
			}
		}
	}
}
