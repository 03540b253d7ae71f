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

// Package safemath provides overflow-checked size arithmetic. Every size
// computation in the allocator that could exceed the platform maximum goes
// through this package; overflow is unrecoverable and routes into the
// fatal-failure channel.
package safemath

import (
	"math"

	"github.com/AlxHnr/CRegion/internal/fatal"
)

const errOverflow = "overflow calculating object size"

// Add returns a + b. Negative inputs and sums beyond the platform maximum
// are failures.
func Add(a, b int) int {
	if a < 0 || b < 0 || a > math.MaxInt-b {
		fatal.Failf(errOverflow)
	}
	return a + b
}

// Multiply returns a * b with the same failure behavior as [Add].
func Multiply(a, b int) int {
	if a < 0 || b < 0 {
		fatal.Failf(errOverflow)
	}
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt/b {
		fatal.Failf(errOverflow)
	}
	return a * b
}

// RoundUp rounds n up to the next multiple of align, which must be a power
// of two.
func RoundUp(n, align int) int {
	if n < 0 || n > math.MaxInt-(align-1) {
		fatal.Failf(errOverflow)
	}
	return (n + align - 1) &^ (align - 1)
}
