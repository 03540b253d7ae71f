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

// Package layout provides size and alignment arithmetic.
package layout

import "unsafe"

// Int is any integer type.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Size returns the size of T in bytes.
func Size[T any]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// Align returns the alignment of T in bytes.
func Align[T any]() int {
	var v T
	return int(unsafe.Alignof(v))
}

// RoundUp rounds n upwards to align, which must be a power of two.
func RoundUp[I Int](n, align I) I {
	return (n + align - 1) &^ (align - 1)
}

// Padding returns the number of bytes needed to round n up to align, which
// must be a power of two.
func Padding[I Int](n, align I) I {
	return RoundUp(n, align) - n
}
