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

// Package cregion implements region-based memory management: arenas from
// which callers allocate variable-sized raw memory cheaply, attach release
// callbacks to, and release en masse, plus a typed object pool that
// recycles fixed-size slots across a region's lifetime.
//
// A [Region] owns a linked chain of backing blocks and serves three
// allocation modes from a bump frontier: aligned ([Region.Alloc]),
// unaligned ([Region.AllocUnaligned]), and growable
// ([Region.AllocGrowable] with [EnsureCapacity]). Callbacks registered via
// [Region.Attach] run in LIFO order when the region is released, after
// which all backing memory is dropped at once.
//
// A [Mempool] is bound to a region and hands out fixed-size object slots,
// recycling explicitly destroyed slots in LIFO order. Each object has a
// two-phase destructor protocol: the explicit destructor runs when the
// caller passes an enabled object to [DestroyObject]; the implicit
// destructor runs at region release for every enabled object that was
// never explicitly destroyed. The two are mutually exclusive per object.
//
// # Memory model
//
// Allocations are raw bytes: the region does not tell the garbage
// collector about pointers stored in them. Every backing block, however,
// carries a hidden pointer to its owning region, so holding any pointer
// into region memory keeps the region — and with it the callback list, all
// blocks, and any pools bound to it — alive. Pointers to memory the region
// does not own (Go heap objects, stack variables) may be stored in region
// memory only if something else keeps their referents alive.
//
// Nothing in this package is safe for concurrent use. Each region and each
// pool belongs to a single goroutine; the global region returned by
// [GetGlobalRegion] is process-wide but shares that restriction.
//
// Unrecoverable failures — zero-size allocations, size overflow, double
// destruction, allocation failure — print a message and terminate the
// process.
package cregion
