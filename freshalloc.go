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

//go:build freshalloc

package cregion

// alwaysFreshAlloc forces every allocation onto its own backing block, so
// that out-of-bounds accesses trip the runtime's bounds machinery instead
// of silently landing in neighboring allocations. Padding strides are not
// preserved under this flag; overlap and alignment invariants are.
const alwaysFreshAlloc = true
