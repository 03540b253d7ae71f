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

import "sync"

var global struct {
	once sync.Once
	r    *Region
}

// GetGlobalRegion returns a process-wide region which is initialized
// lazily on the first call. Its lifetime is the lifetime of the process:
// it is never released, so callbacks attached to it only run if the
// embedding program releases it explicitly. No other component depends on
// the global region; it is a convenience for allocations that genuinely
// live until exit.
func GetGlobalRegion() *Region {
	global.once.Do(func() {
		global.r = NewRegion()
	})

	return global.r
}
