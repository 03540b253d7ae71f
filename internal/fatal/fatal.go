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

// Package fatal is the failure channel for unrecoverable errors: invalid
// arguments, size overflow, and API misuse all end up here. Allocation
// failure does not: running out of memory is left to the Go runtime, which
// terminates the process itself.
//
// By default a failure prints its message and terminates the process. Tests
// install a [Handler] that panics instead, so the exact message can be
// recovered and asserted.
package fatal

import (
	"fmt"
	"os"
)

// Handler consumes a formatted failure message. A handler must not return;
// if it does, the process is terminated anyway.
type Handler func(msg string)

var handler Handler

// SetHandler replaces the current failure handler and returns the previous
// one. A nil handler restores the default print-and-exit behavior.
func SetHandler(h Handler) Handler {
	prev := handler
	handler = h
	return prev
}

// Failf reports an unrecoverable failure and does not return.
func Failf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if h := handler; h != nil {
		h(msg)
	}

	fmt.Fprintf(os.Stderr, "cregion: %s\n", msg)
	os.Exit(1)
}
