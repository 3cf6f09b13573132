// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sync

import (
	"runtime"
	"sync/atomic"
)

// SpinMutex is a mutual exclusion lock that busy-waits instead of parking
// the calling goroutine. It is intended for short critical sections in
// contexts where blocking is not permitted (e.g. code that runs on a
// dedicated, non-preemptible thread).
//
// The zero value is an unlocked mutex.
type SpinMutex struct {
	state atomic.Int32
}

// spinIterations is the number of busy iterations before yielding the
// processor.
const spinIterations = 64

// Lock locks m. If the lock is already in use, the calling goroutine spins
// until the lock is available.
func (m *SpinMutex) Lock() {
	for i := 0; ; i++ {
		if m.state.Load() == 0 && m.state.CompareAndSwap(0, 1) {
			return
		}
		if i%spinIterations == spinIterations-1 {
			runtime.Gosched()
		}
	}
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *SpinMutex) TryLock() bool {
	return m.state.CompareAndSwap(0, 1)
}

// Unlock unlocks m.
//
// Preconditions: m is locked.
func (m *SpinMutex) Unlock() {
	if m.state.Swap(0) == 0 {
		panic("unlock of unlocked SpinMutex")
	}
}
