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

// Package signal implements POSIX signal delivery for the threads of a
// process: pending queues, blocked masks, the process-wide action table, and
// the construction and consumption of the handler stack frame.
//
// Delivery is polled. A thread calls ThreadSignalManager.CheckSignals on
// every return to user mode; a signal sent in the meantime only becomes
// visible there.
//
// Lock ordering: no lock in this package is held while another is acquired,
// and none is held across an access to user memory.
package signal

import (
	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/sync"
)

// UnblockableSignals contains the set of signals which cannot be blocked.
var UnblockableSignals = linux.MakeSignalSet(linux.SIGKILL, linux.SIGSTOP)

// Process and Thread are the signal managers for hosted use, locked with
// blocking mutexes.
type (
	Process = ProcessSignalManager[sync.Mutex, *sync.Mutex]
	Thread  = ThreadSignalManager[sync.Mutex, *sync.Mutex]
)

// SpinProcess and SpinThread are the signal managers for contexts that may
// not sleep, locked with spin locks.
type (
	SpinProcess = ProcessSignalManager[sync.SpinMutex, *sync.SpinMutex]
	SpinThread  = ThreadSignalManager[sync.SpinMutex, *sync.SpinMutex]
)
