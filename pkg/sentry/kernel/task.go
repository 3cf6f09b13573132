// Copyright 2018 The gVisor Authors.
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

// Package kernel provides the task-level signal entry points used by the
// syscall layer: sigaction, sigprocmask, sigaltstack, sigpending, kill and
// tgkill, rt_sigreturn, sigsuspend and sigtimedwait.
package kernel

import (
	"fmt"

	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/sentry/arch"
	"gvisor.dev/sigcore/pkg/sentry/signal"
	"gvisor.dev/sigcore/pkg/sync"
	"gvisor.dev/sigcore/pkg/usermem"
	"gvisor.dev/sigcore/pkg/waiter"
)

// ThreadID is a generic thread identifier.
type ThreadID int32

// String returns a decimal representation of the ThreadID.
func (tid ThreadID) String() string {
	return fmt.Sprintf("%d", tid)
}

// ThreadGroup is a process: a set of tasks sharing signal actions and
// process-directed pending signals.
type ThreadGroup struct {
	// id is the thread group ID, which is also the TID of its first task.
	// id is immutable.
	id ThreadID

	// signals is the shared signal state. The pointer is immutable.
	signals *signal.Process

	// signalQueue is notified whenever a signal becomes pending for the
	// thread group or any of its tasks.
	signalQueue waiter.Queue

	// mu protects tasks and nextTID.
	mu      sync.Mutex
	tasks   map[ThreadID]*Task
	nextTID ThreadID
}

// NewThreadGroup returns an empty thread group. restorer is the address
// handlers return to when their action does not supply one, normally the
// vDSO's rt_sigreturn trampoline.
func NewThreadGroup(id ThreadID, restorer hostarch.Addr) *ThreadGroup {
	tg := &ThreadGroup{
		id:      id,
		tasks:   make(map[ThreadID]*Task),
		nextTID: id,
	}
	tg.signals = signal.NewProcess[sync.Mutex](signal.ProcessOpts{
		DefaultRestorer: restorer,
		Queue:           &tg.signalQueue,
	})
	return tg
}

// ID returns tg's thread group ID.
func (tg *ThreadGroup) ID() ThreadID {
	return tg.id
}

// Signals returns tg's shared signal state.
func (tg *ThreadGroup) Signals() *signal.Process {
	return tg.signals
}

// NewTask adds a task to tg. tf is the task's register state and mem its
// address space.
func (tg *ThreadGroup) NewTask(tf arch.Context, mem usermem.IO) *Task {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tid := tg.nextTID
	tg.nextTID++
	t := &Task{
		tg:        tg,
		tid:       tid,
		tf:        tf,
		signals:   signal.NewThread(tg.signals, mem),
		logPrefix: fmt.Sprintf("[%4d:%4d] ", tg.id, tid),
	}
	tg.tasks[tid] = t
	return t
}

// Task returns the task with the given TID, or nil.
func (tg *ThreadGroup) Task(tid ThreadID) *Task {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.tasks[tid]
}

// forEachTask calls f for every task in tg. f must not call back into tg.
func (tg *ThreadGroup) forEachTask(f func(t *Task)) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	for _, t := range tg.tasks {
		f(t)
	}
}

// Task is a thread.
type Task struct {
	// tg, tid and signals are immutable.
	tg      *ThreadGroup
	tid     ThreadID
	signals *signal.Thread

	// tf is the task's register state. It is exclusive to the task
	// goroutine.
	tf arch.Context

	// If haveSavedSignalMask is true, savedSignalMask is the signal mask that
	// should be applied after the task has either delivered one signal to a
	// user handler or is about to resume execution in the untrusted
	// application.
	//
	// Both haveSavedSignalMask and savedSignalMask are exclusive to the task
	// goroutine.
	haveSavedSignalMask bool
	savedSignalMask     linux.SignalSet

	// logPrefix is immutable.
	logPrefix string
}

// ThreadID returns t's TID.
func (t *Task) ThreadID() ThreadID {
	return t.tid
}

// ThreadGroup returns t's thread group.
func (t *Task) ThreadGroup() *ThreadGroup {
	return t.tg
}

// Arch returns t's register state.
func (t *Task) Arch() arch.Context {
	return t.tf
}

// Signals returns t's signal state.
func (t *Task) Signals() *signal.Thread {
	return t.signals
}
