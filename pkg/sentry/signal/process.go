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

package signal

import (
	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/sync"
)

// WaitQueue is notified whenever a signal becomes pending in a process. It
// is implemented by waiter.Queue.
type WaitQueue interface {
	// NotifyAll wakes every waiter.
	NotifyAll()
}

// ProcessOpts configures a ProcessSignalManager.
type ProcessOpts struct {
	// DefaultRestorer is the return address of handlers whose action does
	// not carry its own restorer.
	DefaultRestorer hostarch.Addr

	// Queue is notified when a signal is sent to the process or to any of
	// its threads. It may be nil.
	Queue WaitQueue
}

// ProcessSignalManager holds the signal state shared by all threads of a
// process: the action table and the process-directed pending queue.
//
// M is the lock type; L is *M. See sync.LockerPtr.
type ProcessSignalManager[M any, L sync.LockerPtr[M]] struct {
	// defaultRestorer and queue are immutable.
	defaultRestorer hostarch.Addr
	queue           WaitQueue

	// actionsMu protects actions.
	actionsMu M

	// actions is indexed by Signal.Index().
	actions [linux.SignalMaximum]SignalAction

	// pendingMu protects pending.
	pendingMu M
	pending   PendingSignals
}

// NewProcess returns a ProcessSignalManager with every action at its
// default and nothing pending.
func NewProcess[M any, L sync.LockerPtr[M]](opts ProcessOpts) *ProcessSignalManager[M, L] {
	return &ProcessSignalManager[M, L]{
		defaultRestorer: opts.DefaultRestorer,
		queue:           opts.Queue,
	}
}

// DefaultRestorer returns the process-wide handler return address.
func (p *ProcessSignalManager[M, L]) DefaultRestorer() hostarch.Addr {
	return p.defaultRestorer
}

// Action returns the action for sig.
//
// Preconditions: sig.IsValid().
func (p *ProcessSignalManager[M, L]) Action(sig linux.Signal) SignalAction {
	L(&p.actionsMu).Lock()
	defer L(&p.actionsMu).Unlock()
	return p.actions[sig.Index()]
}

// SetAction replaces the action for sig and returns the previous one.
//
// SIGKILL and SIGSTOP are not rejected here; callers must do so.
//
// Preconditions: sig.IsValid().
func (p *ProcessSignalManager[M, L]) SetAction(sig linux.Signal, act SignalAction) SignalAction {
	L(&p.actionsMu).Lock()
	defer L(&p.actionsMu).Unlock()
	old := p.actions[sig.Index()]
	p.actions[sig.Index()] = act
	return old
}

// WithActionMut calls f with exclusive access to the action for sig.
//
// f must not call back into p.
//
// Preconditions: sig.IsValid().
func (p *ProcessSignalManager[M, L]) WithActionMut(sig linux.Signal, f func(act *SignalAction)) {
	L(&p.actionsMu).Lock()
	defer L(&p.actionsMu).Unlock()
	f(&p.actions[sig.Index()])
}

// actionsSnapshot returns a copy of the whole action table.
func (p *ProcessSignalManager[M, L]) actionsSnapshot() [linux.SignalMaximum]SignalAction {
	L(&p.actionsMu).Lock()
	defer L(&p.actionsMu).Unlock()
	return p.actions
}

// DequeueSignal removes and returns the lowest-numbered process-directed
// signal in mask, or nil.
func (p *ProcessSignalManager[M, L]) DequeueSignal(mask linux.SignalSet) *linux.SignalInfo {
	L(&p.pendingMu).Lock()
	defer L(&p.pendingMu).Unlock()
	return p.pending.Dequeue(mask)
}

// DiscardSignal drops a pending process-directed instance of sig.
func (p *ProcessSignalManager[M, L]) DiscardSignal(sig linux.Signal) {
	L(&p.pendingMu).Lock()
	defer L(&p.pendingMu).Unlock()
	p.pending.Discard(sig)
}

// SendSignal queues a process-directed signal, to be taken by whichever
// thread next checks for signals with it unblocked, and wakes all waiters.
//
// Preconditions: info.Signal().IsValid().
func (p *ProcessSignalManager[M, L]) SendSignal(info *linux.SignalInfo) {
	L(&p.pendingMu).Lock()
	p.pending.Enqueue(info)
	L(&p.pendingMu).Unlock()
	p.notify()
}

// Pending returns the set of pending process-directed signals.
func (p *ProcessSignalManager[M, L]) Pending() linux.SignalSet {
	L(&p.pendingMu).Lock()
	defer L(&p.pendingMu).Unlock()
	return p.pending.Set()
}

func (p *ProcessSignalManager[M, L]) notify() {
	if p.queue != nil {
		p.queue.NotifyAll()
	}
}
