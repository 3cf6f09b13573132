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
	"time"

	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/errors/linuxerr"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/log"
	"gvisor.dev/sigcore/pkg/marshal"
	"gvisor.dev/sigcore/pkg/sentry/arch"
	"gvisor.dev/sigcore/pkg/sync"
	"gvisor.dev/sigcore/pkg/usermem"
)

// redZoneSize is the area below the stack pointer that leaf functions may
// use without moving it, skipped when building a frame on the same stack.
const redZoneSize = 128

// frameFailureLog reports handler frames that could not be written. A
// process with a bad stack takes this path on every signal.
var frameFailureLog = log.BasicRateLimitedLogger(time.Minute)

// ThreadSignalManager holds the signal state of one thread.
//
// CheckSignals, Restore and the alternate stack accessors must only be
// called by the thread itself. SendSignal, Pending and WithBlockedMut may be
// called from any goroutine.
type ThreadSignalManager[M any, L sync.LockerPtr[M]] struct {
	// proc and mem are immutable.
	proc *ProcessSignalManager[M, L]
	mem  usermem.IO

	// pendingMu protects pending.
	pendingMu M
	pending   PendingSignals

	// blockedMu protects blocked and altStack.
	blockedMu M

	// blocked is the set of signals CheckSignals will not deliver.
	//
	// Invariant: blocked never contains UnblockableSignals.
	blocked  linux.SignalSet
	altStack linux.SignalStack
}

// NewThread returns the signal state of a new thread of proc, whose memory
// is accessed through mem.
func NewThread[M any, L sync.LockerPtr[M]](proc *ProcessSignalManager[M, L], mem usermem.IO) *ThreadSignalManager[M, L] {
	return &ThreadSignalManager[M, L]{
		proc:     proc,
		mem:      mem,
		altStack: linux.DisabledSignalStack(),
	}
}

// Process returns the manager shared by the thread's process.
func (t *ThreadSignalManager[M, L]) Process() *ProcessSignalManager[M, L] {
	return t.proc
}

// Blocked returns the current blocked mask.
func (t *ThreadSignalManager[M, L]) Blocked() linux.SignalSet {
	L(&t.blockedMu).Lock()
	defer L(&t.blockedMu).Unlock()
	return t.blocked
}

// WithBlockedMut calls f with exclusive access to the blocked mask.
// SIGKILL and SIGSTOP are removed from the mask after f returns.
func (t *ThreadSignalManager[M, L]) WithBlockedMut(f func(blocked *linux.SignalSet)) {
	L(&t.blockedMu).Lock()
	defer L(&t.blockedMu).Unlock()
	f(&t.blocked)
	t.blocked &^= UnblockableSignals
}

// SignalStack returns the alternate signal stack.
func (t *ThreadSignalManager[M, L]) SignalStack() linux.SignalStack {
	L(&t.blockedMu).Lock()
	defer L(&t.blockedMu).Unlock()
	return t.altStack
}

// SetSignalStack replaces the alternate signal stack. Only Addr, Size and
// SS_DISABLE are kept.
func (t *ThreadSignalManager[M, L]) SetSignalStack(st linux.SignalStack) {
	st.Flags &= linux.SS_DISABLE
	L(&t.blockedMu).Lock()
	defer L(&t.blockedMu).Unlock()
	t.altStack = st
}

// SendSignal queues a signal directed at this thread and wakes all waiters
// of the process.
//
// Preconditions: info.Signal().IsValid().
func (t *ThreadSignalManager[M, L]) SendSignal(info *linux.SignalInfo) {
	L(&t.pendingMu).Lock()
	t.pending.Enqueue(info)
	L(&t.pendingMu).Unlock()
	t.proc.notify()
}

// Pending returns the signals pending for this thread, whether directed at
// the thread or at its process.
func (t *ThreadSignalManager[M, L]) Pending() linux.SignalSet {
	L(&t.pendingMu).Lock()
	set := t.pending.Set()
	L(&t.pendingMu).Unlock()
	return set | t.proc.Pending()
}

// DiscardSignal drops a pending thread-directed instance of sig.
func (t *ThreadSignalManager[M, L]) DiscardSignal(sig linux.Signal) {
	L(&t.pendingMu).Lock()
	defer L(&t.pendingMu).Unlock()
	t.pending.Discard(sig)
}

// DequeueSignal removes and returns the lowest-numbered signal in mask,
// preferring thread-directed signals over process-directed ones.
func (t *ThreadSignalManager[M, L]) DequeueSignal(mask linux.SignalSet) *linux.SignalInfo {
	L(&t.pendingMu).Lock()
	info := t.pending.Dequeue(mask)
	L(&t.pendingMu).Unlock()
	if info != nil {
		return info
	}
	return t.proc.DequeueSignal(mask)
}

// CheckSignals dequeues pending, unblocked signals until one requires an
// action, and returns that signal and action. It returns false if no such
// signal is pending.
//
// For OSActionHandler, tf has already been redirected into the handler. All
// other actions are the caller's to carry out; tf is untouched.
//
// If restoreBlocked is non-nil, it is the mask saved in the handler frame
// (and reinstated by Restore) in place of the current blocked mask. This is
// used by syscalls that temporarily replace the mask, like sigsuspend.
//
// If the handler frame cannot be written, the signal is replaced by SIGSEGV
// with OSActionCoreDump.
func (t *ThreadSignalManager[M, L]) CheckSignals(tf arch.Context, restoreBlocked *linux.SignalSet) (*linux.SignalInfo, OSAction, bool) {
	actions := t.proc.actionsSnapshot()
	blocked := t.Blocked()
	saved := blocked
	if restoreBlocked != nil {
		saved = *restoreBlocked
	}

	for {
		info := t.DequeueSignal(^blocked)
		if info == nil {
			return nil, OSActionIgnore, false
		}
		sig := info.Signal()
		act := actions[sig.Index()]

		switch act.Disposition {
		case DispositionIgnore:
			if log.IsLogging(log.Debug) {
				log.Debugf("Signal %d: ignored", info.Signo)
			}

		case DispositionDefault:
			osAction := DefaultAction(sig)
			if osAction == OSActionIgnore {
				if log.IsLogging(log.Debug) {
					log.Debugf("Signal %d: ignored by default", info.Signo)
				}
				continue
			}
			if log.IsLogging(log.Debug) {
				log.Debugf("Signal %d: default action %v", info.Signo, osAction)
			}
			return info, osAction, true

		case DispositionHandler:
			if err := t.deliverSignalToHandler(tf, info, act, saved); err != nil {
				frameFailureLog.Warningf("Signal %d: failed to set up handler frame at sp %v: %v; forcing SIGSEGV", info.Signo, tf.Stack(), err)
				return forcedSIGSEGV(), OSActionCoreDump, true
			}
			if act.IsResetHandler() {
				t.proc.WithActionMut(sig, func(a *SignalAction) {
					*a = SignalAction{}
				})
			}
			return info, OSActionHandler, true
		}
	}
}

// forcedSIGSEGV returns the siginfo of a SIGSEGV raised because a handler
// could not be entered.
func forcedSIGSEGV() *linux.SignalInfo {
	return &linux.SignalInfo{
		Signo: int32(linux.SIGSEGV),
		Code:  linux.SI_KERNEL,
	}
}

// deliverSignalToHandler writes a signal frame and points tf at the handler
// of act. On error tf is unchanged and the blocked mask is untouched.
func (t *ThreadSignalManager[M, L]) deliverSignalToHandler(tf arch.Context, info *linux.SignalInfo, act SignalAction, saved linux.SignalSet) error {
	alt := t.SignalStack()
	sp := tf.Stack()

	// The saved stack_t reports whether the interrupted code was already on
	// the alternate stack.
	ucStack := alt
	if alt.IsEnabled() && alt.Contains(sp) {
		ucStack.SetOnStack()
	}

	onAlt := act.IsOnStack() && alt.IsEnabled()
	if onAlt && !alt.Contains(sp) {
		sp = alt.Top()
	} else {
		sp -= redZoneSize
	}

	frame := &SignalFrame{
		UContext: tf.NewSignalContext(ucStack, saved),
		Info:     *info,
		Regs:     marshal.Marshal(tf.Registers()),
	}
	frame.Info.FixSignalCodeForUser()

	size := hostarch.Addr(frame.SizeBytes())
	if sp < size {
		return linuxerr.EFAULT
	}
	frameAddr := (sp - size).RoundDown(arch.StackAlignment)

	// The frame and anything pushed below it must fit on the alternate
	// stack.
	if onAlt && !alt.Contains(frameAddr-hostarch.Addr(tf.Width())) {
		return linuxerr.EFAULT
	}

	if err := usermem.CopyObjectOut(t.mem, frameAddr, frame, arch.StackAlignment); err != nil {
		return err
	}

	restorer := act.Restorer
	if restorer == 0 {
		restorer = t.proc.DefaultRestorer()
	}
	tf.SetIP(act.Handler)
	tf.SetStack(frameAddr)
	tf.SetArg(0, uint64(info.Signo))
	tf.SetArg(1, uint64(frameAddr)+uint64(frame.infoOffset()))
	tf.SetArg(2, uint64(frameAddr))
	if err := tf.SetReturnAddress(t.mem, restorer); err != nil {
		tf.Registers().UnmarshalBytes(frame.Regs)
		return err
	}

	mask := act.Mask
	if !act.IsNoDefer() {
		mask.Add(info.Signal())
	}
	t.WithBlockedMut(func(blocked *linux.SignalSet) {
		*blocked |= mask
	})

	if log.IsLogging(log.Debug) {
		log.Debugf("Signal %d: delivering to handler %v, frame at %v, restorer %v", info.Signo, act.Handler, frameAddr, restorer)
	}
	return nil
}

// Restore undoes the handler entry whose frame is at tf's stack pointer. It
// loads the saved trap frame, then the machine context from the frame's
// ucontext (which the handler may have changed), and reinstates the signal
// mask saved in the ucontext.
//
// If the frame cannot be read, Restore returns EFAULT and changes nothing;
// the caller should force SIGSEGV.
func (t *ThreadSignalManager[M, L]) Restore(tf arch.Context) error {
	frame := newEmptySignalFrame(tf)
	if err := usermem.CopyObjectIn(t.mem, tf.Stack(), frame, arch.StackAlignment); err != nil {
		return err
	}
	tf.Registers().UnmarshalBytes(frame.Regs)
	tf.RestoreSignalContext(frame.UContext)
	t.WithBlockedMut(func(blocked *linux.SignalSet) {
		*blocked = frame.UContext.SignalMask()
	})
	if log.IsLogging(log.Debug) {
		log.Debugf("Signal return: resuming at %v, sp %v", tf.IP(), tf.Stack())
	}
	return nil
}
