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

package kernel

import (
	"context"

	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/errors/linuxerr"
	"gvisor.dev/sigcore/pkg/sentry/arch"
	"gvisor.dev/sigcore/pkg/sentry/signal"
	"gvisor.dev/sigcore/pkg/waiter"
)

// SendSignal sends a signal to the thread group. It is taken by whichever
// task next checks for signals with it unblocked.
//
// A signal whose action is to ignore it is discarded unless some task in tg
// blocks it.
func (tg *ThreadGroup) SendSignal(info *linux.SignalInfo) error {
	sig := info.Signal()
	if !sig.IsValid() {
		return linuxerr.EINVAL
	}
	if tg.signals.Action(sig).IsIgnored(sig) && !tg.blocks(sig) {
		return nil
	}
	tg.signals.SendSignal(info)
	return nil
}

// blocks returns true if any task in tg blocks sig.
func (tg *ThreadGroup) blocks(sig linux.Signal) bool {
	blocked := false
	tg.forEachTask(func(t *Task) {
		if t.signals.Blocked().Contains(sig) {
			blocked = true
		}
	})
	return blocked
}

// SendSignal sends a signal to t. A signal whose action is to ignore it is
// discarded unless t blocks it, since the action may change before it is
// unblocked.
func (t *Task) SendSignal(info *linux.SignalInfo) error {
	sig := info.Signal()
	if !sig.IsValid() {
		return linuxerr.EINVAL
	}
	if t.tg.signals.Action(sig).IsIgnored(sig) && !t.signals.Blocked().Contains(sig) {
		return nil
	}
	t.signals.SendSignal(info)
	return nil
}

// Tgkill sends sig to task tid of tg, as tgkill(2) does on behalf of
// sender. A nil sender leaves the sender PID in the siginfo zero.
func (tg *ThreadGroup) Tgkill(sender *Task, tid ThreadID, sig linux.Signal) error {
	target := tg.Task(tid)
	if target == nil {
		return linuxerr.ESRCH
	}
	if sig == 0 {
		return nil
	}
	info := SignalInfoNoInfo(sig, sender)
	info.Code = linux.SI_TKILL
	return target.SendSignal(info)
}

// forceSignal delivers sig to t even if t blocks or ignores it, resetting
// the action to the default in that case. It is Linux's force_sig_info.
func (t *Task) forceSignal(sig linux.Signal) {
	blocked := t.signals.Blocked().Contains(sig)
	t.tg.signals.WithActionMut(sig, func(act *signal.SignalAction) {
		if blocked || act.Disposition == signal.DispositionIgnore {
			t.Infof("Resetting action for forced %v", sig)
			*act = signal.SignalAction{}
		}
	})
	t.signals.WithBlockedMut(func(mask *linux.SignalSet) {
		mask.Remove(sig)
	})
	t.signals.SendSignal(SignalInfoPriv(sig))
}

// Sigaction implements the semantics of sigaction(2). If actptr is non-nil,
// it becomes the new action for sig. The old action is returned.
func (t *Task) Sigaction(sig linux.Signal, actptr *arch.SignalAct) (arch.SignalAct, error) {
	if !sig.IsValid() {
		return arch.SignalAct{}, linuxerr.EINVAL
	}
	if actptr == nil {
		return t.tg.signals.Action(sig).SignalAct(), nil
	}
	if signal.UnblockableSignals.Contains(sig) {
		return arch.SignalAct{}, linuxerr.EINVAL
	}

	act := signal.ActionFromSignalAct(*actptr)
	act.Mask &^= signal.UnblockableSignals
	old := t.tg.signals.SetAction(sig, act)

	// POSIX requires that setting an ignoring action discards pending
	// instances of the signal, whether or not they are blocked.
	if act.IsIgnored(sig) {
		t.tg.signals.DiscardSignal(sig)
		t.tg.forEachTask(func(other *Task) {
			other.signals.DiscardSignal(sig)
		})
	}
	return old.SignalAct(), nil
}

// SignalMask returns a copy of t's signal mask.
func (t *Task) SignalMask() linux.SignalSet {
	return t.signals.Blocked()
}

// SetSignalMask sets t's signal mask. SIGKILL and SIGSTOP are never
// blocked.
func (t *Task) SetSignalMask(mask linux.SignalSet) {
	t.signals.WithBlockedMut(func(blocked *linux.SignalSet) {
		*blocked = mask
	})
}

// Sigprocmask implements the semantics of sigprocmask(2). If setptr is
// non-nil, the mask is changed according to how. The old mask is returned.
func (t *Task) Sigprocmask(how int32, setptr *linux.SignalSet) (linux.SignalSet, error) {
	var (
		old linux.SignalSet
		err error
	)
	t.signals.WithBlockedMut(func(blocked *linux.SignalSet) {
		old = *blocked
		if setptr == nil {
			return
		}
		switch how {
		case linux.SIG_BLOCK:
			*blocked |= *setptr
		case linux.SIG_UNBLOCK:
			*blocked &^= *setptr
		case linux.SIG_SETMASK:
			*blocked = *setptr
		default:
			err = linuxerr.EINVAL
		}
	})
	return old, err
}

// Sigpending implements the semantics of sigpending(2): the signals pending
// for t that are blocked.
func (t *Task) Sigpending() linux.SignalSet {
	return t.signals.Pending() & t.signals.Blocked()
}

// onSignalStack returns true if the task is executing on its alternate
// signal stack.
func (t *Task) onSignalStack(alt linux.SignalStack) bool {
	return alt.IsEnabled() && alt.Contains(t.tf.Stack())
}

// Sigaltstack implements the semantics of sigaltstack(2). If setss is
// non-nil, it becomes the new alternate stack. The old one is returned, with
// SS_ONSTACK set if the task is running on it.
func (t *Task) Sigaltstack(setss *linux.SignalStack) (linux.SignalStack, error) {
	alt := t.signals.SignalStack()
	old := alt
	if t.onSignalStack(alt) {
		old.SetOnStack()
	}
	if setss == nil {
		return old, nil
	}

	if old.Flags&linux.SS_ONSTACK != 0 {
		return old, linuxerr.EPERM
	}
	switch setss.Flags {
	case linux.SS_DISABLE:
		t.signals.SetSignalStack(linux.DisabledSignalStack())
	case 0, linux.SS_ONSTACK:
		if setss.Size < linux.MINSIGSTKSZ {
			return old, linuxerr.ENOMEM
		}
		t.signals.SetSignalStack(linux.SignalStack{Addr: setss.Addr, Size: setss.Size})
	default:
		return old, linuxerr.EINVAL
	}
	return old, nil
}

// DeliverSignal is called by the task goroutine before it resumes user
// mode. It returns the pending signal that was acted upon, if any, and the
// action the caller must still carry out. OSActionHandler needs nothing
// further: the registers already enter the handler.
func (t *Task) DeliverSignal() (*linux.SignalInfo, signal.OSAction, bool) {
	var restoreBlocked *linux.SignalSet
	if t.haveSavedSignalMask {
		restoreBlocked = &t.savedSignalMask
	}
	info, act, ok := t.signals.CheckSignals(t.tf, restoreBlocked)
	if t.haveSavedSignalMask {
		t.haveSavedSignalMask = false
		// The handler frame carries the saved mask; otherwise it is
		// reinstated now.
		if act != signal.OSActionHandler {
			t.SetSignalMask(t.savedSignalMask)
		}
	}
	if ok {
		t.Debugf("Signal %d: %v", info.Signo, act)
	}
	return info, act, ok
}

// Sigreturn implements rt_sigreturn(2): the registers and signal mask are
// restored from the frame at the stack pointer. A bad frame raises SIGSEGV.
func (t *Task) Sigreturn() error {
	if err := t.signals.Restore(t.tf); err != nil {
		t.Warningf("rt_sigreturn: bad frame at %v: %v", t.tf.Stack(), err)
		t.forceSignal(linux.SIGSEGV)
		return err
	}
	return nil
}

// waitForSignals blocks until cond returns true or ctx is done. cond is
// rechecked whenever a signal becomes pending in the thread group.
func (t *Task) waitForSignals(ctx context.Context, cond func() bool) error {
	e, ch := waiter.NewChannelEntry(nil)
	t.tg.signalQueue.EventRegister(&e, waiter.EventSignal)
	defer t.tg.signalQueue.EventUnregister(&e)
	for !cond() {
		select {
		case <-ch:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return linuxerr.EAGAIN
			}
			return linuxerr.EINTR
		}
	}
	return nil
}

// Sigsuspend implements sigsuspend(2): t's mask is replaced by mask until a
// signal it does not block becomes pending. The old mask is reinstated by
// the next DeliverSignal, or by the return from the handler it enters.
//
// Sigsuspend always returns EINTR.
func (t *Task) Sigsuspend(ctx context.Context, mask linux.SignalSet) error {
	t.savedSignalMask = t.SignalMask()
	t.haveSavedSignalMask = true
	t.SetSignalMask(mask)
	t.waitForSignals(ctx, func() bool {
		return t.signals.Pending()&^t.SignalMask() != 0
	})
	return linuxerr.EINTR
}

// WaitSignal implements the semantics of sigtimedwait(2): it blocks until a
// signal in set is pending and dequeues it, without running its action.
//
// It returns EAGAIN if ctx's deadline expires first and EINTR if ctx is
// cancelled.
func (t *Task) WaitSignal(ctx context.Context, set linux.SignalSet) (*linux.SignalInfo, error) {
	set &^= signal.UnblockableSignals
	var info *linux.SignalInfo
	err := t.waitForSignals(ctx, func() bool {
		info = t.signals.DequeueSignal(set)
		return info != nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
