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
	"bytes"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/errors/linuxerr"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/marshal"
	"gvisor.dev/sigcore/pkg/sentry/arch"
	"gvisor.dev/sigcore/pkg/sync"
	"gvisor.dev/sigcore/pkg/usermem"
)

const (
	memBase = hostarch.Addr(0x10000)
	memSize = 0x20000

	// userSP leaves room above it for nothing but a red zone.
	userSP = memBase + memSize - 0x100
	userIP = hostarch.Addr(0x400123)

	handlerAddr     = hostarch.Addr(0x401000)
	actionRestorer  = hostarch.Addr(0x402000)
	processRestorer = hostarch.Addr(0x403000)
)

var arches = []arch.Arch{arch.AMD64, arch.ARM64}

type countingQueue struct {
	n atomic.Int64
}

// NotifyAll implements WaitQueue.NotifyAll.
func (q *countingQueue) NotifyAll() {
	q.n.Add(1)
}

type testThread struct {
	*Thread
	mem   *usermem.BytesIO
	tf    arch.Context
	queue *countingQueue
}

func newTestThread(a arch.Arch) *testThread {
	q := &countingQueue{}
	proc := NewProcess[sync.Mutex](ProcessOpts{
		DefaultRestorer: processRestorer,
		Queue:           q,
	})
	mem := usermem.NewBytesIO(memBase, memSize)
	tf := arch.New(a)
	if amd64, ok := tf.(*arch.AMD64Context); ok {
		// User segment selectors, which Restore enforces.
		amd64.Regs.Cs = 0x33
		amd64.Regs.Ss = 0x2b
	}
	tf.SetIP(userIP)
	tf.SetStack(userSP)
	for i := 0; i < 3; i++ {
		tf.SetArg(i, uint64(0x100+i))
	}
	return &testThread{
		Thread: NewThread(proc, mem),
		mem:    mem,
		tf:     tf,
		queue:  q,
	}
}

func (tt *testThread) setHandler(sig linux.Signal, flags uint64, mask linux.SignalSet) {
	tt.Process().SetAction(sig, SignalAction{
		Disposition: DispositionHandler,
		Handler:     handlerAddr,
		Flags:       flags,
		Mask:        mask,
	})
}

// frameAddr returns where a frame built with the stack pointer at sp lands.
func (tt *testThread) frameAddr(sp hostarch.Addr) hostarch.Addr {
	size := newEmptySignalFrame(tt.tf).SizeBytes()
	return (sp - hostarch.Addr(size)).RoundDown(arch.StackAlignment)
}

// returnAddress returns the address the handler will return to.
func (tt *testThread) returnAddress(t *testing.T) hostarch.Addr {
	t.Helper()
	switch tf := tt.tf.(type) {
	case *arch.AMD64Context:
		var ra [8]byte
		if _, err := tt.mem.CopyIn(tf.Stack(), ra[:]); err != nil {
			t.Fatalf("reading return address at %v: %v", tf.Stack(), err)
		}
		return hostarch.Addr(hostarch.ByteOrder.Uint64(ra[:]))
	case *arch.ARM64Context:
		return hostarch.Addr(tf.Regs.Regs[30])
	}
	t.Fatalf("unknown context %T", tt.tf)
	return 0
}

// handlerReturn moves the trap frame to where the restorer runs: just after
// the handler's return.
func (tt *testThread) handlerReturn() {
	if tt.tf.Arch() == arch.AMD64 {
		tt.tf.SetStack(tt.tf.Stack() + 8)
	}
}

func (tt *testThread) readFrame(t *testing.T, addr hostarch.Addr) *SignalFrame {
	t.Helper()
	f := newEmptySignalFrame(tt.tf)
	if err := usermem.CopyObjectIn(tt.mem, addr, f, arch.StackAlignment); err != nil {
		t.Fatalf("reading frame at %v: %v", addr, err)
	}
	return f
}

func regs(tf arch.Context) []byte {
	return marshal.Marshal(tf.Registers())
}

func TestCheckSignalsNothingPending(t *testing.T) {
	tt := newTestThread(arch.AMD64)
	before := regs(tt.tf)
	if info, act, ok := tt.CheckSignals(tt.tf, nil); ok {
		t.Errorf("CheckSignals: got (%+v, %v), wanted nothing", info, act)
	}
	if !bytes.Equal(before, regs(tt.tf)) {
		t.Errorf("trap frame modified with nothing pending")
	}
}

func TestDefaultTerminateLeavesTrapFrame(t *testing.T) {
	for _, a := range arches {
		t.Run(a.String(), func(t *testing.T) {
			tt := newTestThread(a)
			before := regs(tt.tf)
			sent := infoFor(linux.SIGTERM)
			tt.SendSignal(sent)

			info, act, ok := tt.CheckSignals(tt.tf, nil)
			if !ok || info != sent || act != OSActionTerminate {
				t.Fatalf("CheckSignals: got (%+v, %v, %t), wanted (%+v, %v, true)", info, act, ok, sent, OSActionTerminate)
			}
			if diff := cmp.Diff(before, regs(tt.tf)); diff != "" {
				t.Errorf("trap frame modified (-before +after):\n%s", diff)
			}
			if got := tt.Pending(); got != 0 {
				t.Errorf("Pending: got %v, wanted empty", got)
			}
		})
	}
}

func TestIgnoredSignalsAreSkipped(t *testing.T) {
	tt := newTestThread(arch.AMD64)
	tt.Process().SetAction(linux.SIGCHLD, SignalAction{Disposition: DispositionIgnore})
	tt.Process().SetAction(linux.SIGHUP, SignalAction{Disposition: DispositionIgnore})
	tt.setHandler(linux.SIGINT, 0, 0)
	tt.SendSignal(infoFor(linux.SIGCHLD))
	tt.SendSignal(infoFor(linux.SIGINT))
	tt.SendSignal(infoFor(linux.SIGHUP))
	tt.SendSignal(infoFor(linux.SIGWINCH)) // ignored by default

	info, act, ok := tt.CheckSignals(tt.tf, nil)
	if !ok || info.Signal() != linux.SIGINT || act != OSActionHandler {
		t.Fatalf("CheckSignals: got (%+v, %v, %t), wanted SIGINT handler", info, act, ok)
	}
	if got, want := tt.tf.IP(), handlerAddr; got != want {
		t.Errorf("IP: got %v, wanted %v", got, want)
	}
	// SIGHUP sorts before SIGINT and was consumed by the same call.
	if got, want := tt.Pending(), linux.MakeSignalSet(linux.SIGCHLD, linux.SIGWINCH); got != want {
		t.Errorf("Pending after first check: got %v, wanted %v", got, want)
	}

	if info, act, ok := tt.CheckSignals(tt.tf, nil); ok {
		t.Errorf("second CheckSignals: got (%+v, %v), wanted nothing", info, act)
	}
	if got := tt.Pending(); got != 0 {
		t.Errorf("Pending after second check: got %v, wanted empty", got)
	}
}

func TestBlockedSignalsNeverDelivered(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		tt := newTestThread(arch.AMD64)
		pending := linux.SignalSet(r.Uint64())
		blocked := linux.SignalSet(r.Uint64())
		tt.WithBlockedMut(func(b *linux.SignalSet) { *b = blocked })
		effective := tt.Blocked()
		if effective != blocked&^UnblockableSignals {
			t.Fatalf("Blocked: got %v, wanted %v", effective, blocked&^UnblockableSignals)
		}
		linux.ForEachSignal(pending, func(sig linux.Signal) {
			if sig%2 == 0 {
				tt.SendSignal(infoFor(sig))
			} else {
				tt.Process().SendSignal(infoFor(sig))
			}
		})

		for {
			info, _, ok := tt.CheckSignals(tt.tf, nil)
			if !ok {
				break
			}
			if effective.Contains(info.Signal()) {
				t.Fatalf("pending %v, blocked %v: delivered blocked signal %v", pending, effective, info.Signal())
			}
		}
		if got, want := tt.Pending(), pending&effective; got != want {
			t.Errorf("pending %v, blocked %v: left pending %v, wanted %v", pending, effective, got, want)
		}
	}
}

func TestSendSignalCoalesces(t *testing.T) {
	tt := newTestThread(arch.AMD64)
	tt.SendSignal(infoFor(linux.SIGUSR1))
	tt.SendSignal(infoFor(linux.SIGUSR1))
	tt.Process().SendSignal(infoFor(linux.SIGUSR2))
	tt.Process().SendSignal(infoFor(linux.SIGUSR2))

	// Coalescing is a property of the bitset model, not a bug: both
	// signals are reported exactly once.
	if got, want := tt.Pending(), linux.MakeSignalSet(linux.SIGUSR1, linux.SIGUSR2); got != want {
		t.Errorf("Pending: got %v, wanted %v", got, want)
	}
	if got := tt.queue.n.Load(); got != 4 {
		t.Errorf("NotifyAll calls: got %d, wanted 4", got)
	}
	for _, want := range []linux.Signal{linux.SIGUSR1, linux.SIGUSR2} {
		info, _, ok := tt.CheckSignals(tt.tf, nil)
		if !ok || info.Signal() != want {
			t.Fatalf("CheckSignals: got (%+v, %t), wanted %v", info, ok, want)
		}
	}
	if _, _, ok := tt.CheckSignals(tt.tf, nil); ok {
		t.Errorf("duplicate delivery after coalescing")
	}
}

func TestThreadQueuePreferred(t *testing.T) {
	tt := newTestThread(arch.AMD64)
	tt.Process().SendSignal(infoFor(linux.SIGINT))
	tt.SendSignal(infoFor(linux.SIGTERM))
	for _, want := range []linux.Signal{linux.SIGTERM, linux.SIGINT} {
		info, act, ok := tt.CheckSignals(tt.tf, nil)
		if !ok || info.Signal() != want || act != OSActionTerminate {
			t.Fatalf("CheckSignals: got (%+v, %v, %t), wanted (%v, %v)", info, act, ok, want, OSActionTerminate)
		}
	}
}

func TestHandlerDelivery(t *testing.T) {
	for _, a := range arches {
		t.Run(a.String(), func(t *testing.T) {
			tt := newTestThread(a)
			origBlocked := linux.MakeSignalSet(linux.SIGHUP)
			tt.WithBlockedMut(func(b *linux.SignalSet) { *b = origBlocked })
			actMask := linux.MakeSignalSet(linux.SIGTERM)
			tt.setHandler(linux.SIGUSR1, 0, actMask)
			sent := infoFor(linux.SIGUSR1)
			sent.Code = 0x10006 // kernel-internal high bits
			tt.SendSignal(sent)

			wantFrame := tt.frameAddr(userSP - redZoneSize)
			info, act, ok := tt.CheckSignals(tt.tf, nil)
			if !ok || info != sent || act != OSActionHandler {
				t.Fatalf("CheckSignals: got (%+v, %v, %t), wanted (%+v, %v, true)", info, act, ok, sent, OSActionHandler)
			}

			if got := tt.tf.IP(); got != handlerAddr {
				t.Errorf("IP: got %v, wanted %v", got, handlerAddr)
			}
			wantSP := wantFrame
			if a == arch.AMD64 {
				wantSP -= 8
			}
			if got := tt.tf.Stack(); got != wantSP {
				t.Errorf("SP: got %v, wanted %v", got, wantSP)
			}
			if got := tt.returnAddress(t); got != processRestorer {
				t.Errorf("return address: got %v, wanted %v", got, processRestorer)
			}

			f := tt.readFrame(t, wantFrame)
			wantArgs := []uint64{
				uint64(linux.SIGUSR1),
				uint64(wantFrame) + uint64(f.infoOffset()),
				uint64(wantFrame),
			}
			gotArgs := []uint64{tt.tf.Arg(0), tt.tf.Arg(1), tt.tf.Arg(2)}
			if diff := cmp.Diff(wantArgs, gotArgs); diff != "" {
				t.Errorf("handler arguments mismatch (-want +got):\n%s", diff)
			}
			if got := f.Info.Signal(); got != linux.SIGUSR1 {
				t.Errorf("frame siginfo signal: got %v, wanted SIGUSR1", got)
			}
			if got := f.Info.Code; got != 6 {
				t.Errorf("frame siginfo code: got %#x, wanted 0x6", got)
			}
			if got := f.UContext.SignalMask(); got != origBlocked {
				t.Errorf("frame saved mask: got %v, wanted %v", got, origBlocked)
			}
			if got := f.UContext.SignalStack(); got.IsEnabled() {
				t.Errorf("frame stack_t: got %+v, wanted disabled", got)
			}

			wantBlocked := origBlocked | actMask | linux.SignalSetOf(linux.SIGUSR1)
			if got := tt.Blocked(); got != wantBlocked {
				t.Errorf("Blocked during handler: got %v, wanted %v", got, wantBlocked)
			}
		})
	}
}

func TestHandlerUsesActionRestorer(t *testing.T) {
	for _, a := range arches {
		t.Run(a.String(), func(t *testing.T) {
			tt := newTestThread(a)
			tt.Process().SetAction(linux.SIGALRM, SignalAction{
				Disposition: DispositionHandler,
				Handler:     handlerAddr,
				Flags:       linux.SA_RESTORER,
				Restorer:    actionRestorer,
			})
			tt.SendSignal(infoFor(linux.SIGALRM))
			if _, act, _ := tt.CheckSignals(tt.tf, nil); act != OSActionHandler {
				t.Fatalf("CheckSignals: got %v, wanted %v", act, OSActionHandler)
			}
			if got := tt.returnAddress(t); got != actionRestorer {
				t.Errorf("return address: got %v, wanted %v", got, actionRestorer)
			}
		})
	}
}

func TestNoDefer(t *testing.T) {
	for _, tc := range []struct {
		name        string
		flags       uint64
		wantBlocked bool
	}{
		{"default", 0, true},
		{"SA_NODEFER", linux.SA_NODEFER, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tt := newTestThread(arch.ARM64)
			tt.setHandler(linux.SIGUSR2, tc.flags, 0)
			tt.SendSignal(infoFor(linux.SIGUSR2))
			if _, act, _ := tt.CheckSignals(tt.tf, nil); act != OSActionHandler {
				t.Fatalf("CheckSignals: got %v, wanted %v", act, OSActionHandler)
			}
			if got := tt.Blocked().Contains(linux.SIGUSR2); got != tc.wantBlocked {
				t.Errorf("SIGUSR2 blocked in its handler: got %t, wanted %t", got, tc.wantBlocked)
			}
		})
	}
}

func TestResetHandler(t *testing.T) {
	tt := newTestThread(arch.AMD64)
	tt.setHandler(linux.SIGUSR1, linux.SA_RESETHAND, 0)
	tt.SendSignal(infoFor(linux.SIGUSR1))
	if _, act, _ := tt.CheckSignals(tt.tf, nil); act != OSActionHandler {
		t.Fatalf("first CheckSignals: got %v, wanted %v", act, OSActionHandler)
	}
	if got := tt.Process().Action(linux.SIGUSR1); got != (SignalAction{}) {
		t.Errorf("action after delivery: got %+v, wanted default", got)
	}

	// A second delivery, from the process queue, takes the default action.
	tt.WithBlockedMut(func(b *linux.SignalSet) { *b = 0 })
	tt.Process().SendSignal(infoFor(linux.SIGUSR1))
	if _, act, _ := tt.CheckSignals(tt.tf, nil); act != OSActionTerminate {
		t.Errorf("second CheckSignals: got %v, wanted %v", act, OSActionTerminate)
	}
}

func TestAlternateStack(t *testing.T) {
	for _, a := range arches {
		t.Run(a.String(), func(t *testing.T) {
			tt := newTestThread(a)
			alt := linux.SignalStack{Addr: uint64(memBase), Size: 0x8000}
			tt.SetSignalStack(alt)
			tt.setHandler(linux.SIGSEGV, linux.SA_ONSTACK, 0)
			tt.SendSignal(infoFor(linux.SIGSEGV))

			if _, act, _ := tt.CheckSignals(tt.tf, nil); act != OSActionHandler {
				t.Fatalf("CheckSignals: got %v, wanted %v", act, OSActionHandler)
			}
			frame := hostarch.Addr(tt.tf.Arg(2))
			if frame < hostarch.Addr(alt.Addr) || frame >= alt.Top() {
				t.Errorf("frame at %v, wanted within [%#x, %v)", frame, alt.Addr, alt.Top())
			}
			if want := tt.frameAddr(alt.Top()); frame != want {
				t.Errorf("frame at %v, wanted %v", frame, want)
			}
			// The interrupted code was not on the alternate stack.
			if got := tt.readFrame(t, frame).UContext.SignalStack(); got.Flags&linux.SS_ONSTACK != 0 || got.Addr != alt.Addr || got.Size != alt.Size {
				t.Errorf("saved stack_t: got %+v, wanted %+v", got, alt)
			}

			// A nested signal on the alternate stack continues below the
			// current frame.
			tt.setHandler(linux.SIGBUS, linux.SA_ONSTACK, 0)
			tt.SendSignal(infoFor(linux.SIGBUS))
			sp := tt.tf.Stack()
			if _, act, _ := tt.CheckSignals(tt.tf, nil); act != OSActionHandler {
				t.Fatalf("nested CheckSignals: got %v, wanted %v", act, OSActionHandler)
			}
			nested := hostarch.Addr(tt.tf.Arg(2))
			if want := tt.frameAddr(sp - redZoneSize); nested != want {
				t.Errorf("nested frame at %v, wanted %v", nested, want)
			}
			if got := tt.readFrame(t, nested).UContext.SignalStack(); got.Flags&linux.SS_ONSTACK == 0 {
				t.Errorf("nested saved stack_t: got %+v, wanted SS_ONSTACK", got)
			}
		})
	}
}

func TestAlternateStackWithoutFlag(t *testing.T) {
	tt := newTestThread(arch.AMD64)
	tt.SetSignalStack(linux.SignalStack{Addr: uint64(memBase), Size: 0x8000})
	tt.setHandler(linux.SIGUSR1, 0, 0)
	tt.SendSignal(infoFor(linux.SIGUSR1))
	tt.CheckSignals(tt.tf, nil)
	if got, want := hostarch.Addr(tt.tf.Arg(2)), tt.frameAddr(userSP-redZoneSize); got != want {
		t.Errorf("frame at %v, wanted %v", got, want)
	}
}

func TestFrameSetupFailureForcesSIGSEGV(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(tt *testThread)
	}{
		{
			name: "unmapped stack",
			setup: func(tt *testThread) {
				tt.tf.SetStack(memBase + 0x100)
			},
		},
		{
			name: "alternate stack too small",
			setup: func(tt *testThread) {
				tt.SetSignalStack(linux.SignalStack{Addr: uint64(memBase), Size: 0x100})
			},
		},
	} {
		for _, a := range arches {
			t.Run(tc.name+"/"+a.String(), func(t *testing.T) {
				tt := newTestThread(a)
				tc.setup(tt)
				tt.setHandler(linux.SIGUSR1, linux.SA_ONSTACK, 0)
				tt.SendSignal(infoFor(linux.SIGUSR1))
				before := regs(tt.tf)

				info, act, ok := tt.CheckSignals(tt.tf, nil)
				if !ok || info.Signal() != linux.SIGSEGV || act != OSActionCoreDump {
					t.Fatalf("CheckSignals: got (%+v, %v, %t), wanted (SIGSEGV, %v, true)", info, act, ok, OSActionCoreDump)
				}
				if diff := cmp.Diff(before, regs(tt.tf)); diff != "" {
					t.Errorf("trap frame modified (-before +after):\n%s", diff)
				}
				if got := tt.Blocked(); got != 0 {
					t.Errorf("Blocked: got %v, wanted empty", got)
				}
			})
		}
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	for _, a := range arches {
		t.Run(a.String(), func(t *testing.T) {
			tt := newTestThread(a)
			origBlocked := linux.MakeSignalSet(linux.SIGPIPE)
			tt.WithBlockedMut(func(b *linux.SignalSet) { *b = origBlocked })
			tt.setHandler(linux.SIGUSR1, 0, linux.MakeSignalSet(linux.SIGINT))
			tt.SendSignal(infoFor(linux.SIGUSR1))
			before := regs(tt.tf)

			if _, act, _ := tt.CheckSignals(tt.tf, nil); act != OSActionHandler {
				t.Fatalf("CheckSignals: got %v, wanted %v", act, OSActionHandler)
			}
			// The handler clobbers registers before returning.
			tt.tf.SetArg(0, 0xdead)
			tt.tf.SetArg(1, 0xbeef)
			tt.handlerReturn()

			if err := tt.Restore(tt.tf); err != nil {
				t.Fatalf("Restore: %v", err)
			}
			if diff := cmp.Diff(before, regs(tt.tf)); diff != "" {
				t.Errorf("registers after Restore (-want +got):\n%s", diff)
			}
			if got := tt.Blocked(); got != origBlocked {
				t.Errorf("Blocked after Restore: got %v, wanted %v", got, origBlocked)
			}
		})
	}
}

func TestRestoreHonorsModifiedContext(t *testing.T) {
	const redirect = hostarch.Addr(0x405000)
	for _, a := range arches {
		t.Run(a.String(), func(t *testing.T) {
			tt := newTestThread(a)
			tt.setHandler(linux.SIGUSR1, 0, 0)
			tt.SendSignal(infoFor(linux.SIGUSR1))
			if _, act, _ := tt.CheckSignals(tt.tf, nil); act != OSActionHandler {
				t.Fatalf("CheckSignals: got %v, wanted %v", act, OSActionHandler)
			}

			// The handler rewrites its ucontext: a new mask and a new
			// resume address.
			addr := hostarch.Addr(tt.tf.Arg(2))
			f := tt.readFrame(t, addr)
			f.UContext.SetSignalMask(linux.MakeSignalSet(linux.SIGTERM, linux.SIGKILL))
			switch uc := f.UContext.(type) {
			case *arch.UContextAMD64:
				uc.MContext.Rip = uint64(redirect)
			case *arch.UContextARM64:
				uc.MContext.Pc = uint64(redirect)
			}
			if err := usermem.CopyObjectOut(tt.mem, addr, f, arch.StackAlignment); err != nil {
				t.Fatalf("writing frame: %v", err)
			}

			tt.handlerReturn()
			if err := tt.Restore(tt.tf); err != nil {
				t.Fatalf("Restore: %v", err)
			}
			if got := tt.tf.IP(); got != redirect {
				t.Errorf("IP: got %v, wanted %v", got, redirect)
			}
			if got := tt.tf.Stack(); got != userSP {
				t.Errorf("SP: got %v, wanted %v", got, userSP)
			}
			if got, want := tt.Blocked(), linux.SignalSetOf(linux.SIGTERM); got != want {
				t.Errorf("Blocked: got %v, wanted %v", got, want)
			}
		})
	}
}

func TestRestoreFault(t *testing.T) {
	tt := newTestThread(arch.ARM64)
	tt.tf.SetStack(memBase - 0x1000)
	before := regs(tt.tf)
	if err := tt.Restore(tt.tf); err != linuxerr.EFAULT {
		t.Errorf("Restore: got %v, wanted %v", err, linuxerr.EFAULT)
	}
	if !bytes.Equal(before, regs(tt.tf)) {
		t.Errorf("trap frame modified by failed Restore")
	}
}

func TestRestoreBlockedOverride(t *testing.T) {
	tt := newTestThread(arch.AMD64)
	// As in sigsuspend: the temporary mask is active, the real one is
	// restored after the handler.
	saved := linux.MakeSignalSet(linux.SIGUSR2)
	tt.setHandler(linux.SIGUSR1, 0, 0)
	tt.SendSignal(infoFor(linux.SIGUSR1))
	if _, act, _ := tt.CheckSignals(tt.tf, &saved); act != OSActionHandler {
		t.Fatalf("CheckSignals: got %v, wanted %v", act, OSActionHandler)
	}
	tt.handlerReturn()
	if err := tt.Restore(tt.tf); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := tt.Blocked(); got != saved {
		t.Errorf("Blocked after Restore: got %v, wanted %v", got, saved)
	}
}

func TestConcurrentSenders(t *testing.T) {
	proc := NewProcess[sync.SpinMutex](ProcessOpts{DefaultRestorer: processRestorer})
	var thread *SpinThread = NewThread(proc, usermem.NewBytesIO(memBase, memSize))
	tf := arch.New(arch.AMD64)
	tf.SetStack(userSP)

	var want linux.SignalSet
	var g errgroup.Group
	for sig := linux.Signal(linux.FirstRTSignal); sig <= linux.LastRTSignal; sig++ {
		want.Add(sig)
		g.Go(func() error {
			if sig%2 == 0 {
				thread.SendSignal(infoFor(sig))
			} else {
				proc.SendSignal(infoFor(sig))
			}
			return nil
		})
	}

	var got linux.SignalSet
	check := func() {
		for {
			info, act, ok := thread.CheckSignals(tf, nil)
			if !ok {
				return
			}
			if act != OSActionTerminate {
				t.Errorf("%v: got %v, wanted %v", info.Signal(), act, OSActionTerminate)
			}
			if got.Contains(info.Signal()) {
				t.Errorf("%v delivered twice", info.Signal())
			}
			got.Add(info.Signal())
		}
	}
	for i := 0; i < 100; i++ {
		check()
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("senders: %v", err)
	}
	check()
	if got != want {
		t.Errorf("delivered %v, wanted %v", got, want)
	}
}
