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

//go:build linux
// +build linux

package kernel

import (
	"testing"

	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/marshal"
	"gvisor.dev/sigcore/pkg/sentry/arch"
	"gvisor.dev/sigcore/pkg/sentry/signal"
	"gvisor.dev/sigcore/pkg/usermem"
)

// TestHostStackRoundTrip delivers a signal onto a real host mapping and
// returns from it, for each architecture's frame layout.
func TestHostStackRoundTrip(t *testing.T) {
	for _, a := range []arch.Arch{arch.AMD64, arch.ARM64} {
		t.Run(a.String(), func(t *testing.T) {
			mem, err := usermem.NewMappedHostIO(4 * hostarch.PageSize)
			if err != nil {
				t.Fatalf("NewMappedHostIO: %v", err)
			}
			defer mem.Release()

			tf := arch.New(a)
			if amd64, ok := tf.(*arch.AMD64Context); ok {
				amd64.Regs.Cs = 0x33
				amd64.Regs.Ss = 0x2b
			}
			tf.SetIP(userIP)
			tf.SetStack(mem.Window.End - 0x40)
			tg := NewThreadGroup(1, vdsoSigret)
			task := tg.NewTask(tf, mem)
			before := marshal.Marshal(tf.Registers())

			alt := linux.SignalStack{Addr: uint64(mem.Window.Start), Size: 2 * hostarch.PageSize}
			if _, err := task.Sigaltstack(&alt); err != nil {
				t.Fatalf("Sigaltstack: %v", err)
			}
			if _, err := task.Sigaction(linux.SIGPROF, handlerAct(linux.SA_ONSTACK|linux.SA_SIGINFO)); err != nil {
				t.Fatalf("Sigaction: %v", err)
			}
			if err := tg.SendSignal(SignalInfoPriv(linux.SIGPROF)); err != nil {
				t.Fatalf("SendSignal: %v", err)
			}
			if _, act, ok := task.DeliverSignal(); !ok || act != signal.OSActionHandler {
				t.Fatalf("DeliverSignal: got (%v, %t), wanted handler", act, ok)
			}

			ucAddr := hostarch.Addr(tf.Arg(2))
			if !alt.Contains(ucAddr) {
				t.Errorf("ucontext at %v, outside alternate stack %+v", ucAddr, alt)
			}
			var info linux.SignalInfo
			if err := usermem.CopyObjectIn(mem, hostarch.Addr(tf.Arg(1)), &info, 8); err != nil {
				t.Fatalf("reading siginfo: %v", err)
			}
			if got := info.Signal(); got != linux.SIGPROF {
				t.Errorf("siginfo signal: got %v, wanted SIGPROF", got)
			}

			if a == arch.AMD64 {
				handlerReturn(task)
			}
			if err := task.Sigreturn(); err != nil {
				t.Fatalf("Sigreturn: %v", err)
			}
			if got := marshal.Marshal(tf.Registers()); string(got) != string(before) {
				t.Errorf("registers not restored")
			}
		})
	}
}
