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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/sentry/arch"
	"gvisor.dev/sigcore/pkg/sentry/kernel"
	"gvisor.dev/sigcore/pkg/sentry/signal"
	"gvisor.dev/sigcore/pkg/usermem"
)

const (
	defaultMemBase = 0x10000
	defaultMemSize = 0x40000
)

// Deliver implements subcommands.Command for the "deliver" command.
type Deliver struct {
	process bool
}

// Name implements subcommands.Command.Name.
func (*Deliver) Name() string {
	return "deliver"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Deliver) Synopsis() string {
	return "replays a signal delivery scenario"
}

// Usage implements subcommands.Command.Usage.
func (*Deliver) Usage() string {
	return `deliver [flags] <scenario.toml> [signal...]
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Deliver) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&d.process, "process", false, "send extra signals to the process instead of the thread")
}

// Execute implements subcommands.Command.Execute.
func (d *Deliver) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	sc, err := loadScenario(f.Arg(0))
	if err != nil {
		Fatalf("%v", err)
	}
	target := "thread"
	if d.process {
		target = "process"
	}
	for _, s := range f.Args()[1:] {
		sc.Sends = append(sc.Sends, sendConfig{Signal: s, Target: target})
	}
	if err := runScenario(sc, os.Stdout); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// newScenarioTask builds the thread group and task described by sc.
func newScenarioTask(sc *scenario) (*kernel.Task, arch.Arch, error) {
	a, err := parseArch(sc.Arch)
	if err != nil {
		return nil, 0, err
	}
	base, size := sc.Memory.Base, sc.Memory.Size
	if base == 0 {
		base = defaultMemBase
	}
	if size == 0 {
		size = defaultMemSize
	}
	mem := usermem.NewBytesIO(hostarch.Addr(base), size)

	tf := arch.New(a)
	if c, ok := tf.(*arch.AMD64Context); ok {
		// User code and stack segments.
		c.Regs.Cs = 0x33
		c.Regs.Ss = 0x2b
	}
	tf.SetIP(hostarch.Addr(sc.Task.IP))
	sp := sc.Task.SP
	if sp == 0 {
		sp = base + uint64(size) - 0x100
	}
	tf.SetStack(hostarch.Addr(sp))

	tg := kernel.NewThreadGroup(1, hostarch.Addr(sc.Restorer))
	t := tg.NewTask(tf, mem)
	t.Debugf("%v task, memory %v, sp %v", a, mem.Range(), tf.Stack())
	return t, a, nil
}

// runScenario sets up the task described by sc, sends its signals and
// delivers everything deliverable, writing one line per event to w.
func runScenario(sc *scenario, w io.Writer) error {
	t, a, err := newScenarioTask(sc)
	if err != nil {
		return err
	}

	for i := range sc.Actions {
		sig, act, err := sc.Actions[i].signalAct()
		if err != nil {
			return err
		}
		if _, err := t.Sigaction(sig, &act); err != nil {
			return fmt.Errorf("sigaction(%v): %w", sig, err)
		}
	}
	blocked, err := parseSignalSet(sc.Task.Blocked)
	if err != nil {
		return err
	}
	t.SetSignalMask(blocked)
	if sc.AltStack != nil {
		ss := linux.SignalStack{Addr: sc.AltStack.Addr, Size: sc.AltStack.Size}
		if _, err := t.Sigaltstack(&ss); err != nil {
			return fmt.Errorf("sigaltstack: %w", err)
		}
	}

	for _, send := range sc.Sends {
		sig, err := parseSignal(send.Signal)
		if err != nil {
			return err
		}
		info := kernel.SignalInfoNoInfo(sig, t)
		switch send.Target {
		case "", "thread":
			err = t.SendSignal(info)
		case "process":
			err = t.ThreadGroup().SendSignal(info)
		default:
			return fmt.Errorf("%v: unknown target %q", sig, send.Target)
		}
		if err != nil {
			return fmt.Errorf("send %v: %w", sig, err)
		}
		fmt.Fprintf(w, "send %v to %s\n", sig, targetName(send.Target))
	}

	for {
		info, act, ok := t.DeliverSignal()
		if !ok {
			fmt.Fprintf(w, "idle blocked=%v pending=%v\n", t.SignalMask(), t.Signals().Pending())
			return nil
		}
		tf := t.Arch()
		switch act {
		case signal.OSActionHandler:
			fmt.Fprintf(w, "handler %v ip=%v sp=%v blocked=%v\n", info.Signal(), tf.IP(), tf.Stack(), t.SignalMask())
			if !sc.Task.Return {
				continue
			}
			if a == arch.AMD64 {
				// The handler's ret pops the restorer address.
				tf.SetStack(tf.Stack() + 8)
			}
			if err := t.Sigreturn(); err != nil {
				fmt.Fprintf(w, "sigreturn failed: %v\n", err)
				continue
			}
			fmt.Fprintf(w, "sigreturn ip=%v sp=%v blocked=%v\n", tf.IP(), tf.Stack(), t.SignalMask())
		case signal.OSActionContinue:
			fmt.Fprintf(w, "%v %v\n", act, info.Signal())
		default:
			fmt.Fprintf(w, "%v %v\n", act, info.Signal())
			return nil
		}
	}
}

func targetName(target string) string {
	if target == "" {
		return "thread"
	}
	return target
}
