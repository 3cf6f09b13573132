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
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/sys/unix"
	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/sentry/arch"
)

// scenario is a signal delivery scenario, loaded from TOML.
type scenario struct {
	// Arch is "amd64" or "arm64". Empty means the host architecture.
	Arch string `toml:"arch"`

	// Restorer is the default handler return address.
	Restorer uint64 `toml:"restorer"`

	Memory   memoryConfig   `toml:"memory"`
	Task     taskConfig     `toml:"task"`
	AltStack *altStack      `toml:"altstack"`
	Actions  []actionConfig `toml:"action"`
	Sends    []sendConfig   `toml:"send"`
}

// memoryConfig describes the task's user memory.
type memoryConfig struct {
	Base uint64 `toml:"base"`
	Size int    `toml:"size"`
}

// taskConfig is the initial state of the task.
type taskConfig struct {
	IP      uint64   `toml:"ip"`
	SP      uint64   `toml:"sp"`
	Blocked []string `toml:"blocked"`

	// Return makes each handler return immediately through rt_sigreturn.
	Return bool `toml:"return"`
}

// altStack is an alternate signal stack.
type altStack struct {
	Addr uint64 `toml:"addr"`
	Size uint64 `toml:"size"`
}

// actionConfig is one sigaction call.
type actionConfig struct {
	Signal string `toml:"signal"`

	// Disposition is "default", "ignore" or "handler".
	Disposition string   `toml:"disposition"`
	Handler     uint64   `toml:"handler"`
	Restorer    uint64   `toml:"restorer"`
	Flags       []string `toml:"flags"`
	Mask        []string `toml:"mask"`
}

// sendConfig is one signal sent before delivery starts.
type sendConfig struct {
	Signal string `toml:"signal"`

	// Target is "thread" (default) or "process".
	Target string `toml:"target"`
}

// loadScenario loads a scenario from a TOML file.
func loadScenario(path string) (*scenario, error) {
	sc := &scenario{}
	if _, err := toml.DecodeFile(path, sc); err != nil {
		return nil, fmt.Errorf("decoding scenario %q: %w", path, err)
	}
	return sc, nil
}

// parseArch parses an architecture name.
func parseArch(s string) (arch.Arch, error) {
	switch s {
	case "":
		return arch.Host, nil
	case "amd64", "x86_64":
		return arch.AMD64, nil
	case "arm64", "aarch64":
		return arch.ARM64, nil
	default:
		return 0, fmt.Errorf("unknown architecture %q", s)
	}
}

// parseSignal parses a signal number or name. Names may omit the SIG prefix
// and may be realtime signals written as RTMIN+n.
func parseSignal(s string) (linux.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if sig := linux.Signal(n); sig.IsValid() {
			return sig, nil
		}
		return 0, fmt.Errorf("invalid signal number %d", n)
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	if off, ok := strings.CutPrefix(name, "SIGRTMIN+"); ok {
		n, err := strconv.Atoi(off)
		if err != nil || n < 0 || n >= linux.NumRTSignals {
			return 0, fmt.Errorf("invalid realtime signal %q", s)
		}
		return linux.Signal(linux.FirstRTSignal + n), nil
	}
	if sig := unix.SignalNum(name); sig != 0 {
		return linux.Signal(sig), nil
	}
	return 0, fmt.Errorf("unknown signal %q", s)
}

// parseSignalSet parses a list of signals into a set.
func parseSignalSet(names []string) (linux.SignalSet, error) {
	var set linux.SignalSet
	for _, name := range names {
		sig, err := parseSignal(name)
		if err != nil {
			return 0, err
		}
		set.Add(sig)
	}
	return set, nil
}

var actionFlags = map[string]uint64{
	"SA_NOCLDSTOP": linux.SA_NOCLDSTOP,
	"SA_NOCLDWAIT": linux.SA_NOCLDWAIT,
	"SA_SIGINFO":   linux.SA_SIGINFO,
	"SA_RESTORER":  linux.SA_RESTORER,
	"SA_ONSTACK":   linux.SA_ONSTACK,
	"SA_RESTART":   linux.SA_RESTART,
	"SA_NODEFER":   linux.SA_NODEFER,
	"SA_RESETHAND": linux.SA_RESETHAND,
}

// signalAct converts an action configuration into a struct sigaction.
func (ac *actionConfig) signalAct() (linux.Signal, arch.SignalAct, error) {
	sig, err := parseSignal(ac.Signal)
	if err != nil {
		return 0, arch.SignalAct{}, err
	}
	act := arch.SignalAct{Restorer: ac.Restorer}
	switch ac.Disposition {
	case "", "default":
		act.Handler = arch.SignalActDefault
	case "ignore":
		act.Handler = arch.SignalActIgnore
	case "handler":
		if ac.Handler <= arch.SignalActIgnore {
			return 0, arch.SignalAct{}, fmt.Errorf("%v: invalid handler address %#x", sig, ac.Handler)
		}
		act.Handler = ac.Handler
	default:
		return 0, arch.SignalAct{}, fmt.Errorf("%v: unknown disposition %q", sig, ac.Disposition)
	}
	for _, name := range ac.Flags {
		flag, ok := actionFlags[strings.ToUpper(name)]
		if !ok {
			return 0, arch.SignalAct{}, fmt.Errorf("%v: unknown flag %q", sig, name)
		}
		act.Flags |= flag
	}
	if ac.Restorer != 0 {
		act.Flags |= linux.SA_RESTORER
	}
	if act.Mask, err = parseSignalSet(ac.Mask); err != nil {
		return 0, arch.SignalAct{}, err
	}
	return sig, act, nil
}
