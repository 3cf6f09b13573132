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
	"fmt"

	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/sentry/arch"
)

// Disposition is the configured response to a signal.
type Disposition int

// Dispositions.
const (
	// DispositionDefault takes the signal's default action.
	DispositionDefault Disposition = iota

	// DispositionIgnore discards the signal.
	DispositionIgnore

	// DispositionHandler runs a user handler.
	DispositionHandler
)

// String implements fmt.Stringer.
func (d Disposition) String() string {
	switch d {
	case DispositionDefault:
		return "default"
	case DispositionIgnore:
		return "ignore"
	case DispositionHandler:
		return "handler"
	default:
		return fmt.Sprintf("Disposition(%d)", int(d))
	}
}

// SignalAction is one entry of a process's action table.
//
// The zero value is the default disposition.
type SignalAction struct {
	Disposition Disposition

	// Handler is the handler entry point. It is only meaningful for
	// DispositionHandler.
	Handler hostarch.Addr

	// Flags is a combination of linux.SA_* flags.
	Flags uint64

	// Mask is added to the blocked mask while the handler runs.
	Mask linux.SignalSet

	// Restorer is the address the handler returns to. If zero, the
	// process's default restorer is used.
	Restorer hostarch.Addr
}

// IsOnStack returns true iff the handler runs on the alternate stack.
func (a SignalAction) IsOnStack() bool {
	return a.Flags&linux.SA_ONSTACK != 0
}

// IsNoDefer returns true iff the signal is not blocked during its own
// handler.
func (a SignalAction) IsNoDefer() bool {
	return a.Flags&linux.SA_NODEFER != 0
}

// IsResetHandler returns true iff the action reverts to the default after
// one delivery.
func (a SignalAction) IsResetHandler() bool {
	return a.Flags&linux.SA_RESETHAND != 0
}

// ActionFromSignalAct converts a struct sigaction into a SignalAction. The
// restorer is honored only if SA_RESTORER is set.
func ActionFromSignalAct(act arch.SignalAct) SignalAction {
	a := SignalAction{
		Flags: act.Flags,
		Mask:  act.Mask,
	}
	switch act.Handler {
	case arch.SignalActDefault:
		a.Disposition = DispositionDefault
	case arch.SignalActIgnore:
		a.Disposition = DispositionIgnore
	default:
		a.Disposition = DispositionHandler
		a.Handler = hostarch.Addr(act.Handler)
	}
	if act.HasRestorer() {
		a.Restorer = hostarch.Addr(act.Restorer)
	}
	return a
}

// SignalAct returns the struct sigaction equivalent to a.
func (a SignalAction) SignalAct() arch.SignalAct {
	act := arch.SignalAct{
		Flags:    a.Flags,
		Mask:     a.Mask,
		Restorer: uint64(a.Restorer),
	}
	switch a.Disposition {
	case DispositionIgnore:
		act.Handler = arch.SignalActIgnore
	case DispositionHandler:
		act.Handler = uint64(a.Handler)
	}
	return act
}

// OSAction is the outcome of CheckSignals that the caller carries out.
type OSAction int

// OS actions.
const (
	// OSActionIgnore discards the signal. CheckSignals never returns it.
	OSActionIgnore OSAction = iota

	// OSActionTerminate terminates the process.
	OSActionTerminate

	// OSActionCoreDump terminates the process with a core dump.
	OSActionCoreDump

	// OSActionStop stops the process.
	OSActionStop

	// OSActionContinue continues a stopped process.
	OSActionContinue

	// OSActionHandler means the trap frame was redirected to a handler.
	// Nothing remains for the caller to do.
	OSActionHandler
)

// String implements fmt.Stringer.
func (a OSAction) String() string {
	switch a {
	case OSActionIgnore:
		return "ignore"
	case OSActionTerminate:
		return "terminate"
	case OSActionCoreDump:
		return "coredump"
	case OSActionStop:
		return "stop"
	case OSActionContinue:
		return "continue"
	case OSActionHandler:
		return "handler"
	default:
		return fmt.Sprintf("OSAction(%d)", int(a))
	}
}

// defaultActions contains the default action for each signal that does not
// terminate. Every other signal, realtime signals included, terminates.
var defaultActions = map[linux.Signal]OSAction{
	linux.SIGQUIT:  OSActionCoreDump,
	linux.SIGILL:   OSActionCoreDump,
	linux.SIGTRAP:  OSActionCoreDump,
	linux.SIGABRT:  OSActionCoreDump,
	linux.SIGBUS:   OSActionCoreDump,
	linux.SIGFPE:   OSActionCoreDump,
	linux.SIGSEGV:  OSActionCoreDump,
	linux.SIGCHLD:  OSActionIgnore,
	linux.SIGCONT:  OSActionContinue,
	linux.SIGSTOP:  OSActionStop,
	linux.SIGTSTP:  OSActionStop,
	linux.SIGTTIN:  OSActionStop,
	linux.SIGTTOU:  OSActionStop,
	linux.SIGURG:   OSActionIgnore,
	linux.SIGXCPU:  OSActionCoreDump,
	linux.SIGXFSZ:  OSActionCoreDump,
	linux.SIGWINCH: OSActionIgnore,
	linux.SIGSYS:   OSActionCoreDump,
}

// DefaultAction returns the default action for sig.
func DefaultAction(sig linux.Signal) OSAction {
	if a, ok := defaultActions[sig]; ok {
		return a
	}
	return OSActionTerminate
}

// IsIgnored returns true if a signal with action a is discarded on delivery.
func (a SignalAction) IsIgnored(sig linux.Signal) bool {
	switch a.Disposition {
	case DispositionIgnore:
		return true
	case DispositionDefault:
		return DefaultAction(sig) == OSActionIgnore
	default:
		return false
	}
}
