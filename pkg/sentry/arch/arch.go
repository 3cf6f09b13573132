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

// Package arch provides abstractions around architecture-dependent details,
// such as syscall calling conventions, native types, etc.
package arch

import (
	"fmt"

	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/marshal"
	"gvisor.dev/sigcore/pkg/usermem"
)

// Arch describes an architecture.
type Arch int

const (
	// AMD64 is the x86-64 architecture.
	AMD64 Arch = iota
	// ARM64 is the aarch64 architecture.
	ARM64
)

// String implements fmt.Stringer.
func (a Arch) String() string {
	switch a {
	case AMD64:
		return "amd64"
	case ARM64:
		return "arm64"
	default:
		return fmt.Sprintf("Arch(%d)", a)
	}
}

// StackAlignment is the alignment of a signal frame on the stack for every
// supported architecture.
const StackAlignment = 16

// Context provides architecture-dependent information for a specific thread:
// it is the register state ("trap frame") captured when the thread last
// entered the kernel, and the state it resumes with.
//
// Only the accessors needed to redirect execution into a signal handler and
// back are exposed; all other register semantics stay private to each
// architecture.
type Context interface {
	// Arch returns the architecture for this Context.
	Arch() Arch

	// Width returns the number of bytes for a native value.
	Width() uint

	// Fork creates a clone of the context.
	Fork() Context

	// IP returns the current instruction pointer.
	IP() hostarch.Addr

	// SetIP sets the current instruction pointer.
	SetIP(value hostarch.Addr)

	// Stack returns the current stack pointer.
	Stack() hostarch.Addr

	// SetStack sets the current stack pointer.
	SetStack(value hostarch.Addr)

	// Arg returns the value of the i-th (0-based) argument-passing
	// register. Only the first three arguments are supported.
	Arg(i int) uint64

	// SetArg sets the i-th (0-based) argument-passing register. Only the
	// first three arguments are supported.
	SetArg(i int, value uint64)

	// SetReturnAddress arranges for the function about to be entered at IP
	// to return to ra, following the architecture's calling convention. On
	// architectures that pass the return address on the stack, this pushes
	// it through mem and adjusts the stack pointer.
	SetReturnAddress(mem usermem.IO, ra hostarch.Addr) error

	// Registers returns the complete raw register set. Marshalling it
	// yields a byte-exact snapshot; unmarshalling into it replaces every
	// register.
	Registers() marshal.Marshallable

	// NewSignalContext returns the ABI struct ucontext describing the
	// current registers, with the given alternate stack and saved signal
	// mask.
	NewSignalContext(alt linux.SignalStack, sigmask linux.SignalSet) SignalContext

	// EmptySignalContext returns a zeroed struct ucontext of this
	// architecture, for reading one back from memory.
	EmptySignalContext() SignalContext

	// RestoreSignalContext loads the machine context in uc into the
	// registers.
	//
	// Preconditions: uc was returned by NewSignalContext or
	// EmptySignalContext on a Context of the same Arch.
	RestoreSignalContext(uc SignalContext)
}

// SignalContext is an architecture's struct ucontext as seen by a signal
// handler.
type SignalContext interface {
	marshal.Marshallable

	// SignalMask returns the saved signal mask (uc_sigmask).
	SignalMask() linux.SignalSet

	// SetSignalMask replaces the saved signal mask.
	SetSignalMask(mask linux.SignalSet)

	// FaultAddress returns the saved fault address (cr2 on amd64,
	// fault_address on arm64).
	FaultAddress() uint64

	// SignalStack returns the saved alternate stack (uc_stack).
	SignalStack() linux.SignalStack
}

// New returns a zeroed Context for the given architecture.
func New(a Arch) Context {
	switch a {
	case AMD64:
		return &AMD64Context{}
	case ARM64:
		return &ARM64Context{}
	default:
		panic(fmt.Sprintf("unsupported architecture %v", a))
	}
}

// NewContext returns a zeroed Context for the host architecture.
func NewContext() Context {
	return New(Host)
}
