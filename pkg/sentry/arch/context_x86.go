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

package arch

import (
	"fmt"

	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/marshal"
	"gvisor.dev/sigcore/pkg/marshal/primitive"
	"gvisor.dev/sigcore/pkg/usermem"
)

// AMD64Registers is the x86-64 user register set, laid out like struct
// user_regs_struct (PtraceRegs).
type AMD64Registers struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	Rbp      uint64
	Rbx      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	Rax      uint64
	Rcx      uint64
	Rdx      uint64
	Rsi      uint64
	Rdi      uint64
	Orig_rax uint64
	Rip      uint64
	Cs       uint64
	Eflags   uint64
	Rsp      uint64
	Ss       uint64
	Fs_base  uint64
	Gs_base  uint64
	Ds       uint64
	Es       uint64
	Fs       uint64
	Gs       uint64
}

// amd64RegistersSize is the size of user_regs_struct.
const amd64RegistersSize = 27 * 8

// fields returns pointers to every register in ABI order.
func (r *AMD64Registers) fields() []*uint64 {
	return []*uint64{
		&r.R15, &r.R14, &r.R13, &r.R12, &r.Rbp, &r.Rbx, &r.R11, &r.R10,
		&r.R9, &r.R8, &r.Rax, &r.Rcx, &r.Rdx, &r.Rsi, &r.Rdi, &r.Orig_rax,
		&r.Rip, &r.Cs, &r.Eflags, &r.Rsp, &r.Ss, &r.Fs_base, &r.Gs_base,
		&r.Ds, &r.Es, &r.Fs, &r.Gs,
	}
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (r *AMD64Registers) SizeBytes() int {
	return amd64RegistersSize
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (r *AMD64Registers) MarshalBytes(dst []byte) []byte {
	for _, f := range r.fields() {
		hostarch.ByteOrder.PutUint64(dst[:8], *f)
		dst = dst[8:]
	}
	return dst
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (r *AMD64Registers) UnmarshalBytes(src []byte) []byte {
	for _, f := range r.fields() {
		*f = hostarch.ByteOrder.Uint64(src[:8])
		src = src[8:]
	}
	return src
}

// User-mode segment selectors, from arch/x86/include/asm/segment.h.
const (
	userCS = 0x33
	userDS = 0x2b
)

// userFlagsMask is the set of EFLAGS bits a signal handler may change
// through its saved context. It is FIX_EFLAGS from
// arch/x86/kernel/signal.c.
const userFlagsMask = 0x40DD5

// AMD64Context represents an x86-64 trap frame.
type AMD64Context struct {
	Regs AMD64Registers
}

var _ Context = (*AMD64Context)(nil)

// Arch implements Context.Arch.
func (c *AMD64Context) Arch() Arch {
	return AMD64
}

// Width implements Context.Width.
func (c *AMD64Context) Width() uint {
	return 8
}

// Fork implements Context.Fork.
func (c *AMD64Context) Fork() Context {
	return &AMD64Context{Regs: c.Regs}
}

// IP implements Context.IP.
func (c *AMD64Context) IP() hostarch.Addr {
	return hostarch.Addr(c.Regs.Rip)
}

// SetIP implements Context.SetIP.
func (c *AMD64Context) SetIP(value hostarch.Addr) {
	c.Regs.Rip = uint64(value)
}

// Stack implements Context.Stack.
func (c *AMD64Context) Stack() hostarch.Addr {
	return hostarch.Addr(c.Regs.Rsp)
}

// SetStack implements Context.SetStack.
func (c *AMD64Context) SetStack(value hostarch.Addr) {
	c.Regs.Rsp = uint64(value)
}

// argRegister returns the i-th System V argument register.
func (c *AMD64Context) argRegister(i int) *uint64 {
	switch i {
	case 0:
		return &c.Regs.Rdi
	case 1:
		return &c.Regs.Rsi
	case 2:
		return &c.Regs.Rdx
	default:
		panic(fmt.Sprintf("argument register %d not supported", i))
	}
}

// Arg implements Context.Arg.
func (c *AMD64Context) Arg(i int) uint64 {
	return *c.argRegister(i)
}

// SetArg implements Context.SetArg.
func (c *AMD64Context) SetArg(i int, value uint64) {
	*c.argRegister(i) = value
}

// SetReturnAddress implements Context.SetReturnAddress.
//
// x86-64 enters functions with the return address on top of the stack, so
// it is pushed below the current stack pointer.
func (c *AMD64Context) SetReturnAddress(mem usermem.IO, ra hostarch.Addr) error {
	sp := hostarch.Addr(c.Regs.Rsp) - 8
	val := primitive.Uint64(ra)
	if err := usermem.CopyObjectOut(mem, sp, &val, 8); err != nil {
		return err
	}
	c.Regs.Rsp = uint64(sp)
	return nil
}

// Registers implements Context.Registers.
func (c *AMD64Context) Registers() marshal.Marshallable {
	return &c.Regs
}

// NewSignalContext implements Context.NewSignalContext.
func (c *AMD64Context) NewSignalContext(alt linux.SignalStack, sigmask linux.SignalSet) SignalContext {
	return &UContextAMD64{
		Stack: alt,
		MContext: SignalContextAMD64{
			R8:      c.Regs.R8,
			R9:      c.Regs.R9,
			R10:     c.Regs.R10,
			R11:     c.Regs.R11,
			R12:     c.Regs.R12,
			R13:     c.Regs.R13,
			R14:     c.Regs.R14,
			R15:     c.Regs.R15,
			Rdi:     c.Regs.Rdi,
			Rsi:     c.Regs.Rsi,
			Rbp:     c.Regs.Rbp,
			Rbx:     c.Regs.Rbx,
			Rdx:     c.Regs.Rdx,
			Rax:     c.Regs.Rax,
			Rcx:     c.Regs.Rcx,
			Rsp:     c.Regs.Rsp,
			Rip:     c.Regs.Rip,
			Eflags:  c.Regs.Eflags,
			Cs:      uint16(c.Regs.Cs),
			Ss:      uint16(c.Regs.Ss),
			Oldmask: uint64(sigmask),
		},
		Sigset: sigmask,
	}
}

// EmptySignalContext implements Context.EmptySignalContext.
func (c *AMD64Context) EmptySignalContext() SignalContext {
	return &UContextAMD64{}
}

// RestoreSignalContext implements Context.RestoreSignalContext.
//
// Like Linux's restore_sigcontext, only the user-changeable EFLAGS bits are
// taken from the saved context and the segment selectors are forced to
// user privilege. The saved fault address is never loaded.
func (c *AMD64Context) RestoreSignalContext(sc SignalContext) {
	uc := sc.(*UContextAMD64)
	m := &uc.MContext
	c.Regs.R8 = m.R8
	c.Regs.R9 = m.R9
	c.Regs.R10 = m.R10
	c.Regs.R11 = m.R11
	c.Regs.R12 = m.R12
	c.Regs.R13 = m.R13
	c.Regs.R14 = m.R14
	c.Regs.R15 = m.R15
	c.Regs.Rdi = m.Rdi
	c.Regs.Rsi = m.Rsi
	c.Regs.Rbp = m.Rbp
	c.Regs.Rbx = m.Rbx
	c.Regs.Rdx = m.Rdx
	c.Regs.Rax = m.Rax
	c.Regs.Rcx = m.Rcx
	c.Regs.Rsp = m.Rsp
	c.Regs.Rip = m.Rip
	c.Regs.Eflags = (c.Regs.Eflags &^ userFlagsMask) | (m.Eflags & userFlagsMask)
	c.Regs.Cs = uint64(m.Cs) | 3
	c.Regs.Ss = uint64(m.Ss) | 3
}
