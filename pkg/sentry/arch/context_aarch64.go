// Copyright 2020 The gVisor Authors.
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
	"gvisor.dev/sigcore/pkg/usermem"
)

// ARM64Registers is the aarch64 user register set, laid out like struct
// user_pt_regs (PtraceRegs).
type ARM64Registers struct {
	Regs   [31]uint64
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

// PSTATE bits a signal handler may not set through its saved context: the
// exception level and execution state (M[4:0]) and the DAIF interrupt masks.
// Clearing them leaves the task in EL0t, as valid_user_regs does in
// arch/arm64/kernel/ptrace.c.
const (
	pstateModeMask = 0x1f
	pstateDAIFMask = 0x3c0
)

// arm64RegistersSize is the size of user_pt_regs.
const arm64RegistersSize = 34 * 8

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (r *ARM64Registers) SizeBytes() int {
	return arm64RegistersSize
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (r *ARM64Registers) MarshalBytes(dst []byte) []byte {
	for _, v := range r.Regs {
		hostarch.ByteOrder.PutUint64(dst[:8], v)
		dst = dst[8:]
	}
	hostarch.ByteOrder.PutUint64(dst[0:8], r.Sp)
	hostarch.ByteOrder.PutUint64(dst[8:16], r.Pc)
	hostarch.ByteOrder.PutUint64(dst[16:24], r.Pstate)
	return dst[24:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (r *ARM64Registers) UnmarshalBytes(src []byte) []byte {
	for i := range r.Regs {
		r.Regs[i] = hostarch.ByteOrder.Uint64(src[:8])
		src = src[8:]
	}
	r.Sp = hostarch.ByteOrder.Uint64(src[0:8])
	r.Pc = hostarch.ByteOrder.Uint64(src[8:16])
	r.Pstate = hostarch.ByteOrder.Uint64(src[16:24])
	return src[24:]
}

// General purpose registers usage on Arm64:
// R0...R7: parameter/result registers.
// R8: indirect result location register.
// R9...R15: temporary rgisters.
// R16: the first intra-procedure-call scratch register.
// R17: the second intra-procedure-call scratch register.
// R18: the platform register.
// R19...R28: callee-saved registers.
// R29: the frame pointer.
// R30: the link register.
const linkRegister = 30

// ARM64Context represents an aarch64 trap frame.
type ARM64Context struct {
	Regs ARM64Registers
}

var _ Context = (*ARM64Context)(nil)

// Arch implements Context.Arch.
func (c *ARM64Context) Arch() Arch {
	return ARM64
}

// Width implements Context.Width.
func (c *ARM64Context) Width() uint {
	return 8
}

// Fork implements Context.Fork.
func (c *ARM64Context) Fork() Context {
	return &ARM64Context{Regs: c.Regs}
}

// IP implements Context.IP.
func (c *ARM64Context) IP() hostarch.Addr {
	return hostarch.Addr(c.Regs.Pc)
}

// SetIP implements Context.SetIP.
func (c *ARM64Context) SetIP(value hostarch.Addr) {
	c.Regs.Pc = uint64(value)
}

// Stack implements Context.Stack.
func (c *ARM64Context) Stack() hostarch.Addr {
	return hostarch.Addr(c.Regs.Sp)
}

// SetStack implements Context.SetStack.
func (c *ARM64Context) SetStack(value hostarch.Addr) {
	c.Regs.Sp = uint64(value)
}

// Arg implements Context.Arg.
func (c *ARM64Context) Arg(i int) uint64 {
	if i < 0 || i > 2 {
		panic(fmt.Sprintf("argument register %d not supported", i))
	}
	return c.Regs.Regs[i]
}

// SetArg implements Context.SetArg.
func (c *ARM64Context) SetArg(i int, value uint64) {
	if i < 0 || i > 2 {
		panic(fmt.Sprintf("argument register %d not supported", i))
	}
	c.Regs.Regs[i] = value
}

// SetReturnAddress implements Context.SetReturnAddress.
//
// The return address lives in the link register; the stack is untouched.
func (c *ARM64Context) SetReturnAddress(_ usermem.IO, ra hostarch.Addr) error {
	c.Regs.Regs[linkRegister] = uint64(ra)
	return nil
}

// Registers implements Context.Registers.
func (c *ARM64Context) Registers() marshal.Marshallable {
	return &c.Regs
}

// NewSignalContext implements Context.NewSignalContext.
func (c *ARM64Context) NewSignalContext(alt linux.SignalStack, sigmask linux.SignalSet) SignalContext {
	return &UContextARM64{
		Stack:  alt,
		Sigset: sigmask,
		MContext: SignalContextARM64{
			Regs:   c.Regs.Regs,
			Sp:     c.Regs.Sp,
			Pc:     c.Regs.Pc,
			Pstate: c.Regs.Pstate,
		},
	}
}

// EmptySignalContext implements Context.EmptySignalContext.
func (c *ARM64Context) EmptySignalContext() SignalContext {
	return &UContextARM64{}
}

// RestoreSignalContext implements Context.RestoreSignalContext.
//
// The saved fault address is never loaded.
func (c *ARM64Context) RestoreSignalContext(sc SignalContext) {
	uc := sc.(*UContextARM64)
	c.Regs.Regs = uc.MContext.Regs
	c.Regs.Sp = uc.MContext.Sp
	c.Regs.Pc = uc.MContext.Pc
	c.Regs.Pstate = uc.MContext.Pstate &^ (pstateModeMask | pstateDAIFMask)
}
