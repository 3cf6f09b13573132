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
	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/hostarch"
)

// SignalContextAMD64 is equivalent to struct sigcontext, the type passed as
// the second argument to signal handlers set by signal(2).
type SignalContextAMD64 struct {
	R8      uint64
	R9      uint64
	R10     uint64
	R11     uint64
	R12     uint64
	R13     uint64
	R14     uint64
	R15     uint64
	Rdi     uint64
	Rsi     uint64
	Rbp     uint64
	Rbx     uint64
	Rdx     uint64
	Rax     uint64
	Rcx     uint64
	Rsp     uint64
	Rip     uint64
	Eflags  uint64
	Cs      uint16
	Gs      uint16 // always 0 on amd64.
	Fs      uint16 // always 0 on amd64.
	Ss      uint16 // restored with RPL 3.
	Err     uint64
	Trapno  uint64
	Oldmask uint64
	Cr2     uint64
	// Pointer to a struct _fpstate. No FPU state is saved here.
	Fpstate  uint64
	Reserved [8]uint64
}

// signalContextAMD64Size is sizeof(struct sigcontext) on amd64.
const signalContextAMD64Size = 256

// UContextAMD64 is equivalent to the kernel's struct ucontext on amd64
// (arch/x86/include/uapi/asm/ucontext.h).
type UContextAMD64 struct {
	Flags    uint64
	Link     uint64
	Stack    linux.SignalStack
	MContext SignalContextAMD64
	Sigset   linux.SignalSet
}

// uContextAMD64Size is sizeof(struct ucontext) on amd64.
const uContextAMD64Size = 8 + 8 + linux.SignalStackSize + signalContextAMD64Size + linux.SignalSetSize

func (m *SignalContextAMD64) gprs() []*uint64 {
	return []*uint64{
		&m.R8, &m.R9, &m.R10, &m.R11, &m.R12, &m.R13, &m.R14, &m.R15,
		&m.Rdi, &m.Rsi, &m.Rbp, &m.Rbx, &m.Rdx, &m.Rax, &m.Rcx, &m.Rsp,
		&m.Rip, &m.Eflags,
	}
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (m *SignalContextAMD64) SizeBytes() int {
	return signalContextAMD64Size
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (m *SignalContextAMD64) MarshalBytes(dst []byte) []byte {
	for _, r := range m.gprs() {
		hostarch.ByteOrder.PutUint64(dst[:8], *r)
		dst = dst[8:]
	}
	hostarch.ByteOrder.PutUint16(dst[0:2], m.Cs)
	hostarch.ByteOrder.PutUint16(dst[2:4], m.Gs)
	hostarch.ByteOrder.PutUint16(dst[4:6], m.Fs)
	hostarch.ByteOrder.PutUint16(dst[6:8], m.Ss)
	dst = dst[8:]
	for _, v := range []uint64{m.Err, m.Trapno, m.Oldmask, m.Cr2, m.Fpstate} {
		hostarch.ByteOrder.PutUint64(dst[:8], v)
		dst = dst[8:]
	}
	for _, v := range m.Reserved {
		hostarch.ByteOrder.PutUint64(dst[:8], v)
		dst = dst[8:]
	}
	return dst
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (m *SignalContextAMD64) UnmarshalBytes(src []byte) []byte {
	for _, r := range m.gprs() {
		*r = hostarch.ByteOrder.Uint64(src[:8])
		src = src[8:]
	}
	m.Cs = hostarch.ByteOrder.Uint16(src[0:2])
	m.Gs = hostarch.ByteOrder.Uint16(src[2:4])
	m.Fs = hostarch.ByteOrder.Uint16(src[4:6])
	m.Ss = hostarch.ByteOrder.Uint16(src[6:8])
	src = src[8:]
	for _, v := range []*uint64{&m.Err, &m.Trapno, &m.Oldmask, &m.Cr2, &m.Fpstate} {
		*v = hostarch.ByteOrder.Uint64(src[:8])
		src = src[8:]
	}
	for i := range m.Reserved {
		m.Reserved[i] = hostarch.ByteOrder.Uint64(src[:8])
		src = src[8:]
	}
	return src
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (uc *UContextAMD64) SizeBytes() int {
	return uContextAMD64Size
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (uc *UContextAMD64) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[0:8], uc.Flags)
	hostarch.ByteOrder.PutUint64(dst[8:16], uc.Link)
	dst = uc.Stack.MarshalBytes(dst[16:])
	dst = uc.MContext.MarshalBytes(dst)
	return uc.Sigset.MarshalBytes(dst)
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (uc *UContextAMD64) UnmarshalBytes(src []byte) []byte {
	uc.Flags = hostarch.ByteOrder.Uint64(src[0:8])
	uc.Link = hostarch.ByteOrder.Uint64(src[8:16])
	src = uc.Stack.UnmarshalBytes(src[16:])
	src = uc.MContext.UnmarshalBytes(src)
	return uc.Sigset.UnmarshalBytes(src)
}

// SignalMask implements SignalContext.SignalMask.
func (uc *UContextAMD64) SignalMask() linux.SignalSet {
	return uc.Sigset
}

// SetSignalMask implements SignalContext.SetSignalMask.
func (uc *UContextAMD64) SetSignalMask(mask linux.SignalSet) {
	uc.Sigset = mask
}

// FaultAddress implements SignalContext.FaultAddress.
func (uc *UContextAMD64) FaultAddress() uint64 {
	return uc.MContext.Cr2
}

// SignalStack implements SignalContext.SignalStack.
func (uc *UContextAMD64) SignalStack() linux.SignalStack {
	return uc.Stack
}
