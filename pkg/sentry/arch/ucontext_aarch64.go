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
	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/hostarch"
)

// SignalContextARM64 is equivalent to struct sigcontext, the type passed as
// the second argument to signal handlers set by signal(2).
type SignalContextARM64 struct {
	FaultAddr uint64
	Regs      [31]uint64
	Sp        uint64
	Pc        uint64
	Pstate    uint64
	_pad      [8]byte // __attribute__((__aligned__(16)))

	// Reserved holds the extension records (fpsimd, sve, ...). None are
	// saved, which leaves a zero end-marker record in place.
	Reserved [4096]uint8
}

// signalContextARM64Size is sizeof(struct sigcontext) on arm64.
const signalContextARM64Size = 8 + 31*8 + 3*8 + 8 + 4096

// UContextARM64 is equivalent to ucontext on arm64(arch/arm64/include/uapi/asm/ucontext.h).
type UContextARM64 struct {
	Flags  uint64
	Link   uint64
	Stack  linux.SignalStack
	Sigset linux.SignalSet
	// glibc uses a 1024-bit sigset_t
	_pad [(1024 - 64) / 8]byte
	// sigcontext must be aligned to 16-byte
	_pad2 [8]byte
	// last for future expansion
	MContext SignalContextARM64
}

// uContextARM64HeaderSize is the offset of uc_mcontext.
const uContextARM64HeaderSize = 8 + 8 + linux.SignalStackSize + linux.SignalSetSize + (1024-64)/8 + 8

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (m *SignalContextARM64) SizeBytes() int {
	return signalContextARM64Size
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (m *SignalContextARM64) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[:8], m.FaultAddr)
	dst = dst[8:]
	for _, v := range m.Regs {
		hostarch.ByteOrder.PutUint64(dst[:8], v)
		dst = dst[8:]
	}
	hostarch.ByteOrder.PutUint64(dst[0:8], m.Sp)
	hostarch.ByteOrder.PutUint64(dst[8:16], m.Pc)
	hostarch.ByteOrder.PutUint64(dst[16:24], m.Pstate)
	clear(dst[24:32])
	dst = dst[32:]
	copy(dst[:len(m.Reserved)], m.Reserved[:])
	return dst[len(m.Reserved):]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (m *SignalContextARM64) UnmarshalBytes(src []byte) []byte {
	m.FaultAddr = hostarch.ByteOrder.Uint64(src[:8])
	src = src[8:]
	for i := range m.Regs {
		m.Regs[i] = hostarch.ByteOrder.Uint64(src[:8])
		src = src[8:]
	}
	m.Sp = hostarch.ByteOrder.Uint64(src[0:8])
	m.Pc = hostarch.ByteOrder.Uint64(src[8:16])
	m.Pstate = hostarch.ByteOrder.Uint64(src[16:24])
	src = src[32:]
	copy(m.Reserved[:], src[:len(m.Reserved)])
	return src[len(m.Reserved):]
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (uc *UContextARM64) SizeBytes() int {
	return uContextARM64HeaderSize + signalContextARM64Size
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (uc *UContextARM64) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[0:8], uc.Flags)
	hostarch.ByteOrder.PutUint64(dst[8:16], uc.Link)
	dst = uc.Stack.MarshalBytes(dst[16:])
	dst = uc.Sigset.MarshalBytes(dst)
	clear(dst[:len(uc._pad)+len(uc._pad2)])
	dst = dst[len(uc._pad)+len(uc._pad2):]
	return uc.MContext.MarshalBytes(dst)
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (uc *UContextARM64) UnmarshalBytes(src []byte) []byte {
	uc.Flags = hostarch.ByteOrder.Uint64(src[0:8])
	uc.Link = hostarch.ByteOrder.Uint64(src[8:16])
	src = uc.Stack.UnmarshalBytes(src[16:])
	src = uc.Sigset.UnmarshalBytes(src)
	src = src[len(uc._pad)+len(uc._pad2):]
	return uc.MContext.UnmarshalBytes(src)
}

// SignalMask implements SignalContext.SignalMask.
func (uc *UContextARM64) SignalMask() linux.SignalSet {
	return uc.Sigset
}

// SetSignalMask implements SignalContext.SetSignalMask.
func (uc *UContextARM64) SetSignalMask(mask linux.SignalSet) {
	uc.Sigset = mask
}

// FaultAddress implements SignalContext.FaultAddress.
func (uc *UContextARM64) FaultAddress() uint64 {
	return uc.MContext.FaultAddr
}

// SignalStack implements SignalContext.SignalStack.
func (uc *UContextARM64) SignalStack() linux.SignalStack {
	return uc.Stack
}
