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

// Package usermem governs access to user memory.
package usermem

import (
	"gvisor.dev/sigcore/pkg/errors/linuxerr"
	"gvisor.dev/sigcore/pkg/hostarch"
	"gvisor.dev/sigcore/pkg/marshal"
)

// IO provides access to the contents of a virtual memory space.
type IO interface {
	// CopyOut copies len(src) bytes from src to the memory mapped at addr. It
	// returns the number of bytes copied. If the number of bytes copied is <
	// len(src), it returns a non-nil error explaining why.
	CopyOut(addr hostarch.Addr, src []byte) (int, error)

	// CopyIn copies len(dst) bytes from the memory mapped at addr to dst.
	// It returns the number of bytes copied. If the number of bytes copied is
	// < len(dst), it returns a non-nil error explaining why.
	CopyIn(addr hostarch.Addr, dst []byte) (int, error)
}

// CopyObjectOut marshals m and writes it to addr, which must be aligned to
// align (a power of two) and lie entirely within memory mapped by uio.
//
// This is the only path by which typed ABI structures reach user memory; the
// alignment and range checks replace the unchecked pointer stores a native
// kernel would perform.
func CopyObjectOut(uio IO, addr hostarch.Addr, m marshal.Marshallable, align uint64) error {
	if !addr.IsAligned(align) {
		return linuxerr.EFAULT
	}
	if _, ok := addr.AddLength(uint64(m.SizeBytes())); !ok {
		return linuxerr.EFAULT
	}
	buf := marshal.Marshal(m)
	n, err := uio.CopyOut(addr, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return linuxerr.EFAULT
	}
	return nil
}

// CopyObjectIn reads m from addr, subject to the same constraints as
// CopyObjectOut. On error m is left unmodified.
func CopyObjectIn(uio IO, addr hostarch.Addr, m marshal.Marshallable, align uint64) error {
	if !addr.IsAligned(align) {
		return linuxerr.EFAULT
	}
	if _, ok := addr.AddLength(uint64(m.SizeBytes())); !ok {
		return linuxerr.EFAULT
	}
	buf := make([]byte, m.SizeBytes())
	n, err := uio.CopyIn(addr, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return linuxerr.EFAULT
	}
	m.UnmarshalBytes(buf)
	return nil
}
