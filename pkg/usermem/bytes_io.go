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

package usermem

import (
	"gvisor.dev/sigcore/pkg/errors/linuxerr"
	"gvisor.dev/sigcore/pkg/hostarch"
)

// BytesIO implements IO using a byte slice. Addresses are interpreted as
// offsets from Base.
type BytesIO struct {
	Base  hostarch.Addr
	Bytes []byte
}

// NewBytesIO returns a BytesIO of the given size whose first byte lives at
// base.
func NewBytesIO(base hostarch.Addr, size int) *BytesIO {
	return &BytesIO{Base: base, Bytes: make([]byte, size)}
}

// Range returns the address range backed by b.
func (b *BytesIO) Range() hostarch.AddrRange {
	return hostarch.AddrRange{Start: b.Base, End: b.Base + hostarch.Addr(len(b.Bytes))}
}

// CopyOut implements IO.CopyOut.
func (b *BytesIO) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	off, rngN, rngErr := b.rangeCheck(addr, len(src))
	if rngN == 0 {
		return 0, rngErr
	}
	return copy(b.Bytes[off:off+rngN], src), rngErr
}

// CopyIn implements IO.CopyIn.
func (b *BytesIO) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	off, rngN, rngErr := b.rangeCheck(addr, len(dst))
	if rngN == 0 {
		return 0, rngErr
	}
	return copy(dst[:rngN], b.Bytes[off:off+rngN]), rngErr
}

// rangeCheck returns the offset into b.Bytes for addr and the length of the
// accessible prefix of [addr, addr+length).
func (b *BytesIO) rangeCheck(addr hostarch.Addr, length int) (int, int, error) {
	if length == 0 {
		return 0, 0, nil
	}
	if addr < b.Base {
		return 0, 0, linuxerr.EFAULT
	}
	off := addr - b.Base
	if off >= hostarch.Addr(len(b.Bytes)) {
		return 0, 0, linuxerr.EFAULT
	}
	if rem := len(b.Bytes) - int(off); length > rem {
		return int(off), rem, linuxerr.EFAULT
	}
	return int(off), length, nil
}
