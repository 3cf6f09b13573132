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
// +build linux

package usermem

import (
	"unsafe"

	"golang.org/x/sys/unix"
	"gvisor.dev/sigcore/pkg/errors/linuxerr"
	"gvisor.dev/sigcore/pkg/hostarch"
)

// HostIO implements IO by dereferencing addresses directly in the host
// address space. Only addresses inside Window are accessible; everything
// else faults with EFAULT.
//
// HostIO models a kernel that shares an address space with its user
// threads, where a signal frame is written with plain stores.
type HostIO struct {
	Window hostarch.AddrRange

	// mapping is non-nil if the window was allocated by NewMappedHostIO.
	mapping []byte
}

// NewMappedHostIO allocates an anonymous private mapping of size bytes and
// returns a HostIO whose window covers exactly that mapping.
func NewMappedHostIO(size int) (*HostIO, error) {
	m, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return nil, linuxerr.ErrorFromUnix(errno)
		}
		return nil, err
	}
	start := hostarch.Addr(uintptr(unsafe.Pointer(&m[0])))
	return &HostIO{
		Window:  hostarch.AddrRange{Start: start, End: start + hostarch.Addr(size)},
		mapping: m,
	}, nil
}

// Release unmaps memory allocated by NewMappedHostIO. It is a no-op for
// windows over caller-owned memory.
func (h *HostIO) Release() error {
	if h.mapping == nil {
		return nil
	}
	err := unix.Munmap(h.mapping)
	h.mapping = nil
	h.Window = hostarch.AddrRange{}
	return err
}

// CopyOut implements IO.CopyOut.
func (h *HostIO) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	n, err := h.accessible(addr, len(src))
	if n == 0 {
		return 0, err
	}
	return copy(hostBytes(addr, n), src), err
}

// CopyIn implements IO.CopyIn.
func (h *HostIO) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	n, err := h.accessible(addr, len(dst))
	if n == 0 {
		return 0, err
	}
	return copy(dst[:n], hostBytes(addr, n)), err
}

func (h *HostIO) accessible(addr hostarch.Addr, length int) (int, error) {
	if length == 0 {
		return 0, nil
	}
	if !h.Window.Contains(addr) {
		return 0, linuxerr.EFAULT
	}
	if rem := int(h.Window.End - addr); length > rem {
		return rem, linuxerr.EFAULT
	}
	return length, nil
}

// hostBytes returns a slice aliasing n bytes of host memory at addr.
//
// Preconditions: [addr, addr+n) is inside a live HostIO window.
func hostBytes(addr hostarch.Addr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n)
}
