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

// SignalAct represents the action that should be taken when a signal is
// delivered, and is equivalent to struct sigaction.
type SignalAct struct {
	Handler  uint64
	Flags    uint64
	Restorer uint64 // Only used on amd64.
	Mask     linux.SignalSet
}

// SignalActSize is the size in bytes of a SignalAct.
const SignalActSize = 32

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (s *SignalAct) SizeBytes() int {
	return SignalActSize
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (s *SignalAct) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[0:8], s.Handler)
	hostarch.ByteOrder.PutUint64(dst[8:16], s.Flags)
	hostarch.ByteOrder.PutUint64(dst[16:24], s.Restorer)
	return s.Mask.MarshalBytes(dst[24:])
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (s *SignalAct) UnmarshalBytes(src []byte) []byte {
	s.Handler = hostarch.ByteOrder.Uint64(src[0:8])
	s.Flags = hostarch.ByteOrder.Uint64(src[8:16])
	s.Restorer = hostarch.ByteOrder.Uint64(src[16:24])
	return s.Mask.UnmarshalBytes(src[24:])
}
