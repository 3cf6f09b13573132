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
	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/sentry/arch"
)

// SignalFrame is the structure written to the stack on handler entry:
//
//	+--------------------+ <- frame address (16-byte aligned), arg 2
//	| struct ucontext    |
//	+--------------------+ <- arg 1
//	| siginfo_t          |
//	+--------------------+
//	| raw trap frame     |
//	+--------------------+
//
// It is read back exactly once, by ThreadSignalManager.Restore.
type SignalFrame struct {
	UContext arch.SignalContext
	Info     linux.SignalInfo

	// Regs is the marshalled trap frame as it was before delivery.
	Regs []byte
}

// newEmptySignalFrame returns a frame sized for tf's architecture, ready to
// be unmarshalled into.
func newEmptySignalFrame(tf arch.Context) *SignalFrame {
	return &SignalFrame{
		UContext: tf.EmptySignalContext(),
		Regs:     make([]byte, tf.Registers().SizeBytes()),
	}
}

// infoOffset is the offset of Info from the start of the frame.
func (f *SignalFrame) infoOffset() int {
	return f.UContext.SizeBytes()
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (f *SignalFrame) SizeBytes() int {
	return f.UContext.SizeBytes() + linux.SignalInfoSize + len(f.Regs)
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (f *SignalFrame) MarshalBytes(dst []byte) []byte {
	dst = f.UContext.MarshalBytes(dst)
	dst = f.Info.MarshalBytes(dst)
	return dst[copy(dst, f.Regs):]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (f *SignalFrame) UnmarshalBytes(src []byte) []byte {
	src = f.UContext.UnmarshalBytes(src)
	src = f.Info.UnmarshalBytes(src)
	return src[copy(f.Regs, src):]
}
