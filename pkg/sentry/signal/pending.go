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
)

// PendingSignals holds the queued signals of a thread or process.
//
// At most one SignalInfo is held per signal number: raising a signal that is
// already pending is a no-op, including for realtime signals.
//
// PendingSignals is not synchronized; its owner locks around it.
type PendingSignals struct {
	// set has a bit set for every non-nil entry in infos.
	set linux.SignalSet

	infos [linux.SignalMaximum]*linux.SignalInfo
}

// Enqueue queues info. It returns false if a signal with the same number was
// already pending, in which case info is dropped.
//
// Preconditions: info.Signal().IsValid().
func (p *PendingSignals) Enqueue(info *linux.SignalInfo) bool {
	sig := info.Signal()
	if p.set.Contains(sig) {
		return false
	}
	p.infos[sig.Index()] = info
	p.set.Add(sig)
	return true
}

// Dequeue removes and returns the lowest-numbered pending signal in mask. It
// returns nil if no pending signal is in mask.
func (p *PendingSignals) Dequeue(mask linux.SignalSet) *linux.SignalInfo {
	sig := (p.set & mask).Lowest()
	if sig == 0 {
		return nil
	}
	info := p.infos[sig.Index()]
	p.infos[sig.Index()] = nil
	p.set.Remove(sig)
	return info
}

// Discard drops any pending instance of sig.
func (p *PendingSignals) Discard(sig linux.Signal) {
	if p.set.Contains(sig) {
		p.infos[sig.Index()] = nil
		p.set.Remove(sig)
	}
}

// Set returns the set of pending signals.
func (p *PendingSignals) Set() linux.SignalSet {
	return p.set
}
