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

import "gvisor.dev/sigcore/pkg/abi/linux"

// Special values for SignalAct.Handler.
const (
	// SignalActDefault is SIG_DFL and specifies that the default behavior for
	// a signal should be taken.
	SignalActDefault = linux.SIG_DFL

	// SignalActIgnore is SIG_IGN and specifies that a signal should be
	// ignored.
	SignalActIgnore = linux.SIG_IGN
)

// IsSigInfo returns true iff this handle expects siginfo.
func (s SignalAct) IsSigInfo() bool {
	return s.Flags&linux.SA_SIGINFO != 0
}

// IsNoDefer returns true iff this SignalAct has the NoDefer flag set.
func (s SignalAct) IsNoDefer() bool {
	return s.Flags&linux.SA_NODEFER != 0
}

// IsRestart returns true iff this SignalAct has the Restart flag set.
func (s SignalAct) IsRestart() bool {
	return s.Flags&linux.SA_RESTART != 0
}

// IsResetHandler returns true iff this SignalAct has the ResetHandler flag set.
func (s SignalAct) IsResetHandler() bool {
	return s.Flags&linux.SA_RESETHAND != 0
}

// IsOnStack returns true iff this SignalAct has the OnStack flag set.
func (s SignalAct) IsOnStack() bool {
	return s.Flags&linux.SA_ONSTACK != 0
}

// HasRestorer returns true iff this SignalAct has the Restorer flag set.
func (s SignalAct) HasRestorer() bool {
	return s.Flags&linux.SA_RESTORER != 0
}
