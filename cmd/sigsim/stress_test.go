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

package main

import (
	"context"
	"testing"

	"gvisor.dev/sigcore/pkg/sync"
)

func checkStats(t *testing.T, opts stressOpts, stats stressStats) {
	t.Helper()
	if want := int64(opts.senders * opts.sends); stats.sent != want {
		t.Errorf("sent: got %d, wanted %d", stats.sent, want)
	}
	if stats.dequeued <= 0 || stats.dequeued > stats.sent {
		t.Errorf("dequeued: got %d, wanted in (0, %d]", stats.dequeued, stats.sent)
	}
	if stats.dequeued+stats.coalesced != stats.sent {
		t.Errorf("dequeued %d + coalesced %d != sent %d", stats.dequeued, stats.coalesced, stats.sent)
	}
}

func TestStress(t *testing.T) {
	opts := stressOpts{threads: 3, senders: 4, sends: 500}
	t.Run("mutex", func(t *testing.T) {
		stats, err := runStress[sync.Mutex](context.Background(), opts)
		if err != nil {
			t.Fatalf("runStress: %v", err)
		}
		checkStats(t, opts, stats)
	})
	t.Run("spin", func(t *testing.T) {
		stats, err := runStress[sync.SpinMutex](context.Background(), opts)
		if err != nil {
			t.Fatalf("runStress: %v", err)
		}
		checkStats(t, opts, stats)
	})
}

func TestStressRateLimited(t *testing.T) {
	opts := stressOpts{threads: 1, senders: 2, sends: 10, rate: 1000}
	stats, err := runStress[sync.Mutex](context.Background(), opts)
	if err != nil {
		t.Fatalf("runStress: %v", err)
	}
	checkStats(t, opts, stats)
}

func TestStressCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := stressOpts{threads: 1, senders: 1, sends: 10, rate: 1}
	if _, err := runStress[sync.Mutex](ctx, opts); err == nil {
		t.Errorf("runStress: got nil error with a cancelled context")
	}
}
