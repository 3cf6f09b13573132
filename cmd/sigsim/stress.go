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
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gvisor.dev/sigcore/pkg/abi/linux"
	"gvisor.dev/sigcore/pkg/log"
	"gvisor.dev/sigcore/pkg/sentry/signal"
	"gvisor.dev/sigcore/pkg/sync"
	"gvisor.dev/sigcore/pkg/usermem"
	"gvisor.dev/sigcore/pkg/waiter"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	opts stressOpts
	spin bool
}

// stressOpts configures a stress run.
type stressOpts struct {
	threads int
	senders int
	sends   int

	// rate limits the total sends per second. Zero means unlimited.
	rate float64
}

// stressStats is the outcome of a stress run.
type stressStats struct {
	sent      int64
	dequeued  int64
	coalesced int64
	elapsed   time.Duration
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "sends signals from concurrent senders to concurrent receivers"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags]
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.opts.threads, "threads", 4, "number of receiving threads")
	f.IntVar(&s.opts.senders, "senders", 8, "number of sending goroutines")
	f.IntVar(&s.opts.sends, "sends", 10000, "signals sent by each sender")
	f.Float64Var(&s.opts.rate, "rate", 0, "maximum sends per second across all senders, 0 for unlimited")
	f.BoolVar(&s.spin, "spin", false, "lock the signal managers with spin locks")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || s.opts.threads <= 0 || s.opts.senders <= 0 || s.opts.sends < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	var (
		stats stressStats
		err   error
	)
	if s.spin {
		stats, err = runStress[sync.SpinMutex](ctx, s.opts)
	} else {
		stats, err = runStress[sync.Mutex](ctx, s.opts)
	}
	if err != nil {
		Fatalf("stress: %v", err)
	}
	fmt.Fprintf(os.Stdout, "sent=%d dequeued=%d coalesced=%d elapsed=%v\n", stats.sent, stats.dequeued, stats.coalesced, stats.elapsed)
	return subcommands.ExitSuccess
}

// runStress sends realtime signals from opts.senders goroutines, alternating
// between process- and thread-directed sends, while one goroutine per
// thread dequeues them. It returns once every queue is drained.
func runStress[M any, L sync.LockerPtr[M]](ctx context.Context, opts stressOpts) (stressStats, error) {
	var queue waiter.Queue
	proc := signal.NewProcess[M, L](signal.ProcessOpts{Queue: &queue})
	threads := make([]*signal.ThreadSignalManager[M, L], opts.threads)
	for i := range threads {
		threads[i] = signal.NewThread(proc, usermem.NewBytesIO(0, 0))
	}

	limit := rate.Inf
	if opts.rate > 0 {
		limit = rate.Limit(opts.rate)
	}
	limiter := rate.NewLimiter(limit, opts.senders)

	var (
		stats    stressStats
		dequeued atomic.Int64
		done     atomic.Bool
	)
	start := time.Now()

	receivers, rctx := errgroup.WithContext(ctx)
	for _, th := range threads {
		receivers.Go(func() error {
			e, ch := waiter.NewChannelEntry(nil)
			queue.EventRegister(&e, waiter.EventSignal)
			defer queue.EventUnregister(&e)

			// Each wait is bounded, so a receiver rechecks its queues
			// even without a wakeup.
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Microsecond
			b.MaxInterval = 10 * time.Millisecond
			b.MaxElapsedTime = 0
			for {
				// Read done before draining so no send is missed.
				finished := done.Load()
				for th.DequeueSignal(^linux.SignalSet(0)) != nil {
					dequeued.Add(1)
					b.Reset()
				}
				if finished {
					return nil
				}
				select {
				case <-ch:
				case <-time.After(b.NextBackOff()):
				case <-rctx.Done():
					return rctx.Err()
				}
			}
		})
	}

	senders, sctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.senders; i++ {
		senders.Go(func() error {
			for n := 0; n < opts.sends; n++ {
				if err := limiter.Wait(sctx); err != nil {
					return err
				}
				sig := linux.Signal(linux.FirstRTSignal + (i+n)%linux.NumRTSignals)
				info := &linux.SignalInfo{Signo: int32(sig), Code: linux.SI_QUEUE}
				if n%2 == 0 {
					proc.SendSignal(info)
				} else {
					threads[(i+n)%len(threads)].SendSignal(info)
				}
			}
			return nil
		})
	}
	sendErr := senders.Wait()
	done.Store(true)
	queue.NotifyAll()
	if err := receivers.Wait(); err != nil {
		return stats, err
	}
	if sendErr != nil {
		return stats, sendErr
	}

	stats.sent = int64(opts.senders) * int64(opts.sends)
	stats.dequeued = dequeued.Load()
	stats.coalesced = stats.sent - stats.dequeued
	stats.elapsed = time.Since(start)
	if log.IsLogging(log.Debug) {
		log.Debugf("stress: %d threads, %d senders: %+v", opts.threads, opts.senders, stats)
	}
	return stats, nil
}
