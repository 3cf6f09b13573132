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

// Binary sigsim drives the signal delivery core from the command line: it
// replays scenario files and stress tests concurrent senders.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/sigcore/pkg/log"
)

var (
	debug     = flag.Bool("debug", false, "enable debug logging.")
	logFormat = flag.String("log-format", "text", "log format: text (default) or json.")
	logFile   = flag.String("log", "", "file to write logs to in addition to stderr.")
)

// newEmitter returns an emitter in the configured format writing to w.
func newEmitter(w *log.Writer) (log.Emitter, error) {
	switch *logFormat {
	case "text":
		return log.GoogleEmitter{Writer: w}, nil
	case "json":
		return log.JSONEmitter{Writer: w}, nil
	default:
		return nil, fmt.Errorf("invalid log format %q, must be 'text' or 'json'", *logFormat)
	}
}

// Fatalf logs to stderr and exits with a failure status code.
func Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(128)
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(new(Deliver), "")
	subcommands.Register(new(Stress), "")

	flag.Parse()

	e, err := newEmitter(&log.Writer{Next: os.Stderr})
	if err != nil {
		Fatalf("%v", err)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			Fatalf("error opening log file %q: %v", *logFile, err)
		}
		fe, err := newEmitter(&log.Writer{Next: f})
		if err != nil {
			Fatalf("%v", err)
		}
		e = &log.MultiEmitter{e, fe}
	}
	log.SetTarget(e)
	if *debug {
		log.SetLevel(log.Debug)
	}

	status := subcommands.Execute(context.Background())
	log.Debugf("Exiting with status: %v", status)
	os.Exit(int(status))
}
