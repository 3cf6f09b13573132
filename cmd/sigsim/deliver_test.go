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
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// checkOutput compares the lines of out to patterns, each of which must
// match its whole line.
func checkOutput(t *testing.T, out string, patterns []string) {
	t.Helper()
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != len(patterns) {
		t.Fatalf("got %d lines, wanted %d:\n%s", len(lines), len(patterns), out)
	}
	for i, p := range patterns {
		if !regexp.MustCompile("^" + p + "$").MatchString(lines[i]) {
			t.Errorf("line %d: got %q, wanted match for %q", i, lines[i], p)
		}
	}
}

func handlerScenario(archName string) *scenario {
	return &scenario{
		Arch:     archName,
		Restorer: 0x7000,
		Task:     taskConfig{IP: 0x400000, Return: true},
		Actions: []actionConfig{{
			Signal:      "USR1",
			Disposition: "handler",
			Handler:     0x401000,
			Flags:       []string{"SA_SIGINFO"},
			Mask:        []string{"INT"},
		}},
		Sends: []sendConfig{{Signal: "TERM"}, {Signal: "USR1"}},
	}
}

func TestRunScenarioHandler(t *testing.T) {
	for _, archName := range []string{"amd64", "arm64"} {
		t.Run(archName, func(t *testing.T) {
			var out bytes.Buffer
			if err := runScenario(handlerScenario(archName), &out); err != nil {
				t.Fatalf("runScenario: %v", err)
			}
			checkOutput(t, out.String(), []string{
				`send SIGTERM to thread`,
				`send SIGUSR1 to thread`,
				`handler SIGUSR1 ip=0x401000 sp=0x[0-9a-f]+ blocked=\{SIGINT, SIGUSR1\}`,
				`sigreturn ip=0x400000 sp=0x4ff00 blocked=\{\}`,
				`terminate SIGTERM`,
			})
		})
	}
}

func TestRunScenarioAltStack(t *testing.T) {
	sc := &scenario{
		Arch:     "arm64",
		Restorer: 0x7000,
		Memory:   memoryConfig{Base: 0x20000, Size: 0x10000},
		Task: taskConfig{
			IP:      0x400000,
			Blocked: []string{"USR2"},
			Return:  true,
		},
		AltStack: &altStack{Addr: 0x24000, Size: 0x4000},
		Actions: []actionConfig{{
			Signal:      "SIGUSR1",
			Disposition: "handler",
			Handler:     0x401000,
			Flags:       []string{"SA_ONSTACK"},
		}},
		Sends: []sendConfig{
			{Signal: "USR1"},
			{Signal: "RTMIN+1", Target: "process"},
		},
	}
	var out bytes.Buffer
	if err := runScenario(sc, &out); err != nil {
		t.Fatalf("runScenario: %v", err)
	}
	checkOutput(t, out.String(), []string{
		`send SIGUSR1 to thread`,
		`send SIGRTMIN\+1 to process`,
		`handler SIGUSR1 ip=0x401000 sp=0x2[4-7][0-9a-f]{3} blocked=\{SIGUSR1, SIGUSR2\}`,
		`sigreturn ip=0x400000 sp=0x2ff00 blocked=\{SIGUSR2\}`,
		`terminate SIGRTMIN\+1`,
	})
}

func TestRunScenarioBlockedAndIgnored(t *testing.T) {
	sc := &scenario{
		Arch:  "amd64",
		Task:  taskConfig{Blocked: []string{"USR2", "KILL"}},
		Sends: []sendConfig{{Signal: "USR2"}, {Signal: "CHLD"}, {Signal: "CONT"}},
	}
	var out bytes.Buffer
	if err := runScenario(sc, &out); err != nil {
		t.Fatalf("runScenario: %v", err)
	}
	want := `send SIGUSR2 to thread
send SIGCHLD to thread
send SIGCONT to thread
continue SIGCONT
idle blocked={SIGUSR2} pending={SIGUSR2}
`
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunScenarioBadStack(t *testing.T) {
	sc := handlerScenario("amd64")
	// Below the task's memory.
	sc.Task.SP = 0x1000
	sc.Sends = []sendConfig{{Signal: "USR1"}}
	var out bytes.Buffer
	if err := runScenario(sc, &out); err != nil {
		t.Fatalf("runScenario: %v", err)
	}
	want := "send SIGUSR1 to thread\ncoredump SIGSEGV\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunScenarioErrors(t *testing.T) {
	for name, sc := range map[string]*scenario{
		"arch":        {Arch: "mips"},
		"uncatchable": {Actions: []actionConfig{{Signal: "KILL", Disposition: "ignore"}}},
		"blocked":     {Task: taskConfig{Blocked: []string{"NOPE"}}},
		"altstack":    {AltStack: &altStack{Addr: 0x20000, Size: 16}},
		"target":      {Sends: []sendConfig{{Signal: "USR1", Target: "group"}}},
		"signal":      {Sends: []sendConfig{{Signal: "100"}}},
	} {
		t.Run(name, func(t *testing.T) {
			if err := runScenario(sc, &bytes.Buffer{}); err == nil {
				t.Errorf("runScenario: got nil error")
			}
		})
	}
}
