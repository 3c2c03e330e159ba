// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package execution

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/petmal/codegrade/pkg/logging"
)

// Script simulates a program. A returned error fails the run; use ScriptError to report a line number.
type Script func(ctx context.Context, env *ScriptEnv) error

// ScriptError is a program error raised by a Script.
type ScriptError struct {
	Message string
	Line    int
}

func (e ScriptError) Error() string {
	return e.Message
}

// ScriptEnv gives a Script access to the run capabilities.
type ScriptEnv struct {
	caps   Capabilities
	output strings.Builder
}

// Input requests a named input value.
func (e *ScriptEnv) Input(name string) interface{} {
	return e.caps.input(name)
}

// Choice requests a 1-based choice among options.
func (e *ScriptEnv) Choice(options int) int {
	return e.caps.choice(options)
}

// Print writes its arguments separated by spaces followed by a newline, rendering values the way Python's print does.
func (e *ScriptEnv) Print(values ...interface{}) {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = PythonString(v)
	}
	for _, line := range strings.Split(strings.Join(parts, " "), "\n") {
		e.output.WriteString(line)
		e.output.WriteString("\n")
		e.caps.print(line)
	}
}

// ScriptedService is an in-process Service that runs Go scripts in place of programs.
// Scripts are looked up by the exact program text.
type ScriptedService struct {
	// Scripts maps program text to its simulated behavior.
	Scripts map[string]Script
	// ExecuteErrors are returned, in order, by the first executions instead of running the script.
	ExecuteErrors []error
	// ResetError is returned by every Reset call.
	ResetError error

	mu          sync.Mutex
	executions  int
	resets      int
	programs    []string
	active      atomic.Int32
	maxActive   atomic.Int32
	closeCalled bool
}

// NewScriptedService creates a scripted backend for the given programs.
func NewScriptedService(scripts map[string]Script) *ScriptedService {
	return &ScriptedService{Scripts: scripts}
}

// Name returns the backend name.
func (s *ScriptedService) Name() string {
	return "scripted"
}

// Execute runs the script registered for program.
func (s *ScriptedService) Execute(ctx context.Context, logger logging.Logger, program string, caps Capabilities) (Outcome, error) {
	active := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		current := s.maxActive.Load()
		if active <= current || s.maxActive.CompareAndSwap(current, active) {
			break
		}
	}

	s.mu.Lock()
	call := s.executions
	s.executions++
	s.programs = append(s.programs, program)
	script, found := s.Scripts[program]
	var injected error
	if call < len(s.ExecuteErrors) {
		injected = s.ExecuteErrors[call]
	}
	s.mu.Unlock()

	if injected != nil {
		return Outcome{}, injected
	}
	if !found {
		return Outcome{Status: Failed, Error: "NameError: no script registered for program"}, nil
	}

	env := &ScriptEnv{caps: caps}
	if err := script(ctx, env); err != nil {
		outcome := Outcome{Status: Failed, Output: env.output.String(), Error: err.Error()}
		if scriptErr, ok := err.(ScriptError); ok {
			outcome.Line = scriptErr.Line
		}
		return outcome, nil
	}
	return Outcome{Status: Succeeded, Output: env.output.String()}, nil
}

// Reset counts the call and returns ResetError.
func (s *ScriptedService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return s.ResetError
}

// Close marks the service closed.
func (s *ScriptedService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalled = true
	return nil
}

// Executions returns the number of Execute calls.
func (s *ScriptedService) Executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions
}

// Resets returns the number of Reset calls.
func (s *ScriptedService) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Programs returns the executed program texts in call order.
func (s *ScriptedService) Programs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.programs...)
}

// MaxConcurrent returns the highest number of simultaneous Execute calls observed.
func (s *ScriptedService) MaxConcurrent() int {
	return int(s.maxActive.Load())
}

// Closed returns true once Close has been called.
func (s *ScriptedService) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalled
}

// PythonString renders a value the way Python's str() would for the value kinds CodeGrade exchanges.
func PythonString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		switch {
		case math.IsNaN(v):
			return "nan"
		case math.IsInf(v, 1):
			return "inf"
		case math.IsInf(v, -1):
			return "-inf"
		}
		if v == math.Trunc(v) && math.Abs(v) < 1e16 {
			return strconv.FormatFloat(v, 'f', 1, 64)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
