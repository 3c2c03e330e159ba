// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package execution runs learner and reference programs for CodeGrade.
// A Service runs one program at a time with injected input, choice and output capabilities.
// A Session wraps a Service with per-run timeouts, environment resets, rate limiting and
// retries of transient backend faults.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/pkg/logging"
)

var (
	// ErrServiceUnavailable indicates that the execution backend could not run the program at all.
	// It is an infrastructure fault, never a verdict about the program.
	ErrServiceUnavailable = errors.New("execution service unavailable")
	// ErrRetryable marks a backend fault that may succeed when attempted again.
	ErrRetryable = errors.New("retryable execution error")
	// ErrUnknownBackend is returned for an execution backend that is not supported.
	ErrUnknownBackend = errors.New("unknown execution backend")
)

// Status is the terminal state of a program run.
type Status string

const (
	// Succeeded means the program ran to completion.
	Succeeded Status = "succeeded"
	// Failed means the program raised an error.
	Failed Status = "failed"
	// TimedOut means the run exceeded its time budget and was stopped.
	TimedOut Status = "timed out"
)

// Outcome is the result of running a single program.
type Outcome struct {
	// Status is the terminal state of the run.
	Status Status
	// Output is the captured output; every printed line is followed by a newline.
	Output string
	// Error is the error text in "ErrorType: message" form for failed and timed out runs.
	Error string
	// Line is the 1-based program line the error was raised on, or 0 when unknown.
	Line int
	// Duration is the wall-clock time the run took.
	Duration time.Duration
}

// Success returns true if the program ran to completion.
func (o Outcome) Success() bool {
	return o.Status == Succeeded
}

// Capabilities are the callbacks a running program uses to talk to its host.
// They are supplied fresh for every run.
type Capabilities struct {
	// Input answers get_input(name). An anonymous request passes an empty name.
	Input func(name string) interface{}
	// Choice answers get_choice(n) with a 1-based option index.
	Choice func(options int) int
	// Print receives every completed output line. It is optional.
	Print func(line string)
	// Restart is called before every attempt so that traces of an abandoned attempt can be discarded.
	// It is optional.
	Restart func()
}

func (c Capabilities) input(name string) interface{} {
	if c.Input == nil {
		return nil
	}
	return c.Input(name)
}

func (c Capabilities) choice(options int) int {
	if c.Choice == nil {
		return 1
	}
	return c.Choice(options)
}

func (c Capabilities) print(line string) {
	if c.Print != nil {
		c.Print(line)
	}
}

func (c Capabilities) restart() {
	if c.Restart != nil {
		c.Restart()
	}
}

// Service runs programs in an isolated interpreter.
type Service interface {
	// Name returns the backend name.
	Name() string
	// Execute runs program with the given capabilities.
	// Program errors are reported in the Outcome; the returned error is reserved
	// for infrastructure faults and wraps ErrServiceUnavailable.
	Execute(ctx context.Context, logger logging.Logger, program string, caps Capabilities) (Outcome, error)
	// Reset clears any state a previous run could have left behind.
	Reset(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// NewService creates the execution backend selected in cfg.
func NewService(ctx context.Context, cfg config.ExecutionConfig) (Service, error) {
	switch cfg.Backend {
	case config.LOCAL:
		backendCfg, _ := cfg.BackendConfig.(config.LocalBackendConfig)
		return NewLocalService(backendCfg), nil
	case config.DOCKER:
		backendCfg, _ := cfg.BackendConfig.(config.DockerBackendConfig)
		service, err := NewDockerService(backendCfg)
		if err != nil {
			return nil, err
		}
		if err := service.ValidateImage(ctx); err != nil {
			_ = service.Close()
			return nil, err
		}
		return service, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
}
