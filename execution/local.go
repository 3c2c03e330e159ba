// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/pkg/logging"
)

// LocalService runs every program in a fresh local interpreter process.
type LocalService struct {
	interpreter string
	args        []string
	env         map[string]string
}

// NewLocalService creates a local interpreter backend.
func NewLocalService(cfg config.LocalBackendConfig) *LocalService {
	return &LocalService{
		interpreter: cfg.GetInterpreter(),
		args:        cfg.Args,
		env:         cfg.Env,
	}
}

// Name returns the backend name.
func (l *LocalService) Name() string {
	return config.LOCAL
}

// Reset verifies that the interpreter can still be started.
// Every run uses a new process, so there is no interpreter state to clear.
func (l *LocalService) Reset(ctx context.Context) error {
	if _, err := exec.LookPath(l.interpreter); err != nil {
		return fmt.Errorf("%w: interpreter %q not found: %v", ErrServiceUnavailable, l.interpreter, err)
	}
	return nil
}

// Close does nothing; processes do not outlive their run.
func (l *LocalService) Close() error {
	return nil
}

// Execute runs program in a new interpreter process inside a temporary working directory.
func (l *LocalService) Execute(ctx context.Context, logger logging.Logger, program string, caps Capabilities) (Outcome, error) {
	workDir, err := os.MkdirTemp("", "codegrade-run-*")
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w: failed to create working directory: %v", ErrServiceUnavailable, ErrRetryable, err)
	}
	defer os.RemoveAll(workDir)

	harnessPath := filepath.Join(workDir, harnessFileName)
	programPath := filepath.Join(workDir, programFileName)
	if err := os.WriteFile(harnessPath, harnessScript, 0o600); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w: failed to write harness: %v", ErrServiceUnavailable, ErrRetryable, err)
	}
	if err := os.WriteFile(programPath, []byte(program), 0o600); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w: failed to write program: %v", ErrServiceUnavailable, ErrRetryable, err)
	}

	args := append(append([]string{}, l.args...), "-u", harnessPath, programPath)
	cmd := exec.CommandContext(ctx, l.interpreter, args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONDONTWRITEBYTECODE=1")
	for k, v := range l.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	toHarness, err := cmd.StdinPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to open interpreter stdin: %v", ErrServiceUnavailable, err)
	}
	fromHarness, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to open interpreter stdout: %v", ErrServiceUnavailable, err)
	}

	logger.Message(ctx, logging.LevelTrace, "starting %s %s", l.interpreter, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Outcome{}, fmt.Errorf("%w: interpreter %q not found", ErrServiceUnavailable, l.interpreter)
		}
		return Outcome{}, fmt.Errorf("%w: %w: failed to start interpreter: %v", ErrServiceUnavailable, ErrRetryable, err)
	}

	outcome := serve(ctx, logger, fromHarness, toHarness, caps)
	_ = toHarness.Close()
	if err := cmd.Wait(); err != nil {
		logger.Message(ctx, logging.LevelTrace, "interpreter exited: %v", err)
	}
	if stderr.Len() > 0 {
		logger.Message(ctx, logging.LevelDebug, "interpreter stderr:\n%s", logging.FormatLogOutput(stderr.String()))
	}

	return outcome, nil
}
