// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/pkg/logging"
	"github.com/petmal/codegrade/pkg/testutils"
)

func TestBackoffWithCallback(t *testing.T) {
	var callbackCalls []struct {
		attempt uint64
		delay   time.Duration
	}

	callback := func(nextRetryAttempt uint64, nextDelay time.Duration) {
		callbackCalls = append(callbackCalls, struct {
			attempt uint64
			delay   time.Duration
		}{nextRetryAttempt, nextDelay})
	}

	// Returns 3 delays then stops.
	baseBackoff := retry.BackoffFunc(func() (time.Duration, bool) {
		callCount := len(callbackCalls)
		if callCount >= 3 {
			return 0, true
		}
		return time.Duration(callCount+1) * time.Millisecond, false
	})

	backoff := BackoffWithCallback(callback, baseBackoff)

	for i := 0; i < 5; i++ {
		delay, stop := backoff.Next()
		if stop {
			break
		}
		assert.Equal(t, time.Duration(i+1)*time.Millisecond, delay)
	}

	assert.Len(t, callbackCalls, 3)
	for i, call := range callbackCalls {
		assert.Equal(t, uint64(i+1), call.attempt, "Call %d: expected attempt", i) //nolint:gosec
		assert.Equal(t, time.Duration(i+1)*time.Millisecond, call.delay, "Call %d: expected delay", i)
	}
}

func TestNewSession(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.ExecutionConfig
		wantTimeout time.Duration
		wantLimiter bool
	}{
		{
			name:        "defaults",
			cfg:         config.ExecutionConfig{Backend: config.LOCAL},
			wantTimeout: config.DefaultRunTimeout,
		},
		{
			name: "custom timeout with rate limiting",
			cfg: config.ExecutionConfig{
				Backend:                config.LOCAL,
				RunTimeout:             250 * time.Millisecond,
				MaxExecutionsPerMinute: 120,
			},
			wantTimeout: 250 * time.Millisecond,
			wantLimiter: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewScriptedService(nil)
			session := NewSession(service, tt.cfg)

			assert.Equal(t, tt.wantTimeout, session.timeout)
			assert.Equal(t, tt.wantLimiter, session.limiter != nil)
			assert.Equal(t, "scripted", session.ServiceName())

			require.NoError(t, session.Close())
			assert.True(t, service.Closed())
		})
	}
}

func greetingScript(ctx context.Context, env *ScriptEnv) error {
	name := env.Input("name")
	env.Print("Hello,", name)
	env.Print("You picked", env.Choice(3))
	return nil
}

func TestSessionRun(t *testing.T) {
	service := NewScriptedService(map[string]Script{"greet()": greetingScript})
	session := NewSession(service, config.ExecutionConfig{Backend: config.LOCAL})

	var printed []string
	outcome, err := session.Run(context.Background(), testutils.NewTestLogger(t), "greet()", Capabilities{
		Input:  func(name string) interface{} { return "Ada" },
		Choice: func(options int) int { return options },
		Print:  func(line string) { printed = append(printed, line) },
	})

	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome.Status)
	assert.True(t, outcome.Success())
	assert.Equal(t, "Hello, Ada\nYou picked 3\n", outcome.Output)
	assert.Equal(t, []string{"Hello, Ada", "You picked 3"}, printed)
	assert.Equal(t, 1, service.Resets())
	assert.Equal(t, int64(1), session.Executions())
	assert.Zero(t, session.ResetFailures())
}

func TestSessionRun_ProgramError(t *testing.T) {
	service := NewScriptedService(map[string]Script{
		"x": func(ctx context.Context, env *ScriptEnv) error {
			env.Print("before")
			return ScriptError{Message: "NameError: name 'y' is not defined", Line: 2}
		},
	})
	session := NewSession(service, config.ExecutionConfig{Backend: config.LOCAL})

	outcome, err := session.Run(context.Background(), testutils.NewTestLogger(t), "x", Capabilities{})

	require.NoError(t, err)
	assert.Equal(t, Outcome{
		Status:   Failed,
		Output:   "before\n",
		Error:    "NameError: name 'y' is not defined",
		Line:     2,
		Duration: outcome.Duration,
	}, outcome)
}

func TestSessionRun_ResetFailureIsNotFatal(t *testing.T) {
	service := NewScriptedService(map[string]Script{"greet()": greetingScript})
	service.ResetError = errors.New("interpreter state could not be cleared")
	session := NewSession(service, config.ExecutionConfig{Backend: config.LOCAL})
	logger := testutils.NewTestLogger(t)

	for i := 0; i < 2; i++ {
		outcome, err := session.Run(context.Background(), logger, "greet()", Capabilities{})
		require.NoError(t, err)
		assert.Equal(t, Succeeded, outcome.Status)
	}

	assert.Equal(t, int64(2), session.ResetFailures())
	assert.True(t, logger.HasMessage(logging.LevelWarn, "failed to reset the scripted execution environment"))
}

func TestSessionRun_Timeout(t *testing.T) {
	service := NewScriptedService(map[string]Script{
		"while True: pass": func(ctx context.Context, env *ScriptEnv) error {
			env.Print("spinning")
			<-ctx.Done()
			return ctx.Err()
		},
	})
	session := NewSession(service, config.ExecutionConfig{Backend: config.LOCAL, RunTimeout: 20 * time.Millisecond})

	outcome, err := session.Run(context.Background(), testutils.NewTestLogger(t), "while True: pass", Capabilities{})

	require.NoError(t, err)
	assert.Equal(t, TimedOut, outcome.Status)
	assert.False(t, outcome.Success())
	assert.Equal(t, "spinning\n", outcome.Output)
	assert.Equal(t, "TimeoutError: execution timed out after 20ms", outcome.Error)
}

func TestSessionRun_RetrySuccess(t *testing.T) {
	service := NewScriptedService(map[string]Script{"greet()": greetingScript})
	service.ExecuteErrors = []error{fmt.Errorf("%w: %w: container create failed", ErrServiceUnavailable, ErrRetryable)}
	session := NewSession(service, config.ExecutionConfig{
		Backend: config.DOCKER,
		RetryPolicy: &config.RetryPolicy{
			MaxRetryAttempts:    2,
			InitialDelaySeconds: 1,
		},
	})
	logger := testutils.NewTestLogger(t)

	restarts := 0
	outcome, err := session.Run(context.Background(), logger, "greet()", Capabilities{
		Input:   func(name string) interface{} { return "Grace" },
		Restart: func() { restarts++ },
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello, Grace\nYou picked 1\n", outcome.Output)
	assert.Equal(t, 2, service.Executions())
	assert.Equal(t, 2, restarts)
	assert.True(t, logger.HasMessage(logging.LevelInfo, "retrying execution 1/2"))
}

func TestSessionRun_RetryExhausted(t *testing.T) {
	transient := fmt.Errorf("%w: %w: container create failed", ErrServiceUnavailable, ErrRetryable)
	service := NewScriptedService(map[string]Script{"greet()": greetingScript})
	service.ExecuteErrors = []error{transient, transient, transient}
	session := NewSession(service, config.ExecutionConfig{
		Backend: config.DOCKER,
		RetryPolicy: &config.RetryPolicy{
			MaxRetryAttempts:    1,
			InitialDelaySeconds: 1,
		},
	})

	_, err := session.Run(context.Background(), testutils.NewTestLogger(t), "greet()", Capabilities{})

	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "container create failed")
	assert.Equal(t, 2, service.Executions())
}

func TestSessionRun_PermanentError(t *testing.T) {
	service := NewScriptedService(map[string]Script{"greet()": greetingScript})
	service.ExecuteErrors = []error{fmt.Errorf("%w: interpreter not found", ErrServiceUnavailable)}
	session := NewSession(service, config.ExecutionConfig{
		Backend:     config.LOCAL,
		RetryPolicy: &config.RetryPolicy{MaxRetryAttempts: 3, InitialDelaySeconds: 1},
	})

	_, err := session.Run(context.Background(), testutils.NewTestLogger(t), "greet()", Capabilities{})

	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, 1, service.Executions())
}

func TestSessionRun_CancelledContext(t *testing.T) {
	service := NewScriptedService(map[string]Script{"greet()": greetingScript})
	session := NewSession(service, config.ExecutionConfig{Backend: config.LOCAL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Run(ctx, testutils.NewTestLogger(t), "greet()", Capabilities{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, service.Executions())
}

func TestSessionRun_OneExecutionAtATime(t *testing.T) {
	service := NewScriptedService(map[string]Script{
		"slow()": func(ctx context.Context, env *ScriptEnv) error {
			time.Sleep(5 * time.Millisecond)
			env.Print("done")
			return nil
		},
	})
	session := NewSession(service, config.ExecutionConfig{Backend: config.LOCAL})
	logger := testutils.NewTestLogger(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := session.Run(context.Background(), logger, "slow()", Capabilities{})
			assert.NoError(t, err)
			assert.Equal(t, "done\n", outcome.Output)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, service.Executions())
	assert.Equal(t, 1, service.MaxConcurrent())
}

func TestNewService(t *testing.T) {
	service, err := NewService(context.Background(), config.ExecutionConfig{
		Backend:       config.LOCAL,
		BackendConfig: config.LocalBackendConfig{Interpreter: "python3.12"},
	})
	require.NoError(t, err)
	require.IsType(t, &LocalService{}, service)
	assert.Equal(t, "python3.12", service.(*LocalService).interpreter)

	_, err = NewService(context.Background(), config.ExecutionConfig{Backend: "wasm"})
	require.ErrorIs(t, err, ErrUnknownBackend)
}
