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
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/pkg/logging"
)

// BackoffWithCallback wraps a retry.Backoff with a callback function that is called
// before each retry attempt. The callback receives the next retry attempt number
// and the delay duration.
func BackoffWithCallback(onBackoff func(nextRetryAttempt uint64, nextDelay time.Duration), next retry.Backoff) retry.Backoff {
	var retryCounter uint64 = 0
	return retry.BackoffFunc(func() (nextDelay time.Duration, stop bool) {
		nextDelay, stop = next.Next()
		if stop {
			return
		}

		nextRetry := atomic.AddUint64(&retryCounter, 1)
		onBackoff(nextRetry, nextDelay)

		return
	})
}

// Session is the single interpreter handle shared by all runs of a grading job.
// It runs one program at a time and resets the environment before every run.
type Session struct {
	service     Service
	timeout     time.Duration
	retryPolicy *config.RetryPolicy
	limiter     *rate.Limiter

	mu            sync.Mutex
	resetFailures atomic.Int64
	executions    atomic.Int64
}

// NewSession creates a session that runs programs on service according to cfg.
func NewSession(service Service, cfg config.ExecutionConfig) *Session {
	var limiter *rate.Limiter
	if cfg.MaxExecutionsPerMinute > 0 {
		ratePerSecond := rate.Limit(cfg.MaxExecutionsPerMinute) / 60
		limiter = rate.NewLimiter(ratePerSecond, cfg.MaxExecutionsPerMinute) // allow a burst up to the per-minute limit
	}

	return &Session{
		service:     service,
		timeout:     cfg.GetRunTimeout(),
		retryPolicy: cfg.RetryPolicy,
		limiter:     limiter,
	}
}

// ServiceName returns the name of the underlying backend.
func (s *Session) ServiceName() string {
	return s.service.Name()
}

// ResetFailures returns how many environment resets have failed so far.
func (s *Session) ResetFailures() int64 {
	return s.resetFailures.Load()
}

// Executions returns how many programs the session has run so far, retries included.
func (s *Session) Executions() int64 {
	return s.executions.Load()
}

// Close releases the underlying backend.
func (s *Session) Close() error {
	return s.service.Close()
}

// Run executes program after resetting the environment.
// Program failures and timeouts are reported in the Outcome. The returned error wraps
// ErrServiceUnavailable when the backend could not run the program, or the context error
// when ctx is done.
func (s *Session) Run(ctx context.Context, logger logging.Logger, program string, caps Capabilities) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retryPolicy != nil && s.retryPolicy.MaxRetryAttempts > 0 {
		return s.runWithRetry(ctx, logger, program, caps)
	}
	return s.runOnce(ctx, logger, program, caps)
}

func (s *Session) runWithRetry(ctx context.Context, logger logging.Logger, program string, caps Capabilities) (Outcome, error) {
	backoff := retry.NewExponential(time.Duration(s.retryPolicy.InitialDelaySeconds) * time.Second)
	backoff = retry.WithMaxRetries(uint64(s.retryPolicy.MaxRetryAttempts), backoff)
	backoff = BackoffWithCallback(func(nextRetryAttempt uint64, nextDelay time.Duration) {
		logger.Message(ctx, logging.LevelInfo, "retrying execution %d/%d in %v",
			nextRetryAttempt, s.retryPolicy.MaxRetryAttempts, nextDelay)
	}, backoff)

	return retry.DoValue(ctx, backoff, func(ctx context.Context) (Outcome, error) {
		return s.runOnce(ctx, logger, program, caps)
	})
}

func (s *Session) runOnce(ctx context.Context, logger logging.Logger, program string, caps Capabilities) (outcome Outcome, err error) {
	if err = ctx.Err(); err != nil {
		logger.Error(ctx, logging.LevelWarn, err, "aborting execution")
		return
	}

	if s.limiter != nil {
		if err = s.limiter.Wait(ctx); err != nil {
			logger.Error(ctx, logging.LevelWarn, err, "aborting execution")
			return
		}
	}

	if resetErr := s.service.Reset(ctx); resetErr != nil {
		s.resetFailures.Add(1)
		logger.Error(ctx, logging.LevelWarn, resetErr, "failed to reset the %s execution environment", s.service.Name())
	}

	caps.restart()
	s.executions.Add(1)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	outcome, err = s.service.Execute(runCtx, logger, program, caps)
	outcome.Duration = time.Since(start)

	switch {
	case ctx.Err() != nil:
		return outcome, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		logger.Message(ctx, logging.LevelDebug, "execution timed out after %v", s.timeout)
		outcome.Status = TimedOut
		outcome.Error = fmt.Sprintf("TimeoutError: execution timed out after %v", s.timeout)
		outcome.Line = 0
		return outcome, nil
	case errors.Is(err, ErrRetryable):
		logger.Error(ctx, logging.LevelWarn, err, "execution encountered a transient error")
		return outcome, retry.RetryableError(err)
	case err != nil:
		return outcome, err
	}

	logger.Message(ctx, logging.LevelTrace, "execution %s in %v", outcome.Status, outcome.Duration)
	return outcome, nil
}
