// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package testutils

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/petmal/codegrade/pkg/logging"
	"github.com/rs/zerolog"
)

// TestLogger routes log messages through zerolog's test writer so they are
// attached to the running test. It also records every formatted message so
// tests can assert on warnings emitted by the code under test.
type TestLogger struct {
	logger   zerolog.Logger
	prefix   string
	recorder *messageRecorder
}

type messageRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *messageRecorder) record(level slog.Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, level.String()+" "+msg)
}

// NewTestLogger creates a TestLogger bound to t.
func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{
		logger:   zerolog.New(zerolog.NewTestWriter(t)),
		recorder: &messageRecorder{},
	}
}

// Messages returns all messages logged so far, each prefixed with its level name.
func (tl *TestLogger) Messages() []string {
	tl.recorder.mu.Lock()
	defer tl.recorder.mu.Unlock()
	return slices.Clone(tl.recorder.messages)
}

// HasMessage reports whether any logged message at level contains substr.
func (tl *TestLogger) HasMessage(level slog.Level, substr string) bool {
	return slices.ContainsFunc(tl.Messages(), func(msg string) bool {
		return strings.HasPrefix(msg, level.String()+" ") && strings.Contains(msg, substr)
	})
}

// getEvent maps slog levels to zerolog events.
func (tl *TestLogger) getEvent(level slog.Level) *zerolog.Event {
	switch {
	case level < slog.LevelDebug:
		return tl.logger.Trace()
	case level < slog.LevelInfo:
		return tl.logger.Debug()
	case level < slog.LevelWarn:
		return tl.logger.Info()
	case level < slog.LevelError:
		return tl.logger.Warn()
	default:
		return tl.logger.Error()
	}
}

// Message logs a message at the specified level with optional formatting arguments.
func (tl *TestLogger) Message(ctx context.Context, level slog.Level, msg string, args ...any) {
	formattedMsg := fmt.Sprintf(msg, args...)
	formattedMsg = tl.prefix + formattedMsg
	tl.recorder.record(level, formattedMsg)
	tl.getEvent(level).Msg(formattedMsg)
}

// Error logs an error message at the specified level with optional formatting arguments.
func (tl *TestLogger) Error(ctx context.Context, level slog.Level, err error, msg string, args ...any) {
	formattedMsg := fmt.Sprintf(msg, args...)
	formattedMsg = tl.prefix + formattedMsg
	tl.recorder.record(level, formattedMsg)
	tl.getEvent(level).Err(err).Msg(formattedMsg)
}

// WithContext returns a new logger with additional context.
// The context string will be prepended to all log messages from the returned logger.
func (tl *TestLogger) WithContext(context string) logging.Logger {
	newPrefix := tl.prefix + context
	return &TestLogger{
		logger:   tl.logger,
		prefix:   newPrefix,
		recorder: tl.recorder,
	}
}
