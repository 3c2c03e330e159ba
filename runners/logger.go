// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package runners

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/petmal/codegrade/pkg/logging"
	"github.com/rs/zerolog"
)

// EmittingLogger implements the logging.Logger interface on top of zerolog and
// additionally publishes every message enabled by the logger level as a grading job event.
type EmittingLogger struct {
	logger  zerolog.Logger
	emitter eventEmitter
	prefix  string
}

// NewEmittingLogger creates a new EmittingLogger that writes to logger and publishes to emitter.
func NewEmittingLogger(logger zerolog.Logger, emitter eventEmitter) logging.Logger {
	return &EmittingLogger{
		logger:  logger,
		emitter: emitter,
	}
}

// Message logs a message at the specified level with optional format arguments.
func (l *EmittingLogger) Message(ctx context.Context, level slog.Level, msg string, args ...any) {
	l.emit(level, nil, msg, args...)
}

// Error logs an error at the specified level with optional format arguments.
// The published event carries the message only.
func (l *EmittingLogger) Error(ctx context.Context, level slog.Level, err error, msg string, args ...any) {
	l.emit(level, err, msg, args...)
}

// WithContext returns a new Logger that appends the specified context to the existing prefix.
func (l *EmittingLogger) WithContext(context string) logging.Logger {
	return &EmittingLogger{
		logger:  l.logger,
		emitter: l.emitter,
		prefix:  l.prefix + context,
	}
}

func (l *EmittingLogger) emit(level slog.Level, err error, msg string, args ...any) {
	zerologLevel := toZerologLevel(level)
	if zerologLevel < l.logger.GetLevel() {
		return
	}

	formattedMsg := l.prefix + fmt.Sprintf(msg, args...)
	event := l.logger.WithLevel(zerologLevel)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(formattedMsg)
	l.emitter.emitMessageEvent(formattedMsg)
}

// toZerologLevel maps a slog level, including logging.LevelTrace, to a zerolog level.
func toZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < logging.LevelDebug:
		return zerolog.TraceLevel
	case level < logging.LevelInfo:
		return zerolog.DebugLevel
	case level < logging.LevelWarn:
		return zerolog.InfoLevel
	case level < logging.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
