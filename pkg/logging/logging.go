// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package logging defines the leveled logger used across CodeGrade together with
// helpers that render program text and captured output for log messages.
package logging

import (
	"context"
	"log/slog"
	"strings"
)

// Logging levels shared by all Logger implementations.
const (
	LevelTrace = slog.Level(-8) // program text and raw harness traffic
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// UnknownLogValue is logged in place of missing or empty values.
const UnknownLogValue = "<unknown>"

// Logger is a leveled, prefix-aware logger in the style of slog.
type Logger interface {
	// Message logs a formatted message at the given level.
	Message(ctx context.Context, level slog.Level, msg string, args ...any)

	// Error logs err together with a formatted message at the given level.
	Error(ctx context.Context, level slog.Level, err error, msg string, args ...any)

	// WithContext returns a Logger whose prefix is extended by context.
	// The receiver is left unchanged.
	WithContext(context string) Logger
}

// FormatLogText joins text blocks for logging, indenting each block with a tab
// and separating blocks with a blank line.
func FormatLogText(blocks []string) string {
	if len(blocks) > 0 {
		return "\t" + strings.Join(blocks, "\n\n\t")
	}
	return "\t" + UnknownLogValue
}

// FormatLogOutput indents every line of captured program output with a tab.
// Blank output is rendered as a placeholder.
func FormatLogOutput(output string) string {
	trimmed := strings.TrimRight(output, "\r\n")
	if strings.TrimSpace(trimmed) == "" {
		return "\t" + UnknownLogValue
	}
	lines := strings.Split(trimmed, "\n")
	return "\t" + strings.Join(lines, "\n\t")
}
