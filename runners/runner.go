// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package runners grades student submissions against worksheet problems and collects the results.
package runners

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/validators"
)

// Success indicates that the answer was accepted.
// Failure indicates that the answer was graded and rejected.
// Error indicates that the answer could not be graded.
// Skipped indicates that no submission was found for the problem.
const (
	Success ResultKind = iota
	Failure
	Error
	Skipped
)

const runResultIDPrefix = "grade"

var validIDCharMatcher = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ResultKind represents the grading result status.
type ResultKind int

// Runner grades submissions on a configured execution backend.
type Runner interface {
	// Run grades the submissions against the problems and returns when done.
	Run(ctx context.Context, problems []config.Problem, submissions []config.Submission) (ResultSet, error)
	// Start grades the submissions in the background and returns immediately.
	Start(ctx context.Context, problems []config.Problem, submissions []config.Submission) (AsyncResultSet, error)
	// Close releases resources when the runner is no longer needed.
	Close(ctx context.Context)
}

// ResultSet gives access to the results of a grading job.
type ResultSet interface {
	// GetResults returns the results, blocking until the job is finished.
	GetResults() Results
}

// AsyncResultSet is a ResultSet of a job running in the background.
type AsyncResultSet interface {
	ResultSet
	// ProgressEvents reports the completed fraction of the job between 0.0 and 1.0.
	// The channel is closed when the job is finished.
	ProgressEvents() <-chan float32
	// MessageEvents carries log messages of the job.
	// The channel is closed when the job is finished.
	MessageEvents() <-chan string
	// Cancel stops the job. Results of finished submissions are kept.
	Cancel()
}

// Results stores grading results for each execution backend.
type Results map[string][]RunResult

// BackendResultsByKind groups the results of a backend by result kind.
func (r Results) BackendResultsByKind(backend string) map[ResultKind][]RunResult {
	resultsByKind := make(map[ResultKind][]RunResult)
	for _, result := range r[backend] {
		resultsByKind[result.Kind] = append(resultsByKind[result.Kind], result)
	}
	return resultsByKind
}

// RunResult represents the outcome of grading a single submission.
type RunResult struct {
	// TraceID identifies the grading in log messages.
	TraceID string
	// Kind indicates the result status.
	Kind ResultKind
	// Problem is the ID of the graded problem.
	Problem string
	// Title is the display name of the problem.
	Title string
	// Submission is the path of the graded program file.
	Submission string
	// Backend is the name of the execution backend.
	Backend string
	// Got is the console output of the learner program.
	Got string
	// Verdict is the grading verdict; it is empty for errors and skipped problems.
	Verdict validators.Verdict
	// Details contains the error message of results that could not be graded.
	Details string
	// Duration is the time taken to grade the submission.
	Duration time.Duration
}

// Feedback returns the text shown to the learner for the result.
func (r RunResult) Feedback() string {
	switch r.Kind {
	case Error:
		return r.Details
	case Skipped:
		return "No submission."
	}
	return r.Verdict.Message
}

// GetID generates a unique, sanitized identifier for the RunResult.
// The ID must be non-empty, must not contain whitespace, must begin with a letter,
// and must only include letters, digits, dashes (-), and underscores (_).
func (r RunResult) GetID() (sanitizedID string) {
	uniqueID := fmt.Sprintf("%s-%s-%s", runResultIDPrefix, r.Backend, r.Problem)
	sanitizedID = strings.ReplaceAll(uniqueID, " ", "-")
	sanitizedID = validIDCharMatcher.ReplaceAllString(sanitizedID, "_")
	return sanitizedID
}
