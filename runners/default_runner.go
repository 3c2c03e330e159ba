// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package runners

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/difftest"
	"github.com/petmal/codegrade/execution"
	"github.com/petmal/codegrade/pkg/logging"
	"github.com/petmal/codegrade/validators"
)

const (
	progressBufferSize = 1
	messageBufferSize  = 64
)

// eventEmitter receives events of a running grading job.
type eventEmitter interface {
	// emitProgressEvent marks one more submission as finished.
	emitProgressEvent()
	// emitMessageEvent publishes a log message.
	emitMessageEvent(message string)
}

// NewDefaultRunner creates a new Runner that grades submissions sequentially on a single
// session of the configured execution backend.
// It returns an error if the backend cannot be initialized.
func NewDefaultRunner(ctx context.Context, executionConfig config.ExecutionConfig, grading config.GradingConfig, logger zerolog.Logger) (Runner, error) {
	service, err := newService(ctx, executionConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize grading runner: %w", err)
	}
	return NewRunner(service, executionConfig, grading, logger), nil
}

var newService = execution.NewService

// NewRunner creates a new Runner that grades submissions on an already initialized execution service.
// The runner takes ownership of the service and closes it on Close.
func NewRunner(service execution.Service, executionConfig config.ExecutionConfig, grading config.GradingConfig, logger zerolog.Logger) Runner {
	return newDefaultRunner(service, executionConfig, grading, logger)
}

func newDefaultRunner(service execution.Service, executionConfig config.ExecutionConfig, grading config.GradingConfig, logger zerolog.Logger) *defaultRunner {
	session := execution.NewSession(service, executionConfig)
	differential := difftest.NewRunner(session)
	return &defaultRunner{
		session:      session,
		differential: differential,
		validator: validators.NewValidator(differential, validators.Options{
			StrictRules:    grading.StrictRules,
			DefaultMaxRuns: grading.GetDefaultMaxRuns(),
		}),
		logger: logger,
	}
}

type defaultRunner struct {
	session      *execution.Session // All submissions are graded one at a time on this session.
	differential *difftest.Runner
	validator    *validators.Validator
	logger       zerolog.Logger
}

// job is a problem to grade together with its submission, if any.
type job struct {
	problem    config.Problem
	submission *config.Submission
}

func (r *defaultRunner) Run(ctx context.Context, problems []config.Problem, submissions []config.Submission) (ResultSet, error) {
	jobs := r.plan(problems, submissions)
	results := newResultSet(len(jobs), func() {}, false)
	defer results.finish()
	return results, r.grade(ctx, results, jobs)
}

func (r *defaultRunner) Start(ctx context.Context, problems []config.Problem, submissions []config.Submission) (AsyncResultSet, error) {
	jobs := r.plan(problems, submissions)
	ctx, cancel := context.WithCancel(ctx)
	results := newResultSet(len(jobs), cancel, true)
	go func() {
		defer results.finish()
		if err := r.grade(ctx, results, jobs); err != nil {
			r.logger.Warn().Err(err).Msg("grading stopped before all submissions were graded")
		}
	}()
	return results, nil
}

// plan pairs problems with their submissions in worksheet order.
// Submissions for problems that are not listed are ignored.
func (r *defaultRunner) plan(problems []config.Problem, submissions []config.Submission) []job {
	byProblem := make(map[string]*config.Submission, len(submissions))
	for i := range submissions {
		byProblem[submissions[i].ProblemID] = &submissions[i]
	}

	jobs := make([]job, 0, len(problems))
	for _, problem := range problems {
		jobs = append(jobs, job{problem: problem, submission: byProblem[problem.ID]})
		delete(byProblem, problem.ID)
	}
	for problemID, submission := range byProblem {
		r.logger.Warn().Msgf("%s: no enabled problem '%s' in the worksheet, submission ignored.", submission.Path, problemID)
	}
	return jobs
}

func (r *defaultRunner) grade(ctx context.Context, results *resultSet, jobs []job) error {
	backend := r.session.ServiceName()
	logger := NewEmittingLogger(r.logger, results).WithContext(backend + ": ")
	logger.Message(ctx, logging.LevelInfo, "grading %d problem%s...", pluralize(countable(len(jobs)))...)
	start := time.Now()
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("grading aborted: %w", err)
		}

		runResult := RunResult{Backend: backend, Problem: j.problem.ID, Title: j.problem.Title}
		jobLogger := logger.WithContext(j.problem.ID + ": ")
		if j.submission == nil {
			runResult.Kind = Skipped
			jobLogger.Message(ctx, logging.LevelInfo, "no submission, skipping.")
		} else {
			jobLogger.Message(ctx, logging.LevelInfo, "grading %s...", j.submission.Path)
			r.gradeSubmission(ctx, jobLogger, j.problem, *j.submission, &runResult)
			jobLogger.Message(ctx, logging.LevelInfo, "graded in %s.", runResult.Duration)
		}
		results.appendResult(runResult)
		results.emitProgressEvent()
	}
	logger.Message(ctx, logging.LevelInfo, "all problems have been graded in %s.", time.Since(start))
	logger.Message(ctx, logging.LevelDebug, "%d execution%s, %d failed environment reset%s.",
		pluralize(countable(r.session.Executions()), countable(r.session.ResetFailures()))...)
	return nil
}

func (r *defaultRunner) gradeSubmission(ctx context.Context, logger logging.Logger, problem config.Problem, submission config.Submission, runResult *RunResult) {
	runResult.TraceID = uuid.NewString()
	runResult.Submission = submission.Path
	logger.Message(ctx, logging.LevelDebug, "trace id: %s", runResult.TraceID)

	start := time.Now()
	defer func() {
		runResult.Duration = time.Since(start)
		if p := recover(); p != nil {
			runResult.Kind = Error
			runResult.Details = fmt.Sprintf("%v", p)
		}
	}()

	run, err := r.differential.Preview(ctx, logger, submission.Code, problem)
	if err != nil {
		runResult.Kind = Error
		runResult.Details = err.Error()
		logger.Error(ctx, logging.LevelError, err, "failed to run the submission")
		return
	}
	runResult.Got = validators.Transcript(run.Outcome)
	logger.Message(ctx, logging.LevelTrace, "console output:\n%s", logging.FormatLogText([]string{runResult.Got}))

	verdict, err := r.validator.Validate(ctx, logger, submission.Code, runResult.Got, problem)
	if err != nil {
		runResult.Kind = Error
		runResult.Details = err.Error()
		logger.Error(ctx, logging.LevelError, err, "failed to grade the submission")
		return
	}
	runResult.Verdict = verdict
	if verdict.IsValid {
		runResult.Kind = Success
	} else {
		runResult.Kind = Failure
		logger.Message(ctx, logging.LevelDebug, "rejected: %s", verdict.Kind)
	}
}

func (r *defaultRunner) Close(ctx context.Context) {
	if err := r.session.Close(); err != nil {
		r.logger.Warn().Err(err).Msgf("%s: failed to close execution backend", r.session.ServiceName())
	}
}

// resultSet collects results of a grading job and publishes its events.
type resultSet struct {
	cancel   context.CancelFunc
	done     chan struct{}
	progress chan float32
	messages chan string

	mu       sync.RWMutex
	results  Results
	total    int
	finished int
}

func newResultSet(total int, cancel context.CancelFunc, withEvents bool) *resultSet {
	rs := &resultSet{
		cancel:  cancel,
		done:    make(chan struct{}),
		results: make(Results),
		total:   total,
	}
	if withEvents {
		rs.progress = make(chan float32, progressBufferSize)
		rs.messages = make(chan string, messageBufferSize)
	}
	return rs
}

func (s *resultSet) appendResult(result RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.Backend] = append(s.results[result.Backend], result)
}

// emitProgressEvent never blocks; events are dropped while the consumer is behind.
func (s *resultSet) emitProgressEvent() {
	s.mu.Lock()
	s.finished++
	progress := float32(1)
	if s.total > 0 {
		progress = float32(s.finished) / float32(s.total)
	}
	s.mu.Unlock()

	select {
	case s.progress <- progress:
	default:
	}
}

func (s *resultSet) emitMessageEvent(message string) {
	select {
	case s.messages <- message:
	default:
	}
}

func (s *resultSet) finish() {
	if s.progress != nil {
		close(s.progress)
		close(s.messages)
	}
	s.cancel()
	close(s.done)
}

func (s *resultSet) GetResults() Results {
	<-s.done
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results
}

func (s *resultSet) ProgressEvents() <-chan float32 {
	return s.progress
}

func (s *resultSet) MessageEvents() <-chan string {
	return s.messages
}

func (s *resultSet) Cancel() {
	s.cancel()
}

type countable int64

func pluralize(tokens ...any) []interface{} {
	pluralized := make([]interface{}, 0, 2*len(tokens))
	for _, token := range tokens {
		pluralized = append(pluralized, token)
		if v, ok := any(token).(countable); ok {
			switch v {
			case 1:
				pluralized = append(pluralized, "")
			default:
				pluralized = append(pluralized, "s")
			}
		}
	}

	return pluralized
}
