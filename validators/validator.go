// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package validators grades a learner's answer to a worksheet problem.
// It runs sanity checks on the code and captured output, evaluates the problem's
// validation rules in order and explains differential test failures.
package validators

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/difftest"
	"github.com/petmal/codegrade/execution"
	"github.com/petmal/codegrade/pkg/logging"
)

// ErrValidation is returned when an answer cannot be graded because of an infrastructure fault.
var ErrValidation = errors.New("validation failed")

const (
	minCodeCharacters      = 3
	minBasicCodeCharacters = 11
	programFrame           = `File "<program>"`
	legacyProgramFrame     = "<exec>"
)

// pythonErrorTypes in the captured output fail the answer before any rule is evaluated.
var pythonErrorTypes = []string{"NameError", "SyntaxError", "TypeError", "AttributeError", "IndentationError", "ZeroDivisionError"}

var lineNumberRegex = regexp.MustCompile(`line (\d+)`)

// Verdict is the result of grading an answer.
type Verdict struct {
	// IsValid is true if the answer is accepted.
	IsValid bool `json:"isValid" yaml:"isValid"`
	// Kind identifies why the answer was rejected; empty for accepted answers.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`
	// Message is the feedback shown to the learner.
	Message string `json:"message" yaml:"message"`
	// Details lists every failed pairing of a differential test.
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
	// Hint is optional secondary feedback.
	Hint string `json:"hint,omitempty" yaml:"hint,omitempty"`
	// Expected is the expected output of the first failed differential test pairing.
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	// Actual is the learner's output of the first failed differential test pairing.
	Actual string `json:"actual,omitempty" yaml:"actual,omitempty"`
	// Diff is a patch from Expected to Actual.
	Diff string `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// Options control rule evaluation.
type Options struct {
	// StrictRules makes rules of unknown type fail instead of being skipped.
	StrictRules bool
	// DefaultMaxRuns is the number of seeded runs of solution_code rules that do not set maxRuns.
	DefaultMaxRuns int
}

// Validator grades answers.
type Validator struct {
	runner  *difftest.Runner
	options Options
}

// NewValidator creates a Validator. A nil runner makes every solution_code rule report
// that solution checking is unavailable.
func NewValidator(runner *difftest.Runner, options Options) *Validator {
	if options.DefaultMaxRuns < 1 {
		options.DefaultMaxRuns = config.DefaultMaxRuns
	}
	return &Validator{runner: runner, options: options}
}

// Validate grades code and its captured output against the problem.
// Every answer failure is reported in the Verdict; the returned error wraps ErrValidation
// and is reserved for execution infrastructure faults and context cancellation.
func (v *Validator) Validate(ctx context.Context, logger logging.Logger, code string, output string, problem config.Problem) (Verdict, error) {
	stripped := StripComments(code)
	if countNonSpace(stripped) < minCodeCharacters {
		return Verdict{Kind: KindInsufficientCode, Message: insufficientCodeMessage}, nil
	}

	if hasPythonError(output) {
		message := pythonErrorMessage
		if info := ExtractErrorInfo(output); info != "" {
			message += "\n" + info
		}
		return Verdict{Kind: KindPythonError, Message: message}, nil
	}

	rules := problem.Rules()
	if len(rules) == 0 {
		if utf8.RuneCountInString(stripped) >= minBasicCodeCharacters && strings.TrimSpace(output) != "" {
			return Verdict{IsValid: true, Message: correctMessage}, nil
		}
		return Verdict{Kind: KindBasicValidationFailed, Message: notQuiteRightMessage}, nil
	}

	for i, rule := range rules {
		result, err := v.Evaluate(ctx, logger, code, output, rule, problem)
		if err != nil {
			return Verdict{}, fmt.Errorf("%w: problem '%s' rule %d (%s): %w", ErrValidation, problem.ID, i+1, rule.Type, err)
		}
		if !result.Passed {
			logger.Message(ctx, logging.LevelDebug, "rule %d (%s) failed: %s", i+1, rule.Type, result.Kind)
			return toVerdict(result), nil
		}
	}

	return Verdict{IsValid: true, Message: correctMessage}, nil
}

func toVerdict(result RuleResult) Verdict {
	verdict := Verdict{Kind: result.Kind, Message: result.Message, Hint: result.Hint}
	if result.Explanation != nil {
		verdict.Details = result.Explanation.Details
		verdict.Expected = result.Explanation.Expected
		verdict.Actual = result.Explanation.Actual
		verdict.Diff = result.Explanation.Diff
	}
	return verdict
}

func hasPythonError(output string) bool {
	for _, errorType := range pythonErrorTypes {
		if strings.Contains(output, errorType) {
			return true
		}
	}
	return false
}

// ExtractErrorInfo returns "ErrorType: message (on line N)" from a traceback in output,
// or an empty string when output carries no traceback.
func ExtractErrorInfo(output string) string {
	if !strings.Contains(output, "Traceback") {
		return ""
	}

	var errorLine, lineNumber string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, programFrame) || strings.Contains(line, legacyProgramFrame) {
			if match := lineNumberRegex.FindStringSubmatch(line); match != nil {
				lineNumber = match[1]
			}
		}
		if strings.Contains(line, "Error:") {
			errorLine = strings.TrimSpace(line)
		}
	}
	if errorLine == "" {
		return ""
	}
	if lineNumber != "" {
		return fmt.Sprintf("%s (on line %s)", errorLine, lineNumber)
	}
	return errorLine
}

// Transcript renders an execution outcome as a console would show it: the printed
// output followed by a traceback when the program failed.
func Transcript(outcome execution.Outcome) string {
	if outcome.Status == execution.Succeeded || outcome.Error == "" {
		return outcome.Output
	}

	var buff strings.Builder
	buff.WriteString(outcome.Output)
	buff.WriteString("Traceback (most recent call last):\n")
	if outcome.Line > 0 {
		fmt.Fprintf(&buff, "  %s, line %d, in <module>\n", programFrame, outcome.Line)
	}
	buff.WriteString(outcome.Error)
	buff.WriteString("\n")
	return buff.String()
}
