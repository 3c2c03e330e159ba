// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validators

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/difftest"
	"github.com/petmal/codegrade/pkg/logging"
	"github.com/petmal/codegrade/pkg/utils"
)

var (
	commentRegex        = regexp.MustCompile(`(?m)#.*$`)
	intCallRegex        = regexp.MustCompile(`\bint\s*\(`)
	numericPatternRegex = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	wholeDecimalRegex   = regexp.MustCompile(`^\d+\.0$`)
)

// intCallPattern is matched as a call of int() rather than as a plain substring.
const intCallPattern = "int("

// RuleResult is the outcome of evaluating a single rule.
type RuleResult struct {
	// Passed is true if the submission satisfies the rule.
	Passed bool
	// Kind is the verdict kind reported when the rule fails.
	Kind string
	// Message is the feedback shown when the rule fails.
	Message string
	// Hint is optional secondary feedback.
	Hint string
	// Explanation describes differential test failures of solution_code rules.
	Explanation *Explanation
}

// Evaluate checks one rule against the submitted code and its captured output.
// The returned error is reserved for execution infrastructure faults of solution_code rules.
func (v *Validator) Evaluate(ctx context.Context, logger logging.Logger, code string, output string, rule config.Rule, problem config.Problem) (RuleResult, error) {
	var passed bool
	var err error

	switch rule.Type {
	case config.CodeContains:
		passed = codeContains(code, rule.Pattern)
	case config.CodeContainsRegex:
		passed, err = matchesRegex(code, rule.Pattern, true)
	case config.OutputContains:
		passed, err = outputContains(output, rule.Pattern)
	case config.OutputContainsRegex:
		passed, err = matchesRegex(output, rule.Pattern, true)
	case config.CodeMinLength:
		passed = utf8.RuneCountInString(StripComments(code)) >= rule.MinLength
	case config.OutputNotEmpty:
		passed = strings.TrimSpace(output) != ""
	case config.NoErrors:
		passed = !strings.Contains(output, "Error") && !strings.Contains(output, "Traceback")
	case config.PrintCount:
		passed = utils.CountOccurrences(code, "print(") >= rule.MinCount
	case config.OutputLineCount:
		passed = len(nonBlankLines(output)) >= rule.MinLines
	case config.CodeContainsNumber:
		passed, err = matchesRegex(code, rule.Pattern, false)
	case config.OutputIsNumber:
		passed = isNumber(output)
	case config.AssignmentCount:
		passed = utils.CountOccurrences(code, "=") >= rule.MinCount
	case config.InputCount:
		passed = utils.CountOccurrences(code, "input(") >= rule.MinCount
	case config.SolutionCode:
		return v.evaluateSolutionCode(ctx, logger, code, rule, problem)
	default:
		// Unknown rule types are lenient: they pass unless StrictRules is set.
		return v.evaluateUnknown(ctx, logger, rule), nil
	}

	if err != nil {
		logger.Error(ctx, logging.LevelWarn, err, "rule '%s' cannot be evaluated", rule.Type)
		passed = false
	}
	if passed {
		return RuleResult{Passed: true}, nil
	}
	return staticRuleFailure(rule, output), nil
}

func (v *Validator) evaluateUnknown(ctx context.Context, logger logging.Logger, rule config.Rule) RuleResult {
	if v.options.StrictRules {
		logger.Message(ctx, logging.LevelWarn, "unknown validation rule type '%s' fails in strict mode", rule.Type)
		return RuleResult{
			Kind:    KindUnknownRuleFailed,
			Message: ruleMessage(rule, fmt.Sprintf(unknownRuleTemplate, rule.Type)),
		}
	}
	logger.Message(ctx, logging.LevelWarn, "unknown validation rule type '%s' is skipped", rule.Type)
	return RuleResult{Passed: true}
}

func (v *Validator) evaluateSolutionCode(ctx context.Context, logger logging.Logger, code string, rule config.Rule, problem config.Problem) (RuleResult, error) {
	if strings.TrimSpace(rule.SolutionCode) == "" {
		logger.Message(ctx, logging.LevelWarn, "solution code is not provided for the %s rule", rule.Type)
		return RuleResult{Kind: KindSolutionCodeFailed, Message: ruleMessage(rule, missingSolutionMessage)}, nil
	}
	if v.runner == nil {
		return RuleResult{Kind: KindSolutionCodeUnavailable, Message: solutionUnavailableMessage}, nil
	}

	maxRuns := rule.MaxRuns
	if maxRuns < 1 {
		maxRuns = v.options.DefaultMaxRuns
	}
	results, err := v.runner.Run(ctx, logger, difftest.Request{
		StudentCode:       code,
		ReferenceCode:     rule.SolutionCode,
		Problem:           problem,
		MaxRuns:           maxRuns,
		Fixtures:          rule.TestInputs,
		UseDeclaredValues: rule.IsUseDeclaredValues(),
	})
	if err != nil {
		return RuleResult{}, err
	}

	failed := difftest.Failures(results)
	logger.Message(ctx, logging.LevelDebug, "differential test: %d of %d pairings passed", len(results)-len(failed), len(results))
	if len(failed) == 0 {
		return RuleResult{Passed: true}, nil
	}

	explanation := Explain(failed, problem)
	result := RuleResult{
		Kind:        KindSolutionCodeFailed,
		Message:     explanation.Message,
		Hint:        explanation.Hint,
		Explanation: &explanation,
	}
	if rule.Message != "" {
		result.Kind = KindCustomMessage
		result.Message = rule.Message
	}
	return result, nil
}

// StripComments removes Python line comments and surrounding whitespace from code.
func StripComments(code string) string {
	return strings.TrimSpace(commentRegex.ReplaceAllString(code, ""))
}

func countNonSpace(text string) int {
	count := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

func codeContains(code string, pattern string) bool {
	if pattern == intCallPattern {
		return intCallRegex.MatchString(code)
	}
	return strings.Contains(code, pattern)
}

func matchesRegex(text string, pattern string, ignoreCase bool) (bool, error) {
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("%w: %v", config.ErrInvalidRule, err)
	}
	return re.MatchString(text), nil
}

// outputContains is a plain substring check, except that a whole decimal pattern such as 50.0
// matches 50 or 50.0 as a complete number, so it rejects 500 and 50.5.
func outputContains(output string, pattern string) (bool, error) {
	if !wholeDecimalRegex.MatchString(pattern) {
		return strings.Contains(output, pattern), nil
	}
	integer := strings.TrimSuffix(pattern, ".0")
	alternatives := regexp.QuoteMeta(pattern) + "|" + regexp.QuoteMeta(integer)
	return matchesRegex(output, `(?:^|[^\d.])(?:`+alternatives+`)(?:$|[^\d.]|\.(?:$|\D))`, false)
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range utils.SplitLines(text) {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func isNumber(output string) bool {
	lines := nonBlankLines(output)
	if len(lines) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(lines[0]), 64)
	return err == nil
}
