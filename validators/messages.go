// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validators

import (
	"fmt"
	"strings"

	"github.com/petmal/codegrade/config"
)

// Verdict kinds.
const (
	KindInsufficientCode        = "insufficient_code"
	KindPythonError             = "python_error"
	KindBasicValidationFailed   = "basic_validation_failed"
	KindCustomMessage           = "custom_message"
	KindSolutionCodeFailed      = "solution_code_validation_failed"
	KindSolutionCodeUnavailable = "solution_code_validator_unavailable"
	KindUnknownRuleFailed       = "unknown_rule_failed"
)

// FailedKind returns the verdict kind of a failed static rule, e.g. code_contains_failed.
func FailedKind(ruleType config.RuleType) string {
	return string(ruleType) + "_failed"
}

const (
	correctMessage             = "✅ Correct! Well done!"
	insufficientCodeMessage    = "Please enter more code to run."
	pythonErrorMessage         = "❌ There was an error running your code."
	notQuiteRightMessage       = "❌ Not quite right! Check the task requirements and try again."
	missingSolutionMessage     = "❌ This problem cannot be checked because its solution code is missing."
	solutionUnavailableMessage = "❌ Solution checking is not available right now. Please try again later."
	wrongNumberTemplate        = "❌ Expected output: %s, but your program output: %s"
	noOutputHint               = "Your program should produce some output. Try adding a print() statement."
	unknownRuleTemplate        = "Unknown validation rule type '%s'"
)

// operatorNames describes code_contains patterns that learners know by name.
var operatorNames = map[string]string{
	"+":      "the addition operator (+)",
	"-":      "the subtraction operator (-)",
	"*":      "the multiplication operator (*)",
	"/":      "the division operator (/)",
	"//":     "the floor division operator (//)",
	"%":      "the modulo operator (%)",
	"**":     "the exponent operator (**)",
	"==":     "the equality operator (==)",
	"!=":     "the inequality operator (!=)",
	"<":      "the less-than operator (<)",
	">":      "the greater-than operator (>)",
	"(":      "an opening parenthesis",
	")":      "a closing parenthesis",
	"print(": "a print() statement",
	"input(": "an input() call",
	"int(":   "an int() conversion",
	"float(": "a float() conversion",
	"str(":   "a str() conversion",
	"if ":    "an if statement",
	"for ":   "a for loop",
	"while ": "a while loop",
	"def ":   "a function definition",
}

// outputRules fail with the no-output hint when the program printed nothing.
var outputRules = map[config.RuleType]bool{
	config.OutputContains:      true,
	config.OutputContainsRegex: true,
	config.OutputNotEmpty:      true,
	config.OutputLineCount:     true,
	config.OutputIsNumber:      true,
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func describeCodePattern(pattern string) string {
	if name, ok := operatorNames[pattern]; ok {
		return name
	}
	return fmt.Sprintf("%q", pattern)
}

// ruleTemplate returns the feedback for a failed static rule.
func ruleTemplate(rule config.Rule) string {
	switch rule.Type {
	case config.CodeContains:
		return "Code must contain " + describeCodePattern(rule.Pattern)
	case config.CodeContainsRegex:
		return fmt.Sprintf("Code must match the pattern `%s`", rule.Pattern)
	case config.OutputContains:
		return fmt.Sprintf("Output must contain %q", rule.Pattern)
	case config.OutputContainsRegex:
		return fmt.Sprintf("Output must match the pattern `%s`", rule.Pattern)
	case config.CodeMinLength:
		return fmt.Sprintf("Code must be at least %s long, not counting comments", plural(rule.MinLength, "character"))
	case config.OutputNotEmpty:
		return "Your program should produce some output"
	case config.NoErrors:
		return "Your program must run without errors"
	case config.PrintCount:
		return fmt.Sprintf("Code must contain at least %s", plural(rule.MinCount, "print() statement"))
	case config.OutputLineCount:
		return fmt.Sprintf("Output must have at least %s", plural(rule.MinLines, "line"))
	case config.CodeContainsNumber:
		return "Code must contain the number " + strings.ReplaceAll(rule.Pattern, `\b`, "")
	case config.OutputIsNumber:
		return "Output must be a number"
	case config.AssignmentCount:
		return fmt.Sprintf("Code must contain at least %s (=)", plural(rule.MinCount, "assignment"))
	case config.InputCount:
		return fmt.Sprintf("Code must call input() at least %s", plural(rule.MinCount, "time"))
	case config.SolutionCode:
		return "Your program must behave like the solution"
	}
	return fmt.Sprintf(unknownRuleTemplate, rule.Type)
}

// ruleMessage returns the rule's override message, or the given default.
func ruleMessage(rule config.Rule, defaultMessage string) string {
	if rule.Message != "" {
		return rule.Message
	}
	return defaultMessage
}

func staticRuleFailure(rule config.Rule, output string) RuleResult {
	trimmed := strings.TrimSpace(output)
	result := RuleResult{Kind: FailedKind(rule.Type), Message: "❌ " + ruleTemplate(rule)}

	if rule.Type == config.OutputContains && numericPatternRegex.MatchString(rule.Pattern) && numericPatternRegex.MatchString(trimmed) {
		result.Message = fmt.Sprintf(wrongNumberTemplate, rule.Pattern, trimmed)
	}
	if trimmed == "" && outputRules[rule.Type] {
		result.Hint = noOutputHint
	}
	if rule.Message != "" {
		result.Kind = KindCustomMessage
		result.Message = rule.Message
	}
	return result
}
