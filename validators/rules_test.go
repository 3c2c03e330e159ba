// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/pkg/logging"
	"github.com/petmal/codegrade/pkg/testutils"
)

func TestEvaluate_StaticRules(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		output string
		rule   config.Rule
		want   bool
	}{
		// code_contains
		{name: "code contains literal", code: "print('hi')", rule: config.Rule{Type: config.CodeContains, Pattern: "print("}, want: true},
		{name: "code lacks literal", code: "x = 1", rule: config.Rule{Type: config.CodeContains, Pattern: "print("}, want: false},
		{name: "int call with space", code: "x = int (input())", rule: config.Rule{Type: config.CodeContains, Pattern: "int("}, want: true},
		{name: "int call inside print is not int", code: "print(1)", rule: config.Rule{Type: config.CodeContains, Pattern: "int("}, want: false},

		// code_contains_regex
		{name: "code regex ignores case", code: "print(1)", rule: config.Rule{Type: config.CodeContainsRegex, Pattern: `PRINT\(`}, want: true},
		{name: "code regex no match", code: "x = 1", rule: config.Rule{Type: config.CodeContainsRegex, Pattern: `for\s+\w+\s+in`}, want: false},
		{name: "invalid code regex fails", code: "print(1)", rule: config.Rule{Type: config.CodeContainsRegex, Pattern: `(`}, want: false},

		// output_contains
		{name: "output contains text", output: "Hello, World!\n", rule: config.Rule{Type: config.OutputContains, Pattern: "Hello, World!"}, want: true},
		{name: "output contains is case sensitive", output: "hello\n", rule: config.Rule{Type: config.OutputContains, Pattern: "Hello"}, want: false},
		{name: "decimal pattern accepts integer", output: "50\n", rule: config.Rule{Type: config.OutputContains, Pattern: "50.0"}, want: true},
		{name: "decimal pattern accepts itself", output: "50.0\n", rule: config.Rule{Type: config.OutputContains, Pattern: "50.0"}, want: true},
		{name: "decimal pattern rejects longer number", output: "500\n", rule: config.Rule{Type: config.OutputContains, Pattern: "50.0"}, want: false},
		{name: "decimal pattern rejects other fraction", output: "50.5\n", rule: config.Rule{Type: config.OutputContains, Pattern: "50.0"}, want: false},
		{name: "decimal pattern inside sentence", output: "Total: 50 apples.\n", rule: config.Rule{Type: config.OutputContains, Pattern: "50.0"}, want: true},
		{name: "number at end of sentence", output: "The answer is 15.", rule: config.Rule{Type: config.OutputContains, Pattern: "15"}, want: true},
		{name: "integer pattern is a substring", output: "150\n", rule: config.Rule{Type: config.OutputContains, Pattern: "15"}, want: true},
		{name: "integer pattern inside fraction", output: "1.5\n", rule: config.Rule{Type: config.OutputContains, Pattern: "5"}, want: true},
		{name: "fraction pattern is a prefix", output: "pi is 3.14159\n", rule: config.Rule{Type: config.OutputContains, Pattern: "3.14"}, want: true},
		{name: "fraction pattern missing", output: "pi is 3.15\n", rule: config.Rule{Type: config.OutputContains, Pattern: "3.14"}, want: false},
		{name: "decimal pattern rejects prefix digits", output: "150\n", rule: config.Rule{Type: config.OutputContains, Pattern: "50.0"}, want: false},

		// output_contains_regex
		{name: "output regex ignores case", output: "Hello world\n", rule: config.Rule{Type: config.OutputContainsRegex, Pattern: `^hello`}, want: true},
		{name: "invalid output regex fails", output: "x", rule: config.Rule{Type: config.OutputContainsRegex, Pattern: `[`}, want: false},

		// code_min_length
		{name: "comments do not count", code: "# a very long comment line\nx=1", rule: config.Rule{Type: config.CodeMinLength, MinLength: 10}, want: false},
		{name: "long enough code", code: "print('hello')", rule: config.Rule{Type: config.CodeMinLength, MinLength: 10}, want: true},
		{name: "length counts characters", code: "print('héllo')", rule: config.Rule{Type: config.CodeMinLength, MinLength: 14}, want: true},

		// output_not_empty
		{name: "blank output", output: "  \n", rule: config.Rule{Type: config.OutputNotEmpty}, want: false},
		{name: "some output", output: "x\n", rule: config.Rule{Type: config.OutputNotEmpty}, want: true},

		// no_errors
		{name: "error in output", output: "ValueError: bad\n", rule: config.Rule{Type: config.NoErrors}, want: false},
		{name: "traceback in output", output: "Traceback (most recent call last):\n", rule: config.Rule{Type: config.NoErrors}, want: false},
		{name: "clean output", output: "ok\n", rule: config.Rule{Type: config.NoErrors}, want: true},

		// print_count
		{name: "enough prints", code: "print(1)\nprint(2)", rule: config.Rule{Type: config.PrintCount, MinCount: 2}, want: true},
		{name: "too few prints", code: "print(1)", rule: config.Rule{Type: config.PrintCount, MinCount: 2}, want: false},

		// output_line_count
		{name: "blank lines are skipped", output: "a\n\nb\n", rule: config.Rule{Type: config.OutputLineCount, MinLines: 2}, want: true},
		{name: "too few lines", output: "a\n  \n", rule: config.Rule{Type: config.OutputLineCount, MinLines: 2}, want: false},

		// code_contains_number
		{name: "number present", code: "x = 10", rule: config.Rule{Type: config.CodeContainsNumber, Pattern: `\b10\b`}, want: true},
		{name: "number only as prefix", code: "x = 100", rule: config.Rule{Type: config.CodeContainsNumber, Pattern: `\b10\b`}, want: false},
		{name: "number regex is case sensitive", code: "x = 0xa", rule: config.Rule{Type: config.CodeContainsNumber, Pattern: `0xA`}, want: false},

		// output_is_number
		{name: "integer output", output: "42\n", rule: config.Rule{Type: config.OutputIsNumber}, want: true},
		{name: "first non-blank line decides", output: "\n 3.5 \nabc\n", rule: config.Rule{Type: config.OutputIsNumber}, want: true},
		{name: "text before number", output: "abc\n42\n", rule: config.Rule{Type: config.OutputIsNumber}, want: false},
		{name: "no output is not a number", output: "", rule: config.Rule{Type: config.OutputIsNumber}, want: false},

		// assignment_count
		{name: "enough assignments", code: "a = 1\nb = 2", rule: config.Rule{Type: config.AssignmentCount, MinCount: 2}, want: true},
		{name: "too few assignments", code: "a = 1", rule: config.Rule{Type: config.AssignmentCount, MinCount: 2}, want: false},

		// input_count
		{name: "input call", code: "x = input()", rule: config.Rule{Type: config.InputCount, MinCount: 1}, want: true},
		{name: "no input call", code: "x = 1", rule: config.Rule{Type: config.InputCount, MinCount: 1}, want: false},

		// unknown rules
		{name: "unknown rule is skipped", code: "x = 1", rule: config.Rule{Type: "code_is_pretty"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewValidator(nil, Options{})

			result, err := validator.Evaluate(context.Background(), testutils.NewTestLogger(t), tt.code, tt.output, tt.rule, config.Problem{ID: "p"})

			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Passed)
			if !tt.want {
				assert.NotEmpty(t, result.Message)
				assert.Equal(t, FailedKind(tt.rule.Type), result.Kind)
			}
		})
	}
}

func TestEvaluate_InvalidRegexIsLogged(t *testing.T) {
	logger := testutils.NewTestLogger(t)

	result, err := NewValidator(nil, Options{}).Evaluate(context.Background(), logger, "print(1)", "",
		config.Rule{Type: config.CodeContainsRegex, Pattern: `(`}, config.Problem{ID: "p"})

	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.True(t, logger.HasMessage(logging.LevelWarn, "rule 'code_contains_regex' cannot be evaluated"))
}

func TestEvaluate_UnknownRule(t *testing.T) {
	rule := config.Rule{Type: "code_is_pretty"}

	logger := testutils.NewTestLogger(t)
	result, err := NewValidator(nil, Options{}).Evaluate(context.Background(), logger, "x = 1", "", rule, config.Problem{ID: "p"})
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.True(t, logger.HasMessage(logging.LevelWarn, "unknown validation rule type 'code_is_pretty' is skipped"))

	result, err = NewValidator(nil, Options{StrictRules: true}).Evaluate(context.Background(), testutils.NewTestLogger(t), "x = 1", "", rule, config.Problem{ID: "p"})
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, KindUnknownRuleFailed, result.Kind)
	assert.Equal(t, "Unknown validation rule type 'code_is_pretty'", result.Message)
}

func TestEvaluate_FailureMessages(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		output      string
		rule        config.Rule
		wantKind    string
		wantMessage string
		wantHint    string
	}{
		{
			name:        "operator by name",
			code:        "print(7 - 8)",
			output:      "-1\n",
			rule:        config.Rule{Type: config.CodeContains, Pattern: "+"},
			wantKind:    "code_contains_failed",
			wantMessage: "❌ Code must contain the addition operator (+)",
		},
		{
			name:        "literal pattern is quoted",
			code:        "print(100)",
			output:      "100\n",
			rule:        config.Rule{Type: config.CodeContains, Pattern: "print(42)"},
			wantKind:    "code_contains_failed",
			wantMessage: `❌ Code must contain "print(42)"`,
		},
		{
			name:        "wrong number",
			code:        "print(7 + 9)",
			output:      "16\n",
			rule:        config.Rule{Type: config.OutputContains, Pattern: "15.0"},
			wantKind:    "output_contains_failed",
			wantMessage: "❌ Expected output: 15.0, but your program output: 16",
		},
		{
			name:        "missing output",
			code:        "x = 7 + 8",
			output:      "",
			rule:        config.Rule{Type: config.OutputContains, Pattern: "15"},
			wantKind:    "output_contains_failed",
			wantMessage: `❌ Output must contain "15"`,
			wantHint:    noOutputHint,
		},
		{
			name:        "override message",
			code:        "x = 1",
			output:      "",
			rule:        config.Rule{Type: config.PrintCount, MinCount: 1, Message: "Use print() to show the result."},
			wantKind:    KindCustomMessage,
			wantMessage: "Use print() to show the result.",
		},
		{
			name:        "plural counts",
			code:        "print(1)",
			output:      "1\n",
			rule:        config.Rule{Type: config.PrintCount, MinCount: 3},
			wantKind:    "print_count_failed",
			wantMessage: "❌ Code must contain at least 3 print() statements",
		},
		{
			name:        "number pattern without boundaries",
			code:        "x = 1",
			output:      "",
			rule:        config.Rule{Type: config.CodeContainsNumber, Pattern: `\b10\b`},
			wantKind:    "code_contains_number_failed",
			wantMessage: "❌ Code must contain the number 10",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewValidator(nil, Options{}).Evaluate(context.Background(), testutils.NewTestLogger(t), tt.code, tt.output, tt.rule, config.Problem{ID: "p"})

			require.NoError(t, err)
			assert.False(t, result.Passed)
			assert.Equal(t, tt.wantKind, result.Kind)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Equal(t, tt.wantHint, result.Hint)
		})
	}
}

func TestStripComments(t *testing.T) {
	assert.Equal(t, "x = 1", StripComments("# set x\nx = 1  # one\n"))
	assert.Empty(t, StripComments("# nothing here\n   # at all"))
}
