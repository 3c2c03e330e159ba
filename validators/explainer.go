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
	"github.com/petmal/codegrade/difftest"
	"github.com/petmal/codegrade/execution"
	"github.com/petmal/codegrade/pkg/utils"
)

// Hints derived from the first failure.
const (
	hintExactMatch     = "Your output matches the expected output exactly."
	hintCapitalization = "Check your capitalization - the output should match exactly."
	hintExtraOrMissing = "Your output is close but not exactly right. Check for extra or missing text."
	hintNoOutput       = "Your program didn't produce any output. Make sure you have print statements."
	hintCheckLogic     = "Your program's output doesn't match the expected output. Check your logic and print statements."
)

// Explanation describes failed differential test pairings.
type Explanation struct {
	// Message describes the first failure.
	Message string
	// Details lists every failure when there is more than one.
	Details []string
	// Hint suggests a fix for the first failure.
	Hint string
	// Expected is the expected output of the first failure.
	Expected string
	// Actual is the learner's output or error of the first failure.
	Actual string
	// Diff is a patch from Expected to Actual.
	Diff string
}

// Explain turns failed pairings into feedback. The first failure becomes the message.
func Explain(failed []difftest.Result, problem config.Problem) Explanation {
	if len(failed) == 0 {
		return Explanation{}
	}

	messages := make([]string, 0, len(failed))
	for _, result := range failed {
		messages = append(messages, describeFailure(result, problem))
	}

	first := failed[0]
	student, expected := sideText(first.Student), expectedText(first)
	explanation := Explanation{
		Message:  messages[0],
		Hint:     Hint(student, expected),
		Expected: expected,
		Actual:   student,
		Diff:     utils.DiffText(expected, student),
	}
	if len(messages) > 1 {
		explanation.Details = make([]string, 0, len(messages))
		for _, message := range messages {
			explanation.Details = append(explanation.Details, "- "+message)
		}
	}
	return explanation
}

// Hint suggests a fix by comparing trimmed learner output with the expected output.
func Hint(studentOutput string, expectedOutput string) string {
	student := strings.TrimSpace(studentOutput)
	expected := strings.TrimSpace(expectedOutput)
	// Empty output is checked before containment since "" is contained in every string.
	switch {
	case student == expected:
		return hintExactMatch
	case strings.EqualFold(student, expected):
		return hintCapitalization
	case student == "":
		return hintNoOutput
	case strings.Contains(student, expected) || strings.Contains(expected, student):
		return hintExtraOrMissing
	}
	return hintCheckLogic
}

func describeFailure(result difftest.Result, problem config.Problem) string {
	student := sideText(result.Student)
	expected := expectedText(result)
	if description := describeRun(result, problem); description != "" {
		return fmt.Sprintf("With %s, your program output: \"%s\" but expected output: \"%s\"", description, student, expected)
	}
	return fmt.Sprintf("Your program output: \"%s\" but expected output: \"%s\"", student, expected)
}

// sideText is the trimmed output of a successful run, or the error of a failed one.
func sideText(run difftest.Execution) string {
	if run.Success() {
		return strings.TrimSpace(run.Output)
	}
	return strings.TrimSpace(run.Error)
}

func expectedText(result difftest.Result) string {
	if expected := result.ExpectedOutputs(); len(expected) > 0 {
		return strings.TrimSpace(expected[0])
	}
	return sideText(result.Reference)
}

// describeRun names the inputs and choices of a pairing, or returns an empty string when neither was consumed.
func describeRun(result difftest.Result, problem config.Problem) string {
	var parts []string

	if result.Fixture != nil {
		if inputs := describeFixtureInputs(*result.Fixture, problem.SlotNames()); inputs != "" {
			parts = append(parts, inputs)
		}
	} else if inputs := describeInputs(longer(result.Reference.Inputs, result.Student.Inputs)); inputs != "" {
		parts = append(parts, inputs)
	}
	if choices := describeChoices(longer(result.Reference.Choices, result.Student.Choices)); choices != "" {
		parts = append(parts, choices)
	}

	return strings.Join(parts, " and ")
}

// longer returns the longer trace, preferring preferred on ties.
func longer[T any](preferred []T, other []T) []T {
	if len(other) > len(preferred) {
		return other
	}
	return preferred
}

func describeFixtureInputs(fixture config.Fixture, slotNames []string) string {
	names := fixture.InputNames(slotNames)
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" = "+formatValue(fixture.Inputs[name]))
	}
	return "input " + strings.Join(parts, ", ")
}

func describeInputs(inputs []difftest.InputUse) string {
	if len(inputs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(inputs))
	for _, input := range inputs {
		if input.Name == "" {
			parts = append(parts, formatValue(input.Value))
		} else {
			parts = append(parts, input.Name+" = "+formatValue(input.Value))
		}
	}
	return "input " + strings.Join(parts, ", ")
}

func describeChoices(choices []difftest.ChoiceUse) string {
	if len(choices) == 0 {
		return ""
	}
	parts := make([]string, 0, len(choices))
	for _, choice := range choices {
		parts = append(parts, fmt.Sprintf("choice %d (from %d options)", choice.Choice, choice.Options))
	}
	return strings.Join(parts, ", ")
}

// formatValue quotes strings and renders other values the way the program sees them.
func formatValue(value interface{}) string {
	if s, ok := value.(string); ok {
		return `"` + s + `"`
	}
	return execution.PythonString(value)
}
