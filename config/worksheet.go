// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/petmal/codegrade/generator"
	"github.com/petmal/codegrade/pkg/utils"
)

// RuleType identifies the kind of check a Rule performs.
type RuleType string

// Supported rule types.
const (
	CodeContains        RuleType = "code_contains"
	CodeContainsRegex   RuleType = "code_contains_regex"
	OutputContains      RuleType = "output_contains"
	OutputContainsRegex RuleType = "output_contains_regex"
	CodeMinLength       RuleType = "code_min_length"
	OutputNotEmpty      RuleType = "output_not_empty"
	NoErrors            RuleType = "no_errors"
	PrintCount          RuleType = "print_count"
	OutputLineCount     RuleType = "output_line_count"
	CodeContainsNumber  RuleType = "code_contains_number"
	OutputIsNumber      RuleType = "output_is_number"
	AssignmentCount     RuleType = "assignment_count"
	InputCount          RuleType = "input_count"
	SolutionCode        RuleType = "solution_code"
)

var knownRuleTypes = []RuleType{
	CodeContains, CodeContainsRegex, OutputContains, OutputContainsRegex, CodeMinLength, OutputNotEmpty, NoErrors,
	PrintCount, OutputLineCount, CodeContainsNumber, OutputIsNumber, AssignmentCount, InputCount, SolutionCode,
}

// IsKnown reports whether the rule type is one CodeGrade knows how to evaluate.
func (rt RuleType) IsKnown() bool {
	return slices.Contains(knownRuleTypes, rt)
}

var (
	// ErrInvalidWorksheet indicates an inconsistent worksheet definition.
	ErrInvalidWorksheet = errors.New("invalid worksheet")
	// ErrInvalidRule indicates a rule whose parameters do not fit its type.
	ErrInvalidRule = errors.New("invalid validation rule")
	// ErrProblemNotFound indicates that no problem has the requested ID.
	ErrProblemNotFound = errors.New("problem not found")
)

// Worksheet is an ordered collection of problems.
type Worksheet struct {
	// Title is the worksheet title.
	Title string `yaml:"title" json:"title" validate:"required"`

	// Description is an optional introduction shown above the problems.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Problems lists the problems in presentation order.
	Problems []Problem `yaml:"problems" json:"problems" validate:"required,min=1,unique=ID,dive"`
}

// FindProblem returns the problem with the given ID.
func (w Worksheet) FindProblem(id string) (Problem, error) {
	for _, problem := range w.Problems {
		if problem.ID == id {
			return problem, nil
		}
	}
	return Problem{}, fmt.Errorf("%w: %s", ErrProblemNotFound, id)
}

// GetEnabledProblems returns the problems that are not disabled.
func (w Worksheet) GetEnabledProblems() []Problem {
	enabled := make([]Problem, 0, len(w.Problems))
	for _, problem := range w.Problems {
		if !problem.Disabled {
			enabled = append(enabled, problem)
		}
	}
	return enabled
}

// Validate checks the rules of every problem.
func (w Worksheet) Validate() error {
	for _, problem := range w.Problems {
		if err := problem.Validate(); err != nil {
			return fmt.Errorf("%w: problem '%s': %w", ErrInvalidWorksheet, problem.ID, err)
		}
	}
	return nil
}

// Problem is a single exercise with its starter code, inputs and validation rules.
type Problem struct {
	// ID uniquely identifies the problem within its worksheet.
	ID string `yaml:"id" json:"id" validate:"required"`

	// Title is a short display name.
	Title string `yaml:"title,omitempty" json:"title,omitempty"`

	// Description explains the task.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// StarterCode is the code the editor starts with.
	StarterCode string `yaml:"starterCode,omitempty" json:"starterCode,omitempty"`

	// Inputs declares the values the program may request with get_input.
	Inputs []InputSlot `yaml:"inputs,omitempty" json:"inputs,omitempty" validate:"omitempty,unique=Name,dive"`

	// Validation holds the ordered validation rules.
	Validation *Validation `yaml:"validation,omitempty" json:"validation,omitempty" validate:"omitempty"`

	// Disabled excludes the problem from batch grading.
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Rules returns the declared rules, or nil when the problem has no validation section.
func (p Problem) Rules() []Rule {
	if p.Validation == nil {
		return nil
	}
	return p.Validation.Rules
}

// Slots returns the declared input slots in generator form.
func (p Problem) Slots() []generator.Slot {
	slots := make([]generator.Slot, 0, len(p.Inputs))
	for _, input := range p.Inputs {
		slots = append(slots, generator.Slot{Name: input.Name, Type: input.Type})
	}
	return slots
}

// SlotNames returns the declared input slot names in declaration order.
func (p Problem) SlotNames() []string {
	names := make([]string, 0, len(p.Inputs))
	for _, input := range p.Inputs {
		names = append(names, input.Name)
	}
	return names
}

// HasDeclaredValues reports whether at least one slot is declared and every slot carries a fixed value.
func (p Problem) HasDeclaredValues() bool {
	if len(p.Inputs) == 0 {
		return false
	}
	for _, input := range p.Inputs {
		if input.Value == nil {
			return false
		}
	}
	return true
}

// DeclaredValues returns the fixed slot values keyed by slot name.
func (p Problem) DeclaredValues() map[string]interface{} {
	values := make(map[string]interface{}, len(p.Inputs))
	for _, input := range p.Inputs {
		if input.Value != nil {
			values[input.Name] = input.Value
		}
	}
	return values
}

// Validate checks every rule of the problem and its input slots.
func (p Problem) Validate() error {
	for _, input := range p.Inputs {
		if err := slotValidator.Validate(input); err != nil {
			return fmt.Errorf("%w: input '%s': %v", ErrInvalidWorksheet, input.Name, err)
		}
	}
	for i, rule := range p.Rules() {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i+1, rule.Type, err)
		}
	}
	return nil
}

// InputSlot declares a named value that a program can request.
type InputSlot struct {
	// Name is the slot name passed to get_input.
	Name string `yaml:"name" json:"name" validate:"required" check:"nonzero"`

	// Type is one of number, boolean or string.
	Type string `yaml:"type" json:"type" validate:"required" check:"regexp=^(number|boolean|string)$" jsonschema:"enum=number,enum=boolean,enum=string"`

	// Value is the value shown to the learner and used by the declared-values run.
	Value interface{} `yaml:"value,omitempty" json:"value,omitempty"`

	// Label is the text shown next to the input field.
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// Validation holds the validation rules of a problem.
type Validation struct {
	// Rules are evaluated in order; evaluation stops at the first failure.
	Rules []Rule `yaml:"rules" json:"rules" validate:"dive"`
}

// Rule is a single declarative check. Which parameters apply depends on Type.
type Rule struct {
	// Type selects the check.
	Type RuleType `yaml:"type" json:"type" validate:"required"`

	// Pattern is the literal or regular expression used by pattern-based rules.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// MinLength is the minimum code length for code_min_length.
	MinLength int `yaml:"minLength,omitempty" json:"minLength,omitempty" validate:"omitempty,min=0"`

	// MinCount is the minimum count for print_count, assignment_count and input_count.
	MinCount int `yaml:"minCount,omitempty" json:"minCount,omitempty" validate:"omitempty,min=0"`

	// MinLines is the minimum number of non-blank output lines for output_line_count.
	MinLines int `yaml:"minLines,omitempty" json:"minLines,omitempty" validate:"omitempty,min=0"`

	// SolutionCode is the reference program for solution_code.
	SolutionCode string `yaml:"solutionCode,omitempty" json:"solutionCode,omitempty"`

	// MaxRuns is the number of seeded runs for solution_code.
	// Value of 0 means the configured default is used.
	MaxRuns int `yaml:"maxRuns,omitempty" json:"maxRuns,omitempty" validate:"omitempty,min=0"`

	// TestInputs are manual fixtures run before the seeded runs of solution_code.
	TestInputs []Fixture `yaml:"testInputs,omitempty" json:"testInputs,omitempty" validate:"omitempty,dive"`

	// UseDeclaredValues enables a run with the problem's declared input values.
	// Defaults to true.
	UseDeclaredValues *bool `yaml:"useDeclaredValues,omitempty" json:"useDeclaredValues,omitempty"`

	// Description is a human-readable description of what the rule checks.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Message overrides the failure message shown to the learner.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// IsUseDeclaredValues returns whether the declared-values run is enabled.
func (r Rule) IsUseDeclaredValues() bool {
	return ResolveFlagOverride(r.UseDeclaredValues, true)
}

// Validate checks that the parameters required by the rule type are present and well-formed.
// Unknown rule types are accepted.
func (r Rule) Validate() error {
	switch r.Type {
	case CodeContains, OutputContains:
		if r.Pattern == "" {
			return fmt.Errorf("%w: pattern is required", ErrInvalidRule)
		}
	case CodeContainsRegex, OutputContainsRegex, CodeContainsNumber:
		if r.Pattern == "" {
			return fmt.Errorf("%w: pattern is required", ErrInvalidRule)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("%w: invalid pattern: %v", ErrInvalidRule, err)
		}
	case SolutionCode:
		if !IsNotBlank(r.SolutionCode) {
			return fmt.Errorf("%w: solutionCode is required", ErrInvalidRule)
		}
	}
	return nil
}

// Fixture is a manual test case for solution_code rules.
type Fixture struct {
	// Inputs maps slot names to literal values.
	Inputs map[string]interface{} `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Choices pins the options returned by successive get_choice calls.
	Choices []int `yaml:"choices,omitempty" json:"choices,omitempty" validate:"omitempty,dive,min=1"`

	// ExpectedOutput lists the accepted outputs; both programs must produce one of them.
	ExpectedOutput *utils.StringSet `yaml:"expectedOutput,omitempty" json:"expectedOutput,omitempty"`
}

// InputNames returns the fixture's input names ordered by the problem's slot declarations,
// followed by any remaining names in ascending order.
func (f Fixture) InputNames(slotNames []string) []string {
	names := make([]string, 0, len(f.Inputs))
	for _, name := range slotNames {
		if _, ok := f.Inputs[name]; ok {
			names = append(names, name)
		}
	}
	for _, name := range utils.SortedKeys(f.Inputs) {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}
