// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package difftest compares a learner program against a reference program.
// Both programs are run with the same manual fixtures, declared input values and
// generator seeds, and every pairing records the inputs and choices each side consumed.
package difftest

import (
	"context"
	"fmt"
	"strings"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/execution"
	"github.com/petmal/codegrade/generator"
	"github.com/petmal/codegrade/pkg/logging"
)

// Source identifies where the inputs of a pairing came from.
type Source string

const (
	// SourceFixture marks a run driven by a manual fixture.
	SourceFixture Source = "fixture"
	// SourceDeclared marks the run using the problem's declared input values.
	SourceDeclared Source = "declared values"
	// SourceSeed marks a run driven by a generator seed.
	SourceSeed Source = "seed"
)

const (
	// declaredChoiceSeed seeds choices for runs whose inputs do not come from a seed.
	declaredChoiceSeed = 0
	previewSeed        = 1
)

// InputUse is one consumed input value.
type InputUse struct {
	// Name is the requested slot name; empty for a zero-argument request.
	Name string
	// Value is the value handed to the program.
	Value interface{}
	// Index is the declared slot position, or -1 when the name is not a declared slot.
	Index int
}

// ChoiceUse is one consumed choice.
type ChoiceUse struct {
	// Choice is the selected 1-based option.
	Choice int
	// Options is the number of options offered.
	Options int
	// Index is the 0-based position of the request within the run.
	Index int
}

// Execution is the outcome of one program run with its input and choice traces.
type Execution struct {
	execution.Outcome
	Inputs  []InputUse
	Choices []ChoiceUse
}

// ConsumedNothing returns true if the run requested neither inputs nor choices.
func (e Execution) ConsumedNothing() bool {
	return len(e.Inputs) == 0 && len(e.Choices) == 0
}

// Result is one pairing of a learner run and a reference run.
type Result struct {
	// Source identifies where the inputs came from.
	Source Source
	// Seed is the generator seed of seeded runs.
	Seed int
	// FixtureIndex is the 0-based fixture position of fixture runs.
	FixtureIndex int
	// Fixture is the manual fixture of fixture runs.
	Fixture *config.Fixture
	// Student is the learner run.
	Student Execution
	// Reference is the reference run.
	Reference Execution
	// Passed is true if the learner run is indistinguishable from the reference run.
	Passed bool
}

// Label returns a short human-readable name of the pairing.
func (r Result) Label() string {
	switch r.Source {
	case SourceFixture:
		return fmt.Sprintf("fixture %d", r.FixtureIndex+1)
	case SourceSeed:
		return fmt.Sprintf("seed %d", r.Seed)
	}
	return string(r.Source)
}

// ExpectedOutputs returns the accepted outputs of a fixture run, or nil when any reference output is accepted.
func (r Result) ExpectedOutputs() []string {
	if r.Fixture == nil || r.Fixture.ExpectedOutput == nil || r.Fixture.ExpectedOutput.Len() == 0 {
		return nil
	}
	return r.Fixture.ExpectedOutput.Values()
}

// Request describes a differential test.
type Request struct {
	// StudentCode is the learner program.
	StudentCode string
	// ReferenceCode is the reference program.
	ReferenceCode string
	// Problem declares the input slots.
	Problem config.Problem
	// MaxRuns is the number of seeded runs; values below 1 mean config.DefaultMaxRuns.
	MaxRuns int
	// Fixtures are run first, in order.
	Fixtures []config.Fixture
	// UseDeclaredValues adds a run with the problem's declared values when every slot has one.
	UseDeclaredValues bool
}

// Runner runs differential tests on a shared execution session.
type Runner struct {
	session *execution.Session
}

// NewRunner creates a differential test runner that executes programs on session.
func NewRunner(session *execution.Session) *Runner {
	return &Runner{session: session}
}

// Run executes every pairing of the request and returns the results in run order:
// manual fixtures, the declared-values run, then seeds 1 to MaxRuns.
// An error is returned only when the execution session fails; results gathered so far are returned with it.
func (r *Runner) Run(ctx context.Context, logger logging.Logger, req Request) ([]Result, error) {
	maxRuns := req.MaxRuns
	if maxRuns < 1 {
		maxRuns = config.DefaultMaxRuns
	}

	results := make([]Result, 0, len(req.Fixtures)+1+maxRuns)
	slotNames := req.Problem.SlotNames()

	for i := range req.Fixtures {
		fixture := req.Fixtures[i]
		inputs := newFixtureInputs(fixture, slotNames)
		choices := pinnedChoices(fixture.Choices)
		result := Result{Source: SourceFixture, FixtureIndex: i, Fixture: &fixture}
		if err := r.runPairing(ctx, logger, req, &result, inputs, choices); err != nil {
			return results, err
		}
		results = append(results, result)
	}

	if req.UseDeclaredValues && req.Problem.HasDeclaredValues() {
		inputs := newNamedInputs(req.Problem.DeclaredValues(), slotNames)
		result := Result{Source: SourceDeclared}
		if err := r.runPairing(ctx, logger, req, &result, inputs, seededChoices(declaredChoiceSeed)); err != nil {
			return results, err
		}
		results = append(results, result)
	}

	for seed := 1; seed <= maxRuns; seed++ {
		values := make(map[string]interface{}, len(slotNames))
		for _, v := range generator.Values(req.Problem.Slots(), seed) {
			values[v.Name] = v.Value
		}
		inputs := newNamedInputs(values, slotNames)
		result := Result{Source: SourceSeed, Seed: seed}
		if err := r.runPairing(ctx, logger, req, &result, inputs, seededChoices(seed)); err != nil {
			return results, err
		}
		results = append(results, result)
	}

	return results, nil
}

func (r *Runner) runPairing(ctx context.Context, logger logging.Logger, req Request, result *Result, inputs inputSource, choose choiceSource) error {
	var err error
	if result.Student, err = r.runSide(ctx, logger, req.StudentCode, inputs, choose); err != nil {
		return fmt.Errorf("student run for %s: %w", result.Label(), err)
	}
	if result.Reference, err = r.runSide(ctx, logger, req.ReferenceCode, inputs, choose); err != nil {
		return fmt.Errorf("reference run for %s: %w", result.Label(), err)
	}
	result.Passed = Compare(result.Student, result.Reference, result.ExpectedOutputs())
	logger.Message(ctx, logging.LevelTrace, "%s: student %s, reference %s, passed: %t",
		result.Label(), result.Student.Status, result.Reference.Status, result.Passed)
	return nil
}

func (r *Runner) runSide(ctx context.Context, logger logging.Logger, program string, inputs inputSource, choose choiceSource) (Execution, error) {
	rec := &recorder{inputs: inputs, choose: choose}
	outcome, err := r.session.Run(ctx, logger, program, rec.capabilities())
	if err != nil {
		return Execution{}, err
	}
	rec.execution.Outcome = outcome
	return rec.execution, nil
}

// Preview runs program once the way a learner would see it on the worksheet page:
// declared slot values where given, seed 1 values for the other slots and unseeded choices.
func (r *Runner) Preview(ctx context.Context, logger logging.Logger, program string, problem config.Problem) (Execution, error) {
	values := make(map[string]interface{})
	for _, v := range generator.Values(problem.Slots(), previewSeed) {
		values[v.Name] = v.Value
	}
	for name, value := range problem.DeclaredValues() {
		values[name] = value
	}
	return r.runSide(ctx, logger, program, newNamedInputs(values, problem.SlotNames()), seededChoices(declaredChoiceSeed))
}

// Compare decides whether a learner run passes against a reference run.
// Both sides must succeed with equal trimmed output, or fail with identical error text.
// When expected outputs are given, both successful outputs must also equal one of them.
// A timed-out side never passes.
func Compare(student Execution, reference Execution, expected []string) bool {
	if student.Status == execution.TimedOut || reference.Status == execution.TimedOut {
		return false
	}
	if student.Success() && reference.Success() {
		studentOutput := strings.TrimSpace(student.Output)
		if studentOutput != strings.TrimSpace(reference.Output) {
			return false
		}
		return len(expected) == 0 || matchesAny(studentOutput, expected)
	}
	if student.Status == execution.Failed && reference.Status == execution.Failed {
		return student.Error == reference.Error
	}
	return false
}

func matchesAny(output string, expected []string) bool {
	for _, candidate := range expected {
		if output == strings.TrimSpace(candidate) {
			return true
		}
	}
	return false
}

// Failures returns the pairings that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
