// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package difftest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/execution"
	"github.com/petmal/codegrade/generator"
	"github.com/petmal/codegrade/pkg/testutils"
	"github.com/petmal/codegrade/pkg/utils"
)

const (
	sumXY      = "print(get_input('x') + get_input('y'))"
	sumXYZ     = "print('Total:', get_input('x') + get_input('y') + get_input('z'))"
	echoX      = "print(get_input('x'))"
	echoXAgain = "x = get_input('x')\nprint(x)"
	studentRPG = "get_choice(2)\nprint('Wizard chosen')"
	refRPG     = "c = get_choice(2)\nprint('You chose the Wizard!' if c == 1 else 'You chose the Knight!')"
	crash      = "print(1 / 0)"
	crashAgain = "y = 0\nprint(1 / y)"
	nameError  = "print(undefined)"
	spin       = "while True: pass"
	anonymous  = "print(get_input(), get_input('missing'))"
	twoChoices = "print(get_choice(3), get_choice(3))"
)

func scripts() map[string]execution.Script {
	return map[string]execution.Script{
		sumXY: func(ctx context.Context, env *execution.ScriptEnv) error {
			x := env.Input("x").(int)
			y := env.Input("y").(int)
			env.Print(x + y)
			return nil
		},
		sumXYZ: func(ctx context.Context, env *execution.ScriptEnv) error {
			x := env.Input("x").(int)
			y := env.Input("y").(int)
			z := env.Input("z").(int)
			env.Print("Total:", x+y+z)
			return nil
		},
		echoX: func(ctx context.Context, env *execution.ScriptEnv) error {
			env.Print(env.Input("x"))
			return nil
		},
		echoXAgain: func(ctx context.Context, env *execution.ScriptEnv) error {
			env.Print(env.Input("x"))
			return nil
		},
		studentRPG: func(ctx context.Context, env *execution.ScriptEnv) error {
			env.Choice(2)
			env.Print("Wizard chosen")
			return nil
		},
		refRPG: func(ctx context.Context, env *execution.ScriptEnv) error {
			if env.Choice(2) == 1 {
				env.Print("You chose the Wizard!")
			} else {
				env.Print("You chose the Knight!")
			}
			return nil
		},
		crash: func(ctx context.Context, env *execution.ScriptEnv) error {
			return execution.ScriptError{Message: "ZeroDivisionError: division by zero", Line: 1}
		},
		crashAgain: func(ctx context.Context, env *execution.ScriptEnv) error {
			return execution.ScriptError{Message: "ZeroDivisionError: division by zero", Line: 2}
		},
		nameError: func(ctx context.Context, env *execution.ScriptEnv) error {
			return execution.ScriptError{Message: "NameError: name 'undefined' is not defined", Line: 1}
		},
		spin: func(ctx context.Context, env *execution.ScriptEnv) error {
			<-ctx.Done()
			return ctx.Err()
		},
		anonymous: func(ctx context.Context, env *execution.ScriptEnv) error {
			env.Print(env.Input(""), env.Input("missing"))
			return nil
		},
		twoChoices: func(ctx context.Context, env *execution.ScriptEnv) error {
			env.Print(env.Choice(3), env.Choice(3))
			return nil
		},
	}
}

func newTestRunner(t *testing.T) (*Runner, *execution.ScriptedService) {
	t.Helper()
	service := execution.NewScriptedService(scripts())
	session := execution.NewSession(service, config.ExecutionConfig{Backend: config.LOCAL, RunTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = session.Close() })
	return NewRunner(session), service
}

func numberSlots(names ...string) []config.InputSlot {
	slots := make([]config.InputSlot, 0, len(names))
	for _, name := range names {
		slots = append(slots, config.InputSlot{Name: name, Type: generator.TypeNumber})
	}
	return slots
}

func labels(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Label())
	}
	return out
}

func TestRunner_EquivalentPrograms(t *testing.T) {
	runner, service := newTestRunner(t)

	results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
		StudentCode:   echoXAgain,
		ReferenceCode: echoX,
		Problem:       config.Problem{ID: "echo", Inputs: numberSlots("x")},
		MaxRuns:       3,
	})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"seed 1", "seed 2", "seed 3"}, labels(results))
	assert.Empty(t, Failures(results))
	for i, r := range results {
		seed := i + 1
		assert.Equal(t, SourceSeed, r.Source)
		assert.Equal(t, seed, r.Seed)
		assert.Equal(t, []InputUse{{Name: "x", Value: generator.Number(seed), Index: 0}}, r.Student.Inputs)
		assert.Equal(t, r.Student.Inputs, r.Reference.Inputs)
		assert.Equal(t, fmt.Sprintf("%d\n", generator.Number(seed)), r.Reference.Output)
	}
	assert.Equal(t, 6, service.Executions())
	assert.Equal(t, 6, service.Resets())
	assert.Equal(t, []string{echoXAgain, echoX, echoXAgain, echoX, echoXAgain, echoX}, service.Programs())
}

func TestRunner_RunOrder(t *testing.T) {
	tests := []struct {
		name              string
		useDeclaredValues bool
		wantLabels        []string
		wantValues        []interface{}
	}{
		{
			name:              "fixtures then declared values then seeds",
			useDeclaredValues: true,
			wantLabels:        []string{"fixture 1", "fixture 2", "declared values", "seed 1", "seed 2"},
			wantValues:        []interface{}{3, 4, 7, generator.Number(1), generator.Number(2)},
		},
		{
			name:       "declared values disabled",
			wantLabels: []string{"fixture 1", "fixture 2", "seed 1", "seed 2"},
			wantValues: []interface{}{3, 4, generator.Number(1), generator.Number(2)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, _ := newTestRunner(t)

			results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
				StudentCode:   echoX,
				ReferenceCode: echoX,
				Problem: config.Problem{
					ID:     "echo",
					Inputs: []config.InputSlot{{Name: "x", Type: generator.TypeNumber, Value: 7}},
				},
				MaxRuns: 2,
				Fixtures: []config.Fixture{
					{Inputs: map[string]interface{}{"x": 3}},
					{Inputs: map[string]interface{}{"x": 4}},
				},
				UseDeclaredValues: tt.useDeclaredValues,
			})

			require.NoError(t, err)
			assert.Equal(t, tt.wantLabels, labels(results))
			values := make([]interface{}, 0, len(results))
			for _, r := range results {
				require.Len(t, r.Student.Inputs, 1)
				values = append(values, r.Student.Inputs[0].Value)
				assert.True(t, r.Passed, r.Label())
			}
			assert.Equal(t, tt.wantValues, values)
			assert.Equal(t, 1, results[1].FixtureIndex)
			require.NotNil(t, results[1].Fixture)
			assert.Equal(t, 4, results[1].Fixture.Inputs["x"])
		})
	}
}

func TestRunner_DefaultMaxRuns(t *testing.T) {
	runner, _ := newTestRunner(t)

	results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
		StudentCode:   echoX,
		ReferenceCode: echoX,
		Problem:       config.Problem{ID: "echo", Inputs: numberSlots("x")},
	})

	require.NoError(t, err)
	require.Len(t, results, config.DefaultMaxRuns)
	assert.Equal(t, config.DefaultMaxRuns, results[len(results)-1].Seed)
}

func TestRunner_ChoiceMismatch(t *testing.T) {
	runner, _ := newTestRunner(t)

	results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
		StudentCode:   studentRPG,
		ReferenceCode: refRPG,
		Problem:       config.Problem{ID: "rpg"},
		MaxRuns:       1,
		Fixtures:      []config.Fixture{{Choices: []int{1}}},
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	fixture := results[0]
	assert.False(t, fixture.Passed)
	assert.Equal(t, []ChoiceUse{{Choice: 1, Options: 2, Index: 0}}, fixture.Student.Choices)
	assert.Equal(t, fixture.Student.Choices, fixture.Reference.Choices)
	assert.Equal(t, "Wizard chosen\n", fixture.Student.Output)
	assert.Equal(t, "You chose the Wizard!\n", fixture.Reference.Output)
	assert.Len(t, Failures(results), 2)
}

func TestRunner_PartialInputConsumption(t *testing.T) {
	runner, _ := newTestRunner(t)

	results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
		StudentCode:   sumXY,
		ReferenceCode: sumXYZ,
		Problem:       config.Problem{ID: "sum", Inputs: numberSlots("x", "y", "z")},
		MaxRuns:       1,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.False(t, r.Passed)

	x := generator.Number(1)
	y := generator.Number(1)
	z := generator.Number(1)
	assert.Equal(t, []InputUse{
		{Name: "x", Value: x, Index: 0},
		{Name: "y", Value: y, Index: 1},
	}, r.Student.Inputs)
	assert.Equal(t, []InputUse{
		{Name: "x", Value: x, Index: 0},
		{Name: "y", Value: y, Index: 1},
		{Name: "z", Value: z, Index: 2},
	}, r.Reference.Inputs)
	assert.Equal(t, fmt.Sprintf("%d\n", x+y), r.Student.Output)
	assert.Equal(t, fmt.Sprintf("Total: %d\n", x+y+z), r.Reference.Output)
}

func TestRunner_AnonymousAndUndeclaredInputs(t *testing.T) {
	runner, _ := newTestRunner(t)

	results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
		StudentCode:   anonymous,
		ReferenceCode: anonymous,
		Problem: config.Problem{
			ID:     "anon",
			Inputs: []config.InputSlot{{Name: "word", Type: generator.TypeString, Value: "owl"}},
		},
		MaxRuns:           1,
		UseDeclaredValues: true,
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	declared := results[0]
	assert.Equal(t, SourceDeclared, declared.Source)
	assert.True(t, declared.Passed)
	assert.Equal(t, []InputUse{
		{Name: "", Value: "owl", Index: 0},
		{Name: "missing", Value: nil, Index: -1},
	}, declared.Student.Inputs)
	assert.Equal(t, "owl None\n", declared.Student.Output)
	assert.Equal(t, "hello None\n", results[1].Student.Output)
}

func TestRunner_FixtureWithoutSlots(t *testing.T) {
	runner, _ := newTestRunner(t)

	results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
		StudentCode:   anonymous,
		ReferenceCode: anonymous,
		Problem:       config.Problem{ID: "anon"},
		MaxRuns:       1,
		Fixtures:      []config.Fixture{{Inputs: map[string]interface{}{"b": 2, "a": 1}}},
	})

	require.NoError(t, err)
	assert.Equal(t, "1 None\n", results[0].Student.Output)
	assert.Equal(t, -1, results[0].Student.Inputs[0].Index)
	assert.Equal(t, "None None\n", results[1].Student.Output)
}

func TestRunner_PinnedChoices(t *testing.T) {
	runner, _ := newTestRunner(t)

	results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
		StudentCode:   twoChoices,
		ReferenceCode: twoChoices,
		Problem:       config.Problem{ID: "menu"},
		MaxRuns:       1,
		Fixtures: []config.Fixture{
			{Choices: []int{2}},
			{Choices: []int{9, 3}},
		},
	})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []ChoiceUse{
		{Choice: 2, Options: 3, Index: 0},
		{Choice: generator.Choice(0, 1, 3), Options: 3, Index: 1},
	}, results[0].Student.Choices)
	assert.Equal(t, []ChoiceUse{
		{Choice: 3, Options: 3, Index: 0},
		{Choice: 3, Options: 3, Index: 1},
	}, results[1].Student.Choices)
	assert.Equal(t, []ChoiceUse{
		{Choice: generator.Choice(1, 0, 3), Options: 3, Index: 0},
		{Choice: generator.Choice(1, 1, 3), Options: 3, Index: 1},
	}, results[2].Student.Choices)
}

func TestRunner_FixtureExpectedOutput(t *testing.T) {
	tests := []struct {
		name       string
		expected   utils.StringSet
		wantPassed bool
	}{
		{name: "matching expected output", expected: utils.NewStringSet("9", "nine"), wantPassed: true},
		{name: "expected output ignores surrounding whitespace", expected: utils.NewStringSet(" 9 \n"), wantPassed: true},
		{name: "reference agrees but expected output differs", expected: utils.NewStringSet("10"), wantPassed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, _ := newTestRunner(t)
			expected := tt.expected

			results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
				StudentCode:   echoXAgain,
				ReferenceCode: echoX,
				Problem:       config.Problem{ID: "echo", Inputs: numberSlots("x")},
				MaxRuns:       1,
				Fixtures:      []config.Fixture{{Inputs: map[string]interface{}{"x": 9}, ExpectedOutput: &expected}},
			})

			require.NoError(t, err)
			assert.Equal(t, tt.wantPassed, results[0].Passed)
			assert.True(t, results[1].Passed)
		})
	}
}

func TestRunner_Errors(t *testing.T) {
	tests := []struct {
		name       string
		student    string
		reference  string
		wantPassed bool
	}{
		{name: "identical errors pass", student: crashAgain, reference: crash, wantPassed: true},
		{name: "different errors fail", student: nameError, reference: crash, wantPassed: false},
		{name: "student error fails", student: crash, reference: echoX, wantPassed: false},
		{name: "reference error fails", student: echoX, reference: crash, wantPassed: false},
		{name: "timeout never passes", student: spin, reference: spin, wantPassed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, _ := newTestRunner(t)

			results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
				StudentCode:   tt.student,
				ReferenceCode: tt.reference,
				Problem:       config.Problem{ID: "p", Inputs: numberSlots("x")},
				MaxRuns:       1,
			})

			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.wantPassed, results[0].Passed)
		})
	}
}

func TestRunner_ServiceFailureAbortsRun(t *testing.T) {
	runner, service := newTestRunner(t)
	service.ExecuteErrors = []error{nil, nil, nil, fmt.Errorf("%w: container vanished", execution.ErrServiceUnavailable)}

	results, err := runner.Run(context.Background(), testutils.NewTestLogger(t), Request{
		StudentCode:   echoX,
		ReferenceCode: echoX,
		Problem:       config.Problem{ID: "echo", Inputs: numberSlots("x")},
		MaxRuns:       5,
	})

	require.ErrorIs(t, err, execution.ErrServiceUnavailable)
	assert.ErrorContains(t, err, "reference run for seed 2")
	assert.Len(t, results, 1)
	assert.Equal(t, 4, service.Executions())
}

func TestRunner_CancelledContext(t *testing.T) {
	runner, service := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := runner.Run(ctx, testutils.NewTestLogger(t), Request{
		StudentCode:   echoX,
		ReferenceCode: echoX,
		Problem:       config.Problem{ID: "echo", Inputs: numberSlots("x")},
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Zero(t, service.Executions())
}

func TestCompare(t *testing.T) {
	ok := func(output string) Execution {
		return Execution{Outcome: execution.Outcome{Status: execution.Succeeded, Output: output}}
	}
	failed := func(msg string) Execution {
		return Execution{Outcome: execution.Outcome{Status: execution.Failed, Error: msg}}
	}
	timedOut := Execution{Outcome: execution.Outcome{Status: execution.TimedOut, Output: "x\n"}}

	tests := []struct {
		name      string
		student   Execution
		reference Execution
		expected  []string
		want      bool
	}{
		{name: "equal output", student: ok("15\n"), reference: ok("15\n"), want: true},
		{name: "equal after trimming", student: ok("  15\n\n"), reference: ok("15"), want: true},
		{name: "inner whitespace matters", student: ok("1  5\n"), reference: ok("1 5\n"), want: false},
		{name: "different output", student: ok("15\n"), reference: ok("15.0\n"), want: false},
		{name: "expected output matches", student: ok("15\n"), reference: ok("15\n"), expected: []string{"15"}, want: true},
		{name: "expected output differs", student: ok("15\n"), reference: ok("15\n"), expected: []string{"16"}, want: false},
		{name: "identical errors", student: failed("ValueError: x"), reference: failed("ValueError: x"), want: true},
		{name: "different errors", student: failed("ValueError: x"), reference: failed("ValueError: y"), want: false},
		{name: "student fails", student: failed("ValueError: x"), reference: ok("15\n"), want: false},
		{name: "reference fails", student: ok("15\n"), reference: failed("ValueError: x"), want: false},
		{name: "timeouts", student: timedOut, reference: timedOut, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.student, tt.reference, tt.expected))
		})
	}
}

func TestResult_Label(t *testing.T) {
	assert.Equal(t, "fixture 3", Result{Source: SourceFixture, FixtureIndex: 2}.Label())
	assert.Equal(t, "declared values", Result{Source: SourceDeclared}.Label())
	assert.Equal(t, "seed 7", Result{Source: SourceSeed, Seed: 7}.Label())
}

func TestRunner_Preview(t *testing.T) {
	runner, service := newTestRunner(t)
	problem := config.Problem{
		ID: "sum",
		Inputs: []config.InputSlot{
			{Name: "x", Type: generator.TypeNumber, Value: 40},
			{Name: "y", Type: generator.TypeNumber},
		},
	}

	run, err := runner.Preview(context.Background(), testutils.NewTestLogger(t), sumXY, problem)

	require.NoError(t, err)
	assert.Equal(t, execution.Succeeded, run.Status)
	assert.Equal(t, fmt.Sprintf("%d\n", 40+generator.Values(problem.Slots(), 1)[1].Value.(int)), run.Output)
	assert.Equal(t, []InputUse{{Name: "x", Value: 40, Index: 0}, {Name: "y", Value: generator.Values(problem.Slots(), 1)[1].Value, Index: 1}}, run.Inputs)
	assert.Equal(t, 1, service.Executions())
}
