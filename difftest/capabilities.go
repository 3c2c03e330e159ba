// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package difftest

import (
	"slices"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/execution"
	"github.com/petmal/codegrade/generator"
)

// inputSource resolves input requests of a single run.
type inputSource struct {
	values    map[string]interface{}
	anonymous interface{}
	slotNames []string
}

func (s inputSource) resolve(name string) (interface{}, int) {
	if name == "" {
		return s.anonymous, anonymousIndex(s.slotNames)
	}
	// Undeclared names resolve to nil.
	return s.values[name], slices.Index(s.slotNames, name)
}

func anonymousIndex(slotNames []string) int {
	if len(slotNames) > 0 {
		return 0
	}
	return -1
}

// newNamedInputs answers a zero-argument request with the value of the first declared slot.
func newNamedInputs(values map[string]interface{}, slotNames []string) inputSource {
	source := inputSource{values: values, slotNames: slotNames}
	if len(slotNames) > 0 {
		source.anonymous = values[slotNames[0]]
	}
	return source
}

// newFixtureInputs answers a zero-argument request with the fixture value of the first declared slot,
// or with the first fixture value when the problem declares no slots.
func newFixtureInputs(fixture config.Fixture, slotNames []string) inputSource {
	source := inputSource{values: fixture.Inputs, slotNames: slotNames}
	switch {
	case len(slotNames) > 0:
		source.anonymous = fixture.Inputs[slotNames[0]]
	case len(fixture.Inputs) > 0:
		source.anonymous = fixture.Inputs[fixture.InputNames(nil)[0]]
	}
	return source
}

// choiceSource selects the option for the callIndex-th choice request among n options.
type choiceSource func(callIndex int, n int) int

func seededChoices(seed int) choiceSource {
	return func(callIndex int, n int) int {
		return generator.Choice(seed, callIndex, n)
	}
}

// pinnedChoices replays the given choices in order, clamped to the offered range,
// and falls back to the unseeded generator once they run out.
func pinnedChoices(pinned []int) choiceSource {
	fallback := seededChoices(declaredChoiceSeed)
	return func(callIndex int, n int) int {
		if callIndex >= len(pinned) {
			return fallback(callIndex, n)
		}
		return min(max(pinned[callIndex], 1), max(n, 1))
	}
}

// recorder builds the capabilities of one run and records what the program consumed.
type recorder struct {
	inputs    inputSource
	choose    choiceSource
	execution Execution
}

func (rec *recorder) capabilities() execution.Capabilities {
	return execution.Capabilities{
		Input: func(name string) interface{} {
			value, index := rec.inputs.resolve(name)
			rec.execution.Inputs = append(rec.execution.Inputs, InputUse{Name: name, Value: value, Index: index})
			return value
		},
		Choice: func(options int) int {
			callIndex := len(rec.execution.Choices)
			choice := rec.choose(callIndex, options)
			rec.execution.Choices = append(rec.execution.Choices, ChoiceUse{Choice: choice, Options: options, Index: callIndex})
			return choice
		},
		Restart: func() {
			rec.execution = Execution{}
		},
	}
}
