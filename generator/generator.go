// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package generator derives reproducible input values and choice selections from an
// integer seed. Every function is pure: the same arguments always produce the same result,
// which keeps failure messages stable between grading runs.
package generator

import (
	"math"
)

// Input slot type tags understood by Value.
const (
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeString  = "string"
)

// Chained-seed and linear congruential constants.
const (
	seedStride    = 1000
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
	slotSeedStep  = 20
	numberSpread  = 201
	numberOffset  = 100
)

var (
	simpleNumbers = []int{0, 1, 2, 5, 10, -1, -5, 100, -100, 50}
	simpleStrings = []string{"hello", "world", "test", "input", "value", "data", "user", "name", "code", "result"}
)

// Slot is a declared input slot as seen by the generator.
type Slot struct {
	Name string
	Type string
}

// NamedValue is a generated value bound to a slot name.
type NamedValue struct {
	Name  string
	Value any
}

// NextRandom returns a deterministic number in [0, 1) for non-negative seeds.
// It is computed in integer arithmetic and matches ((seed*1000+index)*9301+49297) mod 233280 / 233280.
func NextRandom(seed int, index int) float64 {
	state := int64(seed)*seedStride + int64(index)
	return float64((state*lcgMultiplier+lcgIncrement)%lcgModulus) / lcgModulus
}

// Choice returns the 1-based option selected for the callIndex-th choice request of a run.
// The result is always within [1, n]; n below 1 is treated as a single option.
func Choice(seed int, callIndex int, n int) int {
	if n < 1 {
		n = 1
	}
	return wrapIndex(int(math.Floor(NextRandom(seed, callIndex)*float64(n))), n) + 1
}

// Number returns the numeric input for seed.
// Seeds 1 to 10 map onto a fixed table of simple values.
func Number(seed int) int {
	if seed >= 1 && seed <= len(simpleNumbers) {
		return simpleNumbers[seed-1]
	}
	return int(math.Floor(NextRandom(seed, 0)*numberSpread)) - numberOffset
}

// Boolean returns the boolean input for seed: false for seed 1, true for seed 2.
func Boolean(seed int) bool {
	switch seed {
	case 1:
		return false
	case 2:
		return true
	}
	return NextRandom(seed, 0) < 0.5
}

// String returns the string input for seed, always one of a fixed list of words.
func String(seed int) string {
	if seed >= 1 && seed <= len(simpleStrings) {
		return simpleStrings[seed-1]
	}
	n := len(simpleStrings)
	return simpleStrings[wrapIndex(int(math.Floor(NextRandom(seed, 0)*float64(n))), n)]
}

// Value generates a value for the given slot type.
// Unknown types yield seed-1 for seeds up to 10 and seed mod 100 otherwise.
func Value(slotType string, seed int) any {
	switch slotType {
	case TypeNumber:
		return Number(seed)
	case TypeBoolean:
		return Boolean(seed)
	case TypeString:
		return String(seed)
	default:
		if seed <= 10 {
			return seed - 1
		}
		return seed % 100
	}
}

// Values generates one value per slot. The first slot uses seed and each following slot
// uses floor(previous/20)+1, so slots receive distinct but reproducible values.
// Slots without a name are skipped and do not advance the seed.
func Values(slots []Slot, seed int) []NamedValue {
	values := make([]NamedValue, 0, len(slots))
	current := seed
	for _, slot := range slots {
		if slot.Name == "" {
			continue
		}
		values = append(values, NamedValue{Name: slot.Name, Value: Value(slot.Type, current)})
		current = floorDiv(current, slotSeedStep) + 1
	}
	return values
}

func floorDiv(a int, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func wrapIndex(i int, n int) int {
	return ((i % n) + n) % n
}
