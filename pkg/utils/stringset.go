// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package utils

import (
	"errors"
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidStringSetValue indicates invalid StringSet definition.
var ErrInvalidStringSetValue = errors.New("invalid string-set value")

// StringSet is an ordered set of unique strings.
// In YAML and JSON it is written either as a single string or as a list of strings.
type StringSet struct {
	values []string
}

// NewStringSet creates a StringSet from items, keeping the first occurrence of each value.
func NewStringSet(items ...string) StringSet {
	seen := make(map[string]struct{}, len(items))
	unique := make([]string, 0, len(items))
	for _, v := range items {
		if _, exists := seen[v]; !exists {
			unique = append(unique, v)
			seen[v] = struct{}{}
		}
	}
	return StringSet{values: unique}
}

// Values returns a copy of the set's values in insertion order.
func (s StringSet) Values() []string {
	return slices.Clone(s.values)
}

// Len returns the number of values in the set.
func (s StringSet) Len() int {
	return len(s.values)
}

// First returns the first value of the set, or an empty string for an empty set.
func (s StringSet) First() string {
	if len(s.values) == 0 {
		return ""
	}
	return s.values[0]
}

// Any returns true if any value in the set satisfies condition.
func (s StringSet) Any(condition func(string) bool) bool {
	return slices.ContainsFunc(s.values, condition)
}

// Map returns a new StringSet with f applied to each value, discarding duplicates.
func (s StringSet) Map(f func(string) string) StringSet {
	mapped := make([]string, len(s.values))
	for i, v := range s.values {
		mapped[i] = f(v)
	}
	return NewStringSet(mapped...)
}

// UnmarshalYAML loads a StringSet from either a string or a list of strings.
func (s *StringSet) UnmarshalYAML(value *yaml.Node) error {
	var items []string
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStringSetValue, err)
		}
		items = append(items, single)
	case yaml.SequenceNode:
		if err := value.Decode(&items); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStringSetValue, err)
		}
	default:
		return fmt.Errorf("%w: must be a string or list of strings", ErrInvalidStringSetValue)
	}
	*s = NewStringSet(items...)
	return nil
}

// MarshalYAML writes a single-value set as a plain string.
func (s StringSet) MarshalYAML() (interface{}, error) {
	if len(s.values) == 1 {
		return s.values[0], nil
	}
	return s.values, nil
}

// MarshalJSON writes a single-value set as a plain string.
func (s StringSet) MarshalJSON() ([]byte, error) {
	if len(s.values) == 1 {
		return jsonMarshal(s.values[0])
	}
	return jsonMarshal(s.Values())
}

// JSONSchema describes the string-or-list encoding.
func (StringSet) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	}
}
