// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package utils contains small helpers shared by CodeGrade packages: ordered map
// iteration, line splitting, lenient JSON repair and JSON schema validation.
package utils

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaResourceName = "schema.json"

var (
	// ErrInvalidJSONSchema indicates that a schema document could not be compiled.
	ErrInvalidJSONSchema = errors.New("invalid JSON schema")
	// ErrSchemaValidation indicates that a value does not conform to a schema.
	ErrSchemaValidation = errors.New("schema validation failed")
	// ErrRepairJSON indicates that text could not be repaired into valid JSON.
	ErrRepairJSON = errors.New("failed to repair JSON")
)

var (
	lineBreakRegex  = regexp.MustCompile(`\r?\n`)
	codeFenceRegex  = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*(.*?)\\s*```\\s*$")
	panicErrorTempl = "recovered from panic: %v"
)

// NoPanic calls fn and converts a panic into an error.
func NoPanic(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf(panicErrorTempl, p)
		}
	}()
	return fn()
}

// SortedKeys returns the union of keys of all given maps in ascending order.
func SortedKeys[K cmp.Ordered, V any](m ...map[K]V) []K {
	keys := make(map[K]struct{})
	for _, current := range m {
		for k := range current {
			keys[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(keys))
}

// SplitLines splits text on LF or CRLF line breaks.
// An empty string yields an empty slice.
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	return lineBreakRegex.Split(text, -1)
}

// CountOccurrences returns the number of non-overlapping occurrences of substr in text.
// An empty substr never matches.
func CountOccurrences(text string, substr string) int {
	if substr == "" {
		return 0
	}
	return strings.Count(text, substr)
}

// RepairTextJSON returns a syntactically valid JSON document recovered from content.
// Markdown code fences around the document are removed first.
func RepairTextJSON(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty content", ErrRepairJSON)
	}
	if match := codeFenceRegex.FindStringSubmatch(content); match != nil {
		content = match[1]
	}
	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRepairJSON, err)
	}
	return repaired, nil
}

// ValidateAgainstSchema compiles schema and validates each of values against it.
// Values may be any data that encodes to JSON.
func ValidateAgainstSchema(schema map[string]interface{}, values ...interface{}) error {
	doc, err := toJSONValue(schema)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSONSchema, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResourceName, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSONSchema, err)
	}
	compiled, err := compiler.Compile(schemaResourceName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSONSchema, err)
	}

	for i, value := range values {
		instance, err := toJSONValue(value)
		if err != nil {
			return fmt.Errorf("%w: value %d: %v", ErrSchemaValidation, i, err)
		}
		if err := compiled.Validate(instance); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
	}
	return nil
}

func jsonMarshal(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

// toJSONValue converts arbitrary data into the generic form expected by the schema validator.
func toJSONValue(value interface{}) (interface{}, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
}
