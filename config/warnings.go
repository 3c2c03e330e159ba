// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package config

import (
	"fmt"
	"strings"
)

// AuthoringWarning describes a worksheet problem that loads fine but will likely confuse learners or graders.
type AuthoringWarning struct {
	// ProblemID identifies the affected problem.
	ProblemID string
	// Message describes the issue.
	Message string
}

func (w AuthoringWarning) String() string {
	return fmt.Sprintf("problem '%s': %s", w.ProblemID, w.Message)
}

// Warnings reports authoring issues of every problem in the worksheet, in problem order.
func (w Worksheet) Warnings() []AuthoringWarning {
	warnings := []AuthoringWarning{}
	for _, problem := range w.Problems {
		for _, message := range problem.Warnings() {
			warnings = append(warnings, AuthoringWarning{ProblemID: problem.ID, Message: message})
		}
	}
	return warnings
}

// Warnings reports authoring issues of the problem.
func (p Problem) Warnings() []string {
	var messages []string
	if len(p.Rules()) == 0 {
		messages = append(messages, "has no validation rules; any non-trivial program with output is accepted")
	}
	if len(p.Inputs) > 0 && IsNotBlank(p.StarterCode) && !strings.Contains(p.StarterCode, "get_input(") {
		messages = append(messages, "declares inputs but the starter code never calls get_input()")
	}
	for i, rule := range p.Rules() {
		if !rule.Type.IsKnown() {
			messages = append(messages, fmt.Sprintf("rule %d has unknown type '%s'", i+1, rule.Type))
		}
	}
	return messages
}
