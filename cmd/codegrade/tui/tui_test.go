// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tui

import (
	"sync"
	"testing"

	"github.com/petmal/codegrade/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockWorksheet() *config.Worksheet {
	return &config.Worksheet{
		Title: "Basics",
		Problems: []config.Problem{
			{ID: "hello", Title: "Say Hello"},
			{ID: "sum", Disabled: true},
			{ID: "loop", Title: "Count Down"},
		},
	}
}

func TestProblemChecklist(t *testing.T) {
	items := problemChecklist(mockWorksheet())
	require.Len(t, items, 4)

	assert.Equal(t, allProblemsLabel, items[0].label)
	assert.True(t, items[0].isParent)
	assert.False(t, items[0].checked)
	assert.Equal(t, []int{1, 2, 3}, items[0].children)

	assert.Equal(t, "hello: Say Hello", items[1].label)
	assert.True(t, items[1].checked)
	assert.Equal(t, "sum", items[2].label)
	assert.False(t, items[2].checked)
	for _, item := range items[1:] {
		assert.Equal(t, 0, item.parentIdx)
	}
}

func TestToggle(t *testing.T) {
	items := problemChecklist(mockWorksheet())

	items = toggle(items, 2)
	assert.True(t, items[2].checked)
	assert.True(t, items[0].checked, "parent is checked once all children are")

	items = toggle(items, 0)
	for _, item := range items {
		assert.False(t, item.checked)
	}

	items = toggle(items, 1)
	assert.True(t, items[1].checked)
	assert.False(t, items[0].checked)
}

func TestApplyProblemSelection(t *testing.T) {
	worksheet := mockWorksheet()
	items := problemChecklist(worksheet)
	items = toggle(items, 1)
	items = toggle(items, 2)

	applyProblemSelection(worksheet, items)

	assert.True(t, worksheet.Problems[0].Disabled)
	assert.False(t, worksheet.Problems[1].Disabled)
	assert.False(t, worksheet.Problems[2].Disabled)
}

func TestConsoleBuffer(t *testing.T) {
	var buffer ConsoleBuffer
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := buffer.Write([]byte("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, "xxxxxxxxxx", buffer.String())
}
