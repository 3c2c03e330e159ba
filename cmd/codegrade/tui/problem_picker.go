// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tui

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/petmal/codegrade/config"
)

const (
	childIndentation = "    "
	allProblemsLabel = "All Problems"
)

// checkItem represents an item in a checklist.
type checkItem struct {
	label     string
	checked   bool
	isParent  bool
	children  []int // indices of children
	parentIdx int   // index of parent, -1 if no parent
}

// checklistModel is a model for an interactive checklist.
type checklistModel struct {
	uiIsReady bool
	title     string
	items     []checkItem
	cursor    int
	action    UserInputEvent
}

func (m checklistModel) Init() tea.Cmd {
	return nil
}

func (m checklistModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			m.action = Exit
			return m, tea.Quit
		case "q", "esc":
			m.action = Quit
			return m, tea.Quit
		case "enter":
			m.action = Continue
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "space":
			m.items = toggle(m.items, m.cursor)
		}

	case tea.WindowSizeMsg:
		m.uiIsReady = true
	}
	return m, nil
}

// toggle flips the item at idx and keeps parent and children consistent.
func toggle(items []checkItem, idx int) []checkItem {
	items[idx].checked = !items[idx].checked

	if items[idx].isParent {
		for _, childIdx := range items[idx].children {
			items[childIdx].checked = items[idx].checked
		}
	} else if parentIdx := items[idx].parentIdx; parentIdx >= 0 {
		allChecked := true
		for _, childIdx := range items[parentIdx].children {
			if !items[childIdx].checked {
				allChecked = false
				break
			}
		}
		items[parentIdx].checked = allChecked
	}
	return items
}

func (m checklistModel) View() tea.View {
	if !m.uiIsReady {
		return fullScreenView(initializingMsg)
	}

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Margin(0, 0, 1, 0)
	s.WriteString(titleStyle.Render(m.title) + "\n")

	for i, item := range m.items {
		cursor := " "
		if i == m.cursor {
			cursor = ">"
		}

		checked := "[ ]"
		if item.checked {
			checked = "[x]"
		}

		line := fmt.Sprintf("%s %s %s", cursor, checked, item.label)
		if !item.isParent {
			line = childIndentation + line
		}

		if i == m.cursor {
			line = lipgloss.NewStyle().Foreground(lipgloss.Color(highlightColor)).Render(line)
		} else if item.isParent {
			line = lipgloss.NewStyle().Bold(true).Render(line)
		}

		s.WriteString(line + "\n")
	}

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(helpTextColor)).Margin(1, 0, 0, 0)
	s.WriteString(helpStyle.Render("↑/↓: navigate • space: toggle • enter: confirm • q/esc: cancel • ctrl+c: exit"))

	return fullScreenView(s.String())
}

// problemChecklist builds a checklist with one parent item for the whole worksheet
// and one child item per problem.
func problemChecklist(worksheet *config.Worksheet) []checkItem {
	items := []checkItem{{
		label:     allProblemsLabel,
		checked:   true,
		isParent:  true,
		children:  []int{},
		parentIdx: -1,
	}}

	for _, problem := range worksheet.Problems {
		items[0].children = append(items[0].children, len(items))
		items[0].checked = items[0].checked && !problem.Disabled
		items = append(items, checkItem{
			label:     problemLabel(problem),
			checked:   !problem.Disabled,
			children:  []int{},
			parentIdx: 0,
		})
	}
	return items
}

func problemLabel(problem config.Problem) string {
	if config.IsNotBlank(problem.Title) {
		return fmt.Sprintf("%s: %s", problem.ID, problem.Title)
	}
	return problem.ID
}

// applyProblemSelection enables exactly the checked problems.
func applyProblemSelection(worksheet *config.Worksheet, items []checkItem) {
	for i := range worksheet.Problems {
		worksheet.Problems[i].Disabled = !items[i+1].checked
	}
}

// DisplayProblemPicker displays a terminal UI for enabling or disabling worksheet problems.
// It returns the selected user action and an error if the selection fails.
// This function modifies the worksheet directly.
func DisplayProblemPicker(worksheet *config.Worksheet) (UserInputEvent, error) {
	if !IsTerminal() {
		return Exit, fmt.Errorf("%w: %v", ErrInteractiveMode, ErrTerminalRequired)
	}

	model := checklistModel{
		title: "Select Problems: " + worksheet.Title,
		items: problemChecklist(worksheet),
	}

	finalModel, err := tea.NewProgram(model).Run() // blocking call
	if err != nil {
		return Exit, fmt.Errorf("%w: problem selection: %v", ErrInteractiveMode, err)
	}

	checklist := finalModel.(checklistModel)
	if checklist.action == Continue {
		applyProblemSelection(worksheet, checklist.items)
	}

	return checklist.action, nil // if dialog canceled, return without changes
}
