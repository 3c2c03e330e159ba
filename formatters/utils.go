// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"cmp"
	"fmt"
	"html"
	"html/template"
	"math"
	"strings"
	"time"

	"github.com/petmal/codegrade/pkg/utils"
	"github.com/petmal/codegrade/runners"
)

// Result status labels.
const (
	Passed  = "Passed"
	Failed  = "Failed"
	Error   = "Error"
	Skipped = "Skipped"
)

// htmlDiffContentPrefix introduces the output diff of a failed answer in HTML reports.
const htmlDiffContentPrefix = "<strong>Expected vs. your output:</strong><br>"

var timestamp = func(t time.Time) string {
	return t.Format(time.RFC1123Z)
}

// ToStatus returns the status label of a result kind.
func ToStatus(kind runners.ResultKind) string {
	switch kind {
	case runners.Success:
		return Passed
	case runners.Failure:
		return Failed
	case runners.Error:
		return Error
	case runners.Skipped:
		return Skipped
	}
	return fmt.Sprintf("Unknown (%d)", kind)
}

// CountByKind returns the number of results of the given kind.
func CountByKind(resultsByKind map[runners.ResultKind][]runners.RunResult, kind runners.ResultKind) int {
	return len(resultsByKind[kind])
}

// TotalDuration sums the durations of results of the included kinds.
func TotalDuration(resultsByKind map[runners.ResultKind][]runners.RunResult, include ...runners.ResultKind) (total time.Duration) {
	for _, kind := range include {
		for _, result := range resultsByKind[kind] {
			total += result.Duration
		}
	}
	return
}

// Score returns the fraction of all problems whose answer was accepted.
// Skipped problems count as not accepted.
func Score(resultsByKind map[runners.ResultKind][]runners.RunResult) float64 {
	return ratio(CountByKind(resultsByKind, runners.Success),
		CountByKind(resultsByKind, runners.Success)+
			CountByKind(resultsByKind, runners.Failure)+
			CountByKind(resultsByKind, runners.Error)+
			CountByKind(resultsByKind, runners.Skipped))
}

// PassRate returns the fraction of graded answers that were accepted.
func PassRate(resultsByKind map[runners.ResultKind][]runners.RunResult) float64 {
	return ratio(CountByKind(resultsByKind, runners.Success),
		CountByKind(resultsByKind, runners.Success)+CountByKind(resultsByKind, runners.Failure))
}

// ErrorRate returns the fraction of submitted answers that could not be graded.
func ErrorRate(resultsByKind map[runners.ResultKind][]runners.RunResult) float64 {
	return ratio(CountByKind(resultsByKind, runners.Error),
		CountByKind(resultsByKind, runners.Success)+
			CountByKind(resultsByKind, runners.Failure)+
			CountByKind(resultsByKind, runners.Error))
}

func ratio(part int, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

// Percent converts a fraction to a percentage.
func Percent(fraction float64) float64 {
	return fraction * 100
}

// FormatFeedback returns the feedback blocks of a result: the message followed by
// failure details, the hint and the output diff when present.
func FormatFeedback(result runners.RunResult, useHTML bool) []string {
	if result.Kind != runners.Failure {
		return []string{result.Feedback()}
	}

	verdict := result.Verdict
	blocks := []string{verdict.Message}
	if len(verdict.Details) > 0 {
		blocks = append(blocks, strings.Join(verdict.Details, "\n"))
	}
	if verdict.Hint != "" {
		blocks = append(blocks, verdict.Hint)
	}
	if verdict.Diff != "" {
		if useHTML {
			blocks = append(blocks, htmlDiffContentPrefix+utils.DiffHTML(verdict.Expected, verdict.Actual))
		} else {
			blocks = append(blocks, verdict.Diff)
		}
	}
	return blocks
}

// formatFeedbackText returns a single plain text block of the feedback for CSV and other text-based outputs.
func formatFeedbackText(result runners.RunResult) string {
	return strings.TrimSpace(strings.Join(FormatFeedback(result, false), textAnswerSeparator))
}

// ForEachOrdered calls fn for every entry of m in ascending key order and stops at the first error.
func ForEachOrdered[K cmp.Ordered, V any](m map[K]V, fn func(key K, value V) error) error {
	for _, key := range utils.SortedKeys(m) {
		if err := fn(key, m[key]); err != nil {
			return err
		}
	}
	return nil
}

// RoundToMS rounds a duration to the nearest millisecond.
func RoundToMS(value time.Duration) time.Duration {
	return time.Duration(math.Round(float64(value)/float64(time.Millisecond))) * time.Millisecond
}

// Timestamp returns the current time formatted for reports.
func Timestamp() string {
	return timestamp(time.Now())
}

// GroupParagraphs splits lines into paragraphs separated by blank lines.
func GroupParagraphs(lines []string) [][]string {
	paragraphs := [][]string{}
	var current []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}
	return paragraphs
}

// TextToHTML renders plain text as escaped HTML paragraphs with line breaks.
func TextToHTML(text string) template.HTML {
	var buff strings.Builder
	for _, paragraph := range GroupParagraphs(utils.SplitLines(text)) {
		escaped := make([]string, 0, len(paragraph))
		for _, line := range paragraph {
			escaped = append(escaped, html.EscapeString(line))
		}
		buff.WriteString("<p>")
		buff.WriteString(strings.Join(escaped, "<br>"))
		buff.WriteString("</p>")
	}
	return template.HTML(buff.String()) //nolint:gosec
}
