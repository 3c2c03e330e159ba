// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package utils

import (
	"html"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

func semanticDiff(expected string, actual string) (*diffmatchpatch.DiffMatchPatch, []diffmatchpatch.Diff) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)
	return dmp, dmp.DiffCleanupSemantic(diffs)
}

// DiffText returns a patch that turns expected into actual, or expected unchanged when they are equal.
func DiffText(expected string, actual string) string {
	if expected == actual {
		return expected
	}
	dmp, diffs := semanticDiff(expected, actual)
	return dmp.PatchToText(dmp.PatchMake(expected, diffs))
}

// DiffHTML returns an HTML fragment that highlights deletions and insertions between expected and actual.
func DiffHTML(expected string, actual string) string {
	_, diffs := semanticDiff(expected, actual)

	var buff strings.Builder
	for _, diff := range diffs {
		text := html.EscapeString(diff.Text)
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			buff.WriteString(`<ins style="background:#e6ffe6;">`)
			buff.WriteString(text)
			buff.WriteString("</ins>")
		case diffmatchpatch.DiffDelete:
			buff.WriteString(`<del style="background:#ffe6e6;">`)
			buff.WriteString(text)
			buff.WriteString("</del>")
		case diffmatchpatch.DiffEqual:
			buff.WriteString("<span>")
			buff.WriteString(text)
			buff.WriteString("</span>")
		}
	}
	return buff.String()
}
