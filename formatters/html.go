// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/petmal/codegrade/pkg/utils"
	"github.com/petmal/codegrade/runners"
	"github.com/petmal/codegrade/version"
)

const templateFile = "templates/html.tmpl"

//go:embed templates/*.tmpl
var templatesFS embed.FS

var currentVersionData = VersionData{
	Name:    version.Name,
	Version: version.GetVersion(),
	Source:  version.GetSource(),
}

// VersionData contains version information included in formatted output.
type VersionData struct {
	// Name is the application name.
	Name string
	// Version is the application version string.
	Version string
	// Source is the application source code URL.
	Source string
}

// BackendSummary aggregates the results of one execution backend.
type BackendSummary struct {
	Passed   int
	Failed   int
	Errors   int
	Skipped  int
	Score    float64
	Duration time.Duration
}

// Summarize aggregates the results of backend.
func Summarize(results runners.Results, backend string) BackendSummary {
	resultsByKind := results.BackendResultsByKind(backend)
	return BackendSummary{
		Passed:   CountByKind(resultsByKind, runners.Success),
		Failed:   CountByKind(resultsByKind, runners.Failure),
		Errors:   CountByKind(resultsByKind, runners.Error),
		Skipped:  CountByKind(resultsByKind, runners.Skipped),
		Score:    Percent(Score(resultsByKind)),
		Duration: RoundToMS(TotalDuration(resultsByKind, runners.Success, runners.Failure, runners.Error)),
	}
}

// FeedbackHTML returns the feedback blocks of a result rendered as HTML.
// The output diff is already HTML; all other blocks are escaped text.
func FeedbackHTML(result runners.RunResult) []template.HTML {
	blocks := FormatFeedback(result, true)
	rendered := make([]template.HTML, 0, len(blocks))
	for _, block := range blocks {
		if strings.HasPrefix(block, htmlDiffContentPrefix) {
			rendered = append(rendered, template.HTML(block)) //nolint:gosec
		} else {
			rendered = append(rendered, TextToHTML(block))
		}
	}
	return rendered
}

// NewHTMLFormatter creates a new formatter that outputs results as an HTML document.
func NewHTMLFormatter() Formatter {
	templ := template.Must(template.New(filepath.Base(templateFile)).Funcs(template.FuncMap{
		"ToStatus":       ToStatus,
		"StatusClass":    func(kind runners.ResultKind) string { return strings.ToLower(ToStatus(kind)) },
		"FeedbackHTML":   FeedbackHTML,
		"SortedBackends": utils.SortedKeys[string, []runners.RunResult],
		"Summarize":      Summarize,
		"RoundToMS":      RoundToMS,
		"Timestamp":      Timestamp,
	}).ParseFS(templatesFS, templateFile))
	return &htmlFormatter{
		templ: templ,
	}
}

type htmlFormatter struct {
	templ *template.Template
}

func (f htmlFormatter) FileExt() string {
	return "html"
}

func (f htmlFormatter) Write(results runners.Results, out io.Writer) error {
	if err := f.templ.Execute(out, struct {
		ResultsData runners.Results
		VersionData VersionData
	}{
		ResultsData: results,
		VersionData: currentVersionData,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPrintResults, err)
	}
	return nil
}
