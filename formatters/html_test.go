// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/petmal/codegrade/pkg/testutils"
	"github.com/petmal/codegrade/runners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var timestampLock sync.Mutex
var currentVersionDataLock sync.Mutex

func TestHTMLFormatterWrite(t *testing.T) {
	tests := []struct {
		name    string
		results runners.Results
		want    []string
		notWant []string
	}{
		{
			name:    "format no results",
			results: runners.Results{},
			want: []string{
				"<title>CodeGrade Results</title>",
				"<p>No results.</p>",
				"CodeGrade</a> (testing) on 1985-03-04T22:10:00.",
			},
			notWant: []string{
				`<table class="results">`,
			},
		},
		{
			name:    "format some results",
			results: mockResults,
			want: []string{
				"<h2>docker</h2>",
				"<h2>local</h2>",
				`<tr id="grade-docker-sum">`,
				`<td class="passed">Passed</td>`,
				`<td class="failed">Failed</td>`,
				`<td class="error">Error</td>`,
				`<td class="skipped">Skipped</td>`,
				"<td>25.00</td>",
				"<td>3.5s</td>",
				"<small>Sum Two Numbers</small>",
				"<p>Your output does not match.</p>",
				"<p>a<br>b</p>",
				htmlDiffContentPrefix,
				"<p>execution failed: x &lt; y</p>",
				"<p>No submission.</p>",
			},
			notWant: []string{
				"<p>No results.</p>",
				"@@ -1 +1 @@",
				"&lt;strong&gt;",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutils.SyncCall(&timestampLock, func() {
				// Set fixed timestamp to produce consistent results.
				originalTimestamp := timestamp
				timestamp = func(_ time.Time) string {
					return "1985-03-04T22:10:00"
				}
				defer func() { timestamp = originalTimestamp }()

				testutils.SyncCall(&currentVersionDataLock, func() {
					// Set fixed version metadata to produce consistent results.
					originalCurrentVersionData := currentVersionData
					currentVersionData = VersionData{
						Name:    "CodeGrade",
						Version: "(testing)",
						Source:  "github.com/petmal/codegrade",
					}
					defer func() { currentVersionData = originalCurrentVersionData }()

					formatter := NewHTMLFormatter()
					var out bytes.Buffer
					require.NoError(t, formatter.Write(tt.results, &out))
					testutils.AssertContainsAll(t, out.String(), tt.want)
					testutils.AssertContainsNone(t, out.String(), tt.notWant)
				})
			})
		})
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, BackendSummary{
		Passed:   1,
		Failed:   1,
		Errors:   1,
		Skipped:  1,
		Score:    25,
		Duration: 3500 * time.Millisecond,
	}, Summarize(mockResults, "docker"))
	assert.Equal(t, BackendSummary{}, Summarize(mockResults, "unknown"))
}

func TestHTMLFormatterFileExt(t *testing.T) {
	formatter := NewHTMLFormatter()
	assert.Equal(t, "html", formatter.FileExt())
}
