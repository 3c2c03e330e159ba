// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/petmal/codegrade/runners"
)

// NewSummaryLogFormatter creates a new formatter that outputs results as an ASCII table summary.
func NewSummaryLogFormatter() Formatter {
	return &summaryLogFormatter{}
}

type summaryLogFormatter struct{}

func (f summaryLogFormatter) FileExt() string {
	return "summary.log"
}

func (f summaryLogFormatter) Write(results runners.Results, out io.Writer) error {
	tab := tabwriter.NewWriter(out, 0, 0, 1, ' ', tabwriter.Debug)
	if _, err := fmt.Fprintf(tab, "Backend\t%s\t%s\t%s\t%s\tScore (%%)\tPass Rate (%%)\tError Rate (%%)\tTotal Duration\t\n", Passed, Failed, Error, Skipped); err != nil {
		return fmt.Errorf("%w: %v", ErrPrintResults, err)
	}
	if err := ForEachOrdered(results, func(backend string, _ []runners.RunResult) error {
		resultsByKind := results.BackendResultsByKind(backend)
		if _, err := fmt.Fprintf(tab, "%s\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%s\t\n",
			backend,
			CountByKind(resultsByKind, runners.Success),
			CountByKind(resultsByKind, runners.Failure),
			CountByKind(resultsByKind, runners.Error),
			CountByKind(resultsByKind, runners.Skipped),
			Percent(Score(resultsByKind)),
			Percent(PassRate(resultsByKind)),
			Percent(ErrorRate(resultsByKind)),
			RoundToMS(TotalDuration(resultsByKind, runners.Success, runners.Failure, runners.Error))); err != nil {
			return fmt.Errorf("%w: %v", ErrPrintResults, err)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := tab.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrPrintResults, err)
	}
	return nil
}
