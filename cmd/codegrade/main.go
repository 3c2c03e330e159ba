// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package main provides the command-line interface and the main entry point for CodeGrade.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/petmal/codegrade/cmd/codegrade/tui"
	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/execution"
	"github.com/petmal/codegrade/formatters"
	"github.com/petmal/codegrade/runners"
	"github.com/petmal/codegrade/version"
)

const (
	gradeCommandName           = "grade"
	checkCommandName           = "check"
	schemaCommandName          = "schema"
	helpCommandName            = "help"
	versionCommandName         = "version"
	unsetFlagValue             = "\x00"
	exitCodeBadCommand         = 2
	exitCodeFinishedWithErrors = 3
	defaultConfigFile          = "config.yaml"
	msgInteractiveExited       = "Interactive session exited by user."
)

var (
	commandDoc = map[string]string{
		gradeCommandName:   "grade the submissions against the worksheet",
		checkCommandName:   "check the worksheet for errors and authoring problems",
		schemaCommandName:  "print the worksheet JSON schema",
		helpCommandName:    "show help",
		versionCommandName: "show version",
	}
)

var (
	csvFormatter        = formatters.NewCSVFormatter()
	htmlFormatter       = formatters.NewHTMLFormatter()
	logFormatter        = formatters.NewLogFormatter()
	summaryLogFormatter = formatters.NewSummaryLogFormatter()
)

var (
	configFilePath     = flag.String("config", defaultConfigFile, "configuration file path")
	worksheetFilePath  = flag.String("worksheet", unsetFlagValue, "worksheet file path")
	submissionsDirPath = flag.String("submissions", unsetFlagValue, "directory with submitted programs named <problem-id>.py")
	outputFileDir      = flag.String("output-dir", unsetFlagValue, "results output directory")
	outputFileBasename = flag.String("output-basename", unsetFlagValue, "base filename for results; replace if exists; blank = stdout")
	formatHTML         = formatFlag(htmlFormatter, true)
	formatCSV          = formatFlag(csvFormatter, false)
	logFilePath        = flag.String("log", unsetFlagValue, "log file path; append if exists; blank = stdout")
	verbose            = flag.Bool("verbose", false, "enable detailed logging")
	debug              = flag.Bool("debug", false, "enable low-level debug logging")
	interactive        = flag.Bool("interactive", false, "enable interactive interface for problem selection, and real-time progress monitoring")
	strictRules        = flag.Bool("strict-rules", false, "fail validation rules of unknown type instead of skipping them")
)

var newService = execution.NewService

func formatFlag(formatter formatters.Formatter, defaultValue bool) *bool {
	fileExt := formatter.FileExt()
	return flag.Bool(strings.ToLower(fileExt), defaultValue, fmt.Sprintf("generate %s output", strings.ToUpper(fileExt)))
}

var stderr = zerolog.New(zerolog.NewConsoleWriter(
	func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
		w.TimeFormat = time.DateTime
		w.NoColor = true
	},
)).Level(zerolog.TraceLevel).With().Timestamp().Logger()

func init() {
	flag.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage: %s [options] [command]\n", os.Args[0])
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Commands:")
		printCommandHelp(w, gradeCommandName, checkCommandName, schemaCommandName, helpCommandName, versionCommandName)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		flag.PrintDefaults()
	}
}

func printCommandHelp(out io.Writer, commands ...string) {
	for _, cmdName := range commands {
		formatCommandHelp(out, cmdName, commandDoc[cmdName])
	}
}

func formatCommandHelp(out io.Writer, name string, usage string) {
	fmt.Fprintf(out, "  %s\n", name)
	fmt.Fprintf(out, "        %s\n", usage)
}

func main() {
	flag.Parse()
	for _, arg := range flag.Args() {
		switch arg {
		case helpCommandName:
			printHelp(os.Stdout)
			return
		case versionCommandName:
			printVersion(os.Stdout)
			return
		case schemaCommandName:
			if err := printSchema(os.Stdout); err != nil {
				stderr.Fatal().Err(err).Send()
			}
			return
		case checkCommandName:
			exitOnFailure(check(context.Background()))
			return
		case gradeCommandName:
			exitOnFailure(grade(context.Background()))
			return
		}
	}
	printHelp(nil) // os.Stderr
	os.Exit(exitCodeBadCommand)
}

func exitOnFailure(ok bool, err error) {
	if err != nil {
		stderr.Fatal().Err(err).Send()
	} else if !ok {
		os.Exit(exitCodeFinishedWithErrors)
	}
}

func grade(ctx context.Context) (ok bool, err error) {
	configPath := filepath.Clean(*configFilePath)
	workingDir, configDir, err := getWorkingDirectories(configPath)
	if err != nil {
		return
	}
	fmt.Printf("Current working directory: %s\n", workingDir)
	fmt.Printf("Configuration directory: %s\n", configDir)

	// Load configuration.
	fmt.Printf("Loading configuration from file: %s\n", configPath)
	cfg, err := config.LoadConfigFromFile(ctx, configPath)
	if err != nil {
		return
	}

	// Load worksheet.
	worksheetFile := config.CleanIfNotBlank(getFlagValueIfSet(worksheetFilePath, config.MakeAbs(configDir, cfg.Config.WorksheetSource)))
	fmt.Printf("Loading worksheet from file: %s\n", worksheetFile)
	worksheet, err := config.LoadWorksheetFromFile(ctx, worksheetFile)
	if err != nil {
		return
	}
	for _, warning := range worksheet.Warnings() {
		stderr.Warn().Msg(warning.String())
	}

	// Interactive configuration if enabled.
	if isEnabled(interactive) {
		if userAction, err := tui.DisplayProblemPicker(worksheet); err != nil { // blocking call
			return ok, err
		} else if userAction == tui.Exit { //nolint:gocritic
			fmt.Println(msgInteractiveExited)
			return true, nil
		} else if userAction == tui.Quit {
			fmt.Println("No changes applied: problem selection was cancelled.")
		} else {
			fmt.Println("Changes applied: selected problems have been enabled.")
		}
	}

	// Filter out disabled problems.
	targetProblems := worksheet.GetEnabledProblems()
	if len(targetProblems) < 1 {
		fmt.Println("Nothing to grade: all problems are disabled.")
		return true, nil
	}

	// Load submissions; they default to the worksheet directory.
	submissionsDir := config.CleanIfNotBlank(getFlagValueIfSet(submissionsDirPath, submissionsDirOrDefault(configDir, cfg.Config.SubmissionsDir, worksheetFile)))
	fmt.Printf("Loading submissions from directory: %s\n", submissionsDir)
	submissions, err := config.LoadSubmissionsFromDir(ctx, submissionsDir)
	if err != nil {
		return
	}

	// Time to be used to resolve name patterns.
	timeRef := time.Now()

	// Create output files.
	outputWriters := make(map[formatters.Formatter]io.Writer)
	for _, formatter := range enabledFormatters() {
		outputWriters[formatter] = os.Stdout // default
		if fileName := getFlagValueIfSet(outputFileBasename, cfg.Config.OutputBaseName); config.IsNotBlank(fileName) {
			fileName = fmt.Sprintf("%s.%s", fileName, formatter.FileExt())
			if fp, outputPath, err := createOutputFile(config.MakeAbs(
				getFlagValueIfSet(outputFileDir, config.MakeAbs(configDir, cfg.Config.OutputDir)), fileName), timeRef, false); err != nil {
				return ok, err
			} else if fp != nil {
				defer fp.Close()
				fmt.Printf("Results in %s format will be saved to: %s\n", strings.ToUpper(formatter.FileExt()), outputPath)
				outputWriters[formatter] = fp
			}
		}
	}

	// Configure logger.
	var consoleBuffer io.Writer = os.Stdout
	if isEnabled(interactive) {
		consoleBuffer = &tui.ConsoleBuffer{}
	}
	logWriters := []io.Writer{zerolog.NewConsoleWriter(
		func(w *zerolog.ConsoleWriter) {
			w.Out = consoleBuffer
			w.TimeFormat = time.DateTime
			w.NoColor = false
		},
	)}
	logFile := os.Stdout
	if fp, logPath, err := createOutputFile(getFlagValueIfSet(logFilePath, config.MakeAbs(configDir, cfg.Config.LogFile)), timeRef, true); err != nil {
		return ok, err
	} else if fp != nil {
		fmt.Printf("Log messages will be saved to: %s\n", logPath)
		defer fp.Close()
		logFile = fp
		logWriters = append(logWriters, zerolog.NewConsoleWriter(
			func(w *zerolog.ConsoleWriter) {
				w.Out = logFile
				w.TimeFormat = time.DateTime
				w.NoColor = true
			},
		)) // format the file output as plain-text without color codes
	}
	logger := zerolog.New(zerolog.MultiLevelWriter(logWriters...)).Level(getEnabledLogLevel()).With().Timestamp().Logger()

	// The command line can only tighten rule evaluation.
	grading := cfg.Config.Grading
	grading.StrictRules = grading.StrictRules || isEnabled(strictRules)

	// Grade submissions.
	service, err := newService(ctx, cfg.Config.Execution)
	if err != nil {
		return
	}
	exec := runners.NewRunner(service, cfg.Config.Execution, grading, logger)
	defer exec.Close(ctx)

	var runResult runners.ResultSet
	if isEnabled(interactive) {
		var userAction tui.UserInputEvent
		if userAction, runResult, err = tui.NewGradingMonitor(exec, consoleBuffer.(*tui.ConsoleBuffer)).Run(ctx, targetProblems, submissions); err != nil { // blocking call
			return ok, err
		} else if userAction == tui.Exit {
			fmt.Println(msgInteractiveExited)
			return true, nil
		} else if userAction == tui.Quit {
			fmt.Println("Interactive UI closed: grading will continue in the background.")
		}
	} else {
		if runResult, err = exec.Run(ctx, targetProblems, submissions); err != nil { // blocking call
			return
		}
	}

	// If this was an async run that is still in progress, the call will block until it is finished.
	results := runResult.GetResults()

	// Print and save the results.
	ok = !logResults(results, logFile)
	ok = !saveResults(results, outputWriters) && ok
	ok = allGraded(results) && ok

	return
}

func check(ctx context.Context) (ok bool, err error) {
	worksheetFile, err := resolveWorksheetFile(ctx)
	if err != nil {
		return
	}
	fmt.Printf("Checking worksheet file: %s\n", worksheetFile)

	contents, err := os.ReadFile(worksheetFile)
	if err != nil {
		return ok, fmt.Errorf("failed to open worksheet file: %w", err)
	}
	if err := config.ValidateWorksheetDocument(contents); err != nil {
		stderr.Error().Err(err).Msg("worksheet does not match the schema")
		return false, nil
	}

	worksheet, err := config.LoadWorksheetFromFile(ctx, worksheetFile)
	if err != nil {
		stderr.Error().Err(err).Msg("worksheet is invalid")
		return false, nil
	}

	warnings := worksheet.Warnings()
	for _, warning := range warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	fmt.Printf("Worksheet %q is valid: %d problem(s), %d warning(s).\n", worksheet.Title, len(worksheet.Problems), len(warnings))
	return true, nil
}

// resolveWorksheetFile returns the worksheet named on the command line,
// or the worksheet source of the configuration file otherwise.
func resolveWorksheetFile(ctx context.Context) (string, error) {
	if worksheetFile := getFlagValueIfSet(worksheetFilePath, ""); config.IsNotBlank(worksheetFile) {
		return filepath.Clean(worksheetFile), nil
	}

	configPath := filepath.Clean(*configFilePath)
	_, configDir, err := getWorkingDirectories(configPath)
	if err != nil {
		return "", err
	}
	cfg, err := config.LoadConfigFromFile(ctx, configPath)
	if err != nil {
		return "", err
	}
	return config.CleanIfNotBlank(config.MakeAbs(configDir, cfg.Config.WorksheetSource)), nil
}

func printSchema(out io.Writer) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config.WorksheetJSONSchema()); err != nil {
		return fmt.Errorf("%w: %v", config.ErrCompileSchema, err)
	}
	return nil
}

func submissionsDirOrDefault(configDir string, submissionsDir string, worksheetFile string) string {
	if config.IsNotBlank(submissionsDir) {
		return config.MakeAbs(configDir, submissionsDir)
	}
	return filepath.Dir(worksheetFile)
}

// allGraded reports whether every submitted answer was accepted.
func allGraded(results runners.Results) bool {
	for _, backendResults := range results {
		for _, result := range backendResults {
			if result.Kind == runners.Failure || result.Kind == runners.Error {
				return false
			}
		}
	}
	return true
}

func enabledFormatters() (enabled []formatters.Formatter) {
	if isEnabled(formatHTML) {
		enabled = append(enabled, htmlFormatter)
	}
	if isEnabled(formatCSV) {
		enabled = append(enabled, csvFormatter)
	}
	return enabled
}

func isEnabled(value *bool) bool {
	return value != nil && *value
}

func getWorkingDirectories(configFilePath string) (workingDir string, configDir string, err error) {
	workingDir, err = os.Getwd()
	if err != nil {
		return
	}

	// If the path is not absolute it will be joined with the current working directory.
	absConfigPath, err := filepath.Abs(configFilePath)
	if err != nil {
		return
	}
	configDir = filepath.Dir(absConfigPath)

	return
}

func getEnabledLogLevel() zerolog.Level {
	if isEnabled(debug) {
		return zerolog.TraceLevel
	} else if isEnabled(verbose) {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func getFlagValueIfSet(value *string, defaultValue string) string {
	if (value != nil) && *value != unsetFlagValue {
		return *value
	}
	return defaultValue
}

func printHelp(out io.Writer) {
	flag.CommandLine.SetOutput(out)
	flag.Usage()
}

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "%s %s\n", version.Name, version.GetVersion())
}

func createOutputFile(outputFilePath string, timeRef time.Time, append bool) (outputFile *os.File, outputPath string, err error) {
	if outputPath = config.CleanIfNotBlank(config.ResolveFileNamePattern(outputFilePath, timeRef)); config.IsNotBlank(outputPath) {
		if err = os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
			return
		}
		if append {
			outputFile, err = os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		} else {
			outputFile, err = os.Create(outputPath)
		}
	}
	return
}

func logResults(results runners.Results, out io.Writer) (finishedWithErrors bool) {
	fmt.Fprintln(out)
	if err := summaryLogFormatter.Write(results, out); err != nil {
		stderr.Warn().Err(err).Msg("failed to log summary")
		finishedWithErrors = true
	}
	fmt.Fprintln(out)
	if err := logFormatter.Write(results, out); err != nil {
		stderr.Warn().Err(err).Msg("failed to log results")
		finishedWithErrors = true
	}
	fmt.Fprintln(out)
	return
}

func saveResults(results runners.Results, outputWriters map[formatters.Formatter]io.Writer) (finishedWithErrors bool) {
	for formatter, out := range outputWriters {
		if err := formatter.Write(results, out); err != nil {
			stderr.Warn().Err(err).Msgf("failed to write %s output", strings.ToUpper(formatter.FileExt()))
			finishedWithErrors = true
		}
	}
	return
}
