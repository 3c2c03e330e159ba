// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/petmal/codegrade/pkg/utils"
	fieldcheck "gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// slotValidator checks input slot fields with gopkg.in/validator.v2 using the "check" struct tag.
var slotValidator = func() *fieldcheck.Validator {
	v := fieldcheck.NewValidator()
	v.SetTag("check")
	return v
}()

// SubmissionFileExt is the file extension of student programs in a submissions directory.
const SubmissionFileExt = ".py"

// Submission is a student program written for one problem.
type Submission struct {
	// ProblemID identifies the problem the program answers.
	ProblemID string
	// Path is the program file location.
	Path string
	// Code is the program text.
	Code string
}

// LoadConfigFromFile reads and validates application configuration from the specified file path.
// Returns error if the file cannot be read or contains invalid configuration.
func LoadConfigFromFile(ctx context.Context, path string) (*Config, error) {
	fileContents, err := readFile(path, "configuration")
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yamlUnmarshalStrict(fileContents, cfg); err != nil {
		return nil, fmt.Errorf("malformed configuration file: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration definition: %w", err)
	}

	return cfg, nil
}

// LoadWorksheetFromFile reads and validates a worksheet from the specified file path.
// JSON worksheets that fail to parse are repaired leniently before giving up.
func LoadWorksheetFromFile(ctx context.Context, path string) (*Worksheet, error) {
	fileContents, err := readFile(path, "worksheet")
	if err != nil {
		return nil, err
	}

	worksheet := &Worksheet{}
	if err := yamlUnmarshalStrict(fileContents, worksheet); err != nil {
		if !isJSONFile(path) {
			return nil, fmt.Errorf("malformed worksheet file: %w", err)
		}
		repaired, repairErr := utils.RepairTextJSON(string(fileContents))
		if repairErr != nil {
			return nil, fmt.Errorf("malformed worksheet file: %w", errors.Join(err, repairErr))
		}
		worksheet = &Worksheet{}
		if err := yamlUnmarshalStrict([]byte(repaired), worksheet); err != nil {
			return nil, fmt.Errorf("malformed worksheet file: %w", err)
		}
	}

	if err := validate.Struct(worksheet); err != nil {
		return worksheet, fmt.Errorf("invalid worksheet definition: %w", err)
	}

	if err := worksheet.Validate(); err != nil {
		return worksheet, err
	}

	return worksheet, nil
}

// LoadSubmissionsFromDir reads the student programs in dir.
// Each file named <problem-id>.py is a submission for that problem; other files are ignored.
func LoadSubmissionsFromDir(ctx context.Context, dir string) ([]Submission, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read submissions directory: %w", err)
	}

	submissions := make([]Submission, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), SubmissionFileExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		contents, err := readFile(path, "submission")
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, Submission{
			ProblemID: strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:      path,
			Code:      string(contents),
		})
	}
	return submissions, nil
}

func readFile(path string, kind string) ([]byte, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", kind, err)
	}
	defer fp.Close()

	fileContents, err := io.ReadAll(fp)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", kind, err)
	}
	return fileContents, nil
}

func isJSONFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// yamlUnmarshalStrict is a helper function for strict YAML unmarshaling that fails on unknown fields.
func yamlUnmarshalStrict(in []byte, out interface{}) error {
	// NOTE: currently does not propagate to custom unmarshalers:
	// https://github.com/go-yaml/yaml/issues/460
	decoder := yaml.NewDecoder(bytes.NewReader(in))
	decoder.KnownFields(true) // fail on unknown fields
	return decoder.Decode(out)
}

// IsNotBlank returns true if the given string contains non-whitespace characters.
func IsNotBlank(value string) bool {
	return len(strings.TrimSpace(value)) > 0
}

// ResolveFileNamePattern takes a filename pattern containing time placeholders and returns
// a string with the placeholders replaced by values from the given time reference.
// Supported placeholders: {{.Year}}, {{.Month}}, {{.Day}}, {{.Hour}}, {{.Minute}}, {{.Second}}.
// Returns the original pattern if it cannot be resolved.
func ResolveFileNamePattern(pattern string, timeRef time.Time) string {
	tmpl, err := template.New("filename").Parse(pattern)
	if err != nil {
		return pattern
	}
	resolved := strings.Builder{}
	if err := tmpl.Execute(&resolved, struct {
		Year   string
		Month  string
		Day    string
		Hour   string
		Minute string
		Second string
	}{
		Year:   strconv.Itoa(timeRef.Year()),
		Month:  formatWithLeadingZero(int(timeRef.Month())),
		Day:    formatWithLeadingZero(timeRef.Day()),
		Hour:   formatWithLeadingZero(timeRef.Hour()),
		Minute: formatWithLeadingZero(timeRef.Minute()),
		Second: formatWithLeadingZero(timeRef.Second()),
	}); err != nil {
		return pattern
	}
	return resolved.String()
}

func formatWithLeadingZero(value int) string {
	return fmt.Sprintf("%02d", value)
}

// ResolveFlagOverride returns override value if not nil, otherwise returns parent value.
func ResolveFlagOverride(override *bool, parentValue bool) bool {
	if override != nil {
		return *override
	}
	return parentValue
}

// MakeAbs converts relative file path to absolute using the given base directory.
// Returns original path if it's already absolute or blank.
func MakeAbs(baseDirPath string, filePath string) string {
	if IsNotBlank(filePath) {
		if filepath.IsAbs(filePath) {
			return filePath
		}
		return filepath.Join(baseDirPath, filePath)
	}
	return filePath
}

// CleanIfNotBlank cleans the given file path if it's not blank.
// Returns original path if it's blank.
func CleanIfNotBlank(filePath string) string {
	if IsNotBlank(filePath) {
		return filepath.Clean(filePath)
	}
	return filePath
}
