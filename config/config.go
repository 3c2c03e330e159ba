// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package config contains the data models of CodeGrade configuration files and worksheet
// definitions. It loads and validates application settings, execution backend settings,
// worksheets with their problems and validation rules, and student submissions.
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// LOCAL identifies the execution backend that runs programs in a local interpreter process.
	LOCAL string = "local"
	// DOCKER identifies the execution backend that runs every program in a fresh Docker container.
	DOCKER string = "docker"
)

// Defaults applied when the corresponding setting is omitted.
const (
	DefaultRunTimeout  = 5 * time.Second
	DefaultMaxRuns     = 10
	DefaultInterpreter = "python3"
	DefaultDockerImage = "python:3.12-alpine"
)

// ErrInvalidConfigProperty indicates invalid configuration.
var ErrInvalidConfigProperty = errors.New("invalid configuration property")

// Config represents the top-level configuration structure.
type Config struct {
	// Config contains application-wide settings.
	Config AppConfig `yaml:"config" validate:"required"`
}

// AppConfig defines application-wide settings.
type AppConfig struct {
	// LogFile specifies path to the log file.
	LogFile string `yaml:"log-file" validate:"omitempty,filepath"`

	// OutputDir specifies directory where grading reports will be saved.
	OutputDir string `yaml:"output-dir" validate:"required"`

	// OutputBaseName specifies base filename for report files.
	OutputBaseName string `yaml:"output-basename" validate:"omitempty,filepath"`

	// WorksheetSource specifies path to the worksheet definition file.
	WorksheetSource string `yaml:"worksheet-source" validate:"required,filepath"`

	// SubmissionsDir specifies the directory holding student programs named after problem IDs.
	SubmissionsDir string `yaml:"submissions-dir" validate:"omitempty"`

	// Execution configures how programs are run.
	Execution ExecutionConfig `yaml:"execution" validate:"required"`

	// Grading configures answer validation behavior.
	Grading GradingConfig `yaml:"grading" validate:"omitempty"`
}

// ExecutionConfig selects and configures the program execution backend.
type ExecutionConfig struct {
	// Backend identifies the execution backend.
	Backend string `yaml:"backend" validate:"required,oneof=local docker"`

	// BackendConfig holds backend-specific settings.
	BackendConfig BackendConfig `yaml:"backend-config"`

	// RunTimeout bounds a single program execution.
	// Value of 0 means the default timeout is used.
	RunTimeout time.Duration `yaml:"run-timeout" validate:"omitempty,min=0"`

	// MaxExecutionsPerMinute limits how many programs are started per minute.
	// Value of 0 means no rate limiting will be applied.
	MaxExecutionsPerMinute int `yaml:"max-executions-per-minute" validate:"omitempty,numeric,min=0"`

	// RetryPolicy specifies retry behavior on transient backend errors.
	RetryPolicy *RetryPolicy `yaml:"retry-policy" validate:"omitempty"`
}

// GetRunTimeout returns the configured per-run timeout or the default one.
func (ec ExecutionConfig) GetRunTimeout() time.Duration {
	if ec.RunTimeout > 0 {
		return ec.RunTimeout
	}
	return DefaultRunTimeout
}

// BackendConfig is a marker interface for backend-specific settings.
type BackendConfig interface{}

// LocalBackendConfig configures the local interpreter backend.
type LocalBackendConfig struct {
	// Interpreter is the Python interpreter executable.
	Interpreter string `yaml:"interpreter" validate:"omitempty"`

	// Args are extra interpreter arguments placed before the harness script.
	Args []string `yaml:"args" validate:"omitempty"`

	// Env specifies additional environment variables to set.
	Env map[string]string `yaml:"env,omitempty"`
}

// GetInterpreter returns the configured interpreter or the default one.
func (c LocalBackendConfig) GetInterpreter() string {
	if IsNotBlank(c.Interpreter) {
		return c.Interpreter
	}
	return DefaultInterpreter
}

// DockerBackendConfig configures the Docker container backend.
type DockerBackendConfig struct {
	// Image is the name of the Docker image that provides the interpreter.
	Image string `yaml:"image" validate:"omitempty"`

	// Interpreter is the interpreter executable inside the image.
	Interpreter string `yaml:"interpreter" validate:"omitempty"`

	// MaxMemoryMB limits container memory in megabytes.
	MaxMemoryMB *int `yaml:"max-memory-mb" validate:"omitempty,min=1"`

	// CPUPercent limits container CPU usage as a percentage of one core.
	CPUPercent *int `yaml:"cpu-percent" validate:"omitempty,min=1,max=100"`

	// Env specifies additional environment variables to set.
	Env map[string]string `yaml:"env,omitempty"`
}

// GetImage returns the configured image or the default one.
func (c DockerBackendConfig) GetImage() string {
	if IsNotBlank(c.Image) {
		return c.Image
	}
	return DefaultDockerImage
}

// GetInterpreter returns the configured interpreter or the default one.
func (c DockerBackendConfig) GetInterpreter() string {
	if IsNotBlank(c.Interpreter) {
		return c.Interpreter
	}
	return DefaultInterpreter
}

// RetryPolicy defines retry behavior on transient errors.
type RetryPolicy struct {
	// MaxRetryAttempts specifies the maximum number of retry attempts.
	// Value of 0 means no retry attempts will be made.
	MaxRetryAttempts uint `yaml:"max-retry-attempts" validate:"omitempty,min=0"`

	// InitialDelaySeconds specifies the initial delay in seconds before the first retry attempt.
	InitialDelaySeconds int `yaml:"initial-delay-seconds" validate:"omitempty,gt=0"`
}

// GradingConfig defines answer validation settings.
type GradingConfig struct {
	// StrictRules makes unknown rule types fail instead of passing.
	StrictRules bool `yaml:"strict-rules" validate:"omitempty"`

	// DefaultMaxRuns is the number of seeded runs for solution rules that do not set maxRuns.
	// Value of 0 means the built-in default is used.
	DefaultMaxRuns int `yaml:"default-max-runs" validate:"omitempty,min=0"`
}

// GetDefaultMaxRuns returns the configured seeded run count or the built-in default.
func (gc GradingConfig) GetDefaultMaxRuns() int {
	if gc.DefaultMaxRuns > 0 {
		return gc.DefaultMaxRuns
	}
	return DefaultMaxRuns
}

// UnmarshalYAML decodes backend-specific settings based on the backend name.
func (ec *ExecutionConfig) UnmarshalYAML(value *yaml.Node) error {
	var temp struct {
		Backend                string        `yaml:"backend"`
		BackendConfig          yaml.Node     `yaml:"backend-config"`
		RunTimeout             time.Duration `yaml:"run-timeout"`
		MaxExecutionsPerMinute int           `yaml:"max-executions-per-minute"`
		RetryPolicy            *RetryPolicy  `yaml:"retry-policy"`
	}

	if err := value.Decode(&temp); err != nil {
		return err
	}

	ec.Backend = temp.Backend
	ec.RunTimeout = temp.RunTimeout
	ec.MaxExecutionsPerMinute = temp.MaxExecutionsPerMinute
	ec.RetryPolicy = temp.RetryPolicy

	switch temp.Backend {
	case LOCAL:
		cfg := LocalBackendConfig{}
		if err := decodeOptional(&temp.BackendConfig, &cfg); err != nil {
			return err
		}
		ec.BackendConfig = cfg
	case DOCKER:
		cfg := DockerBackendConfig{}
		if err := decodeOptional(&temp.BackendConfig, &cfg); err != nil {
			return err
		}
		ec.BackendConfig = cfg
	default:
		return fmt.Errorf("%w: unknown backend-config for backend: %s", ErrInvalidConfigProperty, temp.Backend)
	}

	return nil
}

// decodeOptional decodes node into out unless the node was omitted.
func decodeOptional(node *yaml.Node, out interface{}) error {
	if node.Kind == 0 {
		return nil
	}
	return node.Decode(out)
}
