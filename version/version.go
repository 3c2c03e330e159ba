// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package version reports the CodeGrade application name, version and build metadata.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Name of the application.
const Name string = "CodeGrade"

const (
	develVersion      = "(devel)"
	revisionSetting   = "vcs.revision"
	shortRevisionSize = 12
)

// buildInfo holds the parts of the embedded build information CodeGrade reports.
type buildInfo struct {
	main     debug.Module
	revision string
}

var build = sync.OnceValue(func() buildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return buildInfo{main: debug.Module{Version: develVersion}}
	}
	current := buildInfo{main: info.Main}
	for _, setting := range info.Settings {
		if setting.Key == revisionSetting {
			current.revision = setting.Value
		}
	}
	return current
})

// GetVersion returns the version of the application.
func GetVersion() string {
	if version := build().main.Version; version != "" {
		return version
	}
	return develVersion
}

// GetSource returns the source path of the main package.
func GetSource() string {
	return build().main.Path
}

// GetRevision returns the abbreviated VCS revision the binary was built from, if known.
func GetRevision() string {
	revision := build().revision
	if len(revision) > shortRevisionSize {
		return revision[:shortRevisionSize]
	}
	return revision
}

// String returns the application name and version, followed by the revision when known.
func String() string {
	if revision := GetRevision(); revision != "" {
		return fmt.Sprintf("%s %s (%s)", Name, GetVersion(), revision)
	}
	return fmt.Sprintf("%s %s", Name, GetVersion())
}
