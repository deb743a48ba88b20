// Package version exposes the ldflags-injected build identity for kd.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Set via ldflags at build time, e.g.:
//
//	go build -ldflags="-X github.com/kdorchestrator/kd/internal/version.Version=v1.0.0"
var (
	Version   = "dev"     // semantic version, e.g. "v1.2.3"
	Commit    = "unknown" // git commit SHA
	BuildDate = "unknown" // RFC3339 build timestamp
)

// Short is the bare version string, e.g. "v1.2.3" or "dev".
func Short() string {
	return Version
}

// buildInfo snapshots the package vars into something printable two ways
// without duplicating the field list between Info and Full.
type buildInfo struct {
	version, commit, buildDate, goVersion, os, arch string
}

func current() buildInfo {
	commit := Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return buildInfo{
		version:   Version,
		commit:    commit,
		buildDate: BuildDate,
		goVersion: runtime.Version(),
		os:        runtime.GOOS,
		arch:      runtime.GOARCH,
	}
}

func (b buildInfo) oneLine() string {
	return fmt.Sprintf("kd %s (commit: %s, built: %s, go: %s)", b.version, b.commit, b.buildDate, b.goVersion)
}

func (b buildInfo) multiLine() string {
	lines := []string{
		fmt.Sprintf("kd %s", b.version),
		fmt.Sprintf("  Commit:     %s", b.commit),
		fmt.Sprintf("  Built:      %s", b.buildDate),
		fmt.Sprintf("  Go version: %s", b.goVersion),
		fmt.Sprintf("  OS/Arch:    %s/%s", b.os, b.arch),
	}
	return strings.Join(lines, "\n")
}

// Info is a single-line summary: version, commit, build date, Go runtime.
func Info() string {
	return current().oneLine()
}

// Full is the verbose, multi-line form printed by "kd version --verbose".
func Full() string {
	return current().multiLine()
}
