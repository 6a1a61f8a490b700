// Package version carries build information for courier.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Version information.
// These values are injected during build time via ldflags.
// The values below are fallbacks for development builds.
var (
	// Version is the semantic version of the library.
	Version = "dev"

	// GitCommit is the git commit hash when the binary was built.
	GitCommit = "unknown"

	// BuildDate is the date when the binary was built.
	BuildDate = "unknown"
)

// Info contains detailed version information.
type Info struct {
	// Version is the semantic version of the library.
	Version string `json:"version"`

	// GitCommit is the git commit hash.
	GitCommit string `json:"git_commit"`

	// BuildDate is the build timestamp.
	BuildDate string `json:"build_date"`

	// GoVersion is the Go version used for building.
	GoVersion string `json:"go_version"`

	// Platform is the target platform (GOOS/GOARCH).
	Platform string `json:"platform"`

	// Module is the main module path.
	Module string `json:"module,omitempty"`
}

// Get returns version information, filling gaps from the embedded build
// info.
func Get() *Info {
	info := &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.Module = buildInfo.Main.Path
	if info.Version == "dev" && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
		info.Version = buildInfo.Main.Version
	}

	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
				if len(info.GitCommit) > 12 {
					info.GitCommit = info.GitCommit[:12]
				}
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.BuildDate = t.Format("2006-01-02T15:04:05Z")
				}
			}
		case "vcs.modified":
			if setting.Value == "true" && !strings.HasSuffix(info.GitCommit, "-dirty") {
				info.GitCommit += "-dirty"
			}
		}
	}

	return info
}

// String returns a human-readable version string.
func (v *Info) String() string {
	parts := []string{"Version: " + v.Version}

	if v.GitCommit != "unknown" && v.GitCommit != "" {
		parts = append(parts, "Commit: "+v.GitCommit)
	}
	if v.BuildDate != "unknown" && v.BuildDate != "" {
		parts = append(parts, "Built: "+v.BuildDate)
	}
	parts = append(parts, "Go: "+v.GoVersion, "Platform: "+v.Platform)

	return strings.Join(parts, ", ")
}

// UserAgent returns a user agent string for HTTP requests.
func (v *Info) UserAgent() string {
	return fmt.Sprintf("courier/%s (%s)", v.Version, v.Platform)
}

// SemVer parses the version. Development builds do not parse.
func (v *Info) SemVer() (*semver.Version, error) {
	return semver.NewVersion(v.Version)
}

// IsDevBuild returns true if this is a development build.
func (v *Info) IsDevBuild() bool {
	if strings.HasSuffix(v.GitCommit, "-dirty") || v.GitCommit == "unknown" {
		return true
	}
	sv, err := v.SemVer()
	return err != nil || sv.Prerelease() != ""
}

// IsCompatible reports whether the version satisfies constraint, e.g. "^1.2".
func (v *Info) IsCompatible(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid constraint %q: %w", constraint, err)
	}
	sv, err := v.SemVer()
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", v.Version, err)
	}
	return c.Check(sv), nil
}

// UserAgent is shorthand for Get().UserAgent().
func UserAgent() string {
	return Get().UserAgent()
}
