package courier

import (
	"fmt"
	"io"

	"github.com/lattiq/courier/internal/version"
)

// VersionInfo contains detailed version information.
type VersionInfo = version.Info

// GetVersion returns the current version string.
func GetVersion() string {
	return version.Get().Version
}

// GetVersionInfo returns detailed version information.
func GetVersionInfo() *VersionInfo {
	return version.Get()
}

// PrintVersion writes version information to w.
func PrintVersion(w io.Writer) {
	info := version.Get()
	fmt.Fprintln(w, "courier")
	fmt.Fprintln(w, info.String())
	if info.Module != "" {
		fmt.Fprintf(w, "Module: %s\n", info.Module)
	}
}
