package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// Build-time variables (set via ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info contains build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information. When Commit was not injected it
// falls back to the VCS revision recorded by the Go toolchain.
func Get() Info {
	commit := Commit
	if commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					commit = s.Value
					if len(commit) > 12 {
						commit = commit[:12]
					}
				}
			}
		}
	}
	return Info{
		Version:   Version,
		Commit:    commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a one-line version string.
func String() string {
	i := Get()
	return "meshkv-node " + i.Version + " (" + i.Commit + ", " + i.GoVersion + ") built at " + i.BuildTime
}
