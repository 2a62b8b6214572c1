// Package version reports which corpusctl build is running.
//
// Release builds stamp the variables below through ldflags:
//
//	-X github.com/Aman-CERP/corpusctl/pkg/version.Version=$(VERSION)
//	-X github.com/Aman-CERP/corpusctl/pkg/version.Commit=$(COMMIT)
//	-X github.com/Aman-CERP/corpusctl/pkg/version.Date=$(DATE)
//
// Binaries from `go install` carry no ldflags; for those the module version
// and VCS stamps embedded by the Go toolchain are used instead.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build description. Values stamped via ldflags win over
// the embedded build info.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	return info
}

// String renders i on one line, e.g.
// "corpusctl 0.4.0 (3f2a9c1b07de, 2026-01-02T10:00:00Z, go1.25.5 linux/amd64)".
func (i Info) String() string {
	parts := make([]string, 0, 3)
	if i.Commit != "" {
		c := i.Commit
		if i.Modified {
			c += "-dirty"
		}
		parts = append(parts, c)
	}
	if i.Date != "" {
		parts = append(parts, i.Date)
	}
	parts = append(parts, i.GoVersion+" "+i.Platform)
	return fmt.Sprintf("corpusctl %s (%s)", i.Version, strings.Join(parts, ", "))
}

// UserAgent identifies corpusctl to the search service and the embedding
// endpoint, e.g. "corpusctl/0.4.0 (linux/amd64)".
func UserAgent() string {
	i := Get()
	return fmt.Sprintf("corpusctl/%s (%s)", i.Version, i.Platform)
}
