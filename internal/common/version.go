package common

import (
	"fmt"
	"runtime/debug"
)

// Version and Commit are stamped at build time:
//
//	go build -ldflags "-X github.com/ternarybob/calbuddy/internal/common.Version=1.2.0 -X github.com/ternarybob/calbuddy/internal/common.Commit=abc1234"
var (
	Version = "dev"
	Commit  = ""
)

// Revision is the stamped commit, else the VCS revision recorded by the Go
// toolchain, shortened to seven characters
func Revision() string {
	rev := Commit
	if rev == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					rev = setting.Value
				}
			}
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if rev == "" {
		return "unknown"
	}
	return rev
}

// FullVersion is Version plus the revision, as shown by "calbuddy version"
func FullVersion() string {
	return fmt.Sprintf("%s (%s)", Version, Revision())
}
