// Package buildinfo carries version metadata set at link time:
//
//	go build -ldflags "-X cflp/internal/buildinfo.Version=v1.2.0 -X cflp/internal/buildinfo.Commit=$(git rev-parse HEAD)"
package buildinfo

import "runtime"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    Commit,
		"builtAt":   BuiltAt,
		"goVersion": runtime.Version(),
	}
}

// String is a one-line summary for CLI banners.
func String() string {
	s := Version
	if Commit != "" {
		c := Commit
		if len(c) > 7 {
			c = c[:7]
		}
		s += " (" + c + ")"
	}
	return s
}
