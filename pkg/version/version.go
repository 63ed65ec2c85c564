// Package version reports the build identity used in the startup log and
// the health endpoint.
package version

import (
	"runtime/debug"
	"sync"
)

// commit may be injected with -ldflags for builds without a .git directory.
var commit string

var full = sync.OnceValue(func() string {
	c := commit
	if c == "" {
		c = vcsRevision()
	}
	if c == "" {
		c = "dev"
	}
	if len(c) > 8 {
		c = c[:8]
	}
	return "tideline/" + c
})

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// Full returns "tideline/<short commit>", or "tideline/dev" when no commit
// is known.
func Full() string {
	return full()
}
