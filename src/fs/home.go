package fs

import (
	"os"
	"path/filepath"

	"github.com/peterebden/go-deferred-regex"
)

// homeRex matches a leading ~ with no user name after it.
var homeRex = deferredregex.DeferredRegex{Re: `^~(/|$)`}

// ExpandHomePath expands a leading ~ in a path to the user's home directory.
// Paths naming another user's home (e.g. ~bob/x) are left alone.
func ExpandHomePath(path string) string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return ExpandHomePathTo(path, home)
}

// ExpandHomePathTo expands a leading ~ in a path to the given directory.
func ExpandHomePathTo(path, home string) string {
	if home == "" {
		return path
	}
	return homeRex.ReplaceAllStringFunc(path, func(prefix string) string {
		return filepath.Clean(home) + prefix[1:]
	})
}
