// Package cli contains helper functions related to flag parsing, logging and terminal output.
package cli

import (
	cli "github.com/peterebden/go-cli-init/v5/flags"
	"github.com/thought-machine/go-flags"
)

// ParseFlags parses the given command line into data and returns the parser and any
// leftover arguments. --help is handled here and exits.
func ParseFlags(appname string, data interface{}, args []string) (*flags.Parser, []string, error) {
	return cli.ParseFlags(appname, data, args, flags.HelpFlag|flags.PassDoubleDash, nil, nil)
}

// A Duration is a time.Duration that can be read from flags or config files.
// Bare numbers are interpreted as seconds.
type Duration = cli.Duration
