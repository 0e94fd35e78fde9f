package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var replacements = map[string]string{
	"BOLD":        "\x1b[1m",
	"BOLD_RED":    "\x1b[31;1m",
	"BOLD_GREEN":  "\x1b[32;1m",
	"BOLD_YELLOW": "\x1b[33;1m",
	"BOLD_WHITE":  "\x1b[37;1m",
	"GREY":        "\x1b[30m",
	"RED":         "\x1b[31m",
	"GREEN":       "\x1b[32m",
	"YELLOW":      "\x1b[33m",
	"BLUE":        "\x1b[34m",
	"RESET":       "\x1b[0m",
}

// Printf is a convenience wrapper to Fprintf that always writes to stdout.
func Printf(msg string, args ...interface{}) {
	Fprintf(os.Stdout, msg, args...)
}

// Fprintf implements essentially fmt.Fprintf with replacements of
// some ANSI sequences, e.g. ${BOLD_RED} -> \x1bwhatever.
// The sequences are removed if w isn't a terminal.
func Fprintf(w io.Writer, msg string, args ...interface{}) {
	fmt.Fprintf(w, ReplaceSequences(msg, isTerminal(w)), args...)
}

// ReplaceSequences replaces the ${...} sequences in a message, either with the corresponding
// ANSI escapes or with nothing.
func ReplaceSequences(msg string, coloured bool) string {
	for k, v := range replacements {
		if !coloured {
			v = ""
		}
		msg = strings.ReplaceAll(msg, "${"+k+"}", v)
	}
	return msg
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && IsATerminal(f)
}
