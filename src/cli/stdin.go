package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// ReadWords reads a sequence of whitespace-delimited words from the given reader.
func ReadWords(r io.Reader) ([]string, error) {
	var ret []string
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		ret = append(ret, scanner.Text())
	}
	return ret, scanner.Err()
}

// StdinStrings is a type used for flags; it accepts a slice of strings but also
// if it's a single - it reads its contents from stdin.
type StdinStrings []string

// Get reads stdin if needed and returns the contents of this slice.
func (s StdinStrings) Get() ([]string, error) {
	return s.get(os.Stdin)
}

func (s StdinStrings) get(stdin io.Reader) ([]string, error) {
	if len(s) == 1 && s[0] == "-" {
		words, err := ReadWords(stdin)
		if err != nil {
			return nil, fmt.Errorf("Error reading stdin: %w", err)
		}
		return words, nil
	} else if ContainsString("-", s) {
		return nil, fmt.Errorf("Cannot pass - to read stdin along with other arguments")
	}
	return s, nil
}

// ContainsString returns true if the given slice contains an individual string.
func ContainsString(needle string, haystack []string) bool {
	for _, straw := range haystack {
		if needle == straw {
			return true
		}
	}
	return false
}
