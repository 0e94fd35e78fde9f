package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadWords(t *testing.T) {
	words, err := ReadWords(strings.NewReader("a1b2c3 d4e5f6\n\n  0badf00d\t\n"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"a1b2c3", "d4e5f6", "0badf00d"}, words)
}

func TestReadWordsEmpty(t *testing.T) {
	words, err := ReadWords(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(words))
}

func TestStdinStrings(t *testing.T) {
	s, err := StdinStrings{"a1b2c3", "d4e5f6"}.get(strings.NewReader("ignored"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"a1b2c3", "d4e5f6"}, s)

	s, err = StdinStrings{"-"}.get(strings.NewReader("a1b2c3\nd4e5f6\n"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"a1b2c3", "d4e5f6"}, s)

	_, err = StdinStrings{"a1b2c3", "-"}.get(strings.NewReader(""))
	assert.Error(t, err)
}
