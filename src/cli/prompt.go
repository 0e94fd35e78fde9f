package cli

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// PromptYN asks the user a yes/no question on the terminal and returns true if they agreed.
// Interrupting the prompt counts as a no.
func PromptYN(msg string, defaultYes bool) bool {
	def := "N"
	if defaultYes {
		def = "Y"
	}
	_, err := (&promptui.Prompt{Label: msg, IsConfirm: true, Default: def}).Run()
	return !errors.Is(err, promptui.ErrInterrupt) && !errors.Is(err, promptui.ErrAbort)
}
