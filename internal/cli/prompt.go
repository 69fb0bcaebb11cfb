// Package cli provides interactive terminal prompts shared by the
// composition-root commands in cmd/meowctl/cmd, used ahead of
// destructive operations such as the cleanup command's zombie reaping
// and emergency cleanup.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Confirm asks a yes/no question on the controlling terminal with the
// given default. Returns true for yes, false for no.
func Confirm(prompt string, defaultYes bool) (bool, error) {
	return ConfirmOn(os.Stdin, os.Stdout, prompt, defaultYes)
}

// ConfirmOn is Confirm with an explicit input/output pair, so tests can
// drive the prompt without a terminal.
func ConfirmOn(in io.Reader, out io.Writer, prompt string, defaultYes bool) (bool, error) {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s ", prompt, suffix)

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false, fmt.Errorf("reading response: %w", err)
	}

	switch strings.TrimSpace(strings.ToLower(response)) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
