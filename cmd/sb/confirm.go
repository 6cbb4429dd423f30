package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errNotInteractive is returned when a confirmation is needed but stdin
// is not a terminal.
var errNotInteractive = errors.New("confirmation required: stdin is not a terminal (pass --yes)")

// stdinIsTerminal reports whether in is an interactive terminal.
var stdinIsTerminal = func(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// confirm asks a y/N question on the command's streams. skip bypasses the
// prompt entirely.
func confirm(cmd *cobra.Command, question string, skip bool) (bool, error) {
	if skip {
		return true, nil
	}
	in := cmd.InOrStdin()
	if !stdinIsTerminal(in) {
		return false, errNotInteractive
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
