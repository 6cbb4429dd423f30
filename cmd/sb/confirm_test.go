package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func withTerminal(t *testing.T, isTTY bool) {
	t.Helper()
	orig := stdinIsTerminal
	stdinIsTerminal = func(io.Reader) bool { return isTTY }
	t.Cleanup(func() { stdinIsTerminal = orig })
}

func promptCmd(input string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(out)
	return cmd, out
}

func TestConfirm_SkipNeverReads(t *testing.T) {
	withTerminal(t, false)
	cmd, out := promptCmd("")
	ok, err := confirm(cmd, "Proceed?", true)
	if err != nil || !ok {
		t.Fatalf("confirm = %v, %v; want true, nil", ok, err)
	}
	if out.Len() != 0 {
		t.Errorf("prompt should not print when skipped: %q", out.String())
	}
}

func TestConfirm_NonTerminalRefused(t *testing.T) {
	withTerminal(t, false)
	cmd, _ := promptCmd("y\n")
	ok, err := confirm(cmd, "Proceed?", false)
	if !errors.Is(err, errNotInteractive) {
		t.Fatalf("err = %v, want errNotInteractive", err)
	}
	if ok {
		t.Error("confirm should be false when refused")
	}
}

func TestConfirm_Answers(t *testing.T) {
	withTerminal(t, true)
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			cmd, out := promptCmd(tt.input)
			ok, err := confirm(cmd, "Proceed?", false)
			if err != nil {
				t.Fatalf("confirm: %v", err)
			}
			if ok != tt.want {
				t.Errorf("confirm(%q) = %v, want %v", tt.input, ok, tt.want)
			}
			if !strings.Contains(out.String(), "Proceed? [y/N]") {
				t.Errorf("prompt = %q", out.String())
			}
		})
	}
}

func TestSessionLogout_NonTerminalWithoutYes(t *testing.T) {
	withTerminal(t, false)
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader("y\n"))
	cmd.SetArgs([]string{"session", "logout", "ventas", "--config", "/nonexistent/switchboard.yaml"})

	err := cmd.Execute()
	if !errors.Is(err, errNotInteractive) {
		t.Fatalf("err = %v, want errNotInteractive", err)
	}
}

func TestSessionLogout_DeclinedAborts(t *testing.T) {
	withTerminal(t, true)
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader("n\n"))
	cmd.SetArgs([]string{"session", "logout", "ventas", "--config", "/nonexistent/switchboard.yaml"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("declined logout should not fail: %v", err)
	}
	if !strings.Contains(buf.String(), "Aborted.") {
		t.Errorf("output = %q", buf.String())
	}
}
