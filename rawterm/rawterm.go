//go:build linux

// Package rawterm puts the controlling terminal into raw mode for the
// interactive examples.
//
// Newlines are always LF. Getchar translates the CR sent by the enter key and
// Write translates LF into the CRLF a raw terminal expects.
package rawterm

import (
	"bytes"
	"os"

	"golang.org/x/crypto/ssh/terminal"
)

var terminalState *terminal.State

// Configure switches stdin to raw mode. It must be undone with Restore:
//
//	if err := rawterm.Configure(); err != nil {
//		return err
//	}
//	defer rawterm.Restore()
func Configure() error {
	state, err := terminal.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	terminalState = state
	return nil
}

// Restore returns the terminal to the state before Configure.
func Restore() {
	if terminalState != nil {
		terminal.Restore(int(os.Stdin.Fd()), terminalState)
		terminalState = nil
	}
}

// Getchar reads a single character from stdin.
func Getchar() (byte, error) {
	var b [1]byte
	if _, err := os.Stdin.Read(b[:]); err != nil {
		return 0, err
	}
	if b[0] == '\r' {
		return '\n', nil
	}
	return b[0], nil
}

// Write writes p to stdout.
func Write(p []byte) (int, error) {
	if _, err := os.Stdout.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
