// Package cli renders tables and colored status words for the vfd
// command-line tools.
package cli

import (
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/term"
)

// colorEnabled is off when NO_COLOR is set (per no-color.org) or stdout is
// not a terminal.
var colorEnabled atomic.Bool

func init() {
	colorEnabled.Store(os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd())))
}

// SetColor forces colored output on or off.
func SetColor(on bool) { colorEnabled.Store(on) }

func paint(code, s string) string {
	if !colorEnabled.Load() {
		return s
	}
	return code + s + "\033[0m"
}

// Green wraps s in ANSI green.
func Green(s string) string { return paint("\033[32m", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return paint("\033[33m", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return paint("\033[31m", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return paint("\033[1m", s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return paint("\033[2m", s) }

// Status renders a response state word: OK in green, anything else red.
func Status(state string) string {
	if state == "OK" {
		return Green(state)
	}
	return Red(state)
}

// DotPad pads name with dots to the given width.
// Example: DotPad("vm-1.json", 20) → "vm-1.json .........."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}
