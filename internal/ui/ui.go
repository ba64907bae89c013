// Package ui formats human-facing CLI output: colored status tags,
// section headings and stderr notices. Color is disabled when the stream
// is not a terminal or NO_COLOR is set.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

var (
	writer io.Writer = os.Stderr

	stdoutColor = detectColor(os.Stdout)
	stderrColor = detectColor(os.Stderr)
)

// SetWriter redirects notices (Warn, Error, Info). Nil restores stderr.
func SetWriter(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	writer = w
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return IsTerminal(f)
}

// SetColorEnabled overrides color detection (for testing).
func SetColorEnabled(enabled bool) {
	stdoutColor = enabled
	stderrColor = enabled
}

func style(enabled bool, code, s string) string {
	if !enabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func Bold(s string) string   { return style(stdoutColor, "1", s) }
func Dim(s string) string    { return style(stdoutColor, "2", s) }
func Green(s string) string  { return style(stdoutColor, "32", s) }
func Red(s string) string    { return style(stdoutColor, "31", s) }
func Yellow(s string) string { return style(stdoutColor, "33", s) }

// OKTag, FailTag and WarnTag prefix doctor check results.
func OKTag() string   { return Green("✓") }
func FailTag() string { return Red("✗") }
func WarnTag() string { return Yellow("!") }

// Section writes a bold title with an underline.
func Section(w io.Writer, title string) {
	fmt.Fprintln(w, Bold(title))
	fmt.Fprintln(w, Dim(strings.Repeat("─", len([]rune(title)))))
}

// Warnf prints a warning notice.
func Warnf(format string, args ...any) {
	fmt.Fprintf(writer, "%s %s\n", style(stderrColor, "33", "Warning:"), fmt.Sprintf(format, args...))
}

// Errorf prints an error notice.
func Errorf(format string, args ...any) {
	fmt.Fprintf(writer, "%s %s\n", style(stderrColor, "31", "Error:"), fmt.Sprintf(format, args...))
}

// Infof prints an unprefixed notice.
func Infof(format string, args ...any) {
	fmt.Fprintf(writer, format+"\n", args...)
}
