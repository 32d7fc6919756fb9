// Package output provides user-facing CLI output helpers.
// Log records go to slog; this package is for the human-readable
// progress and result lines the CLI prints on stdout.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	gray   = color.New(color.FgHiBlack)
	bold   = color.New(color.Bold)

	// Stdout can be overridden for testing.
	Stdout io.Writer = os.Stdout
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

// Success prints a success message with a checkmark.
// Example: ✓ Instance created
func Success(format string, a ...any) {
	fmt.Fprintf(Stdout, green.Sprint("✓")+" "+format+"\n", a...)
}

// Info prints an informational message with an arrow.
// Example: → Reserving static IP...
func Info(format string, a ...any) {
	fmt.Fprintf(Stdout, cyan.Sprint("→")+" "+format+"\n", a...)
}

// Warning prints a warning message.
func Warning(format string, a ...any) {
	fmt.Fprintf(Stdout, yellow.Sprint("⚠")+" "+format+"\n", a...)
}

// Error prints an error message with an X symbol.
func Error(format string, a ...any) {
	fmt.Fprintf(Stdout, red.Sprint("✗")+" "+format+"\n", a...)
}

// Header prints a section header with a separator line.
func Header(text string) {
	fmt.Fprintln(Stdout)
	fmt.Fprintln(Stdout, bold.Sprint(text))
	fmt.Fprintln(Stdout, gray.Sprint(strings.Repeat("━", 50)))
}

// KeyValue prints an indented key-value pair.
func KeyValue(key, value string) {
	fmt.Fprintf(Stdout, "  %s: %s\n", gray.Sprint(key), value)
}

// KeyValueBold prints a key-value pair with a bold value.
// Example:   Password: 7c2f...
func KeyValueBold(key, value string) {
	fmt.Fprintf(Stdout, "  %s: %s\n", gray.Sprint(key), bold.Sprint(value))
}

// Bold returns the text wrapped in bold styling.
func Bold(text string) string {
	return bold.Sprint(text)
}

// Cyan returns the text wrapped in cyan styling.
func Cyan(text string) string {
	return cyan.Sprint(text)
}
