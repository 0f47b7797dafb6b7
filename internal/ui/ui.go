// Package ui renders workflow progress and messages on the terminal.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	// Out receives regular messages.
	Out io.Writer = os.Stdout
	// Err receives errors and transient progress output.
	Err io.Writer = os.Stderr
)

var (
	successMark = color.New(color.FgGreen, color.Bold).SprintFunc()
	errorMark   = color.New(color.FgRed, color.Bold).SprintFunc()
	warnMark    = color.New(color.FgYellow, color.Bold).SprintFunc()
	infoMark    = color.New(color.FgCyan).SprintFunc()
)

// Init applies color settings. Color is also disabled automatically when
// output is not a terminal or NO_COLOR is set.
func Init(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// Success displays a success message.
func Success(format string, args ...any) {
	fmt.Fprintf(Out, "%s %s\n", successMark("✓"), fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...any) {
	fmt.Fprintf(Err, "%s %s\n", errorMark("✗"), fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...any) {
	fmt.Fprintf(Out, "%s %s\n", warnMark("⚠"), fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...any) {
	fmt.Fprintf(Out, "%s %s\n", infoMark("ℹ"), fmt.Sprintf(format, args...))
}
