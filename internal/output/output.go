// Package output provides consistent CLI output formatting with
// colors and progress indicators.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out      io.Writer
	useColor bool

	success *color.Color
	warning *color.Color
	failure *color.Color
	dim     *color.Color
	bold    *color.Color
}

// New creates a Writer. Color is enabled only when out is a terminal
// and NO_COLOR is unset.
func New(out io.Writer) *Writer {
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if os.Getenv("NO_COLOR") != "" {
		useColor = false
	}
	return newWriter(out, useColor)
}

// NewPlain creates a Writer with color disabled.
func NewPlain(out io.Writer) *Writer {
	return newWriter(out, false)
}

func newWriter(out io.Writer, useColor bool) *Writer {
	w := &Writer{
		out:      out,
		useColor: useColor,
		success:  color.New(color.FgGreen),
		warning:  color.New(color.FgYellow),
		failure:  color.New(color.FgRed),
		dim:      color.New(color.Faint),
		bold:     color.New(color.Bold),
	}
	if !useColor {
		for _, c := range []*color.Color{w.success, w.warning, w.failure, w.dim, w.bold} {
			c.DisableColor()
		}
	}
	return w
}

// Plain prints a message as-is.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Plain(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Plainf prints a formatted message.
func (w *Writer) Plainf(format string, args ...any) {
	w.Plain(fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.success.Sprint("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.warning.Sprint("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.failure.Sprint("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Heading prints a bold heading.
func (w *Writer) Heading(msg string) {
	_, _ = fmt.Fprintln(w.out, w.bold.Sprint(msg))
}

// Detail prints a dimmed detail line, indented.
func (w *Writer) Detail(msg string) {
	_, _ = fmt.Fprintf(w.out, "  %s\n", w.dim.Sprint(msg))
}

// Detailf prints a formatted detail line.
func (w *Writer) Detailf(format string, args ...any) {
	w.Detail(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress prints an in-place progress bar.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)

	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
