package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// wantJSON reports whether output to w should be JSON: when asked for, or when
// w is not a terminal.
func wantJSON(w io.Writer, forced bool) bool {
	if forced {
		return true
	}
	return !isTerminal(w)
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// progressBar renders training progress on a terminal.
type progressBar struct {
	w     io.Writer
	label string
	width int
}

func newProgressBar(w io.Writer, label string) func(float64) {
	if !isTerminal(w) {
		return nil
	}
	b := &progressBar{w: w, label: label, width: 30}
	return b.render
}

func (b *progressBar) render(p float64) {
	filled := int(p * float64(b.width))
	if filled > b.width {
		filled = b.width
	}
	fmt.Fprintf(b.w, "\r%s%s%s [%s%s] %3.0f%%",
		colorCyan, b.label, colorReset,
		strings.Repeat("=", filled), strings.Repeat(" ", b.width-filled), p*100)
	if p >= 1 {
		fmt.Fprintln(b.w)
	}
}
