// Package output formats command results for humans or machines.
// Every command that prints goes through a Formatter so --json produces
// stable, scriptable output.
package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// Formatter writes command output in text or JSON mode.
type Formatter struct {
	writer io.Writer
	json   bool
}

// New creates a formatter. When jsonMode is true, JSON() is the only method
// that should be used for results.
func New(w io.Writer, jsonMode bool) *Formatter {
	return &Formatter{writer: w, json: jsonMode}
}

// JSONMode reports whether machine output was requested.
func (f *Formatter) JSONMode() bool { return f.json }

// Writer exposes the underlying writer for table rendering.
func (f *Formatter) Writer() io.Writer { return f.writer }

// JSON emits v as indented JSON.
func (f *Formatter) JSON(v any) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Successf prints a checkmarked line in text mode.
func (f *Formatter) Successf(format string, args ...interface{}) {
	fmt.Fprintf(f.writer, "✓ "+format+"\n", args...)
}

// Warningf prints a warning line in text mode.
func (f *Formatter) Warningf(format string, args ...interface{}) {
	fmt.Fprintf(f.writer, "! "+format+"\n", args...)
}
