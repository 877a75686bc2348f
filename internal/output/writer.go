package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DefaultErrorLimit is how many error messages Summarize keeps by default
const DefaultErrorLimit = 5

// WriteOptions configures where a report is written
type WriteOptions struct {
	FilePath string // Output path (empty = stdout)
}

// WriteJSON serializes v to JSON with 2-space indentation
func WriteJSON(v any, w io.Writer) error {
	if v == nil {
		return fmt.Errorf("value cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// WriteJSONToFile writes v to the configured file, or stdout when none is set
func WriteJSONToFile(v any, opts WriteOptions) (err error) {
	if opts.FilePath == "" {
		return WriteJSON(v, os.Stdout)
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteJSON(v, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.FilePath, err)
	}

	return nil
}

// Summarize bounds a list of error messages for display: the first limit messages, then
// "... and N more errors" when some were left out. A limit <= 0 uses DefaultErrorLimit.
func Summarize(messages []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultErrorLimit
	}
	if len(messages) <= limit {
		return messages
	}

	summary := make([]string, 0, limit+1)
	summary = append(summary, messages[:limit]...)
	return append(summary, fmt.Sprintf("... and %d more errors", len(messages)-limit))
}
