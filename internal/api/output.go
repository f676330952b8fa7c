package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how CLI commands print server responses.
type OutputFormat string

const (
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatText prints rendered markdown and coloured diffs where a
	// command supports it, and YAML everywhere else.
	OutputFormatText OutputFormat = "text"
)

// DefaultOutput is used when --output names an unknown format.
var DefaultOutput = OutputFormatYAML

var currentFormat = OutputFormatYAML

// SetOutputFormat sets the process-wide format from the --output flag.
func SetOutputFormat(format string) {
	switch f := OutputFormat(format); f {
	case OutputFormatYAML, OutputFormatJSON, OutputFormatText:
		currentFormat = f
	default:
		currentFormat = DefaultOutput
	}
}

// GetOutputFormat returns the process-wide format.
func GetOutputFormat() OutputFormat {
	return currentFormat
}

// IsStructuredOutput reports whether commands should print machine-readable
// output instead of their human summaries.
func IsStructuredOutput() bool {
	return currentFormat != OutputFormatText
}

// Output prints data to stdout in the process-wide format.
func Output(data any) error {
	return OutputTo(os.Stdout, currentFormat, data)
}

// OutputTo encodes data to w. Text falls back to YAML.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML, OutputFormatText:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

// OutputToFile writes data to path in the process-wide format.
func OutputToFile(path string, data any) error {
	return OutputToFileAs(path, currentFormat, data)
}

// OutputToFileAs writes data to path, used by download and swagger exports.
func OutputToFileAs(path string, format OutputFormat, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := OutputTo(f, format, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
