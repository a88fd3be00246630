package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Exit codes for syncctl
const (
	ExitSuccess      = 0 // everything succeeded
	ExitFailure      = 1 // the operation ran but reported failures, e.g. an aborted run
	ExitCommandError = 2 // bad arguments, configuration or connectivity
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ValidFormats lists the accepted --output values
var ValidFormats = []string{FormatTable, FormatJSON, FormatYAML}

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err; plain errors map to ExitFailure
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Table is implemented by results that render as a single aligned table
type Table interface {
	Header() []string
	Rows() [][]string
}

// textRenderer is implemented by results whose table form is more than one table
type textRenderer interface {
	RenderText(w io.Writer) error
}

// OutputFormatter prints command results as a table, JSON or YAML
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Print renders v in the configured format
func (f *OutputFormatter) Print(v any) error {
	switch f.Format {
	case FormatJSON:
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		data, err := toYAML(v)
		if err != nil {
			return err
		}
		_, err = f.Writer.Write(data)
		return err
	}

	switch t := v.(type) {
	case textRenderer:
		return t.RenderText(f.Writer)
	case Table:
		return writeTable(f.Writer, t)
	default:
		_, err := fmt.Fprintln(f.Writer, v)
		return err
	}
}

func writeTable(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Header(), "\t"))
	for _, row := range t.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// toYAML renders v through its JSON form so field names and ordering match
// the JSON output and the HTTP API
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// blockStyle drops the flow and quoting styles the JSON source implies
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
