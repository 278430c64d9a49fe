package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The storefront refused or failed the operation
	ExitCommandError = 2 // Bad flags, config or local state
)

// ExitError carries a specific exit code out of a command.
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

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
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

// textRenderer is implemented by views that have a human-readable form.
type textRenderer interface {
	renderText(w io.Writer)
}

// OutputFormatter writes command results as text, JSON or YAML.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose and diagnostic output; defaults to Writer
	Verbose   bool
}

// CLIResponse is the envelope for json and yaml output.
type CLIResponse struct {
	Status string    `json:"status" yaml:"status"`
	Data   any       `json:"data,omitempty" yaml:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty" yaml:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Details any    `json:"details,omitempty" yaml:"details,omitempty"`
}

func (f *OutputFormatter) Success(data any) error {
	switch f.Format {
	case "json":
		return f.encodeJSON(CLIResponse{Status: "ok", Data: data})
	case "yaml":
		return f.encodeYAML(CLIResponse{Status: "ok", Data: data})
	}
	if r, ok := data.(textRenderer); ok {
		r.renderText(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Event writes one streamed item. JSON output is one compact object per line.
func (f *OutputFormatter) Event(data any) error {
	switch f.Format {
	case "json":
		return json.NewEncoder(f.Writer).Encode(data)
	case "yaml":
		if _, err := fmt.Fprintln(f.Writer, "---"); err != nil {
			return err
		}
		return f.encodeYAML(data)
	}
	if r, ok := data.(textRenderer); ok {
		r.renderText(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

func (f *OutputFormatter) Error(code, message string, details any) error {
	switch f.Format {
	case "json":
		return f.encodeJSON(CLIResponse{Status: "error", Error: &CLIError{Code: code, Message: message, Details: details}})
	case "yaml":
		return f.encodeYAML(CLIResponse{Status: "error", Error: &CLIError{Code: code, Message: message, Details: details}})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Failure renders err and returns the process exit code for it.
func (f *OutputFormatter) Failure(err error) int {
	code := string(pkgerrors.CodeInternal)
	message := err.Error()
	var details any
	if typed := pkgerrors.As(err); typed != nil {
		code = string(typed.Code())
		message = pkgerrors.UserMessage(err)
		details = typed.Details()
	} else {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			code = "COMMAND_ERROR"
			if exitErr.Code == ExitFailure {
				code = "FAILED"
			}
		}
	}
	if writeErr := f.Error(code, message, details); writeErr != nil {
		fmt.Fprintln(f.GetErrWriter(), err)
	}
	return GetExitCode(err)
}

func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encodeJSON(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *OutputFormatter) encodeYAML(v any) error {
	enc := yaml.NewEncoder(f.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
