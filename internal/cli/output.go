package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/service"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected operation (permission, conflict, invalid workflow)
	ExitCommandError = 2 // Command error (bad flags, unreadable files, database unavailable)
)

// CLI error codes for failures that carry no content error code.
const (
	ErrCodeGeneric         = "E001"
	ErrCodeInvalidInput    = "E002"
	ErrCodeInvalidWorkflow = "E003"
)

// ExitError represents an error with a specific exit code.
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
// Text output renders structured data as YAML.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if s, ok := data.(string); ok {
		_, err := fmt.Fprintln(f.Writer, s)
		return err
	}
	return f.writeYAML(data)
}

// writeYAML renders data through its JSON form so field names match the
// JSON output and the HTTP API.
func (f *OutputFormatter) writeYAML(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(f.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if details != nil {
		if err := f.writeYAML(details); err != nil {
			return err
		}
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// Content and workflow rejections exit with ExitFailure; anything else is
// a command error.
func (f *OutputFormatter) Fail(err error) error {
	var ce *content.Error
	if errors.As(err, &ce) {
		var details any
		if len(ce.Fields) > 0 {
			details = ce.Fields
		}
		_ = f.Error(string(ce.Code), ce.Message, details)
		return WrapExitError(ExitFailure, string(ce.Code), err)
	}

	var invalid *service.InvalidWorkflowError
	if errors.As(err, &invalid) {
		_ = f.Error(ErrCodeInvalidWorkflow, invalid.Error(), invalid.Errors)
		return WrapExitError(ExitFailure, "invalid workflow", err)
	}

	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "command failed", err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
