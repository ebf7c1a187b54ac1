package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a measurement, scenario or ingest line was rejected
	ExitCommandError = 2 // bad flags or config, storage unreachable or failing
)

// ExitError is an error returned from a command together with the code
// the process exits with.
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

// NewExitError returns an ExitError with no cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code carried by err, or ExitFailure when err is
// not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// telemetryExitCode maps a command failure to an exit code. Rejected
// telemetry is ExitFailure; persistence and anything else is a command
// error.
func telemetryExitCode(err error) int {
	var te *telemetry.Error
	if !errors.As(err, &te) || te.Code == telemetry.ErrCodePersistence {
		return ExitCommandError
	}
	return ExitFailure
}

// OutputFormatter writes command results either as plain text or wrapped
// in a CLIResponse envelope.
type OutputFormatter struct {
	Format string
	Writer io.Writer
	// Log receives --verbose diagnostics. It is kept apart from Writer so
	// JSON output stays parseable.
	Log     io.Writer
	Verbose bool
}

// CLIResponse is the envelope for --format json.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command. Code is a telemetry error code,
// or E_COMMAND for failures outside the commit layer.
type CLIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Kind       string `json:"kind,omitempty"`
	Experiment string `json:"experiment,omitempty"`
}

// newCLIError describes err, keeping the kind and experiment of
// telemetry errors.
func newCLIError(message string, err error) *CLIError {
	ce := &CLIError{Code: "E_COMMAND", Message: fmt.Sprintf("%s: %v", message, err)}
	var te *telemetry.Error
	if errors.As(err, &te) {
		ce.Code = string(te.Code)
		ce.Kind = te.Kind
		ce.Experiment = te.Experiment
	}
	return ce
}

func (f *OutputFormatter) isJSON() bool {
	return f.Format == "json"
}

// Success writes data. Text mode prints it with fmt.Println semantics;
// commands with tabular output write text themselves and only call
// Success for json.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Fail returns err as an ExitError. In json mode it first writes an error
// envelope; text mode leaves reporting to main.
func (f *OutputFormatter) Fail(message string, err error) error {
	if f.isJSON() {
		resp := CLIResponse{Status: "error", Error: newCLIError(message, err)}
		if werr := json.NewEncoder(f.Writer).Encode(resp); werr != nil {
			return werr
		}
	}
	return WrapExitError(telemetryExitCode(err), message, err)
}

// Debugf writes a diagnostic line to Log when --verbose is set.
func (f *OutputFormatter) Debugf(format string, args ...any) {
	if !f.Verbose || f.Log == nil {
		return
	}
	fmt.Fprintf(f.Log, format+"\n", args...)
}
