package output

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// SchemaVersion is the envelope version written by every command.
const SchemaVersion = "v1"

// recoverableError mirrors models.RecoverableError without importing it.
type recoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Response represents a standard JSON response
type Response struct {
	SchemaVersion   string            `json:"schema_version"`
	Success         bool              `json:"success"`
	Data            any               `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorContext    map[string]string `json:"error_context,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
}

// Success wraps a successful response with data
func Success(data any) Response {
	return Response{
		SchemaVersion: SchemaVersion,
		Success:       true,
		Data:          data,
	}
}

// Error wraps an error in a response. Recoverable errors anywhere in the
// chain contribute their code, context and suggested action.
func Error(err error) Response {
	resp := Response{
		SchemaVersion: SchemaVersion,
		Success:       false,
		Error:         err.Error(),
	}
	var re recoverableError
	if errors.As(err, &re) {
		resp.ErrorCode = re.ErrorCode()
		resp.ErrorContext = re.Context()
		resp.SuggestedAction = re.SuggestedAction()
	}
	return resp
}

// Config controls where and how responses are written.
type Config struct {
	Writer io.Writer
	Pretty bool
}

// DefaultConfig writes to stdout. Output is compact unless PAGEKIT_PRETTY_JSON
// is 1 or true, or stdout is a terminal.
func DefaultConfig() Config {
	pretty := os.Getenv("PAGEKIT_PRETTY_JSON")
	return Config{
		Writer: os.Stdout,
		Pretty: pretty == "1" || pretty == "true" || isatty.IsTerminal(os.Stdout.Fd()),
	}
}

// PrintWith encodes v as one JSON document using cfg.
func PrintWith(cfg Config, v any) error {
	enc := json.NewEncoder(cfg.Writer)
	if cfg.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Print prints a value as JSON to stdout
func Print(v any) error {
	return PrintWith(DefaultConfig(), v)
}

// PrintSuccess prints a success response
func PrintSuccess(data any) error {
	return Print(Success(data))
}

// PrintError prints an error response
func PrintError(err error) error {
	return Print(Error(err))
}
