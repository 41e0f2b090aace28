package cli

import (
	stderrors "errors"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/vpspilot/pilot/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeTransport         = "TRANSPORT_FAILED"
	ErrCodeMalformedFrame    = "MALFORMED_FRAME"
	ErrCodeInvalidRange      = "INVALID_RANGE"
	ErrCodeAPI               = "API_ERROR"
	ErrCodeSSHConnectionFail = "SSH_CONNECTION_FAILED"
	ErrCodeUnknown           = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONError writes an error response to the writer.
func WriteJSONError(w io.Writer, code, message, suggestion string) error {
	return writeJSONEnvelope(w, JSONEnvelope{
		Error: &JSONError{Code: code, Message: message, Suggestion: suggestion},
	})
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{Error: ErrorToJSON(err)})
}

func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var pErr *errors.Error
	if stderrors.As(err, &pErr) {
		return &JSONError{
			Code:       mapErrorCode(pErr.Code, pErr.Message),
			Message:    pErr.Message,
			Suggestion: pErr.Suggestion,
		}
	}

	return &JSONError{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
	}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(internalCode, message string) string {
	switch internalCode {
	case errors.ErrConfig:
		msgLower := strings.ToLower(message)
		if strings.Contains(msgLower, "not found") || strings.Contains(msgLower, "couldn't find") {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrTransport:
		return ErrCodeTransport
	case errors.ErrFrame:
		return ErrCodeMalformedFrame
	case errors.ErrRange:
		return ErrCodeInvalidRange
	case errors.ErrAPI:
		return ErrCodeAPI
	case errors.ErrSSH:
		return ErrCodeSSHConnectionFail
	}
	return ErrCodeUnknown
}
