package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpspilot/pilot/internal/errors"
)

func decodeEnvelope(t *testing.T, buf *bytes.Buffer) JSONEnvelope {
	t.Helper()
	var env JSONEnvelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	return env
}

func TestMachineMode(t *testing.T) {
	assert.False(t, MachineMode())
	withMachineMode(t)
	assert.True(t, MachineMode())
}

func TestWriteJSONSuccess(t *testing.T) {
	tests := []struct {
		name string
		data interface{}
		want interface{}
	}{
		{name: "map", data: map[string]string{"key": "value"}, want: map[string]interface{}{"key": "value"}},
		{name: "struct", data: struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		}{ID: 2, Name: "db-1"}, want: map[string]interface{}{"id": float64(2), "name": "db-1"}},
		{name: "nil", data: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteJSONSuccess(&buf, tt.data))

			env := decodeEnvelope(t, &buf)
			assert.True(t, env.Success)
			assert.Nil(t, env.Error)
			assert.Equal(t, tt.want, env.Data)
		})
	}
}

func TestWriteJSONError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONError(&buf, ErrCodeTransport, "Stream for node 3 failed", "Check the backend"))

	env := decodeEnvelope(t, &buf)
	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeTransport, env.Error.Code)
	assert.Equal(t, "Stream for node 3 failed", env.Error.Message)
	assert.Equal(t, "Check the backend", env.Error.Suggestion)
}

func TestWriteJSONFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantMsg    string
		wantSugg   string
		wantNilErr bool
	}{
		{name: "nil", err: nil, wantNilErr: true},
		{name: "plain error", err: fmt.Errorf("something went wrong"), wantCode: ErrCodeUnknown, wantMsg: "something went wrong"},
		{
			name:     "structured",
			err:      errors.New(errors.ErrConfig, "Config file not found", "Run 'pilot init' to create one"),
			wantCode: ErrCodeConfigNotFound,
			wantMsg:  "Config file not found",
			wantSugg: "Run 'pilot init' to create one",
		},
		{
			name:     "wrapped structured",
			err:      fmt.Errorf("watch: %w", errors.New(errors.ErrSSH, "Tunnel refused", "")),
			wantCode: ErrCodeSSHConnectionFail,
			wantMsg:  "Tunnel refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteJSONFromError(&buf, tt.err))

			env := decodeEnvelope(t, &buf)
			assert.False(t, env.Success)
			if tt.wantNilErr {
				assert.Nil(t, env.Error)
				return
			}
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Equal(t, tt.wantMsg, env.Error.Message)
			assert.Equal(t, tt.wantSugg, env.Error.Suggestion)
		})
	}
}

func TestErrorToJSON_InternalCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		wantCode string
	}{
		{name: "config not found", code: errors.ErrConfig, message: "Config file not found", wantCode: ErrCodeConfigNotFound},
		{name: "config couldn't find", code: errors.ErrConfig, message: "Couldn't find config file", wantCode: ErrCodeConfigNotFound},
		{name: "config invalid", code: errors.ErrConfig, message: "server.url is empty", wantCode: ErrCodeConfigInvalid},
		{name: "transport", code: errors.ErrTransport, message: "Dial failed", wantCode: ErrCodeTransport},
		{name: "frame", code: errors.ErrFrame, message: "Bad payload", wantCode: ErrCodeMalformedFrame},
		{name: "range", code: errors.ErrRange, message: "Unknown range 9X", wantCode: ErrCodeInvalidRange},
		{name: "api", code: errors.ErrAPI, message: "Backend returned 500", wantCode: ErrCodeAPI},
		{name: "ssh", code: errors.ErrSSH, message: "SSH connection failed", wantCode: ErrCodeSSHConnectionFail},
		{name: "unmapped", code: "SOMETHING_ELSE", message: "Odd", wantCode: ErrCodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ErrorToJSON(errors.New(tt.code, tt.message, "some suggestion"))
			require.NotNil(t, result)
			assert.Equal(t, tt.wantCode, result.Code)
			assert.Equal(t, tt.message, result.Message)
			assert.Equal(t, "some suggestion", result.Suggestion)
		})
	}
}

func TestErrorToJSON_Nil(t *testing.T) {
	assert.Nil(t, ErrorToJSON(nil))
}

func TestJSONEnvelope_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(JSONEnvelope{Success: true, Data: "test"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"success":true`)
	assert.Contains(t, string(data), `"data":"test"`)
	assert.NotContains(t, string(data), `"error"`)

	data, err = json.Marshal(JSONError{Code: "TEST", Message: "Test"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"suggestion"`)
}

func TestWriteJSONEnvelope_Formatting(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONSuccess(&buf, map[string]string{"test": "value"}))

	output := buf.String()
	assert.Contains(t, output, "\n  ")
	assert.Equal(t, byte('\n'), output[len(output)-1])
}

func TestErrorCodes_UniqueUpperSnake(t *testing.T) {
	codes := []string{
		ErrCodeConfigNotFound,
		ErrCodeConfigInvalid,
		ErrCodeTransport,
		ErrCodeMalformedFrame,
		ErrCodeInvalidRange,
		ErrCodeAPI,
		ErrCodeSSHConnectionFail,
		ErrCodeUnknown,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate error code: %s", code)
		seen[code] = true
		for _, r := range code {
			if r >= 'a' && r <= 'z' {
				t.Errorf("error code %q contains lowercase letter", code)
				break
			}
		}
	}
}
