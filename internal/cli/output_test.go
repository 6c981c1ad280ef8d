package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"events": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("3 events"))
	assert.Equal(t, "3 events\n", buf.String())
}

func TestOutputFormatter_Line(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Line(map[string]int{"a": 1}, "ignored"))
	require.NoError(t, formatter.Line(map[string]int{"a": 2}, "ignored"))
	assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n", buf.String())

	buf.Reset()
	formatter.Format = "text"
	require.NoError(t, formatter.Line(nil, "plain"))
	assert.Equal(t, "plain\n", buf.String())
}

func TestOutputFormatter_FailJSON(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: stdout, ErrWriter: stderr, Verbose: true}

	err := WrapExitError(ExitCommandError, "invalid --lower", errors.New("missing '='"))
	require.NoError(t, formatter.Fail(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_COMMAND", resp.Error.Code)
	assert.Equal(t, "invalid --lower: missing '='", resp.Error.Message)
	assert.Equal(t, "missing '='", resp.Error.Details)
	assert.Empty(t, stderr.String())
}

func TestOutputFormatter_FailReported(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := NewExitError(ExitFailure, "2 scenario(s) failed")
	err.Reported = true
	require.NoError(t, formatter.Fail(fmt.Errorf("test: %w", err)))
	assert.Empty(t, buf.String())
}

func TestOutputFormatter_FailText(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: stdout, ErrWriter: stderr}

	require.NoError(t, formatter.Fail(NewExitError(ExitTimeTravel, "time travel triggered by 1/B/0")))
	assert.Empty(t, stdout.String())
	assert.Equal(t, "Error: time travel triggered by 1/B/0\n", stderr.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    stdout,
				ErrWriter: stderr,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("chunk %s -> %s", "A=0", "A=4")

			assert.Empty(t, stdout.String())
			if tt.wantLog {
				assert.Equal(t, "chunk A=0 -> A=4\n", stderr.String())
			} else {
				assert.Empty(t, stderr.String())
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "E_COMMAND", ErrorCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, "E_TIME_TRAVEL", ErrorCode(NewExitError(ExitTimeTravel, "time travel")))
	assert.Equal(t, "E_FAILURE", ErrorCode(errors.New("plain")))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitTimeTravel, GetExitCode(fmt.Errorf("tail: %w", NewExitError(ExitTimeTravel, "time travel"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitFailure, "query failed", errors.New("boom"))
	assert.Equal(t, "query failed: boom", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "boom")
}

func TestExecute(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := Execute(context.Background(), []string{"query", "--order", "sideways"}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "Error: invalid --order")

	stdout.Reset()
	stderr.Reset()
	code = Execute(context.Background(), []string{"query", "--order", "sideways", "--format", "json"}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_COMMAND", resp.Error.Code)
}
