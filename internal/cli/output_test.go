package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeCLIResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), "output: %s", buf.String())
	return resp
}

func TestSuccess_JSONWrapsPayload(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(ReplicateResult{Relay: "master", Delivered: 2, Checkpoint: 2, FeedHead: 2}))

	resp := decodeCLIResponse(t, &buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{
		"relay":      "master",
		"delivered":  float64(2),
		"checkpoint": float64(2),
		"feed_head":  float64(2),
	}, resp.Data)
}

func TestSuccess_Text(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"string", "Order saved", "Order saved\n"},
		{"stringer", stringer("A1 deleted"), "A1 deleted\n"},
		{
			name: "struct as yaml",
			data: ReplicateResult{Relay: "master", Delivered: 3, Checkpoint: 7, FeedHead: 9},
			want: "relay: master\ndelivered: 3\ncheckpoint: 7\nfeed_head: 9\n",
		},
		{
			name: "map as yaml",
			data: map[string]any{"order_id": "A1", "items": []any{}},
			want: "items: []\norder_id: A1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := &OutputFormatter{Format: "text", Writer: &buf}
			require.NoError(t, f.Success(tt.data))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

type stringer string

func (s stringer) String() string { return string(s) }

func TestError_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	details := []string{"record 2 (seq 12): missing key attribute"}
	require.NoError(t, f.Error(ErrCodeReplication, "replication incomplete", details))

	resp := decodeCLIResponse(t, &buf)
	assert.Equal(t, "error", resp.Status)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeReplication, resp.Error.Code)
	assert.Equal(t, "replication incomplete", resp.Error.Message)
	assert.Equal(t, []any{"record 2 (seq 12): missing key attribute"}, resp.Error.Details)
}

func TestError_TextShowsDetailsOnlyWhenVerbose(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		t.Run(fmt.Sprintf("verbose=%v", verbose), func(t *testing.T) {
			var buf bytes.Buffer
			f := &OutputFormatter{Format: "text", Writer: &buf, Verbose: verbose}

			require.NoError(t, f.Error(ErrCodeNotFound, "order not found", map[string]string{"order_id": "A1"}))

			out := buf.String()
			assert.Contains(t, out, "Error [E004]: order not found\n")
			if verbose {
				assert.Contains(t, out, "Details: map[order_id:A1]")
			} else {
				assert.NotContains(t, out, "Details:")
			}
		})
	}
}

func TestVerboseLog(t *testing.T) {
	t.Run("quiet", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf}
		f.VerboseLog("applying %d record(s)", 3)
		assert.Empty(t, buf.String())
	})

	t.Run("falls back to Writer", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf, Verbose: true}
		f.VerboseLog("applying %d record(s)", 3)
		assert.Equal(t, "applying 3 record(s)\n", buf.String())
	})

	t.Run("keeps json output clean", func(t *testing.T) {
		var out, errOut bytes.Buffer
		f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}
		f.VerboseLog("relay %s", "master")
		assert.Empty(t, out.String())
		assert.Equal(t, "relay master\n", errOut.String())
	})
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("plain"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad config"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "open", errors.New("disk"))), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	cause := errors.New("disk")
	err := WrapExitError(ExitCommandError, "open store", cause)
	assert.Equal(t, "open store: disk", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "bad config", NewExitError(ExitCommandError, "bad config").Error())
}
