package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evsync/internal/client"
	"github.com/roach88/evsync/internal/config"
	"github.com/roach88/evsync/internal/ir"
	"github.com/roach88/evsync/internal/store"
	"github.com/roach88/evsync/internal/testutil"
)

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestCommand returns a root command whose store commands run against st.
func newTestCommand(st *testutil.Store, format string) *cobra.Command {
	opts := &RootOptions{
		Format: format,
		Dial: func(ctx context.Context, cfg config.Config, o ...client.Option) (*client.Client, error) {
			return client.New(st, o...), nil
		},
	}
	return newRootCommand(opts)
}

func execute(t *testing.T, st *testutil.Store, args ...string) (string, error) {
	t.Helper()
	cmd := newTestCommand(st, "text")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func seededStore() *testutil.Store {
	st := testutil.NewStore()
	st.Append("A", []string{"order"}, json.RawMessage(`{"n":1}`))
	st.Append("B", []string{"order", "paid"}, json.RawMessage(`{"n":2}`))
	st.Append("A", []string{"refund"}, json.RawMessage(`{"n":3}`))
	return st
}

func TestOffsetsCommand_Text(t *testing.T) {
	st := seededStore()
	st.SetToReplicate("B", 4)
	st.SetToReplicate("C", 2)

	out, err := execute(t, st, "offsets")
	require.NoError(t, err)
	assert.Equal(t, "A\tpresent=1\nB\tpresent=0\tto_replicate=4\nC\tpresent=-\tto_replicate=2\n", out)
}

func TestOffsetsCommand_Empty(t *testing.T) {
	out, err := execute(t, testutil.NewStore(), "offsets")
	require.NoError(t, err)
	assert.Equal(t, "No events.\n", out)
}

func TestOffsetsCommand_JSON(t *testing.T) {
	out, err := execute(t, seededStore(), "offsets", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   OffsetsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.OffsetMap{"A": 1, "B": 0}, resp.Data.Present)
}

func TestOffsetsCommand_StoreFailure(t *testing.T) {
	st := seededStore()
	st.Fail(testutil.OpOffsets, errors.New("store unavailable"))

	_, err := execute(t, st, "offsets")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "store unavailable")
}

func TestOffsetsCommand_DialFailure(t *testing.T) {
	opts := &RootOptions{
		Format: "text",
		Dial: func(ctx context.Context, cfg config.Config, o ...client.Option) (*client.Client, error) {
			return nil, errors.New("connection refused")
		},
	}
	cmd := newRootCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"offsets"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestOffsetsCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, seededStore(), "offsets", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestQueryCommand_AllKnown(t *testing.T) {
	out, err := execute(t, seededStore(), "query")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"1/A/0\torder\t{\"n\":1}",
		"2/B/0\torder,paid\t{\"n\":2}",
		"3/A/1\trefund\t{\"n\":3}",
	}, "\n")+"\n", out)
}

func TestQueryCommand_Selection(t *testing.T) {
	out, err := execute(t, seededStore(), "query", "--tags", "order,paid", "--tags", "refund")
	require.NoError(t, err)
	assert.Equal(t, "2/B/0\torder,paid\t{\"n\":2}\n3/A/1\trefund\t{\"n\":3}\n", out)
}

func TestQueryCommand_RangeDescending(t *testing.T) {
	out, err := execute(t, seededStore(), "query", "--lower", "A=0", "--upper", "A=1,B=0", "--order", "desc")
	require.NoError(t, err)
	assert.Equal(t, "3/A/1\trefund\t{\"n\":3}\n2/B/0\torder,paid\t{\"n\":2}\n", out)
}

func TestQueryCommand_NoEvents(t *testing.T) {
	out, err := execute(t, seededStore(), "query", "--tags", "missing")
	require.NoError(t, err)
	assert.Equal(t, "No events.\n", out)
}

func TestQueryCommand_ChunksJSON(t *testing.T) {
	out, err := execute(t, seededStore(), "query", "--chunk-size", "2", "--format", "json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first, second ChunkOutput
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Len(t, first.Events, 2)
	assert.Len(t, second.Events, 1)
	assert.Equal(t, first.Upper, second.Lower, "chunks must be contiguous")
	assert.Equal(t, ir.OffsetMap{"A": 1, "B": 0}, second.Upper)
}

func TestQueryCommand_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"lower", []string{"query", "--lower", "A"}, "invalid --lower"},
		{"upper", []string{"query", "--upper", "A=x"}, "invalid --upper"},
		{"order", []string{"query", "--order", "random"}, "invalid --order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, seededStore(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTailCommand_TimeTravel(t *testing.T) {
	st := testutil.NewStore()
	st.Append("A", nil, json.RawMessage(`{}`))
	st.Append("A", nil, json.RawMessage(`{}`))
	require.NoError(t, st.Inject(ir.Event{Stream: "B", Offset: 0, Lamport: 1, Payload: json.RawMessage(`{}`)}))

	out, err := execute(t, st, "tail", "--from", "A=1", "--latest", "2/A/1")
	require.Error(t, err)
	assert.Equal(t, ExitTimeTravel, GetExitCode(err))
	assert.Contains(t, err.Error(), "time travel triggered by 1/B/0")
	assert.Equal(t, "# time travel: 1/B/0\n", out)
}

func TestTailCommand_InvalidStart(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"from without latest", []string{"tail", "--from", "A=1"}},
		{"bad latest", []string{"tail", "--latest", "2/A"}},
		{"bad horizon", []string{"tail", "--latest", "2/A/1", "--horizon", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, seededStore(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), "invalid resumption point")
		})
	}
}

func TestTailCommand_FollowsLiveEvents(t *testing.T) {
	st := testutil.NewStore()
	st.Append("A", []string{"order"}, json.RawMessage(`{"n":1}`))

	cmd := newTestCommand(st, "text")
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"tail", "--tags", "order"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "# caught up at A=0")
	}, 5*time.Second, 10*time.Millisecond)

	st.Append("A", []string{"refund"}, json.RawMessage(`{"n":2}`))
	st.Append("B", []string{"order"}, json.RawMessage(`{"n":3}`))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "3/B/0")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tail did not stop after cancel")
	}

	assert.Equal(t, strings.Join([]string{
		"1/A/0\torder\t{\"n\":1}",
		"# caught up at A=0",
		"3/B/0\torder\t{\"n\":3}",
	}, "\n")+"\n", out.String())
}

func TestPublishCommand(t *testing.T) {
	st := testutil.NewStore()

	out, err := execute(t, st, "publish", "--tags", "order, created", `{"id":"o-1"}`, `{"id":"o-2"}`)
	require.NoError(t, err)
	assert.Equal(t, "published 1/local/0\npublished 2/local/1\n", out)

	events := st.Events()
	require.Len(t, events, 2)
	assert.Equal(t, []string{"order", "created"}, events[0].Tags)
	assert.JSONEq(t, `{"id":"o-2"}`, string(events[1].Payload))
}

func TestPublishCommand_Stdin(t *testing.T) {
	st := testutil.NewStore()
	cmd := newTestCommand(st, "json")
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("  {\"id\":\"o-3\"}\n"))
	cmd.SetArgs([]string{"publish", "--tags", "order", "-"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string        `json:"status"`
		Data   PublishResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Events, 1)
	assert.JSONEq(t, `{"id":"o-3"}`, string(resp.Data.Events[0].Payload))
}

func TestPublishCommand_InvalidPayload(t *testing.T) {
	st := testutil.NewStore()

	_, err := execute(t, st, "publish", `{"id":1}`, `{not json`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "payload 2 is not valid JSON")
	assert.Empty(t, st.Events(), "nothing is published when any payload is invalid")
}

func seedSnapshots(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshots.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for _, snap := range []ir.Snapshot{
		{Semantics: "counter", Session: "s-1", Version: 1, EventKey: ir.EventKey{Lamport: 2, Stream: "A", Offset: 1}, Offsets: ir.OffsetMap{"A": 1}, State: json.RawMessage(`{"n":2}`)},
		{Semantics: "counter", Session: "s-1", Version: 1, EventKey: ir.EventKey{Lamport: 5, Stream: "A", Offset: 3}, Offsets: ir.OffsetMap{"A": 3}, State: json.RawMessage(`{"n":4}`)},
		{Semantics: "totals", Session: "s-2", Version: 3, EventKey: ir.EventKey{Lamport: 1, Stream: "B", Offset: 0}, Offsets: ir.OffsetMap{"B": 0}, State: json.RawMessage(`[]`)},
	} {
		require.NoError(t, st.StoreSnapshot(ctx, snap))
	}
	return path
}

func TestSnapshotsList(t *testing.T) {
	db := seedSnapshots(t)

	out, err := execute(t, nil, "snapshots", "list", "--db", db, "--semantics", "totals")
	require.NoError(t, err)
	assert.Equal(t, "totals\ts-2\tv3\t1/B/0\tB=0\t2 bytes\n", out)
}

func TestSnapshotsList_JSON(t *testing.T) {
	db := seedSnapshots(t)

	out, err := execute(t, nil, "snapshots", "list", "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []SnapshotInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data, 3)
}

func TestSnapshotsInvalidate(t *testing.T) {
	db := seedSnapshots(t)

	out, err := execute(t, nil, "snapshots", "invalidate", "--db", db, "--semantics", "counter", "--session", "s-1", "--key", "3/A/2")
	require.NoError(t, err)
	assert.Equal(t, "Invalidated 1 snapshot(s).\n", out)

	out, err = execute(t, nil, "snapshots", "invalidate", "--db", db, "--semantics", "counter")
	require.NoError(t, err)
	assert.Equal(t, "Invalidated 1 snapshot(s).\n", out)

	out, err = execute(t, nil, "snapshots", "list", "--db", db)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "totals\t"), out)
}

func TestSnapshotsInvalidate_FlagErrors(t *testing.T) {
	db := seedSnapshots(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no semantics", []string{"--db", db}, "--semantics is required"},
		{"session without key", []string{"--db", db, "--semantics", "counter", "--session", "s-1"}, "--session and --key must be given together"},
		{"bad key", []string{"--db", db, "--semantics", "counter", "--session", "s-1", "--key", "x"}, "invalid --key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, nil, append([]string{"snapshots", "invalidate"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSnapshots_NoDatabase(t *testing.T) {
	t.Setenv("EVSYNC_SNAPSHOT_DB", "")

	_, err := execute(t, nil, "snapshots", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no snapshot database")
}
