package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/changewatch/internal/record"
	"github.com/roach88/changewatch/internal/store"
	"github.com/roach88/changewatch/internal/testutil"
)

// seedStore creates a database holding n snapshots of "shop" and one of
// "jobs", one second apart from 2026-03-01T08:00:00Z.
func seedStore(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "changewatch.db")
	clock := testutil.NewStepClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), time.Second)

	st, err := store.Open(path, store.WithClock(clock.Now))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for i := range n {
		records := make([]record.Record, i+1)
		for j := range records {
			records[j] = record.Record{"id": record.Int(int64(j))}
		}
		_, err := st.Save(ctx, "shop", records)
		require.NoError(t, err)
	}
	_, err = st.Save(ctx, "jobs", []record.Record{{"role": record.String("Go engineer")}})
	require.NoError(t, err)
	return path
}

func TestSnapshotsList(t *testing.T) {
	db := seedStore(t, 3)

	out, _, err := executeRoot(t, "--db", db, "snapshots", "list", "shop")
	require.NoError(t, err)

	lines := splitLines(out)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[1], "2026-03-01T08:00:02Z")
	assert.Contains(t, lines[3], "2026-03-01T08:00:00Z")
}

func TestSnapshotsListLimitJSON(t *testing.T) {
	db := seedStore(t, 3)

	out, _, err := executeRoot(t, "--db", db, "--format", "json", "snapshots", "list", "shop", "-n", "2")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   []store.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.EqualValues(t, 3, resp.Data[0].ID)
	assert.Equal(t, 3, resp.Data[0].ItemCount)
	assert.Empty(t, resp.Data[0].Records)
}

func TestSnapshotsShow(t *testing.T) {
	db := seedStore(t, 2)

	out, _, err := executeRoot(t, "--db", db, "snapshots", "show", "2", "--records")
	require.NoError(t, err)
	assert.Contains(t, out, "Source:   shop")
	assert.Contains(t, out, "Items:    2")
	assert.Contains(t, out, `{"id":0}`)
	assert.Contains(t, out, `{"id":1}`)
}

func TestSnapshotsShowErrors(t *testing.T) {
	db := seedStore(t, 1)

	_, errOut, err := executeRoot(t, "--db", db, "snapshots", "show", "99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, errOut, ErrCodeNotFound)

	_, errOut, err = executeRoot(t, "--db", db, "snapshots", "show", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, errOut, ErrCodeValidation)
}

func TestSnapshotsSources(t *testing.T) {
	db := seedStore(t, 2)

	out, _, err := executeRoot(t, "--db", db, "snapshots", "sources")
	require.NoError(t, err)

	lines := splitLines(out)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "jobs")
	assert.Contains(t, lines[2], "shop")
	assert.Contains(t, lines[2], "2026-03-01T08:00:01Z")
}

func TestPrune(t *testing.T) {
	db := seedStore(t, 5)

	out, _, err := executeRoot(t, "--db", db, "prune", "shop", "--keep", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 3 snapshot(s) of shop, keeping 2")

	out, _, err = executeRoot(t, "--db", db, "--format", "json", "prune", "shop", "--keep", "2")
	require.NoError(t, err)

	var resp struct {
		Data pruneResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.EqualValues(t, 0, resp.Data.Deleted)
}

func TestPruneRejectsInvalidKeep(t *testing.T) {
	db := seedStore(t, 2)

	_, errOut, err := executeRoot(t, "--db", db, "prune", "shop", "--keep", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, errOut, ErrCodeValidation)
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
