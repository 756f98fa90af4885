package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestDiffGolden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))

	tests := []struct {
		name string
		args []string
	}{
		{"diff_text", []string{"diff", "testdata/diff/old.json", "testdata/diff/new.json", "--key", "title", "--compare", "price"}},
		{"diff_text_verbose", []string{"-v", "diff", "testdata/diff/old.json", "testdata/diff/new.json", "-k", "title", "--compare", "price", "--price", "price"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := executeRoot(t, tt.args...)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(out))
		})
	}
}

func TestDiffJSON(t *testing.T) {
	out, _, err := executeRoot(t, "--format", "json", "diff", "testdata/diff/old.json", "testdata/diff/new.json", "--key", "title")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			HasChanges bool              `json:"has_changes"`
			New        []json.RawMessage `json:"new_items"`
			Removed    []json.RawMessage `json:"removed_items"`
			Modified   []json.RawMessage `json:"modified_items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.HasChanges)
	assert.Len(t, resp.Data.New, 1)
	assert.Len(t, resp.Data.Removed, 1)
	assert.Len(t, resp.Data.Modified, 1)
}

func TestDiffIdenticalFiles(t *testing.T) {
	out, _, err := executeRoot(t, "diff", "testdata/diff/old.json", "testdata/diff/old.json", "--key", "title", "--exit-code")
	require.NoError(t, err)
	assert.Contains(t, out, "No changes detected")
}

func TestDiffExitCode(t *testing.T) {
	_, _, err := executeRoot(t, "diff", "testdata/diff/old.json", "testdata/diff/new.json", "--key", "title", "--exit-code")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 new, 1 removed, 1 modified")
}

func TestDiffErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing file",
			args:     []string{"diff", "testdata/diff/nope.json", "testdata/diff/new.json", "--key", "title"},
			wantCode: ExitCommandError,
			wantErr:  "E005",
		},
		{
			name:     "empty key field",
			args:     []string{"diff", "testdata/diff/old.json", "testdata/diff/new.json", "--key", ""},
			wantCode: ExitCommandError,
			wantErr:  "E003",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, err := executeRoot(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
			assert.Contains(t, errOut, tt.wantErr)
		})
	}
}

func TestDiffRequiresKeyFlag(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"diff", "testdata/diff/old.json", "testdata/diff/new.json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key")
}
