package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: lamp
source:
  name: shop
  key_fields: [title]
steps:
  - records:
      - {title: Lamp, price: "$10"}
    expect:
      status: baseline
  - records:
      - {title: Lamp, price: "$12"}
    expect:
      status: changed
      modified: [Lamp]
assertions:
  - type: snapshot_count
    count: 2
`

const failingScenario = `name: wrong
source:
  name: shop
  key_fields: [title]
steps:
  - records:
      - {title: Lamp, price: "$10"}
    expect:
      status: unchanged
`

func writeScenario(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "lamp.yaml", passingScenario)

	out, _, err := executeRoot(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lamp (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "lamp.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"run_id": "lamp-0002"`)

	out, _, err = executeRoot(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lamp\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")

	// A stale golden file fails the scenario.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "lamp.golden"), []byte("{}\n"), 0644))
	out, _, err = executeRoot(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "lamp.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)
	writeScenario(t, dir, "broken.yml", "name: [\n")

	out, _, err := executeRoot(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 2, resp.Data.Failed)

	byName := map[string]ScenarioResult{}
	for _, s := range resp.Data.Scenarios {
		byName[s.Name] = s
	}
	assert.True(t, byName["lamp"].Pass)
	assert.Contains(t, byName["wrong"].Errors[0], "expected status unchanged, got baseline")
	assert.Contains(t, byName["broken.yml"].Errors[0], "failed to load scenario")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "lamp.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, _, err := executeRoot(t, "test", dir, "--filter", "la*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, _, err = executeRoot(t, "test", dir, "--filter", "nothing*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandMissingDir(t *testing.T) {
	_, errOut, err := executeRoot(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, errOut, ErrCodeNotFound)
}
