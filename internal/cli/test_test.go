package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"
const harnessGolden = "../harness/testdata/golden"

const passingScenario = `name: solo_append
description: one append settles on both sides
itinerary_id: trip
steps:
  - append:
      entity_id: a
    expect:
      state: settled
assertions:
  - type: final_stops
    stops:
      - {entity_id: a, day: 1, order_index: 0}
  - type: pending
    pending: false
`

const failingScenario = `name: wrong_state
description: expects settled while the store of record is down
steps:
  - remote: down
  - append:
      entity_id: a
    expect:
      state: settled
`

func newTestCmd(format string, args ...string) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func writeScenarioFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := newTestCmd("text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := newTestCmd("text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	buf, err := newTestCmd("text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	buf, err := newTestCmd("json", t.TempDir())
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestTestCommandRunsHarnessScenarios(t *testing.T) {
	buf, err := newTestCmd("text", harnessScenarios, "--golden-dir", harnessGolden)
	require.NoError(t, err, buf.String())

	out := buf.String()
	assert.Contains(t, out, "✓ reorder_then_sync")
	assert.Contains(t, out, "✓ offline_then_push")
	assert.Contains(t, out, "0 failed")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFilterJSON(t *testing.T) {
	buf, err := newTestCmd("json", harnessScenarios, "--golden-dir", harnessGolden, "--filter", "offline_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "offline_then_push", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "solo_append.yaml", passingScenario)

	buf, err := newTestCmd("text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ solo_append (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "solo_append.golden"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(golden), "scenario solo_append\n"))
	assert.Contains(t, string(golden), "append attempt-001 idle>merging>local_committed>remote_syncing>settled")

	buf, err = newTestCmd("text", dir)
	require.NoError(t, err, "golden files are not picked up as scenarios")
	assert.Contains(t, buf.String(), "1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "solo_append.golden"), []byte("stale\n"), 0o644))
	buf, err = newTestCmd("text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "trace does not match golden file")
}

func TestTestCommandFailures(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "wrong_state.yaml", failingScenario)
	writeScenarioFile(t, dir, "broken.yaml", "name: broken\n")

	buf, err := newTestCmd("json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Failed)

	byName := map[string]ScenarioResult{}
	for _, s := range resp.Data.Scenarios {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "broken.yaml")
	assert.Contains(t, byName["broken.yaml"].Errors[0], "failed to load scenario")
	require.Contains(t, byName, "wrong_state")
	assert.Contains(t, byName["wrong_state"].Errors[0], "expected state settled, got remote_failed")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "a.yaml", "")
	writeScenarioFile(t, dir, "b.yml", "")
	writeScenarioFile(t, dir, "notes.txt", "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	writeScenarioFile(t, filepath.Join(dir, "golden"), "a.yaml", "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeScenarioFile(t, filepath.Join(dir, "nested"), "c.yaml", "")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, files)

	files, err = findScenarioFiles(dir, "[ab]")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
