package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
)

// cliEnv is a scratch directory with a config file and a local database.
type cliEnv struct {
	t      *testing.T
	dir    string
	db     string
	config string
}

// testCatalog places three stops on a west-east line at one latitude:
// a is furthest west, c sits just east of it, b is far east.
const testCatalog = `entities:
  - id: a
    name: Alpha Park
    category: park
    region: sf
    lat: 37.8
    lng: -122.40
  - id: b
    name: Bravo Beach
    category: beach
    region: marin
    lat: 37.8
    lng: -122.10
  - id: c
    name: Charlie Cafe
    category: food
    region: sf
    lat: 37.8
    lng: -122.35
`

func newCLIEnv(t *testing.T, configLines ...string) *cliEnv {
	t.Helper()
	for _, key := range []string{"ITINERARY_LOCAL_DB", "ITINERARY_REMOTE_URL", "ITINERARY_ID"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	env := &cliEnv{
		t:      t,
		dir:    dir,
		db:     filepath.Join(dir, "local.db"),
		config: filepath.Join(dir, "itinerary.yaml"),
	}
	body := "itinerary_id: trip\n" + strings.Join(configLines, "\n") + "\n"
	require.NoError(t, os.WriteFile(env.config, []byte(body), 0o644))
	return env
}

// run executes the root command with the env's config and database.
func (e *cliEnv) run(args ...string) (string, string, error) {
	e.t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", e.config, "--db", e.db}, args...))
	err := cmd.ExecuteContext(e.t.Context())
	return out.String(), errOut.String(), err
}

// mustRun fails the test unless the command exits 0.
func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, errOut, err := e.run(args...)
	require.NoError(e.t, err, "stdout:\n%s\nstderr:\n%s", out, errOut)
	return out
}

// writeFile writes a file under the env's directory and returns its path.
func (e *cliEnv) writeFile(name, body string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func (e *cliEnv) importCatalog() {
	e.t.Helper()
	e.mustRun("catalog", "import", e.writeFile("catalog.yaml", testCatalog))
}

// jsonResponse is CLIResponse with a typed payload.
type jsonResponse[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
	Notice string    `json:"notice"`
}

type outcomeJSON struct {
	AttemptID   string             `json:"attempt_id"`
	ItineraryID string             `json:"itinerary_id"`
	Kind        string             `json:"kind"`
	State       string             `json:"state"`
	Transitions []string           `json:"transitions"`
	Stops       itinerary.Snapshot `json:"stops"`
	Touched     []int              `json:"touched_days"`
	Metadata    map[string]any     `json:"metadata"`
	Hydrated    bool               `json:"hydrated"`
	Error       string             `json:"error"`
}

func decodeJSON[T any](t *testing.T, out string) jsonResponse[T] {
	t.Helper()
	var resp jsonResponse[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// dayOrder returns the entity ids planned on day, in order.
func dayOrder(snap itinerary.Snapshot, day int) []string {
	return itinerary.EntityIDs(itinerary.GroupByDay(itinerary.Sort(snap))[day])
}
