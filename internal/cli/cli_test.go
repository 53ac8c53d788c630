package cli

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Per-test data dirs are removed on cleanup, so keep compiled code in memory.
	setupWASMCache("", slog.Default())
	os.Exit(m.Run())
}

// run executes leakrctl against dir with sync disabled.
func run(t *testing.T, dir, format string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--offline", "--data-dir", dir, "--format", format}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp), raw)
	require.Equal(t, "ok", resp.Status, resp.Error)
	return resp.Data
}

func TestCreatorsAddAndResolve(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "json", "creators", "add", "Alice", "Wonder", "--alias", "wonderal")
	require.NoError(t, err)
	added := decode[struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}](t, out)
	assert.Equal(t, "Alice Wonder", added.Name)
	assert.NotZero(t, added.ID)

	out, err = run(t, dir, "json", "resolve", "Alice", "Wonder")
	require.NoError(t, err)
	res := decode[resolveOutput](t, out)
	require.NotNil(t, res.Creator)
	assert.Equal(t, added.ID, res.Creator.ID)
	assert.Equal(t, "exact", res.Tier)

	out, err = run(t, dir, "json", "resolve", "wonderal")
	require.NoError(t, err)
	res = decode[resolveOutput](t, out)
	require.NotNil(t, res.Creator)
	assert.Equal(t, "alias", res.Tier)
}

func TestResolveMissText(t *testing.T) {
	out, err := run(t, t.TempDir(), "text", "resolve", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "no creator matched")
}

func TestStatusAfterWrite(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "json", "status")
	require.NoError(t, err)
	st := decode[statusOutput](t, out)
	assert.Nil(t, st.Snapshot, "fresh store is not persisted")
	assert.Zero(t, st.Creators)

	_, err = run(t, dir, "json", "creators", "add", "Bob")
	require.NoError(t, err)

	out, err = run(t, dir, "json", "status")
	require.NoError(t, err)
	st = decode[statusOutput](t, out)
	assert.Equal(t, 1, st.Creators)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, st.Iteration, st.Snapshot.Iteration)
	assert.Equal(t, filepath.Join(dir, "leakr.db"), st.Database)
}

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	exportDir := t.TempDir()

	_, err := run(t, dir, "json", "creators", "add", "Carol")
	require.NoError(t, err)

	out, err := run(t, dir, "json", "export", exportDir)
	require.NoError(t, err)
	exp := decode[snapshotOutput](t, out)
	assert.Equal(t, filepath.Join(exportDir, exp.Info.Filename), exp.Path)
	data, err := os.ReadFile(exp.Path)
	require.NoError(t, err)
	assert.Len(t, data, exp.Size)

	_, err = run(t, dir, "json", "creators", "add", "Dave")
	require.NoError(t, err)

	_, err = run(t, dir, "json", "import", exp.Path)
	require.NoError(t, err)

	out, err = run(t, dir, "json", "creators", "ls")
	require.NoError(t, err)
	cs := decode[[]struct {
		Name string `json:"name"`
	}](t, out)
	require.Len(t, cs, 1)
	assert.Equal(t, "Carol", cs[0].Name)
}

func TestImportGarbageKeepsDatabase(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "json", "creators", "add", "Erin")
	require.NoError(t, err)

	bad := filepath.Join(t.TempDir(), "bad.sqlite")
	require.NoError(t, os.WriteFile(bad, []byte("not a database"), 0o600))
	_, err = run(t, dir, "json", "import", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err := run(t, dir, "json", "creators", "ls")
	require.NoError(t, err)
	assert.Len(t, decode[[]map[string]any](t, out), 1)
}

func TestSettingsSetOwner(t *testing.T) {
	dir := t.TempDir()
	owner := "8a0c1f5e-4b7d-4c2a-9e3f-1d2c3b4a5f60"

	out, err := run(t, dir, "json", "settings", "set-owner", owner)
	require.NoError(t, err)
	assert.Equal(t, owner, decode[map[string]any](t, out)["uuid"])

	_, err = run(t, dir, "json", "settings", "set-owner", "not-a-uuid")
	require.Error(t, err)

	_, err = run(t, dir, "json", "settings", "set-share", "maybe")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSyncDisabled(t *testing.T) {
	_, err := run(t, t.TempDir(), "json", "sync")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSyncFlagsExclusive(t *testing.T) {
	_, err := run(t, t.TempDir(), "json", "sync", "--keep-local", "--accept", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCreatorsRmBadID(t *testing.T) {
	_, err := run(t, t.TempDir(), "json", "creators", "rm", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, t.TempDir(), "yaml", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
