package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorgrid/recbatch/internal/cli"
	"github.com/sensorgrid/recbatch/internal/store"
	"github.com/sensorgrid/recbatch/internal/testutil"
)

func TestExportRequiredFlags(t *testing.T) {
	_, err := runCommand(t, "export")
	assert.Error(t, err)
}

func TestExportInvalidWindow(t *testing.T) {
	configPath, _ := writeSQLiteConfig(t)
	nodeList := filepath.Join(t.TempDir(), "nodes.txt")
	require.NoError(t, os.WriteFile(nodeList, []byte("node-a\n"), 0o644))

	_, err := runCommand(t, "export",
		"-c", configPath,
		"-s", "server.example.org",
		"-n", nodeList,
		"-o", t.TempDir(),
		"--from", "May 1st 2024",
	)
	require.Error(t, err)
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
}

func TestExportEmptyNodeList(t *testing.T) {
	configPath, _ := writeSQLiteConfig(t)
	nodeList := filepath.Join(t.TempDir(), "nodes.txt")
	require.NoError(t, os.WriteFile(nodeList, []byte("\n\n"), 0o644))

	_, err := runCommand(t, "export",
		"-c", configPath,
		"-s", "server.example.org",
		"-n", nodeList,
		"-o", t.TempDir(),
	)
	require.Error(t, err)
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
}

func TestExportEndToEnd(t *testing.T) {
	configPath, dbPath := writeSQLiteConfig(t)
	seedFixtures(t, dbPath, func(st *store.Store) {
		obs := testutil.CreateObservation(t, st, "server.example.org", "node-a")
		testutil.InsertTransducer(t, st, obs, "temp")
		r := testutil.InsertRecord(t, st, obs, testutil.MustTime("2024-05-01 00:00:00"), false)
		testutil.InsertFloatValue(t, st, r, "temp", 21.5)
	})

	nodeList := filepath.Join(t.TempDir(), "nodes.txt")
	require.NoError(t, os.WriteFile(nodeList, []byte("node-a\nnode-missing\n"), 0o644))
	outDir := filepath.Join(t.TempDir(), "out")

	out, err := runCommand(t, "export",
		"-c", configPath,
		"-s", "server.example.org",
		"-n", nodeList,
		"-o", outDir,
		"--encoding", "utf-8",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "Nodes: 2 (found: 1, skipped: 0)")
	assert.Contains(t, out, "Exported rows: 1")
	assert.Contains(t, out, "WARNING: 1 observation(s) not found:")
	assert.Contains(t, out, "node-missing")

	assert.FileExists(t, filepath.Join(outDir, "node-a.json"))
	assert.FileExists(t, filepath.Join(outDir, "node-a.csv"))
	assert.FileExists(t, filepath.Join(outDir, "node_rows.csv"))
	assert.FileExists(t, filepath.Join(outDir, "_meta.json"))

	// A second run skips the unchanged observation.
	out, err = runCommand(t, "export",
		"-c", configPath,
		"-s", "server.example.org",
		"-n", nodeList,
		"-o", outDir,
		"--encoding", "utf-8",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped: 1")
}
