package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorgrid/recbatch/internal/store"
	"github.com/sensorgrid/recbatch/internal/testutil"
)

// seedObservation builds the fixture shared by the export tests: one
// observation with string, int, float, decimal, and large-object channel
// values spread over two records.
func seedObservation(t *testing.T, st *store.Store) {
	t.Helper()

	obs := testutil.CreateObservation(t, st, "server.example.org", "node-a")
	for _, name := range []string{"blob", "count", "note", "precise", "temp"} {
		testutil.InsertTransducer(t, st, obs, name)
	}

	lo := testutil.InsertLargeObject(t, st, "hash-blob", []byte("hello blob"), true)

	r1 := testutil.InsertRecord(t, st, obs, testutil.MustTime("2024-05-01 00:00:00"), false)
	testutil.InsertStringValue(t, st, r1, "note", `say "hi"`)
	testutil.InsertIntValue(t, st, r1, "count", 7)
	testutil.InsertFloatValue(t, st, r1, "temp", 21.5)

	r2 := testutil.InsertRecord(t, st, obs, testutil.MustTime("2024-05-01 00:01:00"), false)
	testutil.InsertFloatValue(t, st, r2, "temp", 22)
	testutil.InsertDecimalValue(t, st, r2, "precise", "1.2500")
	testutil.InsertLargeObjectValue(t, st, r2, "blob", lo)
}

func TestExportJSON(t *testing.T) {
	st := testutil.OpenTestStore(t)
	seedObservation(t, st)

	outFile := filepath.Join(t.TempDir(), "node-a.json")
	e := NewExporter(st, nil)

	res, err := e.ExportJSON(context.Background(), Options{
		Server:  "server.example.org",
		Node:    "node-a",
		OutFile: outFile,
	})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, map[string]bool{
		"blob": true, "count": false, "note": false, "precise": false, "temp": false,
	}, res.Columns)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "node_a_records", data)

	meta, err := ReadMeta(metaPath(outFile))
	require.NoError(t, err)
	assert.Equal(t, "server.example.org", meta.Server)
	assert.Equal(t, "node-a", meta.Node)
	assert.Equal(t, int64(2), meta.RowCount)
	assert.Nil(t, meta.FromTime)
	assert.Nil(t, meta.UntilTime)
}

func TestExportJSONSkipsWhenUnchanged(t *testing.T) {
	st := testutil.OpenTestStore(t)
	seedObservation(t, st)

	outFile := filepath.Join(t.TempDir(), "node-a.json")
	e := NewExporter(st, nil)
	opts := Options{Server: "server.example.org", Node: "node-a", OutFile: outFile}
	ctx := context.Background()

	res, err := e.ExportJSON(ctx, opts)
	require.NoError(t, err)
	require.False(t, res.Skipped)

	info, err := os.Stat(outFile)
	require.NoError(t, err)

	res, err = e.ExportJSON(ctx, opts)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, map[string]bool{
		"blob": true, "count": false, "note": false, "precise": false, "temp": false,
	}, res.Columns)

	// The output file was not rewritten.
	again, err := os.Stat(outFile)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}

func TestExportJSONReExportsAfterNewRecords(t *testing.T) {
	st := testutil.OpenTestStore(t)
	seedObservation(t, st)

	outFile := filepath.Join(t.TempDir(), "node-a.json")
	e := NewExporter(st, nil)
	opts := Options{Server: "server.example.org", Node: "node-a", OutFile: outFile}
	ctx := context.Background()

	_, err := e.ExportJSON(ctx, opts)
	require.NoError(t, err)

	obs, err := st.FindObservation(ctx, "server.example.org", "node-a")
	require.NoError(t, err)
	testutil.InsertRecord(t, st, obs, testutil.MustTime("2024-05-01 00:02:00"), false)

	res, err := e.ExportJSON(ctx, opts)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(3), res.Rows)
}

func TestExportJSONMissingMetaForcesRewrite(t *testing.T) {
	st := testutil.OpenTestStore(t)
	seedObservation(t, st)

	outFile := filepath.Join(t.TempDir(), "node-a.json")
	e := NewExporter(st, nil)
	opts := Options{Server: "server.example.org", Node: "node-a", OutFile: outFile}
	ctx := context.Background()

	_, err := e.ExportJSON(ctx, opts)
	require.NoError(t, err)

	// Simulate a crash that left the output without its descriptor.
	require.NoError(t, os.Remove(metaPath(outFile)))

	res, err := e.ExportJSON(ctx, opts)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestExportJSONNotFound(t *testing.T) {
	st := testutil.OpenTestStore(t)

	e := NewExporter(st, nil)
	res, err := e.ExportJSON(context.Background(), Options{
		Server:  "server.example.org",
		Node:    "no-such-node",
		OutFile: filepath.Join(t.TempDir(), "out.json"),
	})
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestExportJSONGzip(t *testing.T) {
	st := testutil.OpenTestStore(t)
	seedObservation(t, st)

	outFile := filepath.Join(t.TempDir(), "node-a.json.gz")
	e := NewExporter(st, nil)

	_, err := e.ExportJSON(context.Background(), Options{
		Server:  "server.example.org",
		Node:    "node-a",
		OutFile: outFile,
		Gzip:    true,
	})
	require.NoError(t, err)

	f, err := os.Open(outFile)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	decompressed, err := io.ReadAll(gz)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "node_a_records", decompressed)
}

func TestExportJSONSmallBatches(t *testing.T) {
	st := testutil.OpenTestStore(t)
	seedObservation(t, st)

	outFile := filepath.Join(t.TempDir(), "node-a.json")
	e := NewExporter(st, nil)
	e.BatchSize = 1 // force the pagination loop through multiple batches

	_, err := e.ExportJSON(context.Background(), Options{
		Server:  "server.example.org",
		Node:    "node-a",
		OutFile: outFile,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "node_a_records", data)
}
