package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorgrid/recbatch/internal/testutil"
)

func TestEscapeCSVValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil is empty", nil, ""},
		{"plain string", "hello", "hello"},
		{"string with space", "hello world", "hello world"},
		{"embedded quote", `say "hi"`, `"say ""hi"""`},
		{"embedded separator", "a,b", `"a,b"`},
		{"embedded newline", "a\nb", "\"a\nb\""},
		{"embedded carriage return", "a\rb", "\"a\rb\""},
		{"integer number", json.Number("42"), "42"},
		{"decimal number", json.Number("21.5"), "21.5"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(escapeCSVValue(tt.value, nil)))
		})
	}
}

func TestProjectColumns(t *testing.T) {
	channels := map[string]bool{"temp": false, "blob": true, "co2": false}

	assert.Equal(t,
		[]string{"id", "created", "is_parse_error", "blob", "co2", "temp"},
		projectColumns(channels, false))

	assert.Equal(t,
		[]string{"id", "created", "is_parse_error", "co2", "temp"},
		projectColumns(channels, true))
}

func TestConvertLine(t *testing.T) {
	columns := []string{"id", "created", "is_parse_error", "temp"}
	line := `{"created":"2024-05-01 00:00:00","id":1,"is_parse_error":false,"temp":21.5}`

	row, err := convertLine(line, columns, nil)
	require.NoError(t, err)
	assert.Equal(t, "1,2024-05-01 00:00:00,false,21.5\n", string(row))

	_, err = convertLine("not json", columns, nil)
	assert.Error(t, err)
}

// exportFixture runs a JSON export over the shared fixture and returns
// the output path.
func exportFixture(t *testing.T, dir string) string {
	t.Helper()

	st := testutil.OpenTestStore(t)
	seedObservation(t, st)

	outFile := filepath.Join(dir, "node-a.json")
	e := NewExporter(st, nil)
	_, err := e.ExportJSON(context.Background(), Options{
		Server:  "server.example.org",
		Node:    "node-a",
		OutFile: outFile,
	})
	require.NoError(t, err)
	return outFile
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	jsonFile := exportFixture(t, dir)
	csvFile := filepath.Join(dir, "node-a.csv")

	c := NewCSVConverter(nil)
	skipped, err := c.Convert(context.Background(), jsonFile, csvFile, CSVOptions{
		Encoding: "utf-8",
	})
	require.NoError(t, err)
	assert.False(t, skipped)

	data, err := os.ReadFile(csvFile)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "node_a_records_csv", data)
}

func TestConvertDropsLargeObjectColumns(t *testing.T) {
	dir := t.TempDir()
	jsonFile := exportFixture(t, dir)
	csvFile := filepath.Join(dir, "node-a.csv")

	c := NewCSVConverter(nil)
	_, err := c.Convert(context.Background(), jsonFile, csvFile, CSVOptions{
		Encoding:         "utf-8",
		DropLargeObjects: true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(csvFile)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "node_a_records_csv_nolo", data)
}

func TestConvertSkipsWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	jsonFile := exportFixture(t, dir)
	csvFile := filepath.Join(dir, "node-a.csv")
	ctx := context.Background()

	c := NewCSVConverter(nil)
	skipped, err := c.Convert(ctx, jsonFile, csvFile, CSVOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	require.False(t, skipped)

	skipped, err = c.Convert(ctx, jsonFile, csvFile, CSVOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	assert.True(t, skipped)

	// The sidecar mirrors the source descriptor.
	srcMeta, err := ReadMeta(metaPath(jsonFile))
	require.NoError(t, err)
	csvMeta, err := ReadMeta(metaPath(csvFile))
	require.NoError(t, err)
	assert.True(t, srcMeta.Equal(csvMeta))
}

func TestConvertRequiresSourceMeta(t *testing.T) {
	dir := t.TempDir()
	jsonFile := filepath.Join(dir, "orphan.json")
	require.NoError(t, os.WriteFile(jsonFile, []byte("{}\n"), 0o644))

	c := NewCSVConverter(nil)
	_, err := c.Convert(context.Background(), jsonFile, filepath.Join(dir, "orphan.csv"), CSVOptions{})
	assert.Error(t, err)
}
