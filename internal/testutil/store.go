// Package testutil provides shared helpers for store and engine tests:
// an in-memory SQLite store with the schema applied, and fixture
// builders for observations, records, channel values, and large objects.
package testutil

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/sensorgrid/recbatch/internal/store"
)

// OpenTestStore opens an in-memory SQLite store with the schema applied.
// The store is closed automatically when the test finishes.
func OpenTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open("sqlite3", "file::memory:?_loc=UTC")
	require.NoError(t, err, "open test store")
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.EnsureSchema(context.Background()), "apply schema")
	return st
}

// CreateObservation registers an observation and returns its id.
func CreateObservation(t *testing.T, st *store.Store, server, node string) int64 {
	t.Helper()
	id, err := st.CreateObservation(context.Background(), server, node)
	require.NoError(t, err, "create observation")
	return id
}

// InsertRecord inserts a raw record (with a stub raw payload) and
// returns its id. created must be UTC.
func InsertRecord(t *testing.T, st *store.Store, observationID int64, created time.Time, isParseError bool) int64 {
	t.Helper()
	db := st.DB()

	res, err := db.Exec(
		`INSERT INTO raw_xml (is_gzipped, raw_xml) VALUES (?, ?)`,
		false, []byte("<xml/>"),
	)
	require.NoError(t, err, "insert raw_xml")
	rawID, err := res.LastInsertId()
	require.NoError(t, err)

	res, err = db.Exec(
		`INSERT INTO record (observation_id, is_parse_error, raw_xml_id, created) VALUES (?, ?, ?, ?)`,
		observationID, isParseError, rawID, created.UTC(),
	)
	require.NoError(t, err, "insert record")
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// InsertTransducer registers a channel name for an observation.
func InsertTransducer(t *testing.T, st *store.Store, observationID int64, name string) {
	t.Helper()
	_, err := st.DB().Exec(
		`INSERT INTO transducer (observation_id, name) VALUES (?, ?)`,
		observationID, name,
	)
	require.NoError(t, err, "insert transducer")
}

// InsertStringValue attaches a string channel value to a record.
func InsertStringValue(t *testing.T, st *store.Store, recordID int64, name, value string) {
	t.Helper()
	insertValue(t, st, recordID, name, store.TypeString, value, nil, nil, nil, nil)
}

// InsertIntValue attaches an integer channel value to a record.
func InsertIntValue(t *testing.T, st *store.Store, recordID int64, name string, value int64) {
	t.Helper()
	insertValue(t, st, recordID, name, store.TypeInt, nil, value, nil, nil, nil)
}

// InsertFloatValue attaches a float channel value to a record.
func InsertFloatValue(t *testing.T, st *store.Store, recordID int64, name string, value float64) {
	t.Helper()
	insertValue(t, st, recordID, name, store.TypeFloat, nil, nil, value, nil, nil)
}

// InsertDecimalValue attaches a decimal channel value to a record.
func InsertDecimalValue(t *testing.T, st *store.Store, recordID int64, name, value string) {
	t.Helper()
	insertValue(t, st, recordID, name, store.TypeDecimal, nil, nil, nil, value, nil)
}

// InsertLargeObjectValue attaches a large-object reference to a record.
func InsertLargeObjectValue(t *testing.T, st *store.Store, recordID int64, name string, largeObjectID int64) {
	t.Helper()
	insertValue(t, st, recordID, name, store.TypeLargeObject, nil, nil, nil, nil, largeObjectID)
}

func insertValue(t *testing.T, st *store.Store, recordID int64, name string, vt store.ValueType, str, i, f, dec, loid any) {
	t.Helper()
	_, err := st.DB().Exec(`
		INSERT INTO transducer_raw_value
		(record_id, transducer, value_type, string_value, int_value, float_value, decimal_value, large_object_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		recordID, name, int(vt), str, i, f, dec, loid,
	)
	require.NoError(t, err, "insert transducer value")
}

// InsertLargeObject stores a payload, gzip-compressing it first when
// compress is true, and returns its id.
func InsertLargeObject(t *testing.T, st *store.Store, hashKey string, content []byte, compress bool) int64 {
	t.Helper()

	stored := content
	if compress {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write(content)
		require.NoError(t, err, "gzip large object")
		require.NoError(t, gz.Close())
		stored = buf.Bytes()
	}

	res, err := st.DB().Exec(
		`INSERT INTO large_object (is_gzipped, hash_key, content) VALUES (?, ?, ?)`,
		compress, hashKey, stored,
	)
	require.NoError(t, err, "insert large object")
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}
