package rollup_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorgrid/recbatch/internal/rollup"
	"github.com/sensorgrid/recbatch/internal/store"
	"github.com/sensorgrid/recbatch/internal/testutil"
)

func insertDay(t *testing.T, st *store.Store, day string, totals map[int64]int64) {
	t.Helper()
	var rollups []store.DailyRollup
	for obsID, total := range totals {
		rollups = append(rollups, store.DailyRollup{ObservationID: obsID, Total: total})
	}
	require.NoError(t, st.InsertDailyRollups(context.Background(), day, rollups))
}

func TestMonthlyEngineEmptyStore(t *testing.T) {
	st := testutil.OpenTestStore(t)

	e := rollup.NewMonthlyEngine(st, nil)
	e.StagingDir = t.TempDir()
	e.Now = testutil.FixedClock(testutil.MustTime("2024-06-15 00:00:00"))

	months, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, months)
}

func TestMonthlyEngineCatchUp(t *testing.T) {
	st := testutil.OpenTestStore(t)
	ctx := context.Background()

	a := testutil.CreateObservation(t, st, "s", "node-a")
	b := testutil.CreateObservation(t, st, "s", "node-b")

	insertDay(t, st, "2024-04-29", map[int64]int64{a: 5, b: 0})
	insertDay(t, st, "2024-04-30", map[int64]int64{a: 7, b: 0})
	insertDay(t, st, "2024-05-01", map[int64]int64{a: 3, b: 2})

	stagingDir := t.TempDir()
	e := rollup.NewMonthlyEngine(st, nil)
	e.StagingDir = stagingDir
	e.Now = testutil.FixedClock(testutil.MustTime("2024-06-15 00:00:00"))

	months, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, months) // April and May 2024

	total, err := st.MonthlyTotalFor(ctx, a, 2024, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)

	total, err = st.MonthlyTotalFor(ctx, a, 2024, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	total, err = st.MonthlyTotalFor(ctx, b, 2024, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// The staging files are consumed and removed.
	entries, err := os.ReadDir(stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMonthlyEngineZeroFill(t *testing.T) {
	st := testutil.OpenTestStore(t)
	ctx := context.Background()

	a := testutil.CreateObservation(t, st, "s", "node-a")
	b := testutil.CreateObservation(t, st, "s", "node-b")

	// Only node-a has daily rows in April.
	insertDay(t, st, "2024-04-30", map[int64]int64{a: 7})

	e := rollup.NewMonthlyEngine(st, nil)
	e.StagingDir = t.TempDir()
	e.Now = testutil.FixedClock(testutil.MustTime("2024-05-01 00:00:00"))

	months, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, months)

	total, err := st.MonthlyTotalFor(ctx, b, 2024, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	n, err := st.MonthlyRowCount(ctx, 2024, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMonthlyEngineIsIdempotent(t *testing.T) {
	st := testutil.OpenTestStore(t)
	ctx := context.Background()

	a := testutil.CreateObservation(t, st, "s", "node-a")
	insertDay(t, st, "2024-04-30", map[int64]int64{a: 7})

	e := rollup.NewMonthlyEngine(st, nil)
	e.StagingDir = t.TempDir()
	e.Now = testutil.FixedClock(testutil.MustTime("2024-05-01 00:00:00"))

	months, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, months)

	months, err = e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, months)

	n, err := st.MonthlyRowCount(ctx, 2024, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMonthlyEngineYearBoundary(t *testing.T) {
	st := testutil.OpenTestStore(t)
	ctx := context.Background()

	a := testutil.CreateObservation(t, st, "s", "node-a")
	insertDay(t, st, "2023-12-31", map[int64]int64{a: 4})
	insertDay(t, st, "2024-01-01", map[int64]int64{a: 6})

	e := rollup.NewMonthlyEngine(st, nil)
	e.StagingDir = t.TempDir()
	e.Now = testutil.FixedClock(testutil.MustTime("2024-02-01 00:00:00"))

	months, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, months) // 2023-12 and 2024-01

	total, err := st.MonthlyTotalFor(ctx, a, 2023, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	total, err = st.MonthlyTotalFor(ctx, a, 2024, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
}
