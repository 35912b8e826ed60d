// Package rollup implements the daily and monthly record-count rollup
// engines and the pure bucket aggregation they are built on.
//
// Progress is checkpointed through row existence: a daily_record_count
// row marks its day as done, a monthly_record_count row marks its month.
// The engines run single-threaded and commit one day or month per
// transaction, so a restart after any failure resumes at the last
// committed unit without duplicating rows.
package rollup

import "fmt"

// MinutesPerDay is the number of minute slots in one calendar day.
const MinutesPerDay = 1440

// UnitWidths is the fixed set of bucket widths (in minutes) computed for
// every rolled-up day. Each width evenly divides MinutesPerDay.
var UnitWidths = []int{1, 5, 10, 30, 60, 360, 720}

// Buckets converts a sparse minute-of-day count mapping into 1440/unit
// fixed-width buckets: element i is the sum of the minute counts in
// [i*unit, (i+1)*unit). Missing minutes count as zero.
//
// A unit width that does not evenly divide the day, or a minute index
// outside [0, 1440), is a programmer error and panics.
func Buckets(minuteCounts map[int]int64, unit int) []int64 {
	if unit <= 0 || MinutesPerDay%unit != 0 {
		panic(fmt.Sprintf("rollup: unit width %d does not evenly divide %d minutes", unit, MinutesPerDay))
	}

	out := make([]int64, MinutesPerDay/unit)
	for minute, count := range minuteCounts {
		if minute < 0 || minute >= MinutesPerDay {
			panic(fmt.Sprintf("rollup: minute index %d out of range", minute))
		}
		out[minute/unit] += count
	}
	return out
}
