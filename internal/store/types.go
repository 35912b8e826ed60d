package store

import (
	"database/sql"
	"time"
)

// Observation is a registered data source (server + node identity pair).
// Observations are created by the recorder and are read-only here.
type Observation struct {
	ID      int64
	Server  string
	Node    string
	Created time.Time
}

// Record is one raw timestamped event belonging to an observation.
type Record struct {
	ID           int64
	IsParseError bool
	Created      time.Time
}

// DailyRecordCount is the per-(observation, day) rollup checkpoint row.
type DailyRecordCount struct {
	ID            int64
	ObservationID int64
	Day           string // "YYYY-MM-DD"
	Total         int64
}

// DailyUnit is one fixed-width sub-interval count belonging to a
// DailyRecordCount.
type DailyUnit struct {
	DailyRecordCountID int64
	Unit               int
	UnitSeq            int
	Count              int64
}

// MonthlyRecordCount is the per-(observation, year, month) rollup row.
type MonthlyRecordCount struct {
	ID            int64
	ObservationID int64
	Year          int
	Month         int
	Total         int64
}

// LargeObjectRow is a binary payload as stored: possibly gzip-compressed.
type LargeObjectRow struct {
	ID        int64
	Content   []byte
	IsGzipped bool
}

// ValueType discriminates the typed columns of transducer_raw_value.
type ValueType int

const (
	TypeString      ValueType = 1
	TypeInt         ValueType = 2
	TypeFloat       ValueType = 3
	TypeDecimal     ValueType = 4
	TypeLargeObject ValueType = 5
)

// TValue is one transducer (channel) value attached to a record, as a
// tagged variant. Exactly one of the typed fields is meaningful, selected
// by Type.
type TValue struct {
	RecordID   int64
	Transducer string
	Type       ValueType

	Str           string
	Int           int64
	Float         float64
	Decimal       string
	LargeObjectID int64

	Timestamp sql.NullTime
}
