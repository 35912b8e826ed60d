package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TimeFormat is the timestamp layout used in export output and meta
// descriptors.
const TimeFormat = "2006-01-02 15:04:05"

// Meta is the sidecar checkpoint descriptor written next to an export
// output file. The export is considered already done (and is skipped)
// when the source row count and requested time window match a complete
// descriptor-plus-file pair on disk.
type Meta struct {
	Server    string          `json:"sox_server"`
	Node      string          `json:"sox_node"`
	Columns   map[string]bool `json:"columns"` // channel name -> uses large object
	RowCount  int64           `json:"row_count"`
	FromTime  *string         `json:"from_time"`  // TimeFormat, nil = unbounded
	UntilTime *string         `json:"until_time"` // TimeFormat, nil = unbounded
}

// metaPath returns the sidecar path for a data file.
func metaPath(dataFile string) string {
	return dataFile + ".meta"
}

// formatWindow renders an optional window bound for the descriptor.
func formatWindow(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(TimeFormat)
	return &s
}

// Matches reports whether the descriptor covers an export of rowCount
// records over the same [from, until) window.
func (m *Meta) Matches(rowCount int64, from, until time.Time) bool {
	if m.RowCount != rowCount {
		return false
	}
	return equalWindow(m.FromTime, from) && equalWindow(m.UntilTime, until)
}

func equalWindow(bound *string, t time.Time) bool {
	if bound == nil {
		return t.IsZero()
	}
	if t.IsZero() {
		return false
	}
	return *bound == t.UTC().Format(TimeFormat)
}

// Equal reports whether two descriptors are identical. The CSV converter
// skips re-conversion when its own sidecar equals the source export's.
func (m *Meta) Equal(other *Meta) bool {
	if other == nil {
		return false
	}
	if m.Server != other.Server || m.Node != other.Node || m.RowCount != other.RowCount {
		return false
	}
	if !equalBound(m.FromTime, other.FromTime) || !equalBound(m.UntilTime, other.UntilTime) {
		return false
	}
	if len(m.Columns) != len(other.Columns) {
		return false
	}
	for name, usesLO := range m.Columns {
		v, ok := other.Columns[name]
		if !ok || v != usesLO {
			return false
		}
	}
	return true
}

func equalBound(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ReadMeta loads a descriptor. Returns os.ErrNotExist (wrapped) when the
// sidecar is missing.
func ReadMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	m := &Meta{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse meta %s: %w", path, err)
	}
	return m, nil
}

// WriteMeta persists a descriptor.
func WriteMeta(path string, m *Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}
