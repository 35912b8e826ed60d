package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/sensorgrid/recbatch/internal/store"
)

// DefaultBatchSize is the record buffer size: channel values and large
// objects are resolved once per batch, in one round trip each.
const DefaultBatchSize = 1000

// Exporter writes one observation's full record history as a JSON-lines
// file plus a checkpoint sidecar.
//
// Each Exporter owns its large-object cache; there is no process-wide
// shared state, so two exporters never contaminate each other's caches.
type Exporter struct {
	st     *store.Store
	cache  *LargeObjectCache
	logger *slog.Logger

	// Workers sizes the serialization worker pool. Defaults to
	// runtime.NumCPU().
	Workers int

	// BatchSize is the record buffer size. Defaults to DefaultBatchSize.
	BatchSize int
}

// NewExporter creates an exporter with a cache of the default size.
// A nil logger falls back to slog.Default().
func NewExporter(st *store.Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		st:        st,
		cache:     NewLargeObjectCache(st, DefaultCacheSize),
		logger:    logger,
		Workers:   runtime.NumCPU(),
		BatchSize: DefaultBatchSize,
	}
}

// Options selects the observation and output for one export.
type Options struct {
	Server string
	Node   string

	// OutFile is the JSON-lines output path; the checkpoint sidecar is
	// written next to it as OutFile + ".meta".
	OutFile string

	// From and Until bound the record window: [From, Until). Zero times
	// are unbounded.
	From  time.Time
	Until time.Time

	// Gzip compresses the output file.
	Gzip bool
}

// Result reports the outcome of one export.
type Result struct {
	// Found is false when no observation matches the (server, node)
	// identity. Not found is non-fatal: batch runs continue with the
	// next observation.
	Found bool

	// Skipped is true when the checkpoint matched and the previous
	// output was left untouched.
	Skipped bool

	// Rows is the record count in the requested window.
	Rows int64

	// Columns maps each channel name observed in the export to whether
	// any of its values was large-object backed.
	Columns map[string]bool
}

// ExportJSON exports one observation's records as JSON lines.
//
// Re-running an export whose source row count and time window are
// unchanged does not re-read the record table beyond the count check and
// does not rewrite the output; the previous column metadata is returned.
func (e *Exporter) ExportJSON(ctx context.Context, opts Options) (*Result, error) {
	obsID, err := e.st.FindObservation(ctx, opts.Server, opts.Node)
	if errors.Is(err, store.ErrNotFound) {
		return &Result{Found: false}, nil
	}
	if err != nil {
		return nil, err
	}

	names, err := e.st.TransducerNames(ctx, obsID)
	if err != nil {
		return nil, err
	}

	rowCount, err := e.st.CountRecords(ctx, obsID, opts.From, opts.Until)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("export: observation resolved",
		"node", opts.Node, "observation_id", obsID,
		"transducers", len(names), "rows", rowCount)

	// Idempotence check: trust only a complete descriptor-plus-file pair.
	mp := metaPath(opts.OutFile)
	if prev, err := ReadMeta(mp); err == nil && fileExists(opts.OutFile) {
		if prev.Matches(rowCount, opts.From, opts.Until) {
			e.logger.Info("export: already exported, skipping",
				"node", opts.Node, "rows", rowCount)
			return &Result{Found: true, Skipped: true, Rows: rowCount, Columns: prev.Columns}, nil
		}
	}

	// The descriptor is only valid for a completely written file.
	// Removing it first means a crash mid-export leaves no descriptor,
	// which forces the next run to start over.
	if err := os.Remove(mp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale meta: %w", err)
	}

	columns := make(map[string]bool)
	if err := e.writeLines(ctx, obsID, opts, columns); err != nil {
		return nil, err
	}

	meta := &Meta{
		Server:    opts.Server,
		Node:      opts.Node,
		Columns:   columns,
		RowCount:  rowCount,
		FromTime:  formatWindow(opts.From),
		UntilTime: formatWindow(opts.Until),
	}
	if err := WriteMeta(mp, meta); err != nil {
		return nil, err
	}

	return &Result{Found: true, Rows: rowCount, Columns: columns}, nil
}

// writeLines streams the observation's records batch by batch into the
// output file, updating columns as channel values are observed.
func (e *Exporter) writeLines(ctx context.Context, obsID int64, opts Options, columns map[string]bool) error {
	f, err := os.Create(opts.OutFile)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if opts.Gzip {
		gz = gzip.NewWriter(f)
		w = gz
	}

	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var (
		afterCreated time.Time
		afterID      int64
		written      int64
	)
	for {
		batch, err := e.st.RecordBatch(ctx, obsID, opts.From, opts.Until, afterCreated, afterID, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		if err := e.flushBatch(ctx, w, batch, columns); err != nil {
			return err
		}
		written += int64(len(batch))
		e.logger.Debug("export: batch written", "node", opts.Node, "records", written)

		last := batch[len(batch)-1]
		afterCreated, afterID = last.Created, last.ID
		if len(batch) < batchSize {
			break
		}
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("close gzip stream: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}

// flushBatch resolves every channel value for the batch in one round
// trip, resolves referenced large objects through the cache, serializes
// each record on the worker pool, and emits the lines in batch order.
func (e *Exporter) flushBatch(ctx context.Context, w io.Writer, batch []store.Record, columns map[string]bool) error {
	ids := make([]int64, len(batch))
	index := make(map[int64]int, len(batch))
	for i, r := range batch {
		ids[i] = r.ID
		index[r.ID] = i
	}

	values, err := e.st.TransducerValues(ctx, ids)
	if err != nil {
		return err
	}

	lines := make([]map[string]any, len(batch))
	for i, r := range batch {
		lines[i] = map[string]any{
			"id":             r.ID,
			"created":        r.Created.Format(TimeFormat),
			"is_parse_error": r.IsParseError,
		}
	}

	// First pass: fill typed values and collect large-object references.
	type loRef struct {
		line int
		name string
		loid int64
	}
	var (
		refs  []loRef
		loids []int64
	)
	for _, v := range values {
		i, ok := index[v.RecordID]
		if !ok {
			continue
		}
		if v.Type == store.TypeLargeObject {
			columns[v.Transducer] = true
			lines[i][v.Transducer] = nil
			refs = append(refs, loRef{line: i, name: v.Transducer, loid: v.LargeObjectID})
			loids = append(loids, v.LargeObjectID)
			continue
		}
		if !columns[v.Transducer] {
			columns[v.Transducer] = false
		}
		switch v.Type {
		case store.TypeString:
			lines[i][v.Transducer] = v.Str
		case store.TypeInt:
			lines[i][v.Transducer] = v.Int
		case store.TypeFloat:
			lines[i][v.Transducer] = v.Float
		case store.TypeDecimal:
			lines[i][v.Transducer] = v.Decimal
		default:
			return fmt.Errorf("record %d: unknown value type %d for channel %q", v.RecordID, v.Type, v.Transducer)
		}
	}

	// Second pass: resolve large objects, batched per flush.
	if len(loids) > 0 {
		contents, err := e.cache.Resolve(ctx, loids)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if content, ok := contents[ref.loid]; ok {
				lines[ref.line][ref.name] = string(content)
			}
		}
	}

	encoded, err := mapOrdered(lines, e.Workers, func(line map[string]any) ([]byte, error) {
		data, err := json.Marshal(line)
		if err != nil {
			return nil, fmt.Errorf("marshal record line: %w", err)
		}
		return append(data, '\n'), nil
	})
	if err != nil {
		return err
	}

	for _, line := range encoded {
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("write record line: %w", err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
