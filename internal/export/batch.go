package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BatchOptions configures an export run over a node list.
type BatchOptions struct {
	Server string
	Nodes  []string
	OutDir string

	// From and Until bound the record window: [From, Until). Zero times
	// are unbounded.
	From  time.Time
	Until time.Time

	// NoCSV disables CSV conversion; only JSON-lines files are written.
	NoCSV bool

	// DropLargeObjects excludes large-object columns from CSV output.
	DropLargeObjects bool

	// Encoding names the CSV output encoding.
	Encoding string

	// GzipJSON compresses the JSON-lines output files.
	GzipJSON bool
}

// NodeResult is the per-node outcome of a batch run.
type NodeResult struct {
	Node    string
	Found   bool
	Skipped bool
	Rows    int64
}

// BatchSummary is the final report of a batch run.
type BatchSummary struct {
	RunID       string
	Started     time.Time
	Finished    time.Time
	Nodes       []NodeResult
	NotFound    []string
	ExportTime  time.Duration // cumulative JSON export time
	ConvertTime time.Duration // cumulative CSV conversion time
}

// RunBatch exports every node in opts.Nodes sequentially: JSON lines
// first, then CSV conversion unless disabled. A node whose observation
// is not found is recorded and the batch continues. Summary artifacts
// (node_rows.csv and _meta.json) are written into the output directory.
func (e *Exporter) RunBatch(ctx context.Context, conv *CSVConverter, opts BatchOptions) (*BatchSummary, error) {
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	summary := &BatchSummary{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
	}

	for i, node := range opts.Nodes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		e.logger.Info("export: node", "n", i+1, "total", len(opts.Nodes), "node", node)

		jsonFile := filepath.Join(opts.OutDir, safeFileName(node)+jsonExt(opts.GzipJSON))

		t0 := time.Now()
		res, err := e.ExportJSON(ctx, Options{
			Server:  opts.Server,
			Node:    node,
			OutFile: jsonFile,
			From:    opts.From,
			Until:   opts.Until,
			Gzip:    opts.GzipJSON,
		})
		if err != nil {
			return summary, fmt.Errorf("export node %s: %w", node, err)
		}
		summary.ExportTime += time.Since(t0)

		nr := NodeResult{Node: node, Found: res.Found, Skipped: res.Skipped, Rows: res.Rows}
		summary.Nodes = append(summary.Nodes, nr)
		if !res.Found {
			summary.NotFound = append(summary.NotFound, node)
			continue
		}

		if !opts.NoCSV {
			csvFile := filepath.Join(opts.OutDir, safeFileName(node)+".csv")
			t1 := time.Now()
			_, err := conv.Convert(ctx, jsonFile, csvFile, CSVOptions{
				Encoding:         opts.Encoding,
				DropLargeObjects: opts.DropLargeObjects,
				Workers:          e.Workers,
			})
			if err != nil {
				return summary, fmt.Errorf("convert node %s: %w", node, err)
			}
			summary.ConvertTime += time.Since(t1)
		}
	}

	summary.Finished = time.Now().UTC()

	if err := writeNodeRows(filepath.Join(opts.OutDir, "node_rows.csv"), summary.Nodes); err != nil {
		return summary, err
	}
	if err := writeRunMeta(filepath.Join(opts.OutDir, "_meta.json"), opts, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// ReadNodeList loads node names from a file, one per line, skipping
// blanks and dropping duplicates while preserving first-seen order.
func ReadNodeList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open node list: %w", err)
	}
	defer f.Close()

	var (
		nodes []string
		seen  = make(map[string]bool)
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		node := strings.TrimRight(scanner.Text(), "\r\n")
		if node == "" || seen[node] {
			continue
		}
		seen[node] = true
		nodes = append(nodes, node)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read node list: %w", err)
	}
	return nodes, nil
}

// safeFileName makes a node name usable as a file name.
func safeFileName(node string) string {
	return strings.ReplaceAll(node, "/", "__slash__")
}

func jsonExt(gzipped bool) string {
	if gzipped {
		return ".json.gz"
	}
	return ".json"
}

// writeNodeRows writes the per-node record counts, ascending by count.
func writeNodeRows(path string, nodes []NodeResult) error {
	sorted := make([]NodeResult, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rows < sorted[j].Rows })

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create node_rows.csv: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(makeCSVLine([]any{"node", "records"}, nil)); err != nil {
		return fmt.Errorf("write node_rows.csv: %w", err)
	}
	for _, nr := range sorted {
		if _, err := w.Write(makeCSVLine([]any{nr.Node, json.Number(fmt.Sprint(nr.Rows))}, nil)); err != nil {
			return fmt.Errorf("write node_rows.csv: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush node_rows.csv: %w", err)
	}
	return nil
}

// writeRunMeta records the batch run descriptor.
func writeRunMeta(path string, opts BatchOptions, summary *BatchSummary) error {
	meta := map[string]any{
		"run_id":          summary.RunID,
		"time_start":      summary.Started.Format(TimeFormat),
		"time_finish":     summary.Finished.Format(TimeFormat),
		"time_passed_sec": summary.Finished.Sub(summary.Started).Seconds(),
		"sox_server":      opts.Server,
		"n_nodes":         len(opts.Nodes),
		"nodes":           opts.Nodes,
		"out_dir":         opts.OutDir,
		"not_found":       summary.NotFound,
	}
	data, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal run meta: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run meta: %w", err)
	}
	return nil
}
