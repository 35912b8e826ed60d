package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding"
)

// CSVOptions configures one JSON-lines to CSV conversion.
type CSVOptions struct {
	// Encoding names the output text encoding. Defaults to
	// DefaultEncoding; "utf-8" passes bytes through unchanged.
	Encoding string

	// DropLargeObjects excludes channels whose values were large-object
	// backed from the output columns.
	DropLargeObjects bool

	// Workers sizes the line-conversion worker pool.
	Workers int
}

// CSVConverter transforms an export's JSON-lines output into a delimited
// tabular file, idempotently against its own sidecar descriptor.
type CSVConverter struct {
	logger *slog.Logger
}

// NewCSVConverter creates a converter. A nil logger falls back to
// slog.Default().
func NewCSVConverter(logger *slog.Logger) *CSVConverter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVConverter{logger: logger}
}

// Convert reads jsonPath (gunzipping it when it ends in ".gz") and writes
// csvPath with a header row followed by one delimited row per source line. Column order is fixed: id, created,
// is_parse_error, then the channel names in sorted order (optionally
// excluding large-object columns). The conversion is skipped when the
// converter's sidecar equals the source export's descriptor.
func (c *CSVConverter) Convert(ctx context.Context, jsonPath, csvPath string, opts CSVOptions) (skipped bool, err error) {
	srcMeta, err := ReadMeta(metaPath(jsonPath))
	if err != nil {
		return false, fmt.Errorf("source export descriptor: %w", err)
	}

	csvMetaPath := metaPath(csvPath)
	if prev, err := ReadMeta(csvMetaPath); err == nil && fileExists(csvPath) {
		if prev.Equal(srcMeta) {
			c.logger.Info("csv: already converted, skipping", "node", srcMeta.Node)
			return true, nil
		}
	}
	if err := os.Remove(csvMetaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("remove stale csv meta: %w", err)
	}

	enc, err := resolveEncoding(opts.Encoding)
	if err != nil {
		return false, err
	}

	columns := projectColumns(srcMeta.Columns, opts.DropLargeObjects)

	in, err := os.Open(jsonPath)
	if err != nil {
		return false, fmt.Errorf("open export file: %w", err)
	}
	defer in.Close()

	// Gzipped exports are converted from the compressed file directly.
	var src io.Reader = in
	if strings.HasSuffix(jsonPath, ".gz") {
		gz, err := gzip.NewReader(in)
		if err != nil {
			return false, fmt.Errorf("open gzipped export file: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	out, err := os.Create(csvPath)
	if err != nil {
		return false, fmt.Errorf("create csv file: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)

	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if _, err := w.Write(makeCSVLine(header, enc)); err != nil {
		return false, fmt.Errorf("write csv header: %w", err)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	// Lines are converted in chunks on the worker pool; each chunk is
	// emitted strictly in input order.
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	chunk := make([]string, 0, DefaultBatchSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		rows, err := mapOrdered(chunk, workers, func(line string) ([]byte, error) {
			return convertLine(line, columns, enc)
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := w.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
		chunk = chunk[:0]
		return nil
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		chunk = append(chunk, scanner.Text())
		if len(chunk) == cap(chunk) {
			if err := flush(); err != nil {
				return false, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("read export file: %w", err)
	}
	if err := flush(); err != nil {
		return false, err
	}

	if err := w.Flush(); err != nil {
		return false, fmt.Errorf("flush csv file: %w", err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("close csv file: %w", err)
	}

	// The sidecar mirrors the source descriptor; equality on the next
	// run means nothing changed.
	if err := WriteMeta(csvMetaPath, srcMeta); err != nil {
		return false, err
	}
	return false, nil
}

// projectColumns builds the fixed output column order: id, created,
// is_parse_error, then sorted channel names.
func projectColumns(channels map[string]bool, dropLargeObjects bool) []string {
	columns := []string{"id", "created", "is_parse_error"}
	names := make([]string, 0, len(channels))
	for name, usesLO := range channels {
		if dropLargeObjects && usesLO {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return append(columns, names...)
}

// convertLine projects one JSON record onto the column list and encodes
// it as a CSV row.
func convertLine(line string, columns []string, enc encoding.Encoding) ([]byte, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber() // preserve integer formatting
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("parse export line: %w", err)
	}

	values := make([]any, len(columns))
	for i, col := range columns {
		values[i] = rec[col]
	}
	return makeCSVLine(values, enc), nil
}

// makeCSVLine renders one delimited row. String values are encoded to
// the target encoding with a UTF-8 fallback per value; a value embedding
// a quote, separator, or newline is quoted with embedded quotes doubled.
func makeCSVLine(values []any, enc encoding.Encoding) []byte {
	var buf bytes.Buffer
	for i, v := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(escapeCSVValue(v, enc))
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func escapeCSVValue(v any, enc encoding.Encoding) []byte {
	var s string
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		s = v
	case json.Number:
		s = v.String()
	case bool:
		if v {
			s = "true"
		} else {
			s = "false"
		}
	default:
		s = fmt.Sprint(v)
	}

	if strings.ContainsAny(s, "\",\r\n") {
		s = `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return encodeValue(s, enc)
}
