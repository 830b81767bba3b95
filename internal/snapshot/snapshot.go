// Package snapshot exports the live contents of the store to Parquet files
// and queries exported files with DuckDB.
//
// Each stored observation becomes one Row. Attributes are kept in a typed
// JSON column so that a snapshot can be restored without changing feed keys
// (an int64 expiry must not come back as a float64).
package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/logging"
	"github.com/xtxerr/feedoracle/internal/storage"
)

var log = logging.Component("snapshot")

// =============================================================================
// Options
// =============================================================================

// Options configures the Parquet writer.
type Options struct {
	Compression CompressionType
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// ParseCompressionType parses a compression type string. Unknown names
// select zstd.
func ParseCompressionType(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func codec(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// =============================================================================
// Rows
// =============================================================================

// Row is one exported observation.
type Row struct {
	FeedType   int32   `parquet:"feed_type"`
	FeedName   string  `parquet:"feed_name,dict"`
	Enumerable string  `parquet:"enumerable"`
	Params     string  `parquet:"params"`
	Other      string  `parquet:"other,optional"`
	Value      float64 `parquet:"value"`
	Timestamp  int64   `parquet:"timestamp"`
	Slot       int32   `parquet:"slot"`
	Version    uint64  `parquet:"version"`
}

// typedValue is the JSON form of one attribute.
type typedValue struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v"`
}

// EntryToRow converts a storage entry.
func EntryToRow(e storage.Entry) (Row, error) {
	p := e.Feed.Params
	other, err := encodeOther(p)
	if err != nil {
		return Row{}, errors.Wrapf(err, "feed %s", e.Feed)
	}
	return Row{
		FeedType:   int32(e.Feed.Type),
		FeedName:   e.Feed.Type.String(),
		Enumerable: encodeEnumerable(p.Enumerable()),
		Params:     p.String(),
		Other:      other,
		Value:      e.Data.Value,
		Timestamp:  e.Data.Timestamp,
		Slot:       int32(e.Slot),
		Version:    e.Version,
	}, nil
}

// Feed rebuilds the feed identity of the row.
func (r Row) Feed() (feed.Feed, error) {
	enum, err := decodeEnumerable(r.Enumerable)
	if err != nil {
		return feed.Feed{}, err
	}
	other, err := decodeOther(r.Other)
	if err != nil {
		return feed.Feed{}, err
	}
	params, err := feed.NewParameters(enum, other)
	if err != nil {
		return feed.Feed{}, err
	}
	return feed.New(feed.Type(r.FeedType), params), nil
}

// Data returns the observation of the row.
func (r Row) Data() feed.Data {
	return feed.Data{Value: r.Value, Timestamp: r.Timestamp}
}

func encodeEnumerable(values []uint8) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ",")
}

func decodeEnumerable(s string) ([]uint8, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint8, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, errors.NewInvalidInput("enumerable %q: %v", s, err)
		}
		out[i] = uint8(n)
	}
	return out, nil
}

func encodeOther(p feed.Parameters) (string, error) {
	keys := p.Keys()
	if len(keys) == 0 {
		return "", nil
	}
	m := make(map[string]typedValue, len(keys))
	for _, k := range keys {
		v, _ := p.Other(k)
		var t string
		switch v.(type) {
		case int64:
			t = "int"
		case float64:
			t = "float"
		case bool:
			t = "bool"
		case string:
			t = "string"
		default:
			return "", errors.NewInvalidInput("attribute %q has type %T", k, v)
		}
		raw, err := json.Marshal(encodeValue(v))
		if err != nil {
			return "", err
		}
		m[k] = typedValue{Type: t, Value: raw}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// encodeValue writes non-finite floats as strings ("+Inf", "-Inf"); JSON has
// no literal for them.
func encodeValue(v any) any {
	if f, ok := v.(float64); ok && math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return v
}

func decodeFloat(raw json.RawMessage) (float64, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(s, 64)
	}
	var v float64
	err := json.Unmarshal(raw, &v)
	return v, err
}

func decodeOther(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]typedValue
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, errors.NewInvalidInput("attributes: %v", err)
	}
	out := make(map[string]any, len(m))
	for k, tv := range m {
		var err error
		switch tv.Type {
		case "int":
			var v int64
			err = json.Unmarshal(tv.Value, &v)
			out[k] = v
		case "float":
			var v float64
			v, err = decodeFloat(tv.Value)
			out[k] = v
		case "bool":
			var v bool
			err = json.Unmarshal(tv.Value, &v)
			out[k] = v
		case "string":
			var v string
			err = json.Unmarshal(tv.Value, &v)
			out[k] = v
		default:
			err = fmt.Errorf("unknown type %q", tv.Type)
		}
		if err != nil {
			return nil, errors.NewInvalidInput("attribute %q: %v", k, err)
		}
	}
	return out, nil
}

// =============================================================================
// Writer
// =============================================================================

// Writer writes rows to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[Row]
	rowCount int64
	closed   bool
}

// NewWriter creates a Parquet writer, creating the parent directory.
func NewWriter(path string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[Row](f, parquet.Compression(codec(opts.Compression)))

	return &Writer{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes rows to the file.
func (w *Writer) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")

// =============================================================================
// Export
// =============================================================================

// Export writes entries to path and returns the number of rows written.
func Export(path string, entries []storage.Entry, opts Options) (int64, error) {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		row, err := EntryToRow(e)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	w, err := NewWriter(path, opts)
	if err != nil {
		return 0, err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}

	log.Info("snapshot exported", "path", path, "rows", len(rows))
	return int64(len(rows)), nil
}

// FileName returns the snapshot file name for t.
func FileName(t time.Time) string {
	return "snapshot-" + t.UTC().Format(fileTimeLayout) + ".parquet"
}

// =============================================================================
// Reader
// =============================================================================

// ReadAll reads every row of a snapshot file.
func ReadAll(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	rows := make([]Row, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && n < len(rows) {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows[:n], nil
}

// Putter receives restored observations. *oracle.Service implements it.
type Putter interface {
	Put(f feed.Feed, value float64, timestamp int64) (bool, error)
}

// Restore writes every row of a snapshot file into dst and returns the
// number of rows restored.
func Restore(path string, dst Putter) (int, error) {
	rows, err := ReadAll(path)
	if err != nil {
		return 0, err
	}
	for i, r := range rows {
		f, err := r.Feed()
		if err != nil {
			return i, errors.Wrapf(err, "row %d", i)
		}
		if _, err := dst.Put(f, r.Value, r.Timestamp); err != nil {
			return i, errors.Wrapf(err, "row %d", i)
		}
	}
	log.Info("snapshot restored", "path", path, "rows", len(rows))
	return len(rows), nil
}
