// Package spill implements the gzip+JSONL append-only spill files the
// Enumeration Manager writes for large per-object artifacts (security
// descriptors, token-group memberships) that are too heavy to insert
// row-by-row and are instead batched through a bulk load.
package spill

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Kind names which category of artifact a spill file holds.
type Kind string

const (
	KindSecurityDescriptor Kind = "sd"
	KindTokenGroup         Kind = "token"
)

// Writer appends gzip-compressed, newline-delimited JSON records to one
// spill file. It is not safe for concurrent use by multiple goroutines;
// the Enumeration Manager owns one Writer per spill kind.
type Writer struct {
	kind    Kind
	path    string
	file    *os.File
	gz      *gzip.Writer
	buf     *bufio.Writer
	written int64
}

// NewWriter creates a new timestamped spill file of the given kind inside
// dir, named "<kind>_<UTC-YYYYMMDD_HHMMSS>.gzip".
func NewWriter(dir string, kind Kind, now time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spill: create dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.gzip", kind, now.UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("spill: create file: %w", err)
	}
	gz := gzip.NewWriter(f)
	return &Writer{
		kind: kind,
		path: path,
		file: f,
		gz:   gz,
		buf:  bufio.NewWriter(gz),
	}, nil
}

// Path returns the spill file's path on disk.
func (w *Writer) Path() string { return w.path }

// BytesWritten returns the number of uncompressed bytes appended so far,
// for the spill_bytes_written_total metric.
func (w *Writer) BytesWritten() int64 { return w.written }

// Append serializes v as one JSON line terminated by "\r\n".
func (w *Writer) Append(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("spill: marshal record: %w", err)
	}
	n, err := w.buf.Write(b)
	if err != nil {
		return fmt.Errorf("spill: write record: %w", err)
	}
	if _, err := w.buf.WriteString("\r\n"); err != nil {
		return fmt.Errorf("spill: write terminator: %w", err)
	}
	w.written += int64(n) + 2
	return nil
}

// Close flushes and closes the underlying buffer, gzip writer, and file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("spill: flush buffer: %w", err)
	}
	if err := w.gz.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("spill: close gzip: %w", err)
	}
	return w.file.Close()
}

// Remove deletes the spill file after it has been successfully bulk
// loaded.
func (w *Writer) Remove() error {
	return os.Remove(w.path)
}

// ReadLines opens an existing spill file and invokes fn once per
// decompressed JSONL line (trailing "\r\n" stripped), stopping at the
// first error fn returns.
func ReadLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("spill: open file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("spill: open gzip reader: %w", err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		line = bytesTrimCR(line)
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// bytesTrimCR drops a trailing '\r' left behind when splitting "\r\n"
// terminated lines on '\n'.
func bytesTrimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
