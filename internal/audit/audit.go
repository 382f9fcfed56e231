// Package audit keeps the append-only CSV record of minutes jobs.
package audit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"
)

// Schema is the current header of the audit file.
var Schema = []string{
	"timestamp",
	"filename",
	"size_mb",
	"duration_sec",
	"status",
	"error_message",
	"minutes_file",
}

const TimestampLayout = "2006-01-02 15:04:05"

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Entry is one job outcome.
type Entry struct {
	Timestamp    time.Time
	Filename     string
	SizeMB       float64
	DurationSec  float64
	Status       Status
	ErrorMessage string
	ArtifactPath string
}

// Row renders e in Schema order.
func (e Entry) Row() []string {
	return []string{
		e.Timestamp.Format(TimestampLayout),
		e.Filename,
		strconv.FormatFloat(e.SizeMB, 'f', 2, 64),
		strconv.FormatFloat(e.DurationSec, 'f', 2, 64),
		string(e.Status),
		e.ErrorMessage,
		e.ArtifactPath,
	}
}

// Log appends entries to a CSV file. Appends are serialized so each entry is
// a single write of one complete record.
type Log struct {
	mu     sync.Mutex
	path   string
	schema []string
	logger *slog.Logger
}

// Open prepares the audit file at path: it is created with the header when
// missing and migrated when its header differs from Schema. Migration
// failures are logged and leave the file untouched.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{path: path, schema: slices.Clone(Schema), logger: logger}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := l.writeAll(path, [][]string{l.schema}); err != nil {
			return nil, fmt.Errorf("create audit file: %w", err)
		}
		return l, nil
	} else if err != nil {
		return nil, fmt.Errorf("stat audit file: %w", err)
	}

	migrated, err := l.Migrate()
	if err != nil {
		logger.Warn("audit log migration failed, keeping existing file", "path", path, "err", err)
	} else if migrated {
		logger.Info("audit log migrated to current schema", "path", path, "backup", l.BackupPath())
	}
	return l, nil
}

func (l *Log) Path() string { return l.path }

func (l *Log) BackupPath() string { return l.path + ".backup" }

// Migrate rewrites the file under the current header when its first row
// differs. The original is copied to BackupPath first and old rows are
// right-padded with empty fields. It reports whether a rewrite happened.
func (l *Log) Migrate() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return false, fmt.Errorf("read audit file: %w", err)
	}
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return false, fmt.Errorf("parse audit file: %w", err)
	}
	if len(records) > 0 && slices.Equal(records[0], l.schema) {
		return false, nil
	}

	if err := os.WriteFile(l.BackupPath(), raw, 0o644); err != nil {
		return false, fmt.Errorf("write backup: %w", err)
	}

	out := make([][]string, 0, len(records)+1)
	out = append(out, l.schema)
	if len(records) > 1 {
		for _, row := range records[1:] {
			out = append(out, pad(row, len(l.schema)))
		}
	}

	tmp := l.path + ".tmp"
	if err := l.writeAll(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("rewrite audit file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("replace audit file: %w", err)
	}
	return true, nil
}

// Record appends e as one CSV record.
func (l *Log) Record(e Entry) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(e.Row()); err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("append audit entry: %w", err)
	}
	return f.Close()
}

// Rows returns every data row, header excluded.
func (l *Log) Rows() ([][]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for first := true; ; first = false {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read audit file: %w", err)
		}
		if first {
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (l *Log) writeAll(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func pad(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}
	return row
}
