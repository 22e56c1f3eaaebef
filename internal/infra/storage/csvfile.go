package storage

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// fileLock serializes access to one store file between goroutines and between processes.
// The advisory lock lives on path+".lock" so the data file itself can be renamed over.
type fileLock struct {
	mu   sync.Mutex
	file *flock.Flock
}

func newFileLock(path string) *fileLock {
	return &fileLock{file: flock.New(path + ".lock")}
}

// lock takes the exclusive lock, or the shared one when shared is set, and returns the
// matching unlock.
func (l *fileLock) lock(shared bool) (func(), error) {
	l.mu.Lock()

	dir := filepath.Dir(l.file.Path())
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if shared {
			// nothing to read yet
			return l.mu.Unlock, nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			l.mu.Unlock()
			return nil, errors.Wrap(err, "mkdir")
		}
	}

	var err error
	if shared {
		err = l.file.RLock()
	} else {
		err = l.file.Lock()
	}
	if err != nil {
		l.mu.Unlock()
		return nil, errors.Wrap(err, "lock")
	}
	return func() {
		l.file.Unlock()
		l.mu.Unlock()
	}, nil
}

// table is a CSV file loaded in memory: the header row plus data rows.
type table struct {
	header []string
	rows   [][]string
	index  map[string]int
}

func (t *table) get(row []string, column string) string {
	i, ok := t.index[column]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// readTable loads path. A missing or empty file is an empty table.
func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &table{index: map[string]int{}}, nil
		}
		return nil, errors.Wrap(err, "open")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return &table{index: map[string]int{}}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	t := &table{header: header, index: make(map[string]int, len(header))}
	for i, h := range header {
		t.index[h] = i
	}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read row")
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func encodeRows(rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	return buf.Bytes(), nil
}

// appendRow writes row at the end of path in a single write, adding the header first
// when the file does not exist yet.
func appendRow(path string, header, row []string) error {
	rows := [][]string{row}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		rows = [][]string{header, row}
	case err != nil:
		return errors.Wrap(err, "stat")
	case info.Size() == 0:
		rows = [][]string{header, row}
	}

	data, err := encodeRows(rows...)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open for append")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "append")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "sync")
	}
	return errors.Wrap(f.Close(), "close")
}

// writeTable replaces path with header and rows through a temporary file and a rename.
func writeTable(path string, header []string, rows [][]string) error {
	data, err := encodeRows(append([][]string{header}, rows...)...)
	if err != nil {
		return err
	}
	return replaceFile(path, data)
}

// replaceFile writes data to a unique temporary file next to path and renames it over path.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "write temp")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "sync temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "close temp")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "chmod temp")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "rename")
	}
	return nil
}

// readSequence returns the id stored at path, 0 when the file does not exist.
func readSequence(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "read sequence")
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, errors.Wrap(err, "parse sequence")
}

func writeSequence(path string, n int64) error {
	return errors.Wrap(replaceFile(path, []byte(strconv.FormatInt(n, 10)+"\n")), "write sequence")
}
