package repository

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// table is a CSV file with a header row, addressed by column name.
type table struct {
	path string
	cols map[string]int
	rows [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path) //nolint:gosec // paths come from configured directories
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedTable, "%s: %v", path, err)
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(ErrMalformedTable, "%s: missing header", path)
	}

	t := &table{path: path, cols: make(map[string]int, len(records[0])), rows: records[1:]}
	for i, name := range records[0] {
		t.cols[name] = i
	}
	return t, nil
}

func (t *table) has(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// floats parses one column; a missing column or a bad cell is ErrMalformedTable.
func (t *table) floats(name string) ([]float64, error) {
	idx, ok := t.cols[name]
	if !ok {
		return nil, errors.Wrapf(ErrMalformedTable, "%s: missing column %q", t.path, name)
	}
	out := make([]float64, len(t.rows))
	for i, row := range t.rows {
		if idx >= len(row) {
			return nil, errors.Wrapf(ErrMalformedTable, "%s: row %d is short", t.path, i+1)
		}
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedTable, "%s: row %d column %q: %v", t.path, i+1, name, err)
		}
		out[i] = v
	}
	return out, nil
}

// columns parses several columns at once.
func (t *table) columns(names ...string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for i, name := range names {
		col, err := t.floats(name)
		if err != nil {
			return nil, err
		}
		out[i] = col
	}
	return out, nil
}

func writeTable(path string, header []string, rows [][]float64) error {
	return atomicWrite(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		record := make([]string, len(header))
		for _, row := range rows {
			for i, v := range row {
				record[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// atomicWrite writes to a temporary sibling and renames it over path, so
// readers never observe a partial file.
func atomicWrite(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // output directories are shared with the training side
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temp for %s", path)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o644); err != nil { //nolint:gosec // artifacts are read by other tools
		_ = tmp.Close()
		return errors.Wrapf(err, "chmod %s", tmp.Name())
	}

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename into %s", path)
	}
	return nil
}
