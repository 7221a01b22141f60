package entities

import (
	"fmt"
	"sort"
)

// Event names understood by the host plugin API.
const (
	EventRecords = "onRecords"
	EventRecord  = "onRecord"
)

// Record is a single row as returned by fetchSelectedRecord.
// The "id" column identifies the row.
type Record map[string]any

// ID returns the row identifier and whether one is present.
// JSON numbers arrive as float64 and are truncated.
func (r Record) ID() (int64, bool) {
	if r == nil {
		return 0, false
	}
	return toRowID(r["id"])
}

func toRowID(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Empty reports whether the record carries no data, which is how the host
// signals that no row is selected.
func (r Record) Empty() bool {
	return len(r) == 0
}

// Table is the column-oriented result of fetchSelectedTable: each key is a
// column id and each value holds that column's cells in row order.
type Table map[string][]any

// Len returns the number of rows, taken from the "id" column when present.
func (t Table) Len() int {
	if ids, ok := t["id"]; ok {
		return len(ids)
	}
	for _, col := range t {
		return len(col)
	}
	return 0
}

// Columns returns the column ids in sorted order.
func (t Table) Columns() []string {
	cols := make([]string, 0, len(t))
	for c := range t {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Rows pivots the table into row-oriented records.
func (t Table) Rows() ([]Record, error) {
	n := t.Len()
	rows := make([]Record, n)
	for i := range rows {
		rows[i] = make(Record, len(t))
	}
	for col, cells := range t {
		if len(cells) != n {
			return nil, fmt.Errorf("column %q has %d cells, want %d", col, len(cells), n)
		}
		for i, cell := range cells {
			rows[i][col] = cell
		}
	}
	return rows, nil
}

// RowIndex returns the position of the row with the given id, or -1.
func (t Table) RowIndex(id int64) int {
	for i, cell := range t["id"] {
		if got, ok := toRowID(cell); ok && got == id {
			return i
		}
	}
	return -1
}

// Row returns row i as a record. Columns shorter than i are skipped.
func (t Table) Row(i int) Record {
	rec := make(Record, len(t))
	for col, cells := range t {
		if i < len(cells) {
			rec[col] = cells[i]
		}
	}
	return rec
}

// Clone returns a copy whose columns can be modified independently.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for col, cells := range t {
		out[col] = append([]any(nil), cells...)
	}
	return out
}

// TableFrom converts a decoded boundary value into a Table.
func TableFrom(v any) (Table, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case Table:
		return val, nil
	case map[string][]any:
		return Table(val), nil
	case map[string]any:
		t := make(Table, len(val))
		for col, cells := range val {
			list, ok := cells.([]any)
			if !ok {
				return nil, fmt.Errorf("column %q: expected list, got %T", col, cells)
			}
			t[col] = list
		}
		return t, nil
	default:
		return nil, fmt.Errorf("expected table object, got %T", v)
	}
}

// RecordFrom converts a decoded boundary value into a Record. A nil value
// yields a nil record.
func RecordFrom(v any) (Record, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case Record:
		return val, nil
	case map[string]any:
		return Record(val), nil
	default:
		return nil, fmt.Errorf("expected record object, got %T", v)
	}
}

// FetchOptions are forwarded to fetchSelectedTable and fetchSelectedRecord.
type FetchOptions struct {
	// Format selects "rows" or "columns" layout on hosts that support it.
	Format string `json:"format,omitempty"`

	// KeepEncoded asks the host to keep cell values in their encoded
	// (typed tuple) representation.
	KeepEncoded bool `json:"keepEncoded,omitempty"`
}

// Args returns the options as the trailing positional argument of a fetch
// call, or nothing when all options are at their defaults.
func (o FetchOptions) Args() []any {
	m := map[string]any{}
	if o.Format != "" {
		m["format"] = o.Format
	}
	if o.KeepEncoded {
		m["keepEncoded"] = true
	}
	if len(m) == 0 {
		return nil
	}
	return []any{m}
}
