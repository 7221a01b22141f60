package hostsim

import (
	"fmt"
	"reflect"

	"github.com/gristlabs/gristbridge/domain/entities"
)

// recordsOf accepts a single record object or a list of them.
func recordsOf(payload any) ([]map[string]any, bool, error) {
	switch v := payload.(type) {
	case map[string]any:
		return []map[string]any{v}, false, nil
	case []any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, true, fmt.Errorf("record %d: expected object, got %T", i, item)
			}
			out[i] = m
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("expected record or list of records, got %T", payload)
	}
}

func fieldsOf(rec map[string]any, key string) (map[string]any, error) {
	raw, ok := rec[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected object, got %T", key, raw)
	}
	return m, nil
}

func nextRowID(table entities.Table) int64 {
	var max int64
	for _, cell := range table["id"] {
		if id, ok := (entities.Record{"id": cell}).ID(); ok && id > max {
			max = id
		}
	}
	return max + 1
}

func appendRow(table entities.Table, fields map[string]any) int64 {
	id := nextRowID(table)
	n := table.Len()
	for col := range fields {
		if _, ok := table[col]; !ok && col != "id" {
			table[col] = make([]any, n)
		}
	}
	for col := range table {
		switch {
		case col == "id":
			table[col] = append(table[col], id)
		default:
			table[col] = append(table[col], fields[col])
		}
	}
	if _, ok := table["id"]; !ok {
		table["id"] = []any{id}
	}
	return id
}

func setFields(table entities.Table, row int, fields map[string]any) {
	n := table.Len()
	for col, value := range fields {
		if col == "id" {
			continue
		}
		if _, ok := table[col]; !ok {
			table[col] = make([]any, n)
		}
		table[col][row] = value
	}
}

func createRows(table entities.Table, payload any) (any, error) {
	recs, many, err := recordsOf(payload)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(recs))
	for _, rec := range recs {
		fields, err := fieldsOf(rec, "fields")
		if err != nil {
			return nil, err
		}
		ids = append(ids, appendRow(table, fields))
	}
	if !many {
		return ids[0], nil
	}
	return ids, nil
}

func updateRows(table entities.Table, payload any, upsert bool) error {
	recs, _, err := recordsOf(payload)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		fields, err := fieldsOf(rec, "fields")
		if err != nil {
			return err
		}
		if upsert {
			require, err := fieldsOf(rec, "require")
			if err != nil {
				return err
			}
			if row := matchRow(table, require); row >= 0 {
				setFields(table, row, fields)
				continue
			}
			merged := make(map[string]any, len(require)+len(fields))
			for k, v := range require {
				merged[k] = v
			}
			for k, v := range fields {
				merged[k] = v
			}
			appendRow(table, merged)
			continue
		}

		id, ok := entities.Record(rec).ID()
		if !ok {
			return fmt.Errorf("update requires a row id")
		}
		row := table.RowIndex(id)
		if row < 0 {
			return fmt.Errorf("row %d not found", id)
		}
		setFields(table, row, fields)
	}
	return nil
}

func matchRow(table entities.Table, require map[string]any) int {
	if len(require) == 0 {
		return -1
	}
	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		matched := true
		for col, want := range require {
			if !sameCell(row[col], want) {
				matched = false
				break
			}
		}
		if matched {
			return i
		}
	}
	return -1
}

// sameCell compares cells, treating JSON numbers and Go integers alike.
func sameCell(a, b any) bool {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x == y
		}
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func destroyRows(table entities.Table, payload any) error {
	var ids []any
	switch v := payload.(type) {
	case []any:
		ids = v
	default:
		ids = []any{v}
	}
	for _, raw := range ids {
		id, ok := (entities.Record{"id": raw}).ID()
		if !ok {
			return fmt.Errorf("invalid row id %v", raw)
		}
		row := table.RowIndex(id)
		if row < 0 {
			return fmt.Errorf("row %d not found", id)
		}
		for col, cells := range table {
			if row < len(cells) {
				table[col] = append(cells[:row:row], cells[row+1:]...)
			}
		}
	}
	return nil
}
