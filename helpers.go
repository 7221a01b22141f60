package gristbridge

import (
	"fmt"

	"github.com/gristlabs/gristbridge/domain/entities"
)

// listCode tags an encoded list cell: ["L", item, ...].
const listCode = "L"

// GetString extracts a text cell from a record.
// Returns the value and true if present and a string, otherwise "" and false.
func GetString(rec entities.Record, col string) (string, bool) {
	v, ok := rec[col]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt extracts a numeric cell as an int.
// Handles int, int64 and float64 (JSON numbers arrive as float64).
func GetInt(rec entities.Record, col string) (int, bool) {
	v, ok := rec[col]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// GetFloat extracts a numeric cell as a float64.
func GetFloat(rec entities.Record, col string) (float64, bool) {
	v, ok := rec[col]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// GetBool extracts a toggle cell.
func GetBool(rec entities.Record, col string) (bool, bool) {
	v, ok := rec[col]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetStringSlice extracts a choice list cell. Both plain lists and the
// encoded ["L", ...] form are accepted.
func GetStringSlice(rec entities.Record, col string) ([]string, bool) {
	v, ok := rec[col]
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	if len(arr) > 0 && arr[0] == listCode {
		arr = arr[1:]
	}
	result := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		result = append(result, s)
	}
	return result, true
}

// MustGetString extracts a text cell or returns an error.
// Use this when the column is required.
func MustGetString(rec entities.Record, col string) (string, error) {
	s, ok := GetString(rec, col)
	if !ok {
		return "", fmt.Errorf("column %q is missing or not text", col)
	}
	return s, nil
}

// MustGetInt extracts a numeric cell or returns an error.
func MustGetInt(rec entities.Record, col string) (int, error) {
	i, ok := GetInt(rec, col)
	if !ok {
		return 0, fmt.Errorf("column %q is missing or not a number", col)
	}
	return i, nil
}

// GetStringDefault extracts a text cell, falling back to defaultValue.
func GetStringDefault(rec entities.Record, col, defaultValue string) string {
	s, ok := GetString(rec, col)
	if !ok {
		return defaultValue
	}
	return s
}

// GetIntDefault extracts a numeric cell, falling back to defaultValue.
func GetIntDefault(rec entities.Record, col string, defaultValue int) int {
	i, ok := GetInt(rec, col)
	if !ok {
		return defaultValue
	}
	return i
}
