package database

import (
	"fmt"

	"github.com/koustreak/dbparser/internal/errs"
)

// ScanRows reads all rows from the result set and returns them as a slice
// of maps keyed by column name. Values are whatever the driver produced;
// MySQL SHOW statements yield []byte or nil. Use Text to read them.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows, callers do not need to call Close().
func ScanRows(rows Rows) ([]map[string]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := make([]map[string]any, 0)

	for rows.Next() {
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = dest[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}

	return result, nil
}

// Text converts a scanned value to its string form and reports whether it
// was non-NULL.
func Text(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case []byte:
		return string(t), true
	case string:
		return t, true
	default:
		return fmt.Sprint(t), true
	}
}
