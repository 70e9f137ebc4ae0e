package dataframe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Output shapes a DataFrame can be converted to when reading a feature group.
const (
	TypeDefault = "default"
	TypeRecords = "records"
	TypeColumns = "columns"
	TypeRows    = "rows"
)

// DataFrame is the canonical in-memory tabular value exchanged between the
// feature group handle and the engines. Columns are ordered, rows are
// positional and may contain nil for missing values.
type DataFrame struct {
	Columns []string
	Rows    [][]interface{}
}

func New(columns []string) *DataFrame {
	return &DataFrame{Columns: columns}
}

// FromRows builds a DataFrame from an ordered column list and positional rows.
func FromRows(columns []string, rows [][]interface{}) (*DataFrame, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataframe: no columns given")
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("dataframe: row %d has %d values, expected %d", i, len(row), len(columns))
		}
	}
	return &DataFrame{Columns: columns, Rows: rows}, nil
}

// FromRecords builds a DataFrame from a list of maps. Column order is the
// sorted union of all record keys; missing keys become nil values.
func FromRecords(records []map[string]interface{}) (*DataFrame, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("dataframe: no records given")
	}
	seen := map[string]bool{}
	var columns []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		row := make([]interface{}, len(columns))
		for i, col := range columns {
			row[i] = rec[col]
		}
		rows = append(rows, row)
	}
	return &DataFrame{Columns: columns, Rows: rows}, nil
}

// FromColumns builds a DataFrame from a column-name to values map. All
// columns must have the same length. Column order is sorted by name.
func FromColumns(columns map[string][]interface{}) (*DataFrame, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataframe: no columns given")
	}
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	length := -1
	for _, name := range names {
		if length == -1 {
			length = len(columns[name])
		} else if len(columns[name]) != length {
			return nil, fmt.Errorf("dataframe: column %q has %d values, expected %d", name, len(columns[name]), length)
		}
	}

	rows := make([][]interface{}, length)
	for i := 0; i < length; i++ {
		row := make([]interface{}, len(names))
		for j, name := range names {
			row[j] = columns[name][i]
		}
		rows[i] = row
	}
	return &DataFrame{Columns: names, Rows: rows}, nil
}

// Normalize converts any of the accepted tabular input shapes into a
// DataFrame: an existing *DataFrame, a record list, a column map, or a
// two-dimensional row list paired with nothing (in which case columns must
// already be carried by the value). Any other shape is rejected.
func Normalize(features interface{}) (*DataFrame, error) {
	switch v := features.(type) {
	case *DataFrame:
		if v == nil {
			return nil, fmt.Errorf("dataframe: nil dataframe")
		}
		return v, nil
	case DataFrame:
		return &v, nil
	case []map[string]interface{}:
		return FromRecords(v)
	case map[string][]interface{}:
		return FromColumns(v)
	default:
		return nil, fmt.Errorf("dataframe: unsupported input type %T", features)
	}
}

// NumRows returns the number of rows.
func (df *DataFrame) NumRows() int {
	return len(df.Rows)
}

// Head returns a new DataFrame truncated to the first n rows.
func (df *DataFrame) Head(n int) *DataFrame {
	if n < 0 {
		n = 0
	}
	if n > len(df.Rows) {
		n = len(df.Rows)
	}
	return &DataFrame{Columns: df.Columns, Rows: df.Rows[:n]}
}

// Column returns the values of a named column.
func (df *DataFrame) Column(name string) ([]interface{}, bool) {
	idx := -1
	for i, col := range df.Columns {
		if col == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, false
	}
	values := make([]interface{}, len(df.Rows))
	for i, row := range df.Rows {
		values[i] = row[idx]
	}
	return values, true
}

// Records converts the DataFrame into a list of maps, one per row.
func (df *DataFrame) Records() []map[string]interface{} {
	records := make([]map[string]interface{}, len(df.Rows))
	for i, row := range df.Rows {
		rec := make(map[string]interface{}, len(df.Columns))
		for j, col := range df.Columns {
			rec[col] = row[j]
		}
		records[i] = rec
	}
	return records
}

// ColumnMap converts the DataFrame into a column-name to values map.
func (df *DataFrame) ColumnMap() map[string][]interface{} {
	columns := make(map[string][]interface{}, len(df.Columns))
	for j, col := range df.Columns {
		values := make([]interface{}, len(df.Rows))
		for i, row := range df.Rows {
			values[i] = row[j]
		}
		columns[col] = values
	}
	return columns
}

// Convert returns the DataFrame in the requested output shape.
func Convert(df *DataFrame, dataframeType string) (interface{}, error) {
	switch dataframeType {
	case "", TypeDefault:
		return df, nil
	case TypeRecords:
		return df.Records(), nil
	case TypeColumns:
		return df.ColumnMap(), nil
	case TypeRows:
		return df.Rows, nil
	default:
		return nil, fmt.Errorf("dataframe: unknown dataframe type %q", dataframeType)
	}
}

// String renders the DataFrame as an ASCII table.
func (df *DataFrame) String() string {
	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader(df.Columns)
	for _, row := range df.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		table.Append(cells)
	}
	table.Render()
	return sb.String()
}
