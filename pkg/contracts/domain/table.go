package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnType classifies the inferred type of a table column.
type ColumnType int

const (
	// TypeUntyped marks a column whose cells have not been coerced yet.
	// Raw tables arrive entirely untyped.
	TypeUntyped ColumnType = iota
	// TypeString marks a column coerced to a uniform string representation.
	TypeString
	// TypeNumeric marks a column whose non-null cells are float64.
	TypeNumeric
	// TypeTemporal marks a column whose non-null cells are time.Time.
	TypeTemporal
)

// String returns the lowercase name used in logs and rule messages.
func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumeric:
		return "numeric"
	case TypeTemporal:
		return "temporal"
	default:
		return "untyped"
	}
}

// Column describes one table column: its name and inferred type.
type Column struct {
	Name string
	Type ColumnType
}

// Row holds one table row, aligned cell-for-cell with the table's columns.
// A nil cell is a null value.
type Row []any

// Table is the tabular contract shared by the reader, normalizer, validator
// and exporter. Columns are ordered; rows are aligned to them by position.
type Table struct {
	Columns []Column
	Rows    []Row
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{Columns: columns}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.Columns) }

// IsEmpty reports whether the table has no rows.
func (t *Table) IsEmpty() bool { return len(t.Rows) == 0 }

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// ColumnValues returns the cells of the column at idx, one per row.
func (t *Table) ColumnValues(idx int) []any {
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values
}

// AddConstantColumn appends a column filled with the same value on every row.
func (t *Table) AddConstantColumn(name string, typ ColumnType, value any) {
	t.Columns = append(t.Columns, Column{Name: name, Type: typ})
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], value)
	}
}

// SetColumn replaces the cells and type of the column at idx. The values
// slice must have one entry per row.
func (t *Table) SetColumn(idx int, typ ColumnType, values []any) error {
	if idx < 0 || idx >= len(t.Columns) {
		return fmt.Errorf("column index %d out of range", idx)
	}
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %q: %d values for %d rows", t.Columns[idx].Name, len(values), len(t.Rows))
	}
	t.Columns[idx].Type = typ
	for i := range t.Rows {
		t.Rows[i][idx] = values[i]
	}
	return nil
}

// Clone returns a deep copy of the table. Cell values are copied by
// assignment, which is sufficient for the nil/string/float64/time.Time
// cell vocabulary.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: make([]Column, len(t.Columns)),
		Rows:    make([]Row, len(t.Rows)),
	}
	copy(out.Columns, t.Columns)
	for i, row := range t.Rows {
		out.Rows[i] = make(Row, len(row))
		copy(out.Rows[i], row)
	}
	return out
}

// CheckRectangular returns an error when any row length disagrees with the
// column count. Decoded tables are always rectangular; this guards against
// hand-built ones.
func (t *Table) CheckRectangular() error {
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("table is not rectangular: row %d has %d cells, expected %d", i, len(row), len(t.Columns))
		}
	}
	return nil
}

// DuplicateRate returns the fraction of rows that are exact duplicates of an
// earlier row. An empty table has rate 0.
func (t *Table) DuplicateRate() float64 {
	if len(t.Rows) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(t.Rows))
	duplicates := 0
	for _, row := range t.Rows {
		key := rowKey(row)
		if _, ok := seen[key]; ok {
			duplicates++
		} else {
			seen[key] = struct{}{}
		}
	}
	return float64(duplicates) / float64(len(t.Rows))
}

func rowKey(row Row) string {
	var b strings.Builder
	for _, cell := range row {
		switch v := cell.(type) {
		case nil:
			b.WriteString("\x00")
		case time.Time:
			b.WriteString(v.Format(time.RFC3339Nano))
		default:
			fmt.Fprintf(&b, "%v", v)
		}
		b.WriteString("\x1f")
	}
	return b.String()
}

// Concat row-binds tables into one, taking the union of their columns in
// first-seen order. Cells missing from a source table are filled with nil.
// Column types that disagree across sources degrade to TypeUntyped.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	position := make(map[string]int)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if idx, ok := position[c.Name]; ok {
				if out.Columns[idx].Type != c.Type {
					out.Columns[idx].Type = TypeUntyped
				}
				continue
			}
			position[c.Name] = len(out.Columns)
			out.Columns = append(out.Columns, c)
		}
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, row := range t.Rows {
			merged := make(Row, len(out.Columns))
			for ci, c := range t.Columns {
				if ci < len(row) {
					merged[position[c.Name]] = row[ci]
				}
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}

// AsFloat interprets a cell as a float64. Numeric cells pass through;
// string cells are parsed. Nulls and unparseable cells report false.
func AsFloat(cell any) (float64, bool) {
	switch v := cell.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// CellString renders a cell for display or CSV output. Nulls render empty.
func CellString(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
