package dataprocessing

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetpipe/pkg/contracts/domain"
)

func TestCanonicalizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple lowercase", input: "Mileage", want: "mileage"},
		{name: "spaces to underscores", input: "Fuel Cost (USD)", want: "fuel_cost_usd"},
		{name: "surrounding whitespace", input: "  Total Hours  ", want: "total_hours"},
		{name: "special characters stripped", input: "Avail-ability %", want: "availability"},
		{name: "underscore runs collapsed", input: "a__b___c", want: "a_b_c"},
		{name: "leading trailing underscores", input: "_hidden_", want: "hidden"},
		{name: "only special characters", input: "???", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalizeName(tt.input)
			assert.Equal(t, tt.want, got)
			// Canonicalization must be idempotent.
			assert.Equal(t, got, CanonicalizeName(got))
		})
	}
}

func TestNormalize_TrimsEmptyRowsAndColumns(t *testing.T) {
	raw := &domain.Table{
		Columns: []domain.Column{{Name: "A"}, {Name: "Empty"}, {Name: "B"}},
		Rows: []domain.Row{
			{"1", nil, "x"},
			{nil, nil, nil},
			{"2", nil, "y"},
		},
	}

	n := NewNormalizer(slog.Default())
	out, err := n.Normalize(raw, "report.xlsx")
	require.NoError(t, err)

	assert.LessOrEqual(t, out.NumRows(), raw.NumRows())
	assert.Equal(t, 2, out.NumRows())
	assert.False(t, out.HasColumn("empty"))
	assert.True(t, out.HasColumn("a"))
	assert.True(t, out.HasColumn("b"))
	// Input table must be untouched.
	assert.Equal(t, 3, raw.NumRows())
	assert.Equal(t, 3, raw.NumCols())
}

func TestNormalize_ColumnNameFallbackAndCollisions(t *testing.T) {
	raw := &domain.Table{
		Columns: []domain.Column{{Name: "???"}, {Name: "Fuel Cost"}, {Name: "fuel_cost"}},
		Rows: []domain.Row{
			{"a", "1", "2"},
		},
	}

	n := NewNormalizer(slog.Default())
	out, err := n.Normalize(raw, "report.xlsx")
	require.NoError(t, err)

	names := out.ColumnNames()
	assert.Contains(t, names, "col_0")
	assert.Contains(t, names, "fuel_cost")
	assert.Contains(t, names, "fuel_cost_2")

	// Uniqueness must hold across the whole table.
	seen := make(map[string]bool)
	for _, name := range names {
		assert.False(t, seen[name], "duplicate column name %q", name)
		seen[name] = true
	}
}

func TestNormalize_NumericCoercion(t *testing.T) {
	raw := &domain.Table{
		Columns: []domain.Column{{Name: "Mileage"}, {Name: "Bus"}},
		Rows: []domain.Row{
			{"120.5", "b1"},
			{nil, "b2"},
			{"98", "b3"},
		},
	}

	n := NewNormalizer(slog.Default())
	out, err := n.Normalize(raw, "report.xlsx")
	require.NoError(t, err)

	idx := out.ColumnIndex("mileage")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, domain.TypeNumeric, out.Columns[idx].Type)
	assert.Equal(t, 120.5, out.Rows[0][idx])
	assert.Nil(t, out.Rows[1][idx])
	assert.Equal(t, 98.0, out.Rows[2][idx])
}

func TestNormalize_PartialNumericUntouched(t *testing.T) {
	// Nine parseable cells and one stray string: coercion is all-or-nothing,
	// so the column must stay strings without introducing nulls.
	rows := make([]domain.Row, 0, 10)
	for i := 0; i < 9; i++ {
		rows = append(rows, domain.Row{"10"})
	}
	rows = append(rows, domain.Row{"n/a recorded"})
	raw := &domain.Table{
		Columns: []domain.Column{{Name: "Hours"}},
		Rows:    rows,
	}

	n := NewNormalizer(slog.Default())
	out, err := n.Normalize(raw, "report.xlsx")
	require.NoError(t, err)

	idx := out.ColumnIndex("hours")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, domain.TypeString, out.Columns[idx].Type)
	assert.Equal(t, "10", out.Rows[0][idx])
	assert.Equal(t, "n/a recorded", out.Rows[9][idx])
}

func TestNormalize_TemporalCoercion(t *testing.T) {
	raw := &domain.Table{
		Columns: []domain.Column{{Name: "Service Date"}, {Name: "Notes"}},
		Rows: []domain.Row{
			{"2024-01-15", "2024-01-15"},
			{"2024-02-20", "ok"},
		},
	}

	n := NewNormalizer(slog.Default())
	out, err := n.Normalize(raw, "report.xlsx")
	require.NoError(t, err)

	dateIdx := out.ColumnIndex("service_date")
	require.GreaterOrEqual(t, dateIdx, 0)
	assert.Equal(t, domain.TypeTemporal, out.Columns[dateIdx].Type)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), out.Rows[0][dateIdx])

	// A column without date/time in its name never gets temporal coercion.
	notesIdx := out.ColumnIndex("notes")
	assert.Equal(t, domain.TypeString, out.Columns[notesIdx].Type)
}

func TestNormalize_FleetNumberDerivation(t *testing.T) {
	tests := []struct {
		name     string
		sourceID string
		want     any
	}{
		{name: "fleet with space", sourceID: "Fleet 12 - data.xlsx", want: "12"},
		{name: "fleet without space", sourceID: "fleet7_performance.xlsx", want: "7"},
		{name: "no fleet pattern", sourceID: "report.xlsx", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &domain.Table{
				Columns: []domain.Column{{Name: "v"}},
				Rows:    []domain.Row{{"x"}, {"y"}},
			}
			n := NewNormalizer(slog.Default())
			out, err := n.Normalize(raw, tt.sourceID)
			require.NoError(t, err)

			idx := out.ColumnIndex(domain.ColFleetNumber)
			require.GreaterOrEqual(t, idx, 0)
			for _, row := range out.Rows {
				assert.Equal(t, tt.want, row[idx])
			}
		})
	}
}

func TestNormalize_BusRangeDerivation(t *testing.T) {
	n := NewNormalizer(slog.Default())

	raw := &domain.Table{
		Columns: []domain.Column{{Name: "v"}},
		Rows:    []domain.Row{{"x"}},
	}
	out, err := n.Normalize(raw, "Fleet3_1000-1050.xlsx")
	require.NoError(t, err)

	startIdx := out.ColumnIndex(domain.ColBusRangeStart)
	endIdx := out.ColumnIndex(domain.ColBusRangeEnd)
	require.GreaterOrEqual(t, startIdx, 0)
	require.GreaterOrEqual(t, endIdx, 0)
	assert.Equal(t, "1000", out.Rows[0][startIdx])
	assert.Equal(t, "1050", out.Rows[0][endIdx])

	// No range pattern: the columns must not exist at all.
	raw2 := &domain.Table{
		Columns: []domain.Column{{Name: "v"}},
		Rows:    []domain.Row{{"x"}},
	}
	out2, err := n.Normalize(raw2, "Fleet 4 report.xlsx")
	require.NoError(t, err)
	assert.False(t, out2.HasColumn(domain.ColBusRangeStart))
	assert.False(t, out2.HasColumn(domain.ColBusRangeEnd))
}

func TestNormalize_SkipsProvenanceColumns(t *testing.T) {
	ingested := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	raw := &domain.Table{
		Columns: []domain.Column{
			{Name: "Rating"},
			{Name: domain.ColSourceFile, Type: domain.TypeString},
			{Name: domain.ColIngestionTimestamp, Type: domain.TypeTemporal},
		},
		Rows: []domain.Row{
			{"5", "f.xlsx", ingested},
		},
	}

	n := NewNormalizer(slog.Default())
	out, err := n.Normalize(raw, "f.xlsx")
	require.NoError(t, err)

	// source_file stays a string even though "f.xlsx" is not numeric, and
	// the timestamp column is untouched.
	sfIdx := out.ColumnIndex(domain.ColSourceFile)
	assert.Equal(t, "f.xlsx", out.Rows[0][sfIdx])
	tsIdx := out.ColumnIndex(domain.ColIngestionTimestamp)
	assert.Equal(t, ingested, out.Rows[0][tsIdx])
	// Rating is coerced as usual.
	rIdx := out.ColumnIndex("rating")
	assert.Equal(t, domain.TypeNumeric, out.Columns[rIdx].Type)
}

func TestNormalize_Deterministic(t *testing.T) {
	build := func() *domain.Table {
		return &domain.Table{
			Columns: []domain.Column{{Name: "Fuel Used"}, {Name: "Notes"}},
			Rows: []domain.Row{
				{"11.5", "ok"},
				{"13.0", nil},
			},
		}
	}

	n := NewNormalizer(slog.Default())
	first, err := n.Normalize(build(), "Fleet 9.xlsx")
	require.NoError(t, err)
	second, err := n.Normalize(build(), "Fleet 9.xlsx")
	require.NoError(t, err)

	assert.Equal(t, first.Columns, second.Columns)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestNormalize_RejectsRaggedTable(t *testing.T) {
	raw := &domain.Table{
		Columns: []domain.Column{{Name: "a"}, {Name: "b"}},
		Rows:    []domain.Row{{"only one cell"}},
	}
	n := NewNormalizer(slog.Default())
	_, err := n.Normalize(raw, "report.xlsx")
	assert.Error(t, err)
}
