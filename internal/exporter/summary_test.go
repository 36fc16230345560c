package exporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fleetpipe/internal/dataprocessing"
)

func summaryFixture() map[string]*dataprocessing.SummaryResult {
	return map[string]*dataprocessing.SummaryResult{
		"fuel_log_sheet1": {
			Overall: dataprocessing.ColumnStats{
				"fuel_cost": {Count: 4, Mean: 250, Std: 129.0994448735806, Min: 100, P25: 175, P50: 250, P75: 325, Max: 400},
			},
			ByGroup: map[string]dataprocessing.ColumnStats{
				"5": {"fuel_cost": {Count: 2, Mean: 150, Min: 100, P25: 125, P50: 150, P75: 175, Max: 200}},
				"7": {"fuel_cost": {Count: 2, Mean: 350, Min: 300, P25: 325, P50: 350, P75: 375, Max: 400}},
			},
		},
		"empty_sheet": {},
	}
}

func TestWriteSummaryWorkbook(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, testOutputConfig(), nil)

	path, err := w.WriteSummaryWorkbook("fleet5_summary", summaryFixture())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Equal(t, []string{"fuel_log_sheet1_overall", "fuel_log_sheet1_by_group"}, sheets)

	overall, err := f.GetRows("fuel_log_sheet1_overall")
	require.NoError(t, err)
	require.Len(t, overall, 2)
	assert.Equal(t, []string{"column", "count", "mean", "std", "min", "p25", "p50", "p75", "max"}, overall[0])
	assert.Equal(t, "fuel_cost", overall[1][0])
	assert.Equal(t, "250", overall[1][2])

	grouped, err := f.GetRows("fuel_log_sheet1_by_group")
	require.NoError(t, err)
	require.Len(t, grouped, 3)
	assert.Equal(t, "group", grouped[0][0])
	assert.Equal(t, "fuel_cost_count", grouped[0][1])
	assert.Equal(t, "5", grouped[1][0])
	assert.Equal(t, "7", grouped[2][0])
}

func TestWriteSummaryWorkbook_NothingToWrite(t *testing.T) {
	w := NewWriter(t.TempDir(), testOutputConfig(), nil)

	path, err := w.WriteSummaryWorkbook("fleet5_summary", map[string]*dataprocessing.SummaryResult{
		"empty": {},
	})
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestUniqueSheetName(t *testing.T) {
	used := make(map[string]struct{})

	long := "a_very_long_sheet_name_that_exceeds_the_excel_limit"
	first := uniqueSheetName(long, used)
	assert.Len(t, first, maxSheetNameLen)

	second := uniqueSheetName(long, used)
	assert.Len(t, second, maxSheetNameLen)
	assert.NotEqual(t, first, second)
	assert.Contains(t, second, "_2")
}
