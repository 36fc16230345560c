package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fleetpipe/internal/config"
	"fleetpipe/internal/errors"
	"fleetpipe/pkg/contracts/domain"
)

// writeFixture builds a single-sheet xlsx workbook for pipeline tests.
func writeFixture(t *testing.T, path string, rows [][]any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for ri, row := range rows {
		for ci, val := range row {
			cell, err := excelize.CoordinatesToCellName(ci+1, ri+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, val))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.BaseDir = base
	cfg.Paths.OutputDir = filepath.Join(base, "processed")
	cfg.Paths.PartitionedDir = filepath.Join(base, "processed", "partitioned")
	cfg.Paths.LogsDir = filepath.Join(base, "logs")
	cfg.Sources = map[string]config.SourceSpec{
		"fleet_performance": {
			Patterns:        []string{"**/*.xlsx"},
			Directories:     []string{filepath.Join(base, "source")},
			ExcludePatterns: []string{"~$*", "*.tmp"},
		},
	}
	return cfg, base
}

func seedFleetData(t *testing.T, base string) {
	t.Helper()
	writeFixture(t, filepath.Join(base, "source", "Fleet 5", "Fleet 5 - fuel_log.xlsx"), [][]any{
		{"Bus Number", "Fuel Cost", "Service Date"},
		{"B-1001", 55.25, "2024-06-01"},
		{"B-1002", 61.0, "2024-06-02"},
	})
	writeFixture(t, filepath.Join(base, "source", "fleet7", "fleet7_mileage_1000-1050.xlsx"), [][]any{
		{"Bus Number", "Mileage"},
		{"B-1010", 12500},
		{"B-1011", 9800},
	})
}

func TestRun_EndToEnd(t *testing.T) {
	cfg, base := testConfig(t)
	seedFleetData(t, base)

	p, err := New(cfg, slog.Default())
	require.NoError(t, err)

	result := p.Run(context.Background(), "fleet_performance")
	require.Equal(t, StatusCompleted, result.Status, "errors: %v", result.Stats.Errors)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.FleetsProcessed)

	fleet5 := result.FleetResults["Fleet 5"]
	require.NotNil(t, fleet5)
	assert.Equal(t, StatusCompleted, fleet5.Status)
	assert.Equal(t, 2, fleet5.RowsProcessed)
	assert.FileExists(t, fleet5.OutputPath)
	assert.FileExists(t, fleet5.SummaryPath)

	// Each processed file carries its metadata into the fleet result.
	require.Len(t, fleet5.Files, 1)
	assert.Equal(t, "Fleet 5 - fuel_log.xlsx", fleet5.Files[0].FileName)
	assert.Equal(t, 1, fleet5.Files[0].SheetCount)
	assert.Greater(t, fleet5.Files[0].FileSize, int64(0))

	fleet7 := result.FleetResults["fleet7"]
	require.NotNil(t, fleet7)
	assert.Equal(t, 2, fleet7.RowsProcessed)

	assert.Equal(t, 2, result.Stats.FilesProcessed)
	assert.Equal(t, 2, result.Stats.SheetsProcessed)
	assert.Equal(t, 4, result.Stats.TotalRows)
	assert.Empty(t, result.Stats.Errors)
	assert.Equal(t, 2, result.ValidationSummary.TotalValidations)

	require.NotNil(t, result.Consolidated)
	assert.Equal(t, StatusCompleted, result.Consolidated.Status)
	assert.Equal(t, 4, result.Consolidated.TotalRows)
	assert.FileExists(t, result.Consolidated.ConsolidatedPath)

	// One partition per derived fleet number.
	require.Len(t, result.Consolidated.PartitionedFiles, 2)
	assert.FileExists(t, filepath.Join(cfg.Paths.PartitionedDir, "fleet_number=5", "fleet_data.parquet"))
	assert.FileExists(t, filepath.Join(cfg.Paths.PartitionedDir, "fleet_number=7", "fleet_data.parquet"))

	summary := result.Consolidated.AnalysisSummary
	require.NotNil(t, summary)
	assert.Equal(t, 4, summary.RowCount)
	assert.Equal(t, map[string]int{"5": 2, "7": 2}, summary.FleetCounts)

	fuel, ok := summary.NumericSummary["fuel_cost"]
	require.True(t, ok, "numeric summary keys: %v", summary.NumericSummary)
	assert.Equal(t, 2.0, fuel.Count)
	assert.Equal(t, 58.13, fuel.Mean)
	assert.Equal(t, 55.25, fuel.Min)
	assert.Equal(t, 61.0, fuel.Max)
}

func TestRun_NoFiles(t *testing.T) {
	cfg, _ := testConfig(t)

	p, err := New(cfg, slog.Default())
	require.NoError(t, err)

	result := p.Run(context.Background(), "fleet_performance")
	assert.Equal(t, StatusNoFiles, result.Status)
	assert.Empty(t, result.FleetResults)
	assert.Nil(t, result.Consolidated)
}

func TestRun_UnknownSource(t *testing.T) {
	cfg, _ := testConfig(t)

	p, err := New(cfg, slog.Default())
	require.NoError(t, err)

	result := p.Run(context.Background(), "telemetry")
	assert.Equal(t, StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestRun_BadFileIsRecordedNotFatal(t *testing.T) {
	cfg, base := testConfig(t)
	seedFleetData(t, base)
	// A zero-byte workbook fails the pre-read check.
	require.NoError(t, os.WriteFile(filepath.Join(base, "source", "Fleet 5", "broken.xlsx"), nil, 0644))

	p, err := New(cfg, slog.Default())
	require.NoError(t, err)

	result := p.Run(context.Background(), "fleet_performance")
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.Stats.FilesProcessed)
	require.Len(t, result.Stats.Errors, 1)
	assert.Contains(t, result.Stats.Errors[0], "broken.xlsx")
}

func TestExportConsolidatedCSV(t *testing.T) {
	cfg, base := testConfig(t)
	seedFleetData(t, base)

	p, err := New(cfg, slog.Default())
	require.NoError(t, err)

	// Exporting before any run is a usage error.
	_, err = p.ExportConsolidatedCSV("")
	assert.ErrorIs(t, err, errors.ErrNoConsolidatedData)

	result := p.Run(context.Background(), "fleet_performance")
	require.Equal(t, StatusCompleted, result.Status)

	path, err := p.ExportConsolidatedCSV("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Paths.OutputDir, ConsolidatedName+".csv"), path)
	assert.FileExists(t, path)
}

func TestBuildAnalysisSummary_NullFleetBucket(t *testing.T) {
	table := &domain.Table{
		Columns: []domain.Column{
			{Name: domain.ColFleetNumber, Type: domain.TypeString},
			{Name: "mileage", Type: domain.TypeNumeric},
		},
		Rows: []domain.Row{
			{"5", 100.0},
			{nil, 200.0},
			{"5", 300.0},
		},
	}
	summary := buildAnalysisSummary(table)

	assert.Equal(t, 3, summary.RowCount)
	assert.Equal(t, map[string]int{"5": 2, "<null>": 1}, summary.FleetCounts)

	mileage := summary.NumericSummary["mileage"]
	assert.Equal(t, 3.0, mileage.Count)
	assert.Equal(t, 200.0, mileage.Mean)
	assert.Equal(t, 100.0, mileage.Min)
	assert.Equal(t, 300.0, mileage.Max)
}
