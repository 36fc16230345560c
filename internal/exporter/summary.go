package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"fleetpipe/internal/dataprocessing"
	"fleetpipe/pkg/contracts/domain"
)

// Excel caps worksheet names at 31 characters.
const maxSheetNameLen = 31

// WriteSummaryWorkbook writes one xlsx workbook holding the descriptive
// statistics for a fleet. Each summary kind gets an overall sheet and, when
// grouped statistics exist, a by-group sheet with <column>_<stat> headers.
// Returns the written path, or "" when there is nothing to write.
func (w *Writer) WriteSummaryWorkbook(name string, summaries map[string]*dataprocessing.SummaryResult) (string, error) {
	kinds := make([]string, 0, len(summaries))
	for kind, summary := range summaries {
		if !summary.IsEmpty() {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		w.logger.Warn("no summary data to write", slog.String("name", name))
		return "", nil
	}
	sort.Strings(kinds)

	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(w.outputDir, name+FormatXLSX.extension())

	f := excelize.NewFile()
	defer f.Close()
	defaultSheet := f.GetSheetName(0)

	used := make(map[string]struct{})
	first := true
	addSheet := func(label string, t *domain.Table) error {
		sheet := uniqueSheetName(label, used)
		if first {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
			first = false
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("failed to add sheet: %w", err)
			}
		}
		return writeSheet(f, sheet, t)
	}

	for _, kind := range kinds {
		summary := summaries[kind]
		if len(summary.Overall) > 0 {
			if err := addSheet(kind+"_overall", overallTable(summary.Overall)); err != nil {
				return "", err
			}
		}
		if len(summary.ByGroup) > 0 {
			if err := addSheet(kind+"_by_group", groupedTable(summary)); err != nil {
				return "", err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save summary workbook: %w", err)
	}
	w.logger.Info("wrote summary workbook",
		slog.String("path", path),
		slog.Int("summary_kinds", len(kinds)))
	return path, nil
}

// overallTable lays the overall statistics out one row per metric column.
func overallTable(stats dataprocessing.ColumnStats) *domain.Table {
	t := domain.NewTable(
		domain.Column{Name: "column", Type: domain.TypeString},
		domain.Column{Name: "count", Type: domain.TypeNumeric},
		domain.Column{Name: "mean", Type: domain.TypeNumeric},
		domain.Column{Name: "std", Type: domain.TypeNumeric},
		domain.Column{Name: "min", Type: domain.TypeNumeric},
		domain.Column{Name: "p25", Type: domain.TypeNumeric},
		domain.Column{Name: "p50", Type: domain.TypeNumeric},
		domain.Column{Name: "p75", Type: domain.TypeNumeric},
		domain.Column{Name: "max", Type: domain.TypeNumeric},
	)
	columns := make([]string, 0, len(stats))
	for col := range stats {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	for _, col := range columns {
		s := stats[col]
		t.Rows = append(t.Rows, domain.Row{col, s.Count, s.Mean, s.Std, s.Min, s.P25, s.P50, s.P75, s.Max})
	}
	return t
}

// groupedTable lays grouped statistics out one row per group value with the
// per-column stats flattened into <column>_<stat> headers.
func groupedTable(summary *dataprocessing.SummaryResult) *domain.Table {
	columnSet := make(map[string]struct{})
	for _, stats := range summary.ByGroup {
		for col := range stats {
			columnSet[col] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	statNames := []string{"count", "mean", "std", "min", "p25", "p50", "p75", "max"}
	t := domain.NewTable(domain.Column{Name: "group", Type: domain.TypeString})
	for _, col := range columns {
		for _, stat := range statNames {
			t.Columns = append(t.Columns, domain.Column{
				Name: col + "_" + stat,
				Type: domain.TypeNumeric,
			})
		}
	}

	for _, group := range summary.GroupKeys() {
		row := domain.Row{group}
		stats := summary.ByGroup[group]
		for _, col := range columns {
			s, ok := stats[col]
			if !ok {
				for range statNames {
					row = append(row, nil)
				}
				continue
			}
			row = append(row, s.Count, s.Mean, s.Std, s.Min, s.P25, s.P50, s.P75, s.Max)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// uniqueSheetName truncates to the Excel limit and disambiguates repeats.
func uniqueSheetName(label string, used map[string]struct{}) string {
	name := truncate(label, maxSheetNameLen)
	base := name
	for i := 2; ; i++ {
		if _, taken := used[name]; !taken {
			break
		}
		suffix := fmt.Sprintf("_%d", i)
		name = truncate(base, maxSheetNameLen-len(suffix)) + suffix
	}
	used[name] = struct{}{}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
