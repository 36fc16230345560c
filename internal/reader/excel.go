// Package reader decodes input spreadsheets into the shared table contract.
// Every source decodes to an ordered list of (sheet, table) pairs so callers
// never branch on single-sheet versus multi-sheet files.
package reader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"fleetpipe/internal/config"
	"fleetpipe/internal/errors"
	"fleetpipe/pkg/contracts/domain"
)

// ExcelReader decodes .xlsx/.xls workbooks.
type ExcelReader struct {
	cfg    config.ExcelConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewExcelReader creates a reader with the given decode configuration.
func NewExcelReader(cfg config.ExcelConfig, logger *slog.Logger) *ExcelReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelReader{cfg: cfg, logger: logger, now: time.Now}
}

// WithClock overrides the ingestion-timestamp source. Tests use this to make
// normalized output reproducible.
func (r *ExcelReader) WithClock(now func() time.Time) *ExcelReader {
	r.now = now
	return r
}

// CheckFile runs the cheap pre-read checks: the file exists, is non-empty,
// and has a supported extension. It returns the list of issues found.
func (r *ExcelReader) CheckFile(path string) (bool, []string) {
	var issues []string
	info, err := os.Stat(path)
	if err != nil {
		issues = append(issues, fmt.Sprintf("file does not exist: %s", path))
		return false, issues
	}
	if info.Size() == 0 {
		issues = append(issues, fmt.Sprintf("file is empty: %s", path))
		return false, issues
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".xlsx" && ext != ".xls" {
		issues = append(issues, fmt.Sprintf("unsupported file extension: %s", ext))
		return false, issues
	}
	return true, issues
}

// GetFileMetadata returns file-level metadata including sheet names.
func (r *ExcelReader) GetFileMetadata(path string) (*domain.FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	meta := &domain.FileMetadata{
		FileName:  filepath.Base(path),
		FilePath:  path,
		FileSize:  info.Size(),
		Extension: strings.ToLower(filepath.Ext(path)),
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	meta.SheetNames = f.GetSheetList()
	meta.SheetCount = len(meta.SheetNames)
	return meta, nil
}

// ReadFile decodes every sheet of the workbook. Sheet order follows the
// workbook; an unnamed sheet gets the synthesized single-table label.
// Tables come back fully untyped with the raw header names.
func (r *ExcelReader) ReadFile(path string) ([]domain.Sheet, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".xlsx" && ext != ".xls" {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedFormat, ext)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var sheets []domain.Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q of %s: %w", name, path, err)
		}
		label := name
		if strings.TrimSpace(label) == "" {
			label = domain.SingleSheetLabel
		}
		sheets = append(sheets, domain.Sheet{
			Name:  label,
			Table: r.tableFromRows(rows),
		})
	}

	r.logger.Info("read workbook",
		slog.String("file", filepath.Base(path)),
		slog.Int("sheet_count", len(sheets)))
	return sheets, nil
}

// ReadFileWithMetadata decodes every sheet and injects the provenance
// columns: source_file, source_sheet, source_path, ingestion_timestamp.
func (r *ExcelReader) ReadFileWithMetadata(path string) ([]domain.Sheet, error) {
	sheets, err := r.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ingestedAt := r.now()
	for _, sheet := range sheets {
		t := sheet.Table
		t.AddConstantColumn(domain.ColSourceFile, domain.TypeString, filepath.Base(path))
		t.AddConstantColumn(domain.ColSourceSheet, domain.TypeString, sheet.Name)
		t.AddConstantColumn(domain.ColSourcePath, domain.TypeString, path)
		t.AddConstantColumn(domain.ColIngestionTimestamp, domain.TypeTemporal, ingestedAt)
	}
	return sheets, nil
}

// tableFromRows converts raw sheet rows into an untyped rectangular table.
// The first row after any configured skip is the header; short rows are
// padded with nulls, and configured NA strings decode to null.
func (r *ExcelReader) tableFromRows(rows [][]string) *domain.Table {
	if r.cfg.SkipRows > 0 && r.cfg.SkipRows < len(rows) {
		rows = rows[r.cfg.SkipRows:]
	} else if r.cfg.SkipRows >= len(rows) {
		rows = nil
	}
	if len(rows) == 0 {
		return &domain.Table{}
	}

	header := rows[0]
	width := len(header)
	for _, row := range rows[1:] {
		if len(row) > width {
			width = len(row)
		}
	}

	t := &domain.Table{Columns: make([]domain.Column, width)}
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = header[i]
		}
		t.Columns[i] = domain.Column{Name: name, Type: domain.TypeUntyped}
	}

	for _, row := range rows[1:] {
		cells := make(domain.Row, width)
		for i := 0; i < width; i++ {
			if i >= len(row) {
				continue
			}
			cells[i] = r.decodeCell(row[i])
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func (r *ExcelReader) decodeCell(raw string) any {
	for _, na := range r.cfg.NAValues {
		if raw == na {
			return nil
		}
	}
	return raw
}
