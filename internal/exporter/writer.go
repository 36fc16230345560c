// Package exporter serializes tables to disk: snappy-compressed parquet,
// CSV, or xlsx, plus hive-style partitioned output and summary workbooks.
package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"

	"fleetpipe/internal/config"
	"fleetpipe/internal/errors"
	"fleetpipe/pkg/contracts/domain"
)

// Format selects the on-disk representation of a table.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
)

// extension returns the file suffix for the format.
func (f Format) extension() string { return "." + string(f) }

// Writer writes tables into a single output directory.
type Writer struct {
	outputDir   string
	format      Format
	compression string
	logger      *slog.Logger
}

// NewWriter creates a writer. The directory is created on first write.
func NewWriter(outputDir string, cfg config.OutputConfig, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		outputDir:   outputDir,
		format:      Format(cfg.Format),
		compression: cfg.Compression,
		logger:      logger,
	}
}

// WriteTable writes the table under the configured default format and
// returns the concrete path written.
func (w *Writer) WriteTable(t *domain.Table, name string) (string, error) {
	return w.WriteTableFormat(t, name, w.format)
}

// WriteTableFormat writes the table in the requested format. Column order is
// preserved in every format; for parquet, any still-untyped column is
// coerced to strings first since parquet forbids mixed-type columns.
func (w *Writer) WriteTableFormat(t *domain.Table, name string, format Format) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(w.outputDir, name+format.extension())

	var err error
	switch format {
	case FormatParquet:
		err = writeParquet(path, t, w.compression)
	case FormatCSV:
		err = writeCSV(path, t)
	case FormatXLSX:
		err = writeXLSX(path, t)
	default:
		return "", fmt.Errorf("%w: %s", errors.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	w.logger.Info("wrote table",
		slog.String("path", path),
		slog.String("format", string(format)),
		slog.Int("rows", t.NumRows()))
	return path, nil
}

// writeParquet serializes the table with a schema derived from its column
// types. Every column is optional so nulls round-trip.
func writeParquet(path string, t *domain.Table, compression string) error {
	t = stringCoerced(t)

	group := parquet.Group{}
	for _, col := range t.Columns {
		var node parquet.Node
		switch col.Type {
		case domain.TypeNumeric:
			node = parquet.Leaf(parquet.DoubleType)
		case domain.TypeTemporal:
			node = parquet.Timestamp(parquet.Millisecond)
		default:
			node = parquet.String()
		}
		group[col.Name] = parquet.Optional(node)
	}
	schema := parquet.NewSchema(filepath.Base(path), group)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	options := []parquet.WriterOption{schema}
	if compression == "snappy" {
		options = append(options, parquet.Compression(&parquet.Snappy))
	}
	writer := parquet.NewGenericWriter[map[string]any](file, options...)

	rows := make([]map[string]any, len(t.Rows))
	for ri, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for ci, col := range t.Columns {
			if row[ci] != nil {
				record[col.Name] = row[ci]
			}
		}
		rows[ri] = record
	}
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return file.Close()
}

// writeCSV serializes the table with a header row; nulls render empty.
func writeCSV(path string, t *domain.Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, t.NumCols())
	for _, row := range t.Rows {
		for ci := range t.Columns {
			record[ci] = domain.CellString(row[ci])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return file.Close()
}

// writeXLSX serializes the table as a single-sheet workbook.
func writeXLSX(path string, t *domain.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := writeSheet(f, sheet, t); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// writeSheet fills one worksheet with the table, header first.
func writeSheet(f *excelize.File, sheet string, t *domain.Table) error {
	for ci, col := range t.Columns {
		cell, err := excelize.CoordinatesToCellName(ci+1, 1)
		if err != nil {
			return fmt.Errorf("bad header coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, col.Name); err != nil {
			return fmt.Errorf("failed to set header cell: %w", err)
		}
	}
	for ri, row := range t.Rows {
		for ci := range t.Columns {
			if row[ci] == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(ci+1, ri+2)
			if err != nil {
				return fmt.Errorf("bad cell coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, row[ci]); err != nil {
				return fmt.Errorf("failed to set cell: %w", err)
			}
		}
	}
	return nil
}

// stringCoerced returns the table with untyped columns rendered as strings,
// copying only when a coercion is needed.
func stringCoerced(t *domain.Table) *domain.Table {
	needs := false
	for _, col := range t.Columns {
		if col.Type == domain.TypeUntyped {
			needs = true
			break
		}
	}
	if !needs {
		return t
	}
	out := t.Clone()
	for ci, col := range out.Columns {
		if col.Type != domain.TypeUntyped {
			continue
		}
		out.Columns[ci].Type = domain.TypeString
		for ri := range out.Rows {
			if out.Rows[ri][ci] != nil {
				out.Rows[ri][ci] = domain.CellString(out.Rows[ri][ci])
			}
		}
	}
	return out
}

// sanitizePathValue makes a cell value safe for use as a path segment.
func sanitizePathValue(v string) string {
	v = strings.ReplaceAll(v, string(os.PathSeparator), "_")
	v = strings.ReplaceAll(v, "/", "_")
	return v
}
