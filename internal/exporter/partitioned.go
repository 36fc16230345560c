package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"fleetpipe/internal/config"
	"fleetpipe/pkg/contracts/domain"
)

// PartitionedWriter writes a dataset split into hive-style partitions:
// one sub-table per distinct combination of the partition key columns,
// under nested <column>=<value> directories.
type PartitionedWriter struct {
	outputDir   string
	compression string
	logger      *slog.Logger
}

// NewPartitionedWriter creates a partitioned writer rooted at outputDir.
func NewPartitionedWriter(outputDir string, cfg config.OutputConfig, logger *slog.Logger) *PartitionedWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PartitionedWriter{
		outputDir:   outputDir,
		compression: cfg.Compression,
		logger:      logger,
	}
}

// Partition is one output split: the key values that define it, in
// partition-column order, and its rows.
type Partition struct {
	Keys  []string
	Table *domain.Table
}

// PartitionTable groups rows by the distinct value combinations of the
// partition columns, preserving first-seen order. Rows with a null in any
// partition column are excluded. A table missing any partition column
// yields zero partitions.
func PartitionTable(t *domain.Table, partitionColumns []string) []Partition {
	indices := make([]int, len(partitionColumns))
	for i, name := range partitionColumns {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			return nil
		}
		indices[i] = idx
	}

	byKey := make(map[string]int)
	var partitions []Partition
	for _, row := range t.Rows {
		keys := make([]string, len(indices))
		skip := false
		for i, ci := range indices {
			if row[ci] == nil {
				skip = true
				break
			}
			keys[i] = domain.CellString(row[ci])
		}
		if skip {
			continue
		}
		lookup := strings.Join(keys, "\x1f")
		pi, ok := byKey[lookup]
		if !ok {
			pi = len(partitions)
			byKey[lookup] = pi
			partitions = append(partitions, Partition{
				Keys: keys,
				Table: &domain.Table{
					Columns: t.Columns,
				},
			})
		}
		partitions[pi].Table.Rows = append(partitions[pi].Table.Rows, row)
	}
	return partitions
}

// WritePartitioned splits the table by the partition columns and writes one
// parquet file per partition, named <name>.parquet inside its
// <column>=<value> directory chain. It returns the written paths.
func (pw *PartitionedWriter) WritePartitioned(t *domain.Table, partitionColumns []string, name string) ([]string, error) {
	partitions := PartitionTable(t, partitionColumns)
	if len(partitions) == 0 {
		pw.logger.Info("no partitions to write",
			slog.Any("partition_columns", partitionColumns))
		return nil, nil
	}

	var written []string
	for _, part := range partitions {
		dir := pw.outputDir
		for i, col := range partitionColumns {
			dir = filepath.Join(dir, fmt.Sprintf("%s=%s", col, sanitizePathValue(part.Keys[i])))
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return written, fmt.Errorf("failed to create partition directory %s: %w", dir, err)
		}
		path := filepath.Join(dir, name+FormatParquet.extension())
		if err := writeParquet(path, part.Table, pw.compression); err != nil {
			return written, fmt.Errorf("failed to write partition %v: %w", part.Keys, err)
		}
		written = append(written, path)

		pw.logger.Debug("wrote partition",
			slog.Any("keys", part.Keys),
			slog.Int("rows", part.Table.NumRows()),
			slog.String("path", path))
	}

	pw.logger.Info("wrote partitioned dataset",
		slog.Int("partition_count", len(written)),
		slog.Int("total_rows", t.NumRows()))
	return written, nil
}
