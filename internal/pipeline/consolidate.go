package pipeline

import (
	"context"
	"log/slog"
	"math"

	"fleetpipe/internal/dataprocessing"
	"fleetpipe/internal/infrastructure"
	"fleetpipe/pkg/contracts/domain"
)

// consolidate row-binds the per-fleet combined tables into the global
// dataset, writes it, snapshots the analysis summary, and emits the
// fleet-partitioned copy. The consolidated table replaces any previous one
// held for export-on-demand.
func (p *Pipeline) consolidate(ctx context.Context, fleetTables []*domain.Table) (*ConsolidatedResult, error) {
	logger := infrastructure.LoggerFromContext(ctx)

	if len(fleetTables) == 0 {
		logger.Warn("no fleet data to consolidate")
		return &ConsolidatedResult{Status: StatusNoData}, nil
	}

	consolidated := domain.Concat(fleetTables...)
	p.mu.Lock()
	p.lastConsolidated = consolidated
	p.mu.Unlock()

	path, err := p.writer.WriteTable(consolidated, ConsolidatedName)
	if err != nil {
		return nil, err
	}

	partitioned, err := p.partWriter.WritePartitioned(
		consolidated, []string{domain.ColFleetNumber}, "fleet_data")
	if err != nil {
		return nil, err
	}

	result := &ConsolidatedResult{
		Status:           StatusCompleted,
		TotalRows:        consolidated.NumRows(),
		ConsolidatedPath: path,
		PartitionedFiles: partitioned,
		AnalysisSummary:  buildAnalysisSummary(consolidated),
	}

	logger.Info("consolidated dataset written",
		slog.String("path", path),
		slog.Int("total_rows", result.TotalRows),
		slog.Int("partition_count", len(partitioned)))
	return result, nil
}

// buildAnalysisSummary computes the compact reporting snapshot: shape,
// per-fleet row counts with a null bucket, and rounded headline statistics
// for every numeric column.
func buildAnalysisSummary(t *domain.Table) *AnalysisSummary {
	summary := &AnalysisSummary{
		RowCount:    t.NumRows(),
		ColumnCount: t.NumCols(),
	}

	if fleetIdx := t.ColumnIndex(domain.ColFleetNumber); fleetIdx >= 0 {
		counts := make(map[string]int)
		for _, row := range t.Rows {
			key := dataprocessing.NullGroupKey
			if row[fleetIdx] != nil {
				key = domain.CellString(row[fleetIdx])
			}
			counts[key]++
		}
		summary.FleetCounts = counts
	}

	numeric := make(map[string]NumericColumnSummary)
	for ci, col := range t.Columns {
		if col.Type != domain.TypeNumeric {
			continue
		}
		var (
			count    int
			sum      float64
			min, max float64
		)
		for _, row := range t.Rows {
			f, ok := domain.AsFloat(row[ci])
			if !ok {
				continue
			}
			if count == 0 || f < min {
				min = f
			}
			if count == 0 || f > max {
				max = f
			}
			count++
			sum += f
		}
		if count == 0 {
			continue
		}
		numeric[col.Name] = NumericColumnSummary{
			Count: float64(count),
			Mean:  round2(sum / float64(count)),
			Min:   round2(min),
			Max:   round2(max),
		}
	}
	if len(numeric) > 0 {
		summary.NumericSummary = numeric
	}
	return summary
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
