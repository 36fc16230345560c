package dataprocessing

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"fleetpipe/pkg/contracts/domain"
)

// metricKeywords mark a column as a quantitative performance indicator when
// any of them appears in its canonical name.
var metricKeywords = []string{
	"performance", "efficiency", "utilization", "availability",
	"mileage", "hours", "cost", "maintenance", "downtime",
	"fuel", "emissions", "reliability", "rating",
}

// NullGroupKey buckets rows whose group-by value is null.
const NullGroupKey = "<null>"

// DescriptiveStats holds the describe-style statistics for one column.
type DescriptiveStats struct {
	Count float64 `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	Max   float64 `json:"max"`
}

// ColumnStats maps a metric column name to its descriptive statistics.
type ColumnStats map[string]DescriptiveStats

// SummaryResult holds the statistics computed for one table: the overall
// block, and optionally one block per group value.
type SummaryResult struct {
	Overall ColumnStats            `json:"overall,omitempty"`
	ByGroup map[string]ColumnStats `json:"by_group,omitempty"`
}

// IsEmpty reports whether no statistics were computed.
func (s *SummaryResult) IsEmpty() bool {
	return s == nil || (len(s.Overall) == 0 && len(s.ByGroup) == 0)
}

// GroupKeys returns the grouped keys in sorted order.
func (s *SummaryResult) GroupKeys() []string {
	keys := make([]string, 0, len(s.ByGroup))
	for k := range s.ByGroup {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Aggregator identifies performance-metric columns and computes their
// descriptive statistics.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// IdentifyMetrics returns, in table column order, the names of columns whose
// name contains a performance-metric keyword. No matches is a valid empty
// result.
func (a *Aggregator) IdentifyMetrics(t *domain.Table) []string {
	var metrics []string
	for _, col := range t.Columns {
		lower := strings.ToLower(col.Name)
		for _, keyword := range metricKeywords {
			if strings.Contains(lower, keyword) {
				metrics = append(metrics, col.Name)
				break
			}
		}
	}
	return metrics
}

// SummaryStats computes descriptive statistics over the numeric metric
// columns. The overall block is present whenever at least one numeric
// metric column exists; when groupBy names a present column, a per-group
// block is added (null group values bucket under NullGroupKey is not
// produced: null groups are excluded, matching the consolidation summary's
// separate null accounting). A table with no numeric metric columns yields
// an empty result, which the caller treats as informational.
func (a *Aggregator) SummaryStats(t *domain.Table, groupBy string) *SummaryResult {
	result := &SummaryResult{}

	var numericMetrics []int
	for _, name := range a.IdentifyMetrics(t) {
		idx := t.ColumnIndex(name)
		if idx >= 0 && t.Columns[idx].Type == domain.TypeNumeric {
			numericMetrics = append(numericMetrics, idx)
		}
	}
	if len(numericMetrics) == 0 {
		a.logger.Debug("no numeric performance metric columns identified")
		return result
	}

	result.Overall = make(ColumnStats, len(numericMetrics))
	for _, idx := range numericMetrics {
		result.Overall[t.Columns[idx].Name] = describe(columnFloats(t, idx, nil))
	}

	if groupBy == "" {
		return result
	}
	groupIdx := t.ColumnIndex(groupBy)
	if groupIdx < 0 {
		return result
	}

	groups := make(map[string][]int)
	var order []string
	for ri, row := range t.Rows {
		if row[groupIdx] == nil {
			continue
		}
		key := domain.CellString(row[groupIdx])
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ri)
	}
	result.ByGroup = make(map[string]ColumnStats, len(order))
	for _, key := range order {
		stats := make(ColumnStats, len(numericMetrics))
		for _, idx := range numericMetrics {
			stats[t.Columns[idx].Name] = describe(columnFloats(t, idx, groups[key]))
		}
		result.ByGroup[key] = stats
	}
	return result
}

// columnFloats collects the non-null float values of a column, restricted to
// the given row indices (all rows when nil).
func columnFloats(t *domain.Table, colIdx int, rowIdx []int) []float64 {
	var values []float64
	collect := func(row domain.Row) {
		if f, ok := domain.AsFloat(row[colIdx]); ok {
			values = append(values, f)
		}
	}
	if rowIdx == nil {
		for _, row := range t.Rows {
			collect(row)
		}
		return values
	}
	for _, ri := range rowIdx {
		collect(t.Rows[ri])
	}
	return values
}

// describe computes count, mean, sample std, min, quartiles and max.
// Std is 0 when fewer than two values exist.
func describe(values []float64) DescriptiveStats {
	n := len(values)
	if n == 0 {
		return DescriptiveStats{}
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	std := 0.0
	if n > 1 {
		sq := 0.0
		for _, v := range sorted {
			d := v - mean
			sq += d * d
		}
		std = math.Sqrt(sq / float64(n-1))
	}

	return DescriptiveStats{
		Count: float64(n),
		Mean:  mean,
		Std:   std,
		Min:   sorted[0],
		P25:   percentile(sorted, 0.25),
		P50:   percentile(sorted, 0.50),
		P75:   percentile(sorted, 0.75),
		Max:   sorted[n-1],
	}
}

// percentile uses linear interpolation between closest ranks on a sorted
// slice, matching the conventional describe() behavior.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
