// Package dataprocessing normalizes raw spreadsheet tables and computes
// descriptive statistics over their performance metrics. It covers the middle
// of the pipeline: everything between decoding a workbook and serializing the
// combined dataset.
//
// # Components
//
// The package has two main components:
//
// 1. Normalizer: cleans a raw table into the canonical typed form
// 2. Aggregator: identifies performance-metric columns and summarizes them
//
// # Usage
//
// Normalizing a decoded sheet:
//
//	normalizer := dataprocessing.NewNormalizer(logger)
//	table, err := normalizer.Normalize(sheet.Table, "Fleet 5 - fuel_log.xlsx")
//	if err != nil {
//	    return err
//	}
//
// Summarizing its metrics grouped by fleet:
//
//	aggregator := dataprocessing.NewAggregator(logger)
//	summary := aggregator.SummaryStats(table, "fleet_number")
//
// # Normalization Passes
//
// Normalize applies its passes in a fixed order:
//
//	trim empty rows/columns → canonicalize names → coerce types → derive keys → string remaining
//
// Name canonicalization is idempotent, and type coercion is all-or-nothing
// per column: a column converts only when every non-null cell converts, so a
// single stray string never produces a mixed column.
//
// # Testing
//
// Use table-driven tests when adding new functionality.
package dataprocessing
