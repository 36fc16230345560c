package pipeline

import (
	"time"

	"fleetpipe/internal/validation"
	"fleetpipe/pkg/contracts/domain"
)

// Run status values. A run always produces a result; the status says how it
// ended.
const (
	StatusCompleted = "completed"
	StatusNoFiles   = "no_files"
	StatusFailed    = "failed"
	StatusNoData    = "no_data"
)

// ProcessingStats are the run-wide counters. They reset only by
// constructing a new pipeline.
type ProcessingStats struct {
	FilesProcessed     int      `json:"files_processed"`
	SheetsProcessed    int      `json:"sheets_processed"`
	TotalRows          int      `json:"total_rows"`
	Errors             []string `json:"errors"`
	ValidationFailures int      `json:"validation_failures"`
}

// FleetResult reports the outcome of processing one fleet group.
type FleetResult struct {
	Status        string                 `json:"status"`
	RowsProcessed int                    `json:"rows_processed,omitempty"`
	Files         []*domain.FileMetadata `json:"files,omitempty"`
	OutputPath    string                 `json:"output_path,omitempty"`
	SummaryPath   string                 `json:"summary_path,omitempty"`
}

// NumericColumnSummary holds the rounded headline statistics for one
// numeric column of the consolidated dataset.
type NumericColumnSummary struct {
	Count float64 `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// AnalysisSummary is the compact snapshot of a consolidated dataset used
// for reporting.
type AnalysisSummary struct {
	RowCount       int                             `json:"row_count"`
	ColumnCount    int                             `json:"column_count"`
	FleetCounts    map[string]int                  `json:"fleet_counts,omitempty"`
	NumericSummary map[string]NumericColumnSummary `json:"numeric_summary,omitempty"`
}

// ConsolidatedResult reports the outcome of building the consolidated
// dataset.
type ConsolidatedResult struct {
	Status           string           `json:"status"`
	TotalRows        int              `json:"total_rows,omitempty"`
	ConsolidatedPath string           `json:"consolidated_path,omitempty"`
	PartitionedFiles []string         `json:"partitioned_files,omitempty"`
	AnalysisSummary  *AnalysisSummary `json:"analysis_summary,omitempty"`
}

// RunResult is the reporting surface of one pipeline run, consumed by the
// CLI presentation layer.
type RunResult struct {
	Status            string                  `json:"status"`
	RunID             string                  `json:"run_id"`
	StartedAt         time.Time               `json:"started_at"`
	ProcessingTime    time.Duration           `json:"processing_time"`
	FleetsProcessed   int                     `json:"fleets_processed"`
	FleetResults      map[string]*FleetResult `json:"fleet_results,omitempty"`
	Consolidated      *ConsolidatedResult     `json:"consolidated,omitempty"`
	Stats             ProcessingStats         `json:"stats"`
	ValidationSummary validation.Summary      `json:"validation_summary"`
	Error             string                  `json:"error,omitempty"`
}
