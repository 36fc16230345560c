// Package pipeline orchestrates the full ingestion run: discover files,
// group them into fleets, read, normalize, validate and summarize each
// sheet, combine per fleet, consolidate, and partition the output.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetpipe/internal/config"
	"fleetpipe/internal/dataprocessing"
	"fleetpipe/internal/errors"
	"fleetpipe/internal/exporter"
	"fleetpipe/internal/infrastructure"
	"fleetpipe/internal/reader"
	"fleetpipe/internal/sources"
	"fleetpipe/internal/validation"
	"fleetpipe/pkg/contracts/domain"
)

// ConsolidatedName is the base filename of the consolidated dataset.
const ConsolidatedName = "consolidated_fleet_data"

// Pipeline is the run orchestrator. It owns the run-wide validation history
// and processing stats; constructing a new pipeline resets both.
type Pipeline struct {
	cfg        *config.Config
	logger     *slog.Logger
	sources    *sources.Manager
	reader     *reader.ExcelReader
	normalizer *dataprocessing.Normalizer
	aggregator *dataprocessing.Aggregator
	validator  *validation.Validator
	writer     *exporter.Writer
	partWriter *exporter.PartitionedWriter

	mu               sync.Mutex
	stats            ProcessingStats
	lastConsolidated *domain.Table
}

// New creates a pipeline from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to prepare directories: %w", err)
	}
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		sources:    sources.NewManager(cfg.Sources, logger),
		reader:     reader.NewExcelReader(cfg.Excel, logger),
		normalizer: dataprocessing.NewNormalizer(logger),
		aggregator: dataprocessing.NewAggregator(logger),
		validator:  validation.NewFleetValidator(logger),
		writer:     exporter.NewWriter(cfg.Paths.OutputDir, cfg.Output, logger),
		partWriter: exporter.NewPartitionedWriter(cfg.Paths.PartitionedDir, cfg.Output, logger),
	}, nil
}

// Validator exposes the run-wide validator, mainly for inspection in tests
// and the reporting layer.
func (p *Pipeline) Validator() *validation.Validator { return p.validator }

// Run executes the full pipeline for one source type. It always returns a
// result; failures are encoded in its status.
func (p *Pipeline) Run(ctx context.Context, sourceType string) *RunResult {
	ctx = infrastructure.EnsureRunID(ctx)
	logger := infrastructure.LoggerFromContext(ctx)
	start := time.Now()

	result := &RunResult{
		RunID:        infrastructure.GetRunID(ctx),
		StartedAt:    start,
		FleetResults: make(map[string]*FleetResult),
	}
	fail := func(err error) *RunResult {
		logger.Error("pipeline failed", slog.Any("error", err))
		p.recordError(err.Error())
		result.Status = StatusFailed
		result.Error = err.Error()
		result.Stats = p.Stats()
		result.ValidationSummary = p.validator.GetValidationSummary()
		result.ProcessingTime = time.Since(start)
		return result
	}

	logger.Info("starting pipeline run", slog.String("source_type", sourceType))

	files, err := p.sources.DiscoverFiles(sourceType)
	if err != nil {
		return fail(err)
	}
	if len(files) == 0 {
		logger.Warn("no files found", slog.String("source_type", sourceType))
		result.Status = StatusNoFiles
		result.Stats = p.Stats()
		result.ProcessingTime = time.Since(start)
		return result
	}

	groups := sources.GroupFilesByFleet(files)
	logger.Info("grouped files into fleets", slog.Int("fleet_count", len(groups)))

	var fleetTables []*domain.Table
	for _, fleet := range sources.SortedFleetKeys(groups) {
		fleetResult, combined, err := p.processFleet(ctx, fleet, groups[fleet])
		if err != nil {
			return fail(fmt.Errorf("fleet %s: %w", fleet, err))
		}
		result.FleetResults[fleet] = fleetResult
		if combined != nil {
			fleetTables = append(fleetTables, combined)
		}
	}

	consolidated, err := p.consolidate(ctx, fleetTables)
	if err != nil {
		return fail(fmt.Errorf("consolidation: %w", err))
	}
	result.Consolidated = consolidated

	result.Status = StatusCompleted
	result.FleetsProcessed = len(result.FleetResults)
	result.Stats = p.Stats()
	result.ValidationSummary = p.validator.GetValidationSummary()
	result.ProcessingTime = time.Since(start)

	logger.Info("pipeline run completed",
		slog.Duration("elapsed", result.ProcessingTime),
		slog.Int("fleets_processed", result.FleetsProcessed),
		slog.Int("files_processed", result.Stats.FilesProcessed),
		slog.Int("total_rows", result.Stats.TotalRows))
	return result
}

// fileOutcome carries one file's processed sheets back to the fleet loop.
type fileOutcome struct {
	meta      *domain.FileMetadata
	tables    []*domain.Table
	summaries map[string]*dataprocessing.SummaryResult
	err       error
}

// processFleet processes every file of one fleet group, fanning file reads
// out over the configured worker count, then combines the results and
// writes the fleet dataset and its summary workbook.
func (p *Pipeline) processFleet(ctx context.Context, fleet string, files []string) (*FleetResult, *domain.Table, error) {
	logger := infrastructure.LoggerFromContext(ctx)
	logger.Info("processing fleet",
		slog.String("fleet", fleet),
		slog.Int("file_count", len(files)))

	outcomes := make([]fileOutcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Processing.Workers)
	for i, file := range files {
		g.Go(func() error {
			outcomes[i] = p.processFile(gctx, file, fleet)
			return nil
		})
	}
	// Goroutines report per-file failures through their outcome, never an
	// error, so Wait only surfaces context cancellation.
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var tables []*domain.Table
	var metas []*domain.FileMetadata
	summaries := make(map[string]*dataprocessing.SummaryResult)
	for i, outcome := range outcomes {
		if outcome.err != nil {
			logger.Error("error processing file",
				slog.String("file", files[i]),
				slog.Any("error", outcome.err))
			p.recordError(fmt.Sprintf("%s: %v", files[i], outcome.err))
			continue
		}
		p.mu.Lock()
		p.stats.FilesProcessed++
		p.mu.Unlock()
		metas = append(metas, outcome.meta)
		tables = append(tables, outcome.tables...)
		for k, v := range outcome.summaries {
			summaries[k] = v
		}
	}

	if len(tables) == 0 {
		logger.Warn("fleet produced no data", slog.String("fleet", fleet))
		return &FleetResult{Status: StatusNoData}, nil, nil
	}

	combined := domain.Concat(tables...)
	outputPath, err := p.writer.WriteTable(combined, fleet+"_combined")
	if err != nil {
		return nil, nil, err
	}
	summaryPath, err := p.writer.WriteSummaryWorkbook(fleet+"_summary", summaries)
	if err != nil {
		return nil, nil, err
	}

	return &FleetResult{
		Status:        StatusCompleted,
		RowsProcessed: combined.NumRows(),
		Files:         metas,
		OutputPath:    outputPath,
		SummaryPath:   summaryPath,
	}, combined, nil
}

// processFile reads one workbook and runs every non-empty sheet through
// normalize, validate and summarize. Failures are returned in the outcome
// and skip the file without aborting the run.
func (p *Pipeline) processFile(ctx context.Context, path, fleet string) fileOutcome {
	logger := infrastructure.LoggerFromContext(ctx)

	if ok, issues := p.reader.CheckFile(path); !ok {
		return fileOutcome{err: fmt.Errorf("pre-read check failed: %s", strings.Join(issues, "; "))}
	}

	meta, err := p.reader.GetFileMetadata(path)
	if err != nil {
		return fileOutcome{err: err}
	}
	logger.Info("processing file",
		slog.String("file", meta.FileName),
		slog.Int64("size", meta.FileSize),
		slog.Int("sheet_count", meta.SheetCount))

	sheets, err := p.reader.ReadFileWithMetadata(path)
	if err != nil {
		return fileOutcome{err: err}
	}

	fileName := meta.FileName
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	outcome := fileOutcome{
		meta:      meta,
		summaries: make(map[string]*dataprocessing.SummaryResult),
	}

	for _, sheet := range sheets {
		if sheet.Table.IsEmpty() {
			logger.Debug("skipping empty sheet",
				slog.String("file", fileName),
				slog.String("sheet", sheet.Name))
			continue
		}

		normalized, err := p.normalizer.Normalize(sheet.Table, fileName)
		if err != nil {
			return fileOutcome{err: fmt.Errorf("sheet %q: %w", sheet.Name, err)}
		}

		vres := p.validator.Validate(normalized, validation.Context{
			"file":  fileName,
			"sheet": sheet.Name,
			"fleet": fleet,
		})

		summary := p.aggregator.SummaryStats(normalized, p.cfg.Processing.GroupBy)
		if !summary.IsEmpty() {
			// Summary keys become workbook sheet names. The file stem
			// prefix keeps sheets with the same name in different files
			// of one fleet from overwriting each other.
			outcome.summaries[stem+"_"+sheet.Name] = summary
		} else {
			logger.Info("no performance metrics in sheet",
				slog.String("file", fileName),
				slog.String("sheet", sheet.Name))
		}

		p.mu.Lock()
		p.stats.SheetsProcessed++
		p.stats.TotalRows += normalized.NumRows()
		if !vres.Passed {
			p.stats.ValidationFailures++
		}
		p.mu.Unlock()

		outcome.tables = append(outcome.tables, normalized)
	}
	return outcome
}

// ExportConsolidatedCSV writes the most recent consolidated dataset as CSV.
// It is a caller-usage error to export before a successful run.
func (p *Pipeline) ExportConsolidatedCSV(name string) (string, error) {
	if name == "" {
		name = ConsolidatedName
	}
	p.mu.Lock()
	dataset := p.lastConsolidated
	p.mu.Unlock()
	if dataset == nil {
		return "", errors.ErrNoConsolidatedData
	}
	return p.writer.WriteTableFormat(dataset, name, exporter.FormatCSV)
}

// Stats returns a copy of the processing counters.
func (p *Pipeline) Stats() ProcessingStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stats
	out.Errors = append([]string(nil), p.stats.Errors...)
	return out
}

func (p *Pipeline) recordError(msg string) {
	p.mu.Lock()
	p.stats.Errors = append(p.stats.Errors, msg)
	p.mu.Unlock()
}
