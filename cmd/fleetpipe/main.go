package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fleetpipe/internal/config"
	"fleetpipe/internal/infrastructure"
	"fleetpipe/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ./config.yaml)")
	sourceType := flag.String("source", "fleet_performance", "data source type to process")
	outDir := flag.String("out", "", "output directory override")
	exportCSV := flag.Bool("export-csv", false, "export the consolidated dataset as CSV without prompting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Paths.OutputDir = *outDir
		cfg.Paths.PartitionedDir = filepath.Join(*outDir, "partitioned")
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	logger.Info("Starting fleet data ingestion pipeline")

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}

	ctx := infrastructure.EnsureRunID(context.Background())
	result := p.Run(ctx, *sourceType)

	printSummary(result)

	if result.Status == pipeline.StatusCompleted && wantsCSVExport(*exportCSV) {
		csvPath, err := p.ExportConsolidatedCSV("")
		if err != nil {
			logger.Error("CSV export failed", "error", err)
			fmt.Printf("CSV export failed: %v\n", err)
		} else {
			fmt.Printf("CSV exported to: %s\n", csvPath)
		}
	}

	if result.Status != pipeline.StatusCompleted {
		os.Exit(1)
	}
}

// wantsCSVExport checks the flag first, then prompts interactively.
func wantsCSVExport(flagged bool) bool {
	if flagged {
		return true
	}
	fmt.Print("\nExport consolidated CSV? (y/N): ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printSummary(result *pipeline.RunResult) {
	divider := strings.Repeat("=", 60)
	fmt.Println("\n" + divider)
	fmt.Println("PIPELINE EXECUTION SUMMARY")
	fmt.Println(divider)
	fmt.Printf("Status: %s\n", result.Status)

	if result.Status != pipeline.StatusCompleted {
		if result.Error != "" {
			fmt.Printf("Error: %s\n", result.Error)
		}
		fmt.Println(divider)
		return
	}

	fmt.Printf("Processing Time: %s\n", result.ProcessingTime)
	fmt.Printf("Fleets Processed: %d\n", result.FleetsProcessed)
	fmt.Printf("Files Processed: %d\n", result.Stats.FilesProcessed)
	fmt.Printf("Sheets Processed: %d\n", result.Stats.SheetsProcessed)
	fmt.Printf("Total Rows: %d\n", result.Stats.TotalRows)
	fmt.Printf("Validation Failures: %d\n", result.Stats.ValidationFailures)

	vs := result.ValidationSummary
	fmt.Println("\nValidation Summary:")
	fmt.Printf("  Total: %d | Passed: %d | Failed: %d | Pass Rate: %.2f%%\n",
		vs.TotalValidations, vs.Passed, vs.Failed, vs.PassRate*100)

	if len(result.Stats.Errors) > 0 {
		fmt.Printf("Errors: %d\n", len(result.Stats.Errors))
		shown := result.Stats.Errors
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, e := range shown {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Println("\nOutput Files:")
	fleets := make([]string, 0, len(result.FleetResults))
	for fleet := range result.FleetResults {
		fleets = append(fleets, fleet)
	}
	sort.Strings(fleets)
	for _, fleet := range fleets {
		if fr := result.FleetResults[fleet]; fr.OutputPath != "" {
			fmt.Printf("  %s: %s\n", fleet, fr.OutputPath)
		}
	}
	if result.Consolidated != nil && result.Consolidated.ConsolidatedPath != "" {
		fmt.Printf("  Consolidated: %s\n", result.Consolidated.ConsolidatedPath)
	}

	if result.Consolidated != nil && result.Consolidated.AnalysisSummary != nil {
		a := result.Consolidated.AnalysisSummary
		fmt.Println("\nAnalysis Summary:")
		fmt.Printf("  Rows: %d\n", a.RowCount)
		fmt.Printf("  Columns: %d\n", a.ColumnCount)

		if len(a.FleetCounts) > 0 {
			fmt.Println("  Fleet counts:")
			keys := make([]string, 0, len(a.FleetCounts))
			for k := range a.FleetCounts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("    %s: %d\n", k, a.FleetCounts[k])
			}
		}
		if len(a.NumericSummary) > 0 {
			fmt.Println("  Numeric summary (count/mean/min/max):")
			cols := make([]string, 0, len(a.NumericSummary))
			for c := range a.NumericSummary {
				cols = append(cols, c)
			}
			sort.Strings(cols)
			for _, c := range cols {
				s := a.NumericSummary[c]
				fmt.Printf("    %s: count=%g, mean=%g, min=%g, max=%g\n",
					c, s.Count, s.Mean, s.Min, s.Max)
			}
		}
	}
	fmt.Println(divider)
}
