// Package config loads the pipeline configuration from defaults, an optional
// YAML file, and FLEETPIPE_* environment variables, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Logging    LoggingConfig         `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig           `yaml:"paths" envconfig:"PATHS"`
	Processing ProcessingConfig      `yaml:"processing" envconfig:"PROCESSING"`
	Excel      ExcelConfig           `yaml:"excel" envconfig:"EXCEL"`
	Output     OutputConfig          `yaml:"output" envconfig:"OUTPUT"`
	Sources    map[string]SourceSpec `yaml:"sources" ignored:"true"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths. Relative paths are resolved
// against BaseDir at load time.
type PathsConfig struct {
	BaseDir        string `yaml:"base_dir" envconfig:"BASE_DIR"`
	OutputDir      string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	PartitionedDir string `yaml:"partitioned_dir" envconfig:"PARTITIONED_DIR" validate:"required"`
	LogsDir        string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
}

// ProcessingConfig controls pipeline execution.
type ProcessingConfig struct {
	// Workers bounds concurrent file reads within one fleet group.
	Workers int    `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
	GroupBy string `yaml:"group_by" envconfig:"GROUP_BY"`
}

// ExcelConfig controls spreadsheet decoding.
type ExcelConfig struct {
	SkipRows int      `yaml:"skip_rows" envconfig:"SKIP_ROWS" validate:"min=0"`
	NAValues []string `yaml:"na_values" envconfig:"NA_VALUES"`
}

// OutputConfig controls dataset serialization.
type OutputConfig struct {
	Format      string `yaml:"format" envconfig:"FORMAT" validate:"oneof=parquet csv xlsx"`
	Compression string `yaml:"compression" envconfig:"COMPRESSION" validate:"oneof=snappy none"`
}

// SourceSpec describes one discoverable data source.
type SourceSpec struct {
	Patterns        []string `yaml:"patterns"`
	Directories     []string `yaml:"directories"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// Default returns the built-in configuration, mirroring the directory layout
// the analysts' spreadsheets arrive in.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "both",
			FilePath: "logs/pipeline.log",
		},
		Paths: PathsConfig{
			OutputDir:      "processed",
			PartitionedDir: "processed/partitioned",
			LogsDir:        "logs",
		},
		Processing: ProcessingConfig{
			Workers: 4,
			GroupBy: "fleet_number",
		},
		Excel: ExcelConfig{
			SkipRows: 0,
			NAValues: []string{"", "NA", "N/A", "null", "NULL"},
		},
		Output: OutputConfig{
			Format:      "parquet",
			Compression: "snappy",
		},
		Sources: map[string]SourceSpec{
			"fleet_performance": {
				Patterns:        []string{"**/*.xlsx", "**/*.xls"},
				Directories:     []string{"raw-import-from-client", "source", "references"},
				ExcludePatterns: []string{"~$*", "*.tmp"},
			},
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at configPath
// if it exists (empty path checks ./config.yaml), then environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = "config.yaml"
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := envconfig.Process("FLEETPIPE", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags plus the
// cross-field constraints the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one data source must be configured")
	}
	for name, src := range c.Sources {
		if len(src.Patterns) == 0 {
			return fmt.Errorf("source %q has no file patterns", name)
		}
		if len(src.Directories) == 0 {
			return fmt.Errorf("source %q has no directories", name)
		}
	}
	return nil
}

// resolvePaths makes all configured paths absolute relative to BaseDir,
// defaulting BaseDir to the working directory.
func (c *Config) resolvePaths() error {
	if c.Paths.BaseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine working directory: %w", err)
		}
		c.Paths.BaseDir = wd
	}
	c.Paths.OutputDir = c.resolve(c.Paths.OutputDir)
	c.Paths.PartitionedDir = c.resolve(c.Paths.PartitionedDir)
	c.Paths.LogsDir = c.resolve(c.Paths.LogsDir)
	c.Logging.FilePath = c.resolve(c.Logging.FilePath)

	for name, src := range c.Sources {
		resolved := make([]string, len(src.Directories))
		for i, dir := range src.Directories {
			resolved[i] = c.resolve(dir)
		}
		src.Directories = resolved
		c.Sources[name] = src
	}
	return nil
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Paths.BaseDir, path)
}

// EnsureDirs creates the output and log directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.PartitionedDir, c.Paths.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
