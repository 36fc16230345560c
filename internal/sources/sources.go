// Package sources discovers input spreadsheets and groups them into fleets.
package sources

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"fleetpipe/internal/config"
	"fleetpipe/internal/errors"
)

// Manager discovers files for configured data sources.
type Manager struct {
	sources map[string]config.SourceSpec
	logger  *slog.Logger
}

// NewManager creates a source manager over the configured sources.
func NewManager(sources map[string]config.SourceSpec, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{sources: sources, logger: logger}
}

// DiscoverFiles returns every file matching the source's patterns in its
// configured directories, minus excluded names. Missing directories are
// logged and skipped; the result is sorted for deterministic processing.
func (m *Manager) DiscoverFiles(sourceType string) ([]string, error) {
	spec, ok := m.sources[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownSourceType, sourceType)
	}

	seen := make(map[string]struct{})
	var files []string
	for _, dir := range spec.Directories {
		if _, err := os.Stat(dir); err != nil {
			m.logger.Warn("source directory does not exist, skipping",
				slog.String("directory", dir))
			continue
		}
		for _, pattern := range spec.Patterns {
			matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, fmt.Errorf("bad file pattern %q: %w", pattern, err)
			}
			for _, match := range matches {
				if m.shouldExclude(match, spec.ExcludePatterns) {
					continue
				}
				if _, dup := seen[match]; dup {
					continue
				}
				seen[match] = struct{}{}
				files = append(files, match)
			}
		}
	}
	sort.Strings(files)

	m.logger.Info("discovered source files",
		slog.String("source_type", sourceType),
		slog.Int("file_count", len(files)))
	return files, nil
}

func (m *Manager) shouldExclude(path string, excludePatterns []string) bool {
	name := filepath.Base(path)
	for _, pattern := range excludePatterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// GroupFilesByFleet buckets files by fleet key. The key is the first path
// segment whose name starts with "fleet" (case-insensitive); files without
// one fall back to their immediate parent directory name.
func GroupFilesByFleet(files []string) map[string][]string {
	groups := make(map[string][]string)
	for _, file := range files {
		fleet := fleetKeyFor(file)
		groups[fleet] = append(groups[fleet], file)
	}
	return groups
}

func fleetKeyFor(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, part := range parts {
		if strings.HasPrefix(strings.ToLower(part), "fleet") {
			return part
		}
	}
	return filepath.Base(filepath.Dir(path))
}

// SortedFleetKeys returns the group keys in sorted order so fleets process
// deterministically run to run.
func SortedFleetKeys(groups map[string][]string) []string {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
