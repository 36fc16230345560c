package dataprocessing

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fleetpipe/internal/errors"
	"fleetpipe/pkg/contracts/domain"
)

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	invalidCharRe   = regexp.MustCompile(`[^\pL\pN_]`)
	underscoreRunRe = regexp.MustCompile(`_+`)
	fleetNumberRe   = regexp.MustCompile(`(?i)fleet\s*(\d+)`)
	busRangeRe      = regexp.MustCompile(`(\d{4})-(\d{4})`)
)

// temporalLayouts are tried in order for whole-column date/time coercion.
var temporalLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"2006/01/02",
	"02-Jan-2006",
}

// Normalizer turns a raw decoded table into the canonical shape: trimmed,
// canonically named, type-standardized, keyed by fleet, uniformly typed.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize applies the full normalization sequence to a copy of the input:
// empty trimming, column-name canonicalization, type standardization, key
// derivation from sourceID, and string coercion of anything left untyped.
// The input table is never mutated.
func (n *Normalizer) Normalize(t *domain.Table, sourceID string) (*domain.Table, error) {
	if err := t.CheckRectangular(); err != nil {
		return nil, errors.Wrap(errors.ErrNotTabular, err)
	}

	out := t.Clone()
	origRows, origCols := out.NumRows(), out.NumCols()

	n.trimEmpty(out)
	n.canonicalizeColumns(out)
	n.standardizeTypes(out)
	n.deriveKeys(out, sourceID)
	n.coerceStrings(out)

	n.logger.Info("normalized table",
		slog.String("source", sourceID),
		slog.Int("original_rows", origRows),
		slog.Int("original_columns", origCols),
		slog.Int("rows", out.NumRows()),
		slog.Int("columns", out.NumCols()))
	return out, nil
}

// trimEmpty drops rows where every cell is null, then columns where every
// remaining cell is null. Columns of a zero-row table are kept.
func (n *Normalizer) trimEmpty(t *domain.Table) {
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		empty := true
		for _, cell := range row {
			if cell != nil {
				empty = false
				break
			}
		}
		if !empty {
			kept = append(kept, row)
		}
	}
	t.Rows = kept

	if len(t.Rows) == 0 {
		return
	}
	var keepIdx []int
	for ci := range t.Columns {
		for _, row := range t.Rows {
			if row[ci] != nil {
				keepIdx = append(keepIdx, ci)
				break
			}
		}
	}
	if len(keepIdx) == len(t.Columns) {
		return
	}
	columns := make([]domain.Column, len(keepIdx))
	for i, ci := range keepIdx {
		columns[i] = t.Columns[ci]
	}
	for ri, row := range t.Rows {
		trimmed := make(domain.Row, len(keepIdx))
		for i, ci := range keepIdx {
			trimmed[i] = row[ci]
		}
		t.Rows[ri] = trimmed
	}
	t.Columns = columns
}

// CanonicalizeName converts one column name to canonical snake_case:
// lowercase, trimmed, whitespace runs collapsed to a single underscore,
// non-alphanumeric characters stripped, underscore runs collapsed, and
// leading/trailing underscores removed. The result may be empty; callers
// apply the positional fallback. Canonicalization is idempotent.
func CanonicalizeName(name string) string {
	clean := strings.ToLower(strings.TrimSpace(name))
	clean = whitespaceRe.ReplaceAllString(clean, "_")
	clean = invalidCharRe.ReplaceAllString(clean, "")
	clean = underscoreRunRe.ReplaceAllString(clean, "_")
	return strings.Trim(clean, "_")
}

// canonicalizeColumns renames every column via CanonicalizeName. An empty
// result falls back to col_<position>. Names that collide with an earlier
// column in the same table get an _2, _3, ... suffix in first-seen order,
// so column names are always unique within a table.
func (n *Normalizer) canonicalizeColumns(t *domain.Table) {
	used := make(map[string]int, len(t.Columns))
	for i := range t.Columns {
		name := CanonicalizeName(t.Columns[i].Name)
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		if count, taken := used[name]; taken {
			base := name
			for {
				count++
				name = fmt.Sprintf("%s_%d", base, count+1)
				if _, stillTaken := used[name]; !stillTaken {
					used[base] = count
					break
				}
			}
		}
		used[name] = 0
		t.Columns[i].Name = name
	}
}

// standardizeTypes applies whole-column type coercion. Coercion is
// all-or-nothing per column: a single unparseable non-null cell leaves the
// column untouched. Provenance columns (source_* and *_timestamp) are
// skipped.
func (n *Normalizer) standardizeTypes(t *domain.Table) {
	for ci, col := range t.Columns {
		if strings.HasPrefix(col.Name, "source_") || strings.HasSuffix(col.Name, "_timestamp") {
			continue
		}
		if col.Type == domain.TypeNumeric || col.Type == domain.TypeTemporal {
			continue
		}
		// SetColumn cannot fail here: ColumnValues yields one value per
		// row and ci ranges over the columns.
		if values, ok := coerceNumeric(t.ColumnValues(ci)); ok {
			_ = t.SetColumn(ci, domain.TypeNumeric, values)
			continue
		}
		lower := strings.ToLower(col.Name)
		if strings.Contains(lower, "date") || strings.Contains(lower, "time") {
			if values, ok := coerceTemporal(t.ColumnValues(ci)); ok {
				_ = t.SetColumn(ci, domain.TypeTemporal, values)
			}
		}
	}
}

// coerceNumeric parses every non-null cell as a float. It succeeds only if
// all non-null cells parse and at least one cell actually changed
// representation.
func coerceNumeric(values []any) ([]any, bool) {
	out := make([]any, len(values))
	changed := false
	for i, v := range values {
		switch cell := v.(type) {
		case nil:
			out[i] = nil
		case float64:
			out[i] = cell
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, false
			}
			out[i] = f
			changed = true
		default:
			return nil, false
		}
	}
	return out, changed
}

// coerceTemporal parses every non-null cell against the known layouts,
// under the same all-or-nothing policy as coerceNumeric.
func coerceTemporal(values []any) ([]any, bool) {
	out := make([]any, len(values))
	changed := false
	for i, v := range values {
		switch cell := v.(type) {
		case nil:
			out[i] = nil
		case time.Time:
			out[i] = cell
		case string:
			ts, ok := parseTemporal(strings.TrimSpace(cell))
			if !ok {
				return nil, false
			}
			out[i] = ts
			changed = true
		default:
			return nil, false
		}
	}
	return out, changed
}

func parseTemporal(s string) (time.Time, bool) {
	for _, layout := range temporalLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// deriveKeys extracts the fleet number and optional bus range from the
// source identifier and stamps them on every row. fleet_number is always
// added (null when the pattern is absent); the bus range columns are only
// added when the NNNN-NNNN pattern matches.
func (n *Normalizer) deriveKeys(t *domain.Table, sourceID string) {
	if m := fleetNumberRe.FindStringSubmatch(sourceID); m != nil {
		setOrAddConstant(t, domain.ColFleetNumber, m[1])
		n.logger.Debug("extracted fleet number from source",
			slog.String("fleet_number", m[1]),
			slog.String("source", sourceID))
	} else {
		setOrAddConstant(t, domain.ColFleetNumber, nil)
	}

	if m := busRangeRe.FindStringSubmatch(sourceID); m != nil {
		setOrAddConstant(t, domain.ColBusRangeStart, m[1])
		setOrAddConstant(t, domain.ColBusRangeEnd, m[2])
		n.logger.Debug("extracted bus range from source",
			slog.String("start", m[1]),
			slog.String("end", m[2]),
			slog.String("source", sourceID))
	}
}

func setOrAddConstant(t *domain.Table, name string, value any) {
	if idx := t.ColumnIndex(name); idx >= 0 {
		values := make([]any, t.NumRows())
		for i := range values {
			values[i] = value
		}
		_ = t.SetColumn(idx, domain.TypeString, values)
		return
	}
	t.AddConstantColumn(name, domain.TypeString, value)
}

// coerceStrings renders every still-untyped column to strings so columnar
// serialization never sees a mixed-type column. Nulls stay null.
func (n *Normalizer) coerceStrings(t *domain.Table) {
	for ci, col := range t.Columns {
		if col.Type != domain.TypeUntyped {
			continue
		}
		values := t.ColumnValues(ci)
		for i, v := range values {
			if v == nil {
				continue
			}
			values[i] = domain.CellString(v)
		}
		_ = t.SetColumn(ci, domain.TypeString, values)
	}
}
