package validation

import (
	"fmt"
	"strings"

	"fleetpipe/pkg/contracts/domain"
)

// Fleet number range considered plausible for this operator.
const (
	minFleetNumber = 1
	maxFleetNumber = 999
)

// requiredColumnsRule checks that the provenance columns the rest of the
// pipeline keys on are present.
type requiredColumnsRule struct{}

func (requiredColumnsRule) Name() string { return "required_columns" }
func (requiredColumnsRule) Description() string {
	return "Check that all required metadata columns are present"
}
func (requiredColumnsRule) Evaluate(t *domain.Table, _ Context) (bool, string) {
	required := []string{domain.ColSourceFile, domain.ColIngestionTimestamp}
	var missing []string
	for _, name := range required {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return false, fmt.Sprintf("Missing required columns: %v", missing)
	}
	return true, "All required columns present"
}

// hasDataRule checks the table is non-empty.
type hasDataRule struct{}

func (hasDataRule) Name() string        { return "has_data" }
func (hasDataRule) Description() string { return "Check that the table contains data" }
func (hasDataRule) Evaluate(t *domain.Table, _ Context) (bool, string) {
	if t.IsEmpty() {
		return false, "Table is empty"
	}
	return true, fmt.Sprintf("Table has %d rows", t.NumRows())
}

// validColumnsRule checks no column name is empty or whitespace-only.
type validColumnsRule struct{}

func (validColumnsRule) Name() string        { return "valid_columns" }
func (validColumnsRule) Description() string { return "Check that all column names are valid" }
func (validColumnsRule) Evaluate(t *domain.Table, _ Context) (bool, string) {
	var invalid []string
	for _, col := range t.Columns {
		if strings.TrimSpace(col.Name) == "" {
			invalid = append(invalid, fmt.Sprintf("%q", col.Name))
		}
	}
	if len(invalid) > 0 {
		return false, fmt.Sprintf("Invalid column names found: %v", invalid)
	}
	return true, "All column names are valid"
}

// reasonableDuplicatesRule tolerates some full-row duplication: above 10% is
// a pass with a warning-toned message, above 50% is a failure.
type reasonableDuplicatesRule struct{}

func (reasonableDuplicatesRule) Name() string { return "reasonable_duplicates" }
func (reasonableDuplicatesRule) Description() string {
	return "Check for reasonable duplicate row rates"
}
func (reasonableDuplicatesRule) Evaluate(t *domain.Table, _ Context) (bool, string) {
	if t.IsEmpty() {
		return true, "Empty table, no duplicates"
	}
	rate := t.DuplicateRate()
	switch {
	case rate > 0.5:
		return false, fmt.Sprintf("High duplicate rate: %.2f%%", rate*100)
	case rate > 0.1:
		return true, fmt.Sprintf("Moderate duplicate rate: %.2f%%", rate*100)
	default:
		return true, fmt.Sprintf("Low duplicate rate: %.2f%%", rate*100)
	}
}

// validFleetNumbersRule checks every non-null fleet number parses as a
// number within the plausible range. Violations of both kinds are counted
// together.
type validFleetNumbersRule struct{}

func (validFleetNumbersRule) Name() string { return "valid_fleet_numbers" }
func (validFleetNumbersRule) Description() string {
	return "Check that fleet numbers are in valid format and range"
}
func (validFleetNumbersRule) Evaluate(t *domain.Table, _ Context) (bool, string) {
	idx := t.ColumnIndex(domain.ColFleetNumber)
	if idx < 0 {
		return true, "No fleet_number column to validate"
	}

	var (
		checked    int
		badFormat  int
		outOfRange int
		minSeen    = float64(maxFleetNumber + 1)
		maxSeen    = float64(minFleetNumber - 1)
	)
	for _, row := range t.Rows {
		cell := row[idx]
		if cell == nil {
			continue
		}
		checked++
		f, ok := domain.AsFloat(cell)
		if !ok {
			badFormat++
			continue
		}
		if f < minFleetNumber || f > maxFleetNumber {
			outOfRange++
			continue
		}
		if f < minSeen {
			minSeen = f
		}
		if f > maxSeen {
			maxSeen = f
		}
	}

	if checked == 0 {
		return true, "No fleet numbers to validate"
	}
	if violations := badFormat + outOfRange; violations > 0 {
		return false, fmt.Sprintf(
			"Invalid fleet numbers in %d rows (non-numeric: %d, out of range %d-%d: %d)",
			violations, badFormat, minFleetNumber, maxFleetNumber, outOfRange)
	}
	return true, fmt.Sprintf("All fleet numbers valid (range: %g-%g)", minSeen, maxSeen)
}

// reasonableDataTypesRule flags tables that stayed mostly untyped, which
// usually means the upstream coercion found nothing to work with.
type reasonableDataTypesRule struct{}

func (reasonableDataTypesRule) Name() string { return "reasonable_data_types" }
func (reasonableDataTypesRule) Description() string {
	return "Check for reasonable data type distribution"
}
func (reasonableDataTypesRule) Evaluate(t *domain.Table, _ Context) (bool, string) {
	if t.NumCols() == 0 {
		return true, "No columns to check"
	}
	distribution := make(map[string]int)
	untyped := 0
	for _, col := range t.Columns {
		distribution[col.Type.String()]++
		if col.Type == domain.TypeUntyped {
			untyped++
		}
	}
	ratio := float64(untyped) / float64(t.NumCols())
	if ratio > 0.8 {
		return false, fmt.Sprintf("High ratio of untyped columns: %.2f%%", ratio*100)
	}
	return true, fmt.Sprintf("Data types appear reasonable: %v", distribution)
}
