// Package validation scores normalized tables against a fixed set of data
// quality rules and keeps the run-wide history of results.
package validation

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"fleetpipe/pkg/contracts/domain"
)

// Context carries the provenance of the table under validation. It is an
// open bag; the pipeline always sets file, sheet and fleet.
type Context map[string]string

// Rule is one named, pure data quality check.
type Rule interface {
	Name() string
	Description() string
	Evaluate(t *domain.Table, ctx Context) (passed bool, message string)
}

// RuleOutcome is the recorded result of one rule evaluation.
type RuleOutcome struct {
	Passed      bool   `json:"passed"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// Result is the immutable outcome of validating one table.
type Result struct {
	Context     Context                `json:"context"`
	RowCount    int                    `json:"row_count"`
	ColumnCount int                    `json:"column_count"`
	Columns     []string               `json:"columns"`
	RuleNames   []string               `json:"rule_names"`
	Rules       map[string]RuleOutcome `json:"rules"`
	Passed      bool                   `json:"passed"`
	Warnings    []string               `json:"warnings"`
	Errors      []string               `json:"errors"`
}

// Summary aggregates pass/fail counts across a validator's history.
type Summary struct {
	TotalValidations int     `json:"total_validations"`
	Passed           int     `json:"passed"`
	Failed           int     `json:"failed"`
	PassRate         float64 `json:"pass_rate"`
}

// Validator runs an ordered, fixed rule list and accumulates results.
// The rule list is built at construction; there is no runtime registration.
// Safe for concurrent use.
type Validator struct {
	rules  []Rule
	logger *slog.Logger

	mu      sync.Mutex
	history []*Result
}

// NewValidator creates a validator with the given ordered rules.
func NewValidator(logger *slog.Logger, rules ...Rule) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{rules: rules, logger: logger}
}

// NewFleetValidator creates a validator with the standard fleet data quality
// rules in their fixed evaluation order.
func NewFleetValidator(logger *slog.Logger) *Validator {
	return NewValidator(logger,
		requiredColumnsRule{},
		hasDataRule{},
		validColumnsRule{},
		reasonableDuplicatesRule{},
		validFleetNumbersRule{},
		reasonableDataTypesRule{},
	)
}

// Validate runs every rule in order against the table. A rule that panics is
// recorded as failed with a "Rule execution failed" message and does not
// abort the remaining rules. The result is appended to the history.
func (v *Validator) Validate(t *domain.Table, ctx Context) *Result {
	if ctx == nil {
		ctx = Context{}
	}
	result := &Result{
		Context:     ctx,
		RowCount:    t.NumRows(),
		ColumnCount: t.NumCols(),
		Columns:     t.ColumnNames(),
		RuleNames:   make([]string, 0, len(v.rules)),
		Rules:       make(map[string]RuleOutcome, len(v.rules)),
		Passed:      true,
	}

	for _, rule := range v.rules {
		passed, message, execFailed := v.evaluate(rule, t, ctx)
		result.RuleNames = append(result.RuleNames, rule.Name())
		result.Rules[rule.Name()] = RuleOutcome{
			Passed:      passed,
			Message:     message,
			Description: rule.Description(),
		}
		if passed {
			continue
		}
		result.Passed = false
		tagged := fmt.Sprintf("%s: %s", rule.Name(), message)
		// Rule-execution failures are always errors; only ordinary rule
		// failures are classified by message.
		if execFailed || strings.Contains(strings.ToLower(message), "error") {
			result.Errors = append(result.Errors, tagged)
		} else {
			result.Warnings = append(result.Warnings, tagged)
		}
	}

	v.mu.Lock()
	v.history = append(v.history, result)
	v.mu.Unlock()

	if !result.Passed {
		v.logger.Warn("table failed validation",
			slog.String("file", ctx["file"]),
			slog.String("sheet", ctx["sheet"]),
			slog.Int("warnings", len(result.Warnings)),
			slog.Int("errors", len(result.Errors)))
	}
	return result
}

// evaluate isolates rule panics so one broken rule cannot abort the rest.
// execFailed reports that the rule itself broke rather than the data.
func (v *Validator) evaluate(rule Rule, t *domain.Table, ctx Context) (passed bool, message string, execFailed bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation rule panicked",
				slog.String("rule", rule.Name()),
				slog.Any("panic", r))
			passed = false
			message = fmt.Sprintf("Rule execution failed: %v", r)
			execFailed = true
		}
	}()
	passed, message = rule.Evaluate(t, ctx)
	return passed, message, false
}

// GetValidationSummary recomputes the summary from the full history.
// An empty history yields a zero summary with pass rate 0.
func (v *Validator) GetValidationSummary() Summary {
	v.mu.Lock()
	defer v.mu.Unlock()

	total := len(v.history)
	if total == 0 {
		return Summary{}
	}
	passed := 0
	for _, r := range v.history {
		if r.Passed {
			passed++
		}
	}
	return Summary{
		TotalValidations: total,
		Passed:           passed,
		Failed:           total - passed,
		PassRate:         float64(passed) / float64(total),
	}
}

// History returns a copy of the result history in validation order.
func (v *Validator) History() []*Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*Result, len(v.history))
	copy(out, v.history)
	return out
}
