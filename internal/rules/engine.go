package rules

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
)

// Outcome is the terminal disposition of one row. Exactly one outcome
// applies per row; flags are orthogonal and only survive on accepted rows.
type Outcome int

const (
	// OutcomeAccept passes the row through to staging.
	OutcomeAccept Outcome = iota
	// OutcomeQuarantine rejects the row into the quarantine sink.
	OutcomeQuarantine
	// OutcomeDrop discards the row with a metric but no quarantine record.
	OutcomeDrop
)

// Disposition is the evaluation result for one row.
type Disposition struct {
	Outcome  Outcome
	RuleName string
	Category string
	Reason   string
	Severity string
	Flags    []string
}

type ruleStats struct {
	processed   int
	passed      int
	quarantined int
	dropped     int
	flagged     int
}

// Engine evaluates rows against an ordered rule set. One engine instance
// serves one batch: it accumulates per-rule metrics and the duplicate-row
// state, and pins time comparisons to the batch as-of instant so identical
// input always yields identical dispositions.
type Engine struct {
	set   RuleSet
	asOf  time.Time
	stats []ruleStats
	seen  map[string]bool
}

// NewEngine builds an engine for one batch. The rule set must already be
// validated.
func NewEngine(set RuleSet, asOf time.Time) *Engine {
	return &Engine{
		set:   set,
		asOf:  asOf.UTC(),
		stats: make([]ruleStats, len(set.Rules)),
		seen:  make(map[string]bool),
	}
}

// Evaluate runs the rules in declaration order. The first failing rule whose
// action is quarantine or drop decides the row; flag hits accumulate and do
// not stop evaluation.
func (e *Engine) Evaluate(row domain.SourceRow) Disposition {
	var flags []string

	for i, rule := range e.set.Rules {
		e.stats[i].processed++

		failed := e.evaluateCondition(rule, row)
		if !failed {
			e.stats[i].passed++
			continue
		}

		switch rule.Action {
		case ActionFlag:
			e.stats[i].flagged++
			flags = append(flags, rule.flagLabel())
		case ActionDrop:
			e.stats[i].dropped++
			return Disposition{
				Outcome:  OutcomeDrop,
				RuleName: rule.Name,
				Category: rule.Category,
				Reason:   rule.reason(),
				Severity: rule.severity(),
			}
		default: // quarantine
			e.stats[i].quarantined++
			return Disposition{
				Outcome:  OutcomeQuarantine,
				RuleName: rule.Name,
				Category: rule.Category,
				Reason:   rule.reason(),
				Severity: rule.severity(),
			}
		}
	}

	return Disposition{Outcome: OutcomeAccept, Flags: flags}
}

// Metrics emits one record per rule for the batch.
func (e *Engine) Metrics(batchID string, at time.Time) []domain.RuleMetric {
	out := make([]domain.RuleMetric, len(e.set.Rules))
	for i, rule := range e.set.Rules {
		st := e.stats[i]
		out[i] = domain.RuleMetric{
			BatchID:         batchID,
			RuleName:        rule.Name,
			RuleCategory:    rule.Category,
			RowsProcessed:   st.processed,
			RowsPassed:      st.passed,
			RowsQuarantined: st.quarantined,
			RowsDropped:     st.dropped,
			RowsFlagged:     st.flagged,
			ExecutedAt:      at.UTC(),
		}
	}
	return out
}

// evaluateCondition reports whether the rule's condition failed for the row.
func (e *Engine) evaluateCondition(rule Rule, row domain.SourceRow) bool {
	switch rule.Condition {
	case CondEmptyRow:
		return row.IsEmpty()

	case CondDuplicateRow:
		fp := row.Fingerprint()
		if e.seen[fp] {
			return true
		}
		e.seen[fp] = true
		return false

	case CondPriceQuantity:
		price, perr := row.ParseUnitPrice()
		qty, qerr := row.ParseQuantity()
		if perr != nil || qerr != nil {
			return false // format rules own unparseable values
		}
		return price > rule.Params.PriceAbove &&
			math.Abs(float64(qty)) < rule.Params.QuantityAbsBelow
	}

	value, _ := row.Field(rule.Field)
	trimmed := strings.TrimSpace(value)

	switch rule.Condition {
	case CondRequired:
		return trimmed == ""

	case CondNumeric:
		if trimmed == "" {
			return false
		}
		_, err := parseNumericField(rule.Field, row)
		return err != nil

	case CondTimestamp:
		if trimmed == "" {
			return false
		}
		_, err := row.ParseTimestamp()
		return err != nil

	case CondMin:
		v, err := parseNumericField(rule.Field, row)
		if err != nil || trimmed == "" {
			return false
		}
		if rule.Params.Exclusive {
			return v <= rule.Params.Value
		}
		return v < rule.Params.Value

	case CondMax:
		v, err := parseNumericField(rule.Field, row)
		if err != nil || trimmed == "" {
			return false
		}
		if rule.Params.Exclusive {
			return v >= rule.Params.Value
		}
		return v > rule.Params.Value

	case CondNonZero:
		v, err := parseNumericField(rule.Field, row)
		if err != nil || trimmed == "" {
			return false
		}
		return v == 0

	case CondAbsMax:
		v, err := parseNumericField(rule.Field, row)
		if err != nil || trimmed == "" {
			return false
		}
		return math.Abs(v) > rule.Params.Value

	case CondFuture:
		if trimmed == "" {
			return false
		}
		ts, err := row.ParseTimestamp()
		if err != nil {
			return false
		}
		return ts.After(e.asOf)

	case CondPrefix:
		return strings.HasPrefix(strings.ToUpper(trimmed), strings.ToUpper(rule.Params.Prefix))
	}

	return false
}

func parseNumericField(field string, row domain.SourceRow) (float64, error) {
	switch field {
	case "quantity":
		v, err := row.ParseQuantity()
		return float64(v), err
	case "unit_price":
		return row.ParseUnitPrice()
	case "customer_id":
		v, _, err := row.ParseCustomerID()
		return float64(v), err
	default:
		raw, _ := row.Field(field)
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	}
}
