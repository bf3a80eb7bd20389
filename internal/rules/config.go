package rules

import (
	"fmt"
	"os"
	"strings"

	"github.com/rpattn/retaildwh/internal/domain"

	"gopkg.in/yaml.v3"
)

// Rule categories. Every rule belongs to exactly one.
const (
	CategoryMissingValue = "missing_value"
	CategoryFormat       = "format"
	CategoryBusiness     = "business"
	CategoryOutlier      = "outlier"
)

// Actions taken when a rule's condition fails.
const (
	ActionQuarantine = "quarantine"
	ActionDrop       = "drop"
	ActionFlag       = "flag"
)

// Severities carried on quarantine records.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Condition kinds. Each kind is validated against its params at load time so
// no malformed rule survives into row processing.
const (
	CondRequired      = "required"       // field must be non-blank
	CondEmptyRow      = "empty_row"      // every field blank
	CondDuplicateRow  = "duplicate_row"  // exact duplicate within the batch
	CondNumeric       = "numeric"        // field must parse as a number
	CondTimestamp     = "timestamp"      // field must parse as a timestamp
	CondMin           = "min"            // numeric field below params.value
	CondMax           = "max"            // numeric field above params.value
	CondNonZero       = "nonzero"        // numeric field equal to zero
	CondAbsMax        = "abs_max"        // |numeric field| above params.value
	CondPriceQuantity = "price_quantity" // price above threshold with low quantity
	CondFuture        = "future"         // timestamp after the batch as-of instant
	CondPrefix        = "prefix"         // field starts with params.prefix
)

// Params carries the per-kind condition parameters.
type Params struct {
	Value            float64 `yaml:"value"`
	Exclusive        bool    `yaml:"exclusive"`
	Prefix           string  `yaml:"prefix"`
	Flag             string  `yaml:"flag"`
	PriceAbove       float64 `yaml:"priceAbove"`
	QuantityAbsBelow float64 `yaml:"quantityAbsBelow"`
}

// Rule is one validated entry of the ordered rule list.
type Rule struct {
	Name      string `yaml:"name"`
	Category  string `yaml:"category"`
	Field     string `yaml:"field"`
	Condition string `yaml:"condition"`
	Action    string `yaml:"action"`
	Severity  string `yaml:"severity"`
	Reason    string `yaml:"reason"`
	Params    Params `yaml:"params"`
}

// RuleSet is an ordered, validated rule configuration.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// rowLevelConditions evaluate the whole row rather than a single field.
var rowLevelConditions = map[string]bool{
	CondEmptyRow:      true,
	CondDuplicateRow:  true,
	CondPriceQuantity: true,
}

var knownCategories = map[string]bool{
	CategoryMissingValue: true,
	CategoryFormat:       true,
	CategoryBusiness:     true,
	CategoryOutlier:      true,
}

var knownActions = map[string]bool{
	ActionQuarantine: true,
	ActionDrop:       true,
	ActionFlag:       true,
}

var knownSeverities = map[string]bool{
	SeverityInfo:    true,
	SeverityWarning: true,
	SeverityError:   true,
}

var knownConditions = map[string]bool{
	CondRequired:      true,
	CondEmptyRow:      true,
	CondDuplicateRow:  true,
	CondNumeric:       true,
	CondTimestamp:     true,
	CondMin:           true,
	CondMax:           true,
	CondNonZero:       true,
	CondAbsMax:        true,
	CondPriceQuantity: true,
	CondFuture:        true,
	CondPrefix:        true,
}

// LoadFile reads and validates a YAML rule configuration.
func LoadFile(path string) (RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to read rule config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML rule configuration document.
func Parse(raw []byte) (RuleSet, error) {
	var set RuleSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rule config: %w", err)
	}
	if err := set.Validate(); err != nil {
		return RuleSet{}, err
	}
	return set, nil
}

// Validate checks the whole rule list; a configuration error here rejects
// the document before any row is processed.
func (s RuleSet) Validate() error {
	if len(s.Rules) == 0 {
		return fmt.Errorf("rule config contains no rules")
	}

	validFields := map[string]bool{}
	for _, f := range domain.SourceFieldNames {
		validFields[f] = true
	}

	seen := map[string]bool{}
	for i, rule := range s.Rules {
		where := fmt.Sprintf("rule %d (%q)", i, rule.Name)

		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if seen[rule.Name] {
			return fmt.Errorf("%s: duplicate rule name", where)
		}
		seen[rule.Name] = true

		if !knownCategories[rule.Category] {
			return fmt.Errorf("%s: unknown category %q", where, rule.Category)
		}
		if !knownActions[rule.Action] {
			return fmt.Errorf("%s: unknown action %q", where, rule.Action)
		}
		if rule.Severity != "" && !knownSeverities[rule.Severity] {
			return fmt.Errorf("%s: unknown severity %q", where, rule.Severity)
		}
		if !knownConditions[rule.Condition] {
			return fmt.Errorf("%s: unknown condition %q", where, rule.Condition)
		}

		if rowLevelConditions[rule.Condition] {
			if rule.Field != "" {
				return fmt.Errorf("%s: condition %s does not take a field", where, rule.Condition)
			}
		} else if !validFields[rule.Field] {
			return fmt.Errorf("%s: unknown field %q", where, rule.Field)
		}

		switch rule.Condition {
		case CondPrefix:
			if rule.Params.Prefix == "" {
				return fmt.Errorf("%s: condition prefix requires params.prefix", where)
			}
		case CondAbsMax:
			if rule.Params.Value <= 0 {
				return fmt.Errorf("%s: condition abs_max requires positive params.value", where)
			}
		case CondPriceQuantity:
			if rule.Params.PriceAbove <= 0 || rule.Params.QuantityAbsBelow <= 0 {
				return fmt.Errorf("%s: condition price_quantity requires positive thresholds", where)
			}
		}
	}

	return nil
}

// reason returns the configured reason text, or a generated one.
func (r Rule) reason() string {
	if r.Reason != "" {
		return r.Reason
	}
	if r.Field != "" {
		return fmt.Sprintf("%s: %s check failed on %s", r.Name, r.Condition, r.Field)
	}
	return fmt.Sprintf("%s: %s check failed", r.Name, r.Condition)
}

// severity returns the configured severity, defaulting to error.
func (r Rule) severity() string {
	if r.Severity == "" {
		return SeverityError
	}
	return r.Severity
}

// flagLabel returns the annotation attached by a flag rule.
func (r Rule) flagLabel() string {
	if r.Params.Flag != "" {
		return r.Params.Flag
	}
	return r.Name
}
