package rules

// Default returns the built-in rule configuration, mirroring the warehouse's
// standing data-quality policy. Deployments override it with a YAML document.
func Default() RuleSet {
	return RuleSet{Rules: []Rule{
		{
			Name:      "drop_empty_row",
			Category:  CategoryMissingValue,
			Condition: CondEmptyRow,
			Action:    ActionDrop,
			Severity:  SeverityInfo,
			Reason:    "DQ001: completely empty row",
		},
		{
			Name:      "drop_exact_duplicate",
			Category:  CategoryBusiness,
			Condition: CondDuplicateRow,
			Action:    ActionDrop,
			Severity:  SeverityInfo,
			Reason:    "DQ002: exact duplicate row",
		},
		{
			Name:      "missing_invoice_no",
			Category:  CategoryMissingValue,
			Field:     "invoice_no",
			Condition: CondRequired,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "DQ003: missing invoice number",
		},
		{
			Name:      "missing_stock_code",
			Category:  CategoryMissingValue,
			Field:     "stock_code",
			Condition: CondRequired,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "DQ003: missing stock code",
		},
		{
			Name:      "missing_timestamp",
			Category:  CategoryMissingValue,
			Field:     "timestamp",
			Condition: CondRequired,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "DQ003: missing invoice date",
		},
		{
			Name:      "missing_quantity",
			Category:  CategoryMissingValue,
			Field:     "quantity",
			Condition: CondRequired,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "DQ003: missing quantity",
		},
		{
			Name:      "missing_unit_price",
			Category:  CategoryMissingValue,
			Field:     "unit_price",
			Condition: CondRequired,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "DQ003: missing unit price",
		},
		{
			Name:      "unparseable_timestamp",
			Category:  CategoryFormat,
			Field:     "timestamp",
			Condition: CondTimestamp,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "DQ004: unparseable invoice date",
		},
		{
			Name:      "non_numeric_quantity",
			Category:  CategoryFormat,
			Field:     "quantity",
			Condition: CondNumeric,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "DQ005: quantity is not numeric",
		},
		{
			Name:      "non_numeric_unit_price",
			Category:  CategoryFormat,
			Field:     "unit_price",
			Condition: CondNumeric,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "DQ006: unit price is not numeric",
		},
		{
			Name:      "non_numeric_customer_id",
			Category:  CategoryFormat,
			Field:     "customer_id",
			Condition: CondNumeric,
			Action:    ActionQuarantine,
			Severity:  SeverityWarning,
			Reason:    "DQ007: customer id is not numeric",
		},
		{
			Name:      "flag_cancellation",
			Category:  CategoryBusiness,
			Field:     "invoice_no",
			Condition: CondPrefix,
			Action:    ActionFlag,
			Severity:  SeverityInfo,
			Params:    Params{Prefix: "C", Flag: "cancellation"},
		},
		{
			Name:      "negative_unit_price",
			Category:  CategoryBusiness,
			Field:     "unit_price",
			Condition: CondMin,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "AN003: negative unit price",
			Params:    Params{Value: 0},
		},
		{
			Name:      "zero_quantity",
			Category:  CategoryBusiness,
			Field:     "quantity",
			Condition: CondNonZero,
			Action:    ActionQuarantine,
			Severity:  SeverityError,
			Reason:    "AN002: quantity is zero",
		},
		{
			Name:      "extreme_quantity",
			Category:  CategoryOutlier,
			Field:     "quantity",
			Condition: CondAbsMax,
			Action:    ActionFlag,
			Severity:  SeverityWarning,
			Reason:    "AN004: quantity beyond plausible range",
			Params:    Params{Value: 25000, Flag: "extreme_quantity"},
		},
		{
			Name:      "suspicious_unit_price",
			Category:  CategoryOutlier,
			Condition: CondPriceQuantity,
			Action:    ActionQuarantine,
			Severity:  SeverityWarning,
			Reason:    "AN001: unit price above 10000 with low quantity",
			Params:    Params{PriceAbove: 10000, QuantityAbsBelow: 100},
		},
		{
			Name:      "future_timestamp",
			Category:  CategoryOutlier,
			Field:     "timestamp",
			Condition: CondFuture,
			Action:    ActionQuarantine,
			Severity:  SeverityWarning,
			Reason:    "AN005: invoice date after batch as-of time",
		},
	}}
}
