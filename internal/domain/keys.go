package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NaturalKeyHash derives the stable identity hash for a dimension entity from
// its normalized natural key parts (case-folded, trimmed). The hash never
// changes for a given key; surrogate keys are assigned against it exactly
// once.
func NaturalKeyHash(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])
}

// CustomerNaturalKey hashes a customer identifier.
func CustomerNaturalKey(customerID int64) string {
	return NaturalKeyHash("customer", strconv.FormatInt(customerID, 10))
}

// GuestCustomerHash is the fixed sentinel identity for the reserved guest
// customer entity. All rows without a customer identifier merge into it.
func GuestCustomerHash() string {
	return NaturalKeyHash("customer", "guest")
}

// DateNaturalKey hashes a calendar date (day precision).
func DateNaturalKey(d time.Time) string {
	return NaturalKeyHash("date", d.UTC().Format("2006-01-02"))
}

// BusinessKeyHash derives the composite fact-row uniqueness fingerprint from
// the normalized invoice id, item id, second-precision timestamp, quantity
// and unit price. Re-loading the same line item always produces the same
// hash, which is what makes fact loading idempotent.
func BusinessKeyHash(invoiceNo, stockCode string, ts time.Time, quantity int, unitPrice float64) string {
	key := fmt.Sprintf("%s|%s|%d|%d|%.2f",
		strings.ToUpper(strings.TrimSpace(invoiceNo)),
		strings.ToUpper(strings.TrimSpace(stockCode)),
		ts.UTC().Unix(),
		quantity,
		unitPrice,
	)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
