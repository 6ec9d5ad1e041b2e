package businessflow

import (
	"regexp"
	"strings"
	"time"

	"github.com/amirphl/wb-tariffs-sync/utils"
	"github.com/shopspring/decimal"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NormalizeDate turns an upstream date string into a calendar date.
// Empty, "null" and "undefined" mean absent and yield (nil, nil).
// Anything else that is not a real YYYY-MM-DD date yields nil and a *ValidationError.
func NormalizeDate(field, value string) (*time.Time, error) {
	v := strings.TrimSpace(value)
	switch strings.ToLower(v) {
	case "", "null", "undefined":
		return nil, nil
	}

	if !datePattern.MatchString(v) {
		return nil, &ValidationError{Field: field, Value: value, Reason: "expected YYYY-MM-DD"}
	}

	t, err := utils.ParseDate(v)
	if err != nil {
		return nil, &ValidationError{Field: field, Value: value, Reason: "not a calendar date"}
	}
	return &t, nil
}

// ParseDecimal parses a locale-formatted number ("12,5") rounded to two places.
// Empty or unparsable input yields zero.
func ParseDecimal(value string) decimal.Decimal {
	v := strings.TrimSpace(value)
	if v == "" || v == "-" {
		return decimal.Zero
	}
	v = strings.ReplaceAll(v, ",", ".")
	v = strings.ReplaceAll(v, " ", "")

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}
