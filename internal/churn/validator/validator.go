// Package validator checks raw prediction records for the numeric fields every model input needs.
package validator

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	apperrors "churn-service/internal/common/errors"
)

// Numeric-core fields: always required, never one-hot expanded.
const (
	FieldTenure         = "tenure"
	FieldMonthlyCharges = "MonthlyCharges"
	FieldTotalCharges   = "TotalCharges"
)

// NumericCore lists the numeric-core fields in the order errors report them.
var NumericCore = []string{FieldTenure, FieldMonthlyCharges, FieldTotalCharges}

// RawRecord is an untyped request record, as decoded from JSON.
type RawRecord map[string]interface{}

// ValidatedRecord carries the coerced numeric-core values and every other field untouched.
type ValidatedRecord struct {
	Numeric map[string]float64
	Extra   map[string]interface{}
}

// Validate reports every missing numeric-core field, or failing that every field that
// cannot be coerced to a number. Other fields are passed through unvalidated.
func Validate(record RawRecord) (*ValidatedRecord, error) {
	var missing []string
	for _, field := range NumericCore {
		if _, ok := record[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingFieldError(missing)
	}

	numeric := make(map[string]float64, len(NumericCore))
	var invalid []string
	for _, field := range NumericCore {
		v, ok := Coerce(record[field])
		if !ok {
			invalid = append(invalid, field)
			continue
		}
		numeric[field] = v
	}
	if len(invalid) > 0 {
		return nil, apperrors.NewInvalidValueError(invalid)
	}

	extra := make(map[string]interface{}, len(record))
	for k, v := range record {
		if _, core := numeric[k]; core {
			continue
		}
		extra[k] = v
	}

	return &ValidatedRecord{Numeric: numeric, Extra: extra}, nil
}

// Coerce converts a boundary value to a number the way the training pipeline did:
// numbers and numeric strings parse, booleans become 1/0, anything else (or NaN) fails.
func Coerce(v interface{}) (float64, bool) {
	if f, ok := NumericValue(v); ok {
		return f, !math.IsNaN(f)
	}
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		f, ok := parseFloat(s)
		if !ok || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// NumericValue reports values that are already numbers. Strings and booleans are not.
func NumericValue(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		return parseFloat(string(val))
	}
	return 0, false
}

// parseFloat treats out-of-range literals like JSON decoders and pandas do: overflow is ±Inf,
// underflow is zero.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}
