// Package encoder turns validated records into feature vectors aligned to a training schema.
//
// Encoding mirrors the offline pipeline: numeric-core fields keep their names, every string
// field becomes a "<field>_<value>" indicator, other numbers and booleans keep their names,
// and the result is reindexed onto the schema with zero fill. Columns the schema does not
// know (a category value never seen in training) are dropped.
package encoder

import (
	"fmt"
	"sort"

	"churn-service/internal/churn/schema"
	"churn-service/internal/churn/validator"
	apperrors "churn-service/internal/common/errors"
)

// AlignedVector is the model input: one value per schema column, in schema order.
type AlignedVector []float64

// IndicatorName is the column a categorical value expands into.
func IndicatorName(field, value string) string {
	return field + "_" + value
}

// Encode aligns rec to s.
func Encode(rec *validator.ValidatedRecord, s *schema.TrainingSchema) (AlignedVector, error) {
	vec, _, err := EncodeDetailed(rec, s)
	return vec, err
}

// EncodeDetailed also returns, sorted, the intermediate columns that had no schema slot.
func EncodeDetailed(rec *validator.ValidatedRecord, s *schema.TrainingSchema) (AlignedVector, []string, error) {
	if rec == nil {
		return nil, nil, apperrors.NewEncodingFailedError(fmt.Errorf("nil record"))
	}
	if s == nil || s.Len() == 0 {
		return nil, nil, apperrors.NewEncodingFailedError(fmt.Errorf("empty training schema"))
	}

	sparse := expand(rec)

	out := make(AlignedVector, s.Len())
	for i := 0; i < s.Len(); i++ {
		out[i] = sparse[s.At(i)] // absent => 0
	}

	var dropped []string
	for name := range sparse {
		if !s.Contains(name) {
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)

	return out, dropped, nil
}

// expand builds the sparse intermediate representation: column name -> value.
func expand(rec *validator.ValidatedRecord) map[string]float64 {
	sparse := make(map[string]float64, len(rec.Numeric)+len(rec.Extra))

	for field, value := range rec.Extra {
		switch v := value.(type) {
		case string:
			sparse[IndicatorName(field, v)] = 1
		case bool:
			if v {
				sparse[field] = 1
			} else {
				sparse[field] = 0
			}
		default:
			if f, ok := validator.NumericValue(v); ok {
				sparse[field] = f
			}
			// nil, objects and arrays have no training-time encoding
		}
	}

	// core values win over an indicator that happens to share the name
	for field, value := range rec.Numeric {
		sparse[field] = value
	}

	return sparse
}

// Encoder binds a schema so callers need not pass it on every request.
type Encoder struct {
	schema *schema.TrainingSchema
}

func New(s *schema.TrainingSchema) *Encoder {
	return &Encoder{schema: s}
}

func (e *Encoder) Schema() *schema.TrainingSchema { return e.schema }

func (e *Encoder) Encode(rec *validator.ValidatedRecord) (AlignedVector, error) {
	return Encode(rec, e.schema)
}

func (e *Encoder) EncodeDetailed(rec *validator.ValidatedRecord) (AlignedVector, []string, error) {
	return EncodeDetailed(rec, e.schema)
}
