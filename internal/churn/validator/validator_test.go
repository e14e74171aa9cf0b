package validator

import (
	"encoding/json"
	"math"
	"testing"

	apperrors "churn-service/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createValidRecord() RawRecord {
	return RawRecord{
		"tenure":         1,
		"MonthlyCharges": 29.85,
		"TotalCharges":   "29.85",
		"Contract":       "Month-to-month",
		"gender":         "Female",
	}
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	std, ok := apperrors.AsStandard(err)
	require.True(t, ok, "expected a StandardError, got %T", err)
	return std.Fields
}

func TestValidate_Success(t *testing.T) {
	rec, err := Validate(createValidRecord())

	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"tenure":         1,
		"MonthlyCharges": 29.85,
		"TotalCharges":   29.85,
	}, rec.Numeric)
	assert.Equal(t, map[string]interface{}{
		"Contract": "Month-to-month",
		"gender":   "Female",
	}, rec.Extra)
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		remove []string
		want   []string
	}{
		{name: "one missing", remove: []string{"MonthlyCharges"}, want: []string{"MonthlyCharges"}},
		{name: "two missing", remove: []string{"TotalCharges", "tenure"}, want: []string{"tenure", "TotalCharges"}},
		{
			name:   "all missing",
			remove: []string{"tenure", "MonthlyCharges", "TotalCharges"},
			want:   []string{"tenure", "MonthlyCharges", "TotalCharges"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := createValidRecord()
			for _, f := range tt.remove {
				delete(record, f)
			}

			rec, err := Validate(record)

			require.Error(t, err)
			assert.Nil(t, rec)
			assert.True(t, apperrors.IsMissingField(err))
			assert.Equal(t, tt.want, fieldsOf(t, err))
		})
	}
}

func TestValidate_MissingTakesPrecedenceOverInvalid(t *testing.T) {
	record := createValidRecord()
	delete(record, "TotalCharges")
	record["tenure"] = "abc"

	_, err := Validate(record)

	require.Error(t, err)
	assert.True(t, apperrors.IsMissingField(err))
	assert.False(t, apperrors.IsInvalidValue(err))
	assert.Equal(t, []string{"TotalCharges"}, fieldsOf(t, err))
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
		want   []string
	}{
		{name: "non-numeric string", values: map[string]interface{}{"tenure": "abc"}, want: []string{"tenure"}},
		{name: "empty string", values: map[string]interface{}{"TotalCharges": ""}, want: []string{"TotalCharges"}},
		{name: "blank string", values: map[string]interface{}{"TotalCharges": "   "}, want: []string{"TotalCharges"}},
		{name: "null", values: map[string]interface{}{"MonthlyCharges": nil}, want: []string{"MonthlyCharges"}},
		{name: "NaN string", values: map[string]interface{}{"tenure": "NaN"}, want: []string{"tenure"}},
		{name: "NaN number", values: map[string]interface{}{"tenure": math.NaN()}, want: []string{"tenure"}},
		{name: "object", values: map[string]interface{}{"tenure": map[string]interface{}{"v": 1}}, want: []string{"tenure"}},
		{name: "array", values: map[string]interface{}{"tenure": []interface{}{1}}, want: []string{"tenure"}},
		{
			name: "all reported in core order",
			values: map[string]interface{}{
				"TotalCharges":   "x",
				"tenure":         "y",
				"MonthlyCharges": "z",
			},
			want: []string{"tenure", "MonthlyCharges", "TotalCharges"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := createValidRecord()
			for k, v := range tt.values {
				record[k] = v
			}

			_, err := Validate(record)

			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidValue(err))
			assert.Equal(t, tt.want, fieldsOf(t, err))
		})
	}
}

func TestValidate_ExtraFieldsNotValidated(t *testing.T) {
	record := createValidRecord()
	record["PaymentMethod"] = nil
	record["nested"] = map[string]interface{}{"a": 1}

	rec, err := Validate(record)

	require.NoError(t, err)
	assert.Contains(t, rec.Extra, "PaymentMethod")
	assert.Contains(t, rec.Extra, "nested")
	assert.NotContains(t, rec.Extra, "tenure")
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want float64
		ok   bool
	}{
		{name: "float64", in: 70.35, want: 70.35, ok: true},
		{name: "int", in: 12, want: 12, ok: true},
		{name: "int64", in: int64(-3), want: -3, ok: true},
		{name: "uint8", in: uint8(7), want: 7, ok: true},
		{name: "float32", in: float32(0.5), want: 0.5, ok: true},
		{name: "json number", in: json.Number("1889.5"), want: 1889.5, ok: true},
		{name: "bad json number", in: json.Number("1.2.3"), ok: false},
		{name: "numeric string", in: "42", want: 42, ok: true},
		{name: "padded string", in: " 3.5 ", want: 3.5, ok: true},
		{name: "exponent string", in: "1e3", want: 1000, ok: true},
		{name: "true", in: true, want: 1, ok: true},
		{name: "false", in: false, want: 0, ok: true},
		{name: "nil", in: nil, ok: false},
		{name: "garbage", in: "abc", ok: false},
		{name: "empty", in: "", ok: false},
		{name: "nan", in: "nan", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Coerce(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestCoerce_Infinity(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		sign int
	}{
		{name: "inf literal", in: "inf", sign: 1},
		{name: "overflowing string", in: "1e400", sign: 1},
		{name: "overflowing json number", in: json.Number("1e400"), sign: 1},
		{name: "negative overflow", in: json.Number("-1e400"), sign: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Coerce(tt.in)
			require.True(t, ok)
			assert.True(t, math.IsInf(got, tt.sign), "got %v", got)
		})
	}
}

func TestCoerce_Underflow(t *testing.T) {
	got, ok := Coerce(json.Number("1e-400"))
	require.True(t, ok)
	assert.Zero(t, got)
}

func TestValidate_OverflowingNumbersAccepted(t *testing.T) {
	rec, err := Validate(RawRecord{
		"tenure":         json.Number("1e400"),
		"MonthlyCharges": "1e400",
		"TotalCharges":   10,
	})
	require.NoError(t, err)
	assert.True(t, math.IsInf(rec.Numeric[FieldTenure], 1))
	assert.True(t, math.IsInf(rec.Numeric[FieldMonthlyCharges], 1))
}

func TestNumericValue_RejectsNonNumbers(t *testing.T) {
	for _, v := range []interface{}{"1", true, nil, []interface{}{}} {
		_, ok := NumericValue(v)
		assert.False(t, ok, "%#v", v)
	}
}
