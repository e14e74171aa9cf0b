package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		wantErr string
	}{
		{name: "valid", columns: []string{"tenure", "MonthlyCharges", "Contract_One year"}},
		{name: "empty", columns: nil, wantErr: "no columns"},
		{name: "blank name", columns: []string{"tenure", " "}, wantErr: "empty name"},
		{name: "duplicate", columns: []string{"tenure", "MonthlyCharges", "tenure"}, wantErr: "duplicate column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.columns, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.columns), s.Len())
		})
	}
}

func TestTrainingSchema_Lookup(t *testing.T) {
	s, err := New([]string{"tenure", "MonthlyCharges", "TotalCharges", "Contract_Month-to-month"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "MonthlyCharges", s.At(1))
	assert.Equal(t, 3, s.Index("Contract_Month-to-month"))
	assert.Equal(t, -1, s.Index("Contract_Weekly"))
	assert.True(t, s.Contains("tenure"))
	assert.False(t, s.Contains("Tenure"))
}

func TestTrainingSchema_ColumnsIsCopy(t *testing.T) {
	s, err := New([]string{"a", "b"}, nil)
	require.NoError(t, err)

	cols := s.Columns()
	cols[0] = "mutated"

	assert.Equal(t, "a", s.At(0))
	assert.Equal(t, []string{"a", "b"}, s.Columns())
}

func TestTrainingSchema_Vocabulary(t *testing.T) {
	s, err := New([]string{
		"tenure",
		"Contract_Month-to-month",
		"Contract_One year",
		"Contract_Two year",
		"InternetService_DSL",
		"InternetService_Fiber optic",
	}, []string{"Contract", "InternetService", "PaymentMethod", "Contract"})
	require.NoError(t, err)

	contract, ok := s.Vocabulary("Contract")
	require.True(t, ok)
	assert.Equal(t, []string{"Month-to-month", "One year", "Two year"}, contract)

	internet, ok := s.Vocabulary("InternetService")
	require.True(t, ok)
	assert.Equal(t, []string{"DSL", "Fiber optic"}, internet)

	payment, ok := s.Vocabulary("PaymentMethod")
	require.True(t, ok)
	assert.Len(t, payment, 0)

	_, ok = s.Vocabulary("gender")
	assert.False(t, ok)

	assert.Equal(t, []string{"Contract", "InternetService", "PaymentMethod"}, s.CategoricalFields())
}
