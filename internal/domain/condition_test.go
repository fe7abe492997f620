package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numericResponse(name string, v int64) Response {
	return Response{FieldName: name, NumericValue: decimal.NewNullDecimal(decimal.NewFromInt(v))}
}

func textResponse(name, code, v string) Response {
	return Response{FieldName: name, FieldCode: code, TextValue: &v}
}

func TestAutoApproveCondition_Evaluate(t *testing.T) {
	threshold := decimal.NewFromInt(1000)
	tests := []struct {
		name      string
		cond      AutoApproveCondition
		responses []Response
		want      bool
	}{
		{"below threshold", AutoApproveCondition{"amount", OpLessThan, threshold}, []Response{numericResponse("amount", 500)}, true},
		{"above threshold", AutoApproveCondition{"amount", OpLessThan, threshold}, []Response{numericResponse("amount", 5000)}, false},
		{"equal boundary le", AutoApproveCondition{"amount", OpLessOrEqual, threshold}, []Response{numericResponse("amount", 1000)}, true},
		{"greater", AutoApproveCondition{"amount", OpGreaterThan, threshold}, []Response{numericResponse("amount", 1001)}, true},
		{"greater or equal", AutoApproveCondition{"amount", OpGreaterOrEqual, threshold}, []Response{numericResponse("amount", 999)}, false},
		{"equal", AutoApproveCondition{"amount", OpEqual, threshold}, []Response{textResponse("amount", "", "1000.00")}, true},
		{"not equal", AutoApproveCondition{"amount", OpNotEqual, threshold}, []Response{numericResponse("amount", 1000)}, false},
		{"name case insensitive", AutoApproveCondition{"AMOUNT", OpLessThan, threshold}, []Response{numericResponse("Amount", 1)}, true},
		{"matched by code", AutoApproveCondition{"amt_01", OpLessThan, threshold}, []Response{textResponse("Total amount", "AMT_01", "12.5")}, true},
		{"text fallback", AutoApproveCondition{"amount", OpLessThan, threshold}, []Response{textResponse("amount", "", " 999 ")}, true},
		{"unparseable text", AutoApproveCondition{"amount", OpLessThan, threshold}, []Response{textResponse("amount", "", "lots")}, false},
		{"missing field", AutoApproveCondition{"amount", OpLessThan, threshold}, []Response{numericResponse("total", 1)}, false},
		{"no responses", AutoApproveCondition{"amount", OpLessThan, threshold}, nil, false},
		{"unknown operator", AutoApproveCondition{"amount", "~", threshold}, []Response{numericResponse("amount", 1)}, false},
		{"empty field", AutoApproveCondition{"", OpLessThan, threshold}, []Response{numericResponse("", 1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Evaluate(tt.responses))
		})
	}
}

func TestAutoApproveCondition_DecodesNumericThreshold(t *testing.T) {
	var c AutoApproveCondition
	require.NoError(t, json.Unmarshal([]byte(`{"field":"amount","operator":"<","value":1000}`), &c))
	require.NoError(t, c.Validate())
	assert.True(t, c.Value.Equal(decimal.NewFromInt(1000)))
	assert.True(t, c.Evaluate([]Response{numericResponse("amount", 500)}))
}

func TestAutoApproveCondition_Validate(t *testing.T) {
	assert.Error(t, AutoApproveCondition{Operator: OpEqual}.Validate())
	assert.Error(t, AutoApproveCondition{Field: "x", Operator: "=<"}.Validate())
	assert.NoError(t, AutoApproveCondition{Field: "x", Operator: OpNotEqual}.Validate())
}
