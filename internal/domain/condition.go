package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Comparator string

const (
	OpLessThan       Comparator = "<"
	OpLessOrEqual    Comparator = "<="
	OpGreaterThan    Comparator = ">"
	OpGreaterOrEqual Comparator = ">="
	OpEqual          Comparator = "=="
	OpNotEqual       Comparator = "!="
)

func (c Comparator) Valid() bool {
	switch c {
	case OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// AutoApproveCondition approves a step without manual action when the named
// response compares true against Value.
type AutoApproveCondition struct {
	Field    string          `json:"field"`
	Operator Comparator      `json:"operator"`
	Value    decimal.Decimal `json:"value"`
}

func (c AutoApproveCondition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("auto-approve condition requires a field")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("auto-approve condition has unknown operator %q", c.Operator)
	}
	return nil
}

// Evaluate reports whether the condition holds for the given responses. The
// field is matched by name or code, ignoring case. Anything that cannot be
// looked up or parsed evaluates to false.
func (c AutoApproveCondition) Evaluate(responses []Response) bool {
	if c.Validate() != nil {
		return false
	}
	resp, ok := findResponse(c.Field, responses)
	if !ok {
		return false
	}
	v, ok := resp.Number()
	if !ok {
		return false
	}
	cmp := v.Cmp(c.Value)
	switch c.Operator {
	case OpLessThan:
		return cmp < 0
	case OpLessOrEqual:
		return cmp <= 0
	case OpGreaterThan:
		return cmp > 0
	case OpGreaterOrEqual:
		return cmp >= 0
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	}
	return false
}

func (c AutoApproveCondition) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value.String())
}

func findResponse(field string, responses []Response) (Response, bool) {
	field = strings.TrimSpace(field)
	for _, r := range responses {
		if strings.EqualFold(r.FieldName, field) || (r.FieldCode != "" && strings.EqualFold(r.FieldCode, field)) {
			return r, true
		}
	}
	return Response{}, false
}
