package types

import (
	"github.com/pkg/errors"
)

// Rule is the narrowed form of an alert's condition: either a PriceRule or a PercentageRule.
type Rule interface {
	Type() AlertType
	Cond() Condition
}

// PriceRule compares the absolute price against Target.
type PriceRule struct {
	Condition Condition
	Target    float64
}

func (r PriceRule) Type() AlertType { return AlertTypePrice }
func (r PriceRule) Cond() Condition { return r.Condition }

// PercentageRule compares the signed drift from BasePrice, in percent, against Percent.
type PercentageRule struct {
	Condition Condition
	Percent   float64
	BasePrice float64
}

func (r PercentageRule) Type() AlertType { return AlertTypePercentage }
func (r PercentageRule) Cond() Condition { return r.Condition }

// Change returns the percentage drift of price from the base price.
func (r PercentageRule) Change(price float64) float64 {
	return (price - r.BasePrice) / r.BasePrice * 100
}

// Rule narrows the record into its typed rule. A percentage alert without a usable
// base price returns ErrMissingBasePrice.
func (a Alert) Rule() (Rule, error) {
	switch a.Condition {
	case ConditionAbove, ConditionBelow, ConditionCrossesUp, ConditionCrossesDown:
	default:
		return nil, errors.Wrapf(ErrInvalidAlert, "unknown condition %q", a.Condition)
	}

	switch a.AlertType {
	case AlertTypePrice:
		return PriceRule{Condition: a.Condition, Target: a.Value}, nil
	case AlertTypePercentage:
		if a.BasePrice == nil || *a.BasePrice <= 0 {
			return nil, errors.Wrapf(ErrMissingBasePrice, "alert %s", a.ID)
		}
		return PercentageRule{Condition: a.Condition, Percent: a.Value, BasePrice: *a.BasePrice}, nil
	}
	return nil, errors.Wrapf(ErrInvalidAlert, "unknown alert type %q", a.AlertType)
}
