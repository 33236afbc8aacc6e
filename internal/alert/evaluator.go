package alert

import (
	"math"
	"time"

	"coinpaprika-price-alerts/internal/types"

	"github.com/pkg/errors"
)

const (
	DefaultNoiseEpsilon  = 0.01
	DefaultDailyCooldown = 24 * time.Hour
)

// Skip reasons reported when an evaluation does not reach the condition check.
const (
	ReasonDisabled        = "disabled"
	ReasonInactive        = "inactive"
	ReasonAlreadyFired    = "once_already_triggered"
	ReasonCooldown        = "daily_cooldown"
	ReasonNoise           = "price_unchanged"
	ReasonHealedBasePrice = "base_price_healed"
	ReasonInvalid         = "invalid_rule"
	ReasonNotMet          = "condition_not_met"
)

// Result is the outcome of evaluating one alert against one price.
type Result struct {
	Triggered bool
	Reason    string
	// Percent is the drift from the base price, set for percentage rules.
	Percent *float64
	// Changes is nil when nothing must be persisted.
	Changes *types.AlertUpdate
	Next    types.Alert
}

// Evaluator decides whether an alert fires. It holds no state between calls.
type Evaluator struct {
	NoiseEpsilon  float64
	DailyCooldown time.Duration
}

func NewEvaluator(noiseEpsilon float64, dailyCooldown time.Duration) Evaluator {
	if noiseEpsilon < 0 {
		noiseEpsilon = DefaultNoiseEpsilon
	}
	if dailyCooldown <= 0 {
		dailyCooldown = DefaultDailyCooldown
	}
	return Evaluator{NoiseEpsilon: noiseEpsilon, DailyCooldown: dailyCooldown}
}

// Evaluate checks alert against currentPrice. previousCyclePrice is the price seen for
// the same symbol on the previous tick and anchors price-type crossings; the alert's
// own LastCheckedPrice anchors percentage crossings and the noise filter.
func (e Evaluator) Evaluate(alert types.Alert, currentPrice float64, previousCyclePrice *float64, now time.Time) Result {
	res := Result{Next: alert}

	if !alert.Enabled {
		res.Reason = ReasonDisabled
		return res
	}
	if alert.Status != types.StatusActive {
		res.Reason = ReasonInactive
		return res
	}

	switch alert.Frequency {
	case types.FrequencyOnce:
		if alert.TriggerCount > 0 {
			res.Reason = ReasonAlreadyFired
			return res
		}
	case types.FrequencyDaily:
		if alert.LastTriggeredAt != nil && now.Sub(*alert.LastTriggeredAt) < e.DailyCooldown {
			res.Reason = ReasonCooldown
			return res
		}
	}

	if alert.LastCheckedPrice != nil && math.Abs(currentPrice-*alert.LastCheckedPrice) < e.NoiseEpsilon {
		res.Reason = ReasonNoise
		return res
	}

	rule, err := alert.Rule()
	if errors.Is(err, types.ErrMissingBasePrice) {
		res.Reason = ReasonHealedBasePrice
		res.apply(types.AlertUpdate{
			BasePrice:        types.Float(currentPrice),
			LastCheckedPrice: types.Float(currentPrice),
			UpdatedAt:        types.Time(now),
		})
		return res
	}
	if err != nil {
		res.Reason = ReasonInvalid
		return res
	}

	switch r := rule.(type) {
	case types.PriceRule:
		res.Triggered = priceConditionMet(r, currentPrice, previousCyclePrice)
	case types.PercentageRule:
		pct := r.Change(currentPrice)
		res.Percent = &pct
		res.Triggered = percentageConditionMet(r, pct, alert.LastCheckedPrice)
	}

	if !res.Triggered {
		res.Reason = ReasonNotMet
		res.apply(types.AlertUpdate{
			LastCheckedPrice: types.Float(currentPrice),
			UpdatedAt:        types.Time(now),
		})
		return res
	}

	count := alert.TriggerCount + 1
	update := types.AlertUpdate{
		LastTriggeredAt:  types.Time(now),
		LastCheckedPrice: types.Float(currentPrice),
		TriggerCount:     &count,
		UpdatedAt:        types.Time(now),
	}
	if alert.Frequency == types.FrequencyOnce {
		status := types.StatusTriggered
		update.Status = &status
	}
	res.Reason = string(rule.Cond())
	res.apply(update)
	return res
}

func (r *Result) apply(u types.AlertUpdate) {
	r.Changes = &u
	r.Next = r.Next.Apply(u)
}

func priceConditionMet(r types.PriceRule, current float64, previous *float64) bool {
	switch r.Condition {
	case types.ConditionAbove:
		return current > r.Target
	case types.ConditionBelow:
		return current < r.Target
	case types.ConditionCrossesUp:
		return previous != nil && *previous <= r.Target && current > r.Target
	case types.ConditionCrossesDown:
		return previous != nil && *previous >= r.Target && current < r.Target
	}
	return false
}

// percentageConditionMet compares the drift against the target. Downward conditions use
// -|Percent| so "below 5" and "below -5" mean the same thing. Without a previous observation
// a crossing assumes the drift was on the far side of the threshold, so it may fire on the
// first check.
func percentageConditionMet(r types.PercentageRule, pct float64, lastChecked *float64) bool {
	down := -math.Abs(r.Percent)

	switch r.Condition {
	case types.ConditionAbove:
		return pct >= r.Percent
	case types.ConditionBelow:
		return pct <= down
	case types.ConditionCrossesUp:
		prev := pct - 1
		if lastChecked != nil {
			prev = r.Change(*lastChecked)
		}
		return prev < r.Percent && pct >= r.Percent
	case types.ConditionCrossesDown:
		prev := pct + 1
		if lastChecked != nil {
			prev = r.Change(*lastChecked)
		}
		return prev > down && pct <= down
	}
	return false
}
