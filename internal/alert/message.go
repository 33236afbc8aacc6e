package alert

import (
	"math"

	"coinpaprika-price-alerts/internal/types"
	"coinpaprika-price-alerts/lib/helpers"
	"coinpaprika-price-alerts/lib/translation"
)

var priceTemplates = map[types.Condition]string{
	types.ConditionAbove:       "%s is above $%s. Current price: $%s",
	types.ConditionBelow:       "%s is below $%s. Current price: $%s",
	types.ConditionCrossesUp:   "%s crossed up through $%s. Current price: $%s",
	types.ConditionCrossesDown: "%s crossed down through $%s. Current price: $%s",
}

var percentageTemplates = map[types.Condition]string{
	types.ConditionAbove:       "%s changed %s since $%s (target %s). Current price: $%s",
	types.ConditionBelow:       "%s changed %s since $%s (target %s). Current price: $%s",
	types.ConditionCrossesUp:   "%s crossed up through %s from $%s (now %s). Current price: $%s",
	types.ConditionCrossesDown: "%s crossed down through %s from $%s (now %s). Current price: $%s",
}

// BuildNotification renders the notification for a triggered alert. A user supplied
// message replaces the generated body verbatim.
func BuildNotification(alert types.Alert, currentPrice float64, percent *float64) types.Notification {
	n := types.Notification{
		Payload: types.NotificationPayload{
			AlertID: alert.ID,
			Symbol:  alert.Symbol,
			Price:   currentPrice,
			Type:    alert.AlertType,
		},
	}

	if alert.AlertType == types.AlertTypePercentage {
		n.Title = translation.Translate("Percent Alert: %s", alert.Symbol)
	} else {
		n.Title = translation.Translate("Price Alert: %s", alert.Symbol)
	}

	if alert.Message != "" {
		n.Body = alert.Message
		return n
	}
	n.Body = generateBody(alert, currentPrice, percent)
	return n
}

func generateBody(alert types.Alert, currentPrice float64, percent *float64) string {
	current := helpers.FormatPriceUS(currentPrice, false)

	if alert.AlertType != types.AlertTypePercentage {
		return translation.Translate(priceTemplates[alert.Condition],
			alert.Symbol, helpers.FormatPriceUS(alert.Value, false), current)
	}

	var base float64
	if alert.BasePrice != nil {
		base = *alert.BasePrice
	}
	var pct float64
	if percent != nil {
		pct = *percent
	} else if base > 0 {
		pct = (currentPrice - base) / base * 100
	}

	target := alert.Value
	if alert.Condition == types.ConditionBelow || alert.Condition == types.ConditionCrossesDown {
		target = -math.Abs(alert.Value)
	}

	switch alert.Condition {
	case types.ConditionCrossesUp, types.ConditionCrossesDown:
		return translation.Translate(percentageTemplates[alert.Condition], alert.Symbol,
			helpers.FormatPercentage(target), helpers.FormatPriceUS(base, false), helpers.FormatPercentage(pct), current)
	default:
		return translation.Translate(percentageTemplates[alert.Condition], alert.Symbol,
			helpers.FormatPercentage(pct), helpers.FormatPriceUS(base, false), helpers.FormatPercentage(target), current)
	}
}
