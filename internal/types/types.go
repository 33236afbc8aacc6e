package types

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("alert not found")
	ErrInvalidAlert     = errors.New("invalid alert")
	ErrMissingBasePrice = errors.New("percentage alert has no base price")
)

type AlertType string

const (
	AlertTypePrice      AlertType = "price"
	AlertTypePercentage AlertType = "percentage"
)

type Condition string

const (
	ConditionAbove       Condition = "above"
	ConditionBelow       Condition = "below"
	ConditionCrossesUp   Condition = "crosses_up"
	ConditionCrossesDown Condition = "crosses_down"
)

type Frequency string

const (
	FrequencyOnce     Frequency = "once"
	FrequencyRepeated Frequency = "repeated"
	FrequencyDaily    Frequency = "daily"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusExpired   Status = "expired"
)

// Alert is the persisted alert record.
type Alert struct {
	ID               string     `json:"id"`
	Symbol           string     `json:"symbol"`
	ExchangeID       string     `json:"exchange_id,omitempty"`
	ExchangeName     string     `json:"exchange_name,omitempty"`
	AlertType        AlertType  `json:"alert_type"`
	Condition        Condition  `json:"condition"`
	Value            float64    `json:"value"`
	BasePrice        *float64   `json:"base_price,omitempty"`
	Frequency        Frequency  `json:"frequency"`
	Enabled          bool       `json:"enabled"`
	Status           Status     `json:"status"`
	LastCheckedPrice *float64   `json:"last_checked_price,omitempty"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at,omitempty"`
	TriggerCount     int64      `json:"trigger_count"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Message          string     `json:"message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AlertUpdate is a partial update; nil fields are left untouched.
type AlertUpdate struct {
	Enabled          *bool
	Status           *Status
	BasePrice        *float64
	LastCheckedPrice *float64
	LastTriggeredAt  *time.Time
	TriggerCount     *int64
	ExpiresAt        *time.Time
	Message          *string
	UpdatedAt        *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u AlertUpdate) IsEmpty() bool {
	return u.Enabled == nil && u.Status == nil && u.BasePrice == nil && u.LastCheckedPrice == nil &&
		u.LastTriggeredAt == nil && u.TriggerCount == nil && u.ExpiresAt == nil && u.Message == nil &&
		u.UpdatedAt == nil
}

// Apply returns a copy of the alert with the update applied.
func (a Alert) Apply(u AlertUpdate) Alert {
	if u.Enabled != nil {
		a.Enabled = *u.Enabled
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.BasePrice != nil {
		a.BasePrice = Float(*u.BasePrice)
	}
	if u.LastCheckedPrice != nil {
		a.LastCheckedPrice = Float(*u.LastCheckedPrice)
	}
	if u.LastTriggeredAt != nil {
		a.LastTriggeredAt = Time(*u.LastTriggeredAt)
	}
	if u.TriggerCount != nil {
		a.TriggerCount = *u.TriggerCount
	}
	if u.ExpiresAt != nil {
		a.ExpiresAt = Time(*u.ExpiresAt)
	}
	if u.Message != nil {
		a.Message = *u.Message
	}
	if u.UpdatedAt != nil {
		a.UpdatedAt = *u.UpdatedAt
	}
	return a
}

// Normalize fills defaults for a freshly created alert.
func (a *Alert) Normalize() {
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	if a.Frequency == "" {
		a.Frequency = FrequencyOnce
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
}

// Validate checks that the record describes a rule the evaluator can run.
func (a Alert) Validate() error {
	if a.Symbol == "" {
		return errors.Wrap(ErrInvalidAlert, "symbol is required")
	}
	if a.Symbol != strings.ToUpper(a.Symbol) {
		return errors.Wrapf(ErrInvalidAlert, "symbol %q must be uppercase", a.Symbol)
	}
	switch a.Condition {
	case ConditionAbove, ConditionBelow, ConditionCrossesUp, ConditionCrossesDown:
	default:
		return errors.Wrapf(ErrInvalidAlert, "unknown condition %q", a.Condition)
	}
	switch a.Frequency {
	case FrequencyOnce, FrequencyRepeated, FrequencyDaily:
	default:
		return errors.Wrapf(ErrInvalidAlert, "unknown frequency %q", a.Frequency)
	}
	switch a.Status {
	case StatusActive, StatusTriggered, StatusExpired:
	default:
		return errors.Wrapf(ErrInvalidAlert, "unknown status %q", a.Status)
	}
	if math.IsNaN(a.Value) || math.IsInf(a.Value, 0) {
		return errors.Wrap(ErrInvalidAlert, "value must be a finite number")
	}

	switch a.AlertType {
	case AlertTypePrice:
		if a.Value <= 0 {
			return errors.Wrap(ErrInvalidAlert, "price target must be positive")
		}
	case AlertTypePercentage:
		if a.BasePrice == nil || *a.BasePrice <= 0 {
			return errors.Wrap(ErrInvalidAlert, "percentage alert requires a positive base price")
		}
		if a.Value == 0 {
			return errors.Wrap(ErrInvalidAlert, "percentage target must not be zero")
		}
	default:
		return errors.Wrapf(ErrInvalidAlert, "unknown alert type %q", a.AlertType)
	}
	return nil
}

// Float returns a pointer to a copy of v.
func Float(v float64) *float64 { return &v }

// Time returns a pointer to a copy of t.
func Time(t time.Time) *time.Time { return &t }
