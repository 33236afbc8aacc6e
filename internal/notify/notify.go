// Package notify holds the delivery channels for triggered alerts.
package notify

import (
	"context"

	"coinpaprika-price-alerts/internal/types"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Channel delivers one notification.
type Channel interface {
	Send(ctx context.Context, n types.Notification) error
}

// Log writes notifications to the application log. Used when nothing else is
// configured.
type Log struct{}

func (Log) Send(_ context.Context, n types.Notification) error {
	log.WithFields(log.Fields{
		"alert_id": n.Payload.AlertID,
		"symbol":   n.Payload.Symbol,
		"price":    n.Payload.Price,
		"type":     n.Payload.Type,
	}).Warnf("🚨 %s: %s", n.Title, n.Body)
	return nil
}

// Multi sends to every channel. A failing channel does not stop the others.
type Multi []Channel

func (m Multi) Send(ctx context.Context, n types.Notification) error {
	var err error
	for _, c := range m {
		err = multierr.Append(err, c.Send(ctx, n))
	}
	return err
}

// Combine returns a single channel for the given ones, skipping nils.
func Combine(channels ...Channel) Channel {
	var m Multi
	for _, c := range channels {
		if c != nil {
			m = append(m, c)
		}
	}
	switch len(m) {
	case 0:
		return Log{}
	case 1:
		return m[0]
	}
	return m
}
