package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"coinpaprika-price-alerts/internal/types"
	"coinpaprika-price-alerts/lib/helpers"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"
)

// Slack posts notifications to an incoming webhook.
type Slack struct {
	WebhookURL string
	Username   string
}

func NewSlack(webhookURL string) *Slack {
	return &Slack{WebhookURL: webhookURL, Username: "Price Alerts"}
}

func (s *Slack) Send(ctx context.Context, n types.Notification) error {
	msg := &slack.WebhookMessage{
		Username:    s.Username,
		Text:        n.Title,
		Attachments: []slack.Attachment{slackAttachment(n)},
	}
	err := slack.PostWebhookContext(ctx, s.WebhookURL, msg)
	return errors.Wrapf(err, "could not post %s alert to slack", n.Payload.Symbol)
}

func slackAttachment(n types.Notification) slack.Attachment {
	return slack.Attachment{
		Color: alertColor(n.Payload.Type),
		Text:  n.Body,
		Fields: []slack.AttachmentField{
			{Title: "Symbol", Value: n.Payload.Symbol, Short: true},
			{Title: "Price", Value: "$" + helpers.FormatPriceUS(n.Payload.Price, false), Short: true},
			{Title: "Alert", Value: n.Payload.AlertID, Short: false},
		},
		Footer: "CoinPaprika Price Alerts",
		Ts:     json.Number(strconv.FormatInt(time.Now().Unix(), 10)),
	}
}

func alertColor(t types.AlertType) string {
	switch t {
	case types.AlertTypePrice:
		return "#36a64f"
	case types.AlertTypePercentage:
		return "#ffcc00"
	default:
		return "#000000"
	}
}
