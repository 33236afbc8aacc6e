package telegram

import (
	"context"
	"fmt"
	"strings"

	"coinpaprika-price-alerts/internal/types"
	"coinpaprika-price-alerts/lib/helpers"
	"coinpaprika-price-alerts/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	api.Debug = c.Debug

	return &Bot{
		API:    api,
		sender: api,
		Config: c,
	}, nil
}

// NewBotWithSender builds a bot around an arbitrary sender.
func NewBotWithSender(s Sender, c BotConfig) *Bot {
	return &Bot{sender: s, Config: c}
}

// GetUpdatesChannel gets new updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	if b.API == nil {
		return nil, errors.New("bot has no telegram API client")
	}
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.API.GetUpdatesChan(updatesConfig), nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.sender.Send(msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

// Send delivers a triggered alert to the configured chat.
func (b *Bot) Send(ctx context.Context, n types.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.SendMessage(Message{
		ChatID: b.Config.ChatID,
		Text:   FormatNotification(n),
	})
}

// FormatNotification renders a notification as MarkdownV2.
func FormatNotification(n types.Notification) string {
	return fmt.Sprintf("🚨 *%s*\n\n%s",
		helpers.EscapeMarkdownV2(n.Title),
		helpers.EscapeMarkdownV2(n.Body),
	)
}

// HandleUpdate answers the bot commands and returns the reply text, empty when
// there is nothing to say.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update, lister AlertLister, checker Checker) string {
	if u.Message == nil || !u.Message.IsCommand() {
		return ""
	}
	log.Debugf("received command: %s", u.Message.Command())

	switch u.Message.Command() {
	case "alerts":
		return b.HandleAlertListCommand(ctx, lister)
	case "check":
		checker.CheckNow()
		return helpers.EscapeMarkdownV2(translation.Translate("Checking alerts now..."))
	case "source":
		return "https://github\\.com/coinpaprika/telegram\\-bot\\-v2"
	}
	return helpers.EscapeMarkdownV2(translation.Translate("Commands: /alerts lists alerts, /check runs a check now."))
}

func (b *Bot) HandleAlertListCommand(ctx context.Context, lister AlertLister) string {
	alerts, err := lister.List(ctx)
	if err != nil {
		log.Errorf("error fetching alerts: %v", err)
		return helpers.EscapeMarkdownV2(translation.Translate("Failed to fetch alerts. Please try again later."))
	}

	if len(alerts) == 0 {
		return helpers.EscapeMarkdownV2(translation.Translate("No alerts configured."))
	}

	var alertList strings.Builder
	alertList.WriteString(helpers.EscapeMarkdownV2(translation.Translate("Alerts:")) + "\n\n")
	for _, a := range alerts {
		var target string
		if a.AlertType == types.AlertTypePercentage {
			target = helpers.FormatPercentage(a.Value)
		} else {
			target = "$" + helpers.FormatPriceUS(a.Value, false)
		}

		alertList.WriteString(fmt.Sprintf("▫️ *%s* %s %s \\(%s, %s, fired %d×\\)\n",
			helpers.EscapeMarkdownV2(a.Symbol),
			helpers.EscapeMarkdownV2(strings.ReplaceAll(string(a.Condition), "_", " ")),
			helpers.EscapeMarkdownV2(target),
			helpers.EscapeMarkdownV2(string(a.Frequency)),
			helpers.EscapeMarkdownV2(string(a.Status)),
			a.TriggerCount,
		))
	}
	return alertList.String()
}
