package telegram

import (
	"context"

	"coinpaprika-price-alerts/internal/types"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	ChatID         int64
	Debug          bool
	UpdatesTimeout int
}

// Sender is the subset of the telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AlertLister lists stored alerts for the /alerts command.
type AlertLister interface {
	List(ctx context.Context) ([]types.Alert, error)
}

// Checker requests an immediate alert check for the /check command.
type Checker interface {
	CheckNow()
}

// Bot telegram notification channel and command handler
type Bot struct {
	API    *tgbotapi.BotAPI
	sender Sender
	Config BotConfig
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
}
