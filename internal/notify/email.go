package notify

import (
	"context"
	"fmt"
	"time"

	"coinpaprika-price-alerts/internal/types"
	"coinpaprika-price-alerts/lib/helpers"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"
)

// MailSender is satisfied by *gomail.Dialer.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}

// Email sends notifications as plain text mail over SMTP.
type Email struct {
	config EmailConfig
	dialer MailSender
	now    func() time.Time
}

func NewEmail(c EmailConfig) *Email {
	return NewEmailWithSender(c, gomail.NewDialer(c.Host, c.Port, c.User, c.Password))
}

func NewEmailWithSender(c EmailConfig, s MailSender) *Email {
	return &Email{config: c, dialer: s, now: time.Now}
}

func (e *Email) Send(ctx context.Context, n types.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(e.config.To) == 0 {
		return errors.New("no e-mail recipients configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.config.From)
	m.SetHeader("To", e.config.To...)
	m.SetHeader("Subject", n.Title)
	m.SetBody("text/plain", e.body(n))

	return errors.Wrapf(e.dialer.DialAndSend(m), "could not e-mail %s alert", n.Payload.Symbol)
}

func (e *Email) body(n types.Notification) string {
	return fmt.Sprintf("%s\n\nSymbol: %s\nPrice: $%s\nAlert: %s\nTime: %s\n",
		n.Body,
		n.Payload.Symbol,
		helpers.FormatPriceUS(n.Payload.Price, false),
		n.Payload.AlertID,
		helpers.FormatDate(e.now()),
	)
}
