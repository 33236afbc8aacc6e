package helpers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatPriceUS picks the number of decimals from the magnitude of the price.
func FormatPriceUS(price float64, escapeMarkdown bool) string {
	decimals := 6

	if price >= 1000 {
		decimals = 0
	} else if price > 1.2 {
		decimals = 2
	} else if price < 0.00001 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	formatted := p.Sprintf("%.*f", decimals, price)

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

// FormatPercentage renders a signed percentage with two decimals, e.g. "+10.25%".
func FormatPercentage(percent float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%+.2f%%", percent)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// FormatRelative renders t relative to now, e.g. "3 hours ago".
func FormatRelative(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}
