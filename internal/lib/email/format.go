package email

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var currencySymbols = map[string]string{
	"usd": "$",
	"cad": "CA$",
	"aud": "A$",
	"eur": "€",
	"gbp": "£",
}

// FormatCents renders an amount in minor units, e.g. 125000 usd -> "$1,250.00".
func FormatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	symbol, ok := currencySymbols[strings.ToLower(currency)]
	if !ok {
		symbol = strings.ToUpper(currency) + " "
	}

	return printer.Sprintf("%s%s%d.%02d", sign, symbol, cents/100, cents%100)
}

// DuePhrase describes a reminder offset: 3 -> "due in 3 days", 0 -> "due
// today", -2 -> "2 days overdue".
func DuePhrase(daysUntilDue int) string {
	switch {
	case daysUntilDue == 0:
		return "due today"
	case daysUntilDue == 1:
		return "due tomorrow"
	case daysUntilDue > 1:
		return printer.Sprintf("due in %d days", daysUntilDue)
	case daysUntilDue == -1:
		return "1 day overdue"
	default:
		return printer.Sprintf("%d days overdue", -daysUntilDue)
	}
}
