package util

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.AmericanEnglish)

var currencySymbols = map[currency.Unit]string{
	currency.USD: "$",
	currency.EUR: "€",
	currency.GBP: "£",
	currency.JPY: "¥",
}

// MaskAccountNumber hides everything but the last four digits.
func MaskAccountNumber(accountNumber string) string {
	runes := []rune(strings.TrimSpace(accountNumber))
	if len(runes) > 4 {
		runes = runes[len(runes)-4:]
	}
	return "**** **** **** " + string(runes)
}

// FormatCurrency renders amount in en-US style: "$15,420.50", "-$45,000.00".
func FormatCurrency(amount float64, code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}

	symbol, ok := currencySymbols[unit]
	if !ok {
		symbol = unit.String() + " "
	}

	sign := ""
	if amount < 0 {
		sign = "-"
	}

	digits := printer.Sprint(number.Decimal(math.Abs(RoundCents(amount)),
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	))

	return sign + symbol + digits, nil
}

// RoundCents rounds to two decimal places, half away from zero.
func RoundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
