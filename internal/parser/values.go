package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayouts lists accepted date formats in priority order.
// Ambiguous strings like 01/02/2024 resolve through the first matching layout,
// so US month-first wins over EU day-first.
var DateLayouts = []string{
	"2006-1-2", // ISO
	"1/2/2006", // US slash
	"2/1/2006", // EU slash
	"2006/1/2", // ISO slash
	"1-2-2006", // US dash
	"2-1-2006", // EU dash
}

// ParseDate parses s against DateLayouts, first match wins
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format %q", s)
}

// amountReplacer strips currency symbols and thousands separators
var amountReplacer = strings.NewReplacer("$", "", ",", "")

// CleanAmount strips currency symbols, thousands separators and surrounding space
func CleanAmount(s string) string {
	return strings.TrimSpace(amountReplacer.Replace(s))
}

// ParseAmount parses an exact decimal amount after CleanAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := CleanAmount(s)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

// CalendarDate truncates t to midnight UTC of its calendar day
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
