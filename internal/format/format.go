// Package format turns raw minor-unit amounts and instants into display strings.
package format

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/insider-wallet/internal/models"
)

const (
	currency  = "₽"
	minusSign = "−"
	shortDate = "02.01.2006, 15:04:05"
	longDate  = "2 January 2006, 15:04:05"
)

var ErrBadAmount = errors.New("invalid amount")

// Money renders cents as "1 234,56 ₽".
func Money(cents int64) string {
	s := decimal.New(cents, -2).Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	out := group(intPart) + "," + frac + " " + currency
	if cents < 0 {
		return "-" + out
	}
	return out
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// SignedAmount prefixes debits with a typographic minus and credits with plus.
func SignedAmount(tx models.Transaction) string {
	if tx.Type == models.TxnDebit {
		return minusSign + Money(tx.Amount)
	}
	return "+" + Money(tx.Amount)
}

func Title(tx models.Transaction) string {
	if tx.Description != "" {
		return tx.Description
	}
	if tx.Type == models.TxnDebit {
		return "Debit"
	}
	return "Credit"
}

func Counterparty(tx models.Transaction) string {
	switch {
	case tx.CounterpartyUsername != "":
		return "@" + tx.CounterpartyUsername
	case tx.CounterpartyID != nil:
		return "ID:" + strconv.FormatInt(*tx.CounterpartyID, 10)
	}
	return "—"
}

func Handle(username string) string {
	if username == "" {
		return "—"
	}
	return "@" + strings.TrimPrefix(username, "@")
}

// Date is the compact form used in list rows.
func Date(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(orUTC(loc)).Format(shortDate)
}

// DateLong is used in transaction details.
func DateLong(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(orUTC(loc)).Format(longDate)
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Decimal is the plain "1234.50" form sent to the server.
func Decimal(cents int64) string { return decimal.New(cents, -2).StringFixed(2) }

// ParseAmount reads user-entered money ("1 250,5", "12.50") into cents,
// rounding half up. Zero, negative and malformed input fail.
func ParseAmount(s string) (int64, error) {
	norm := strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(strings.TrimSpace(s))
	if norm == "" {
		return 0, ErrBadAmount
	}
	d, err := decimal.NewFromString(norm)
	if err != nil || !d.IsPositive() {
		return 0, ErrBadAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsPositive() {
		return 0, ErrBadAmount
	}
	return cents.IntPart(), nil
}
