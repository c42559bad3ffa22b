package format

import (
	"errors"
	"testing"
	"time"

	"github.com/baharkarakas/insider-wallet/internal/models"
)

func TestMoney(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0,00 ₽"},
		{5, "0,05 ₽"},
		{123456, "1 234,56 ₽"},
		{100000, "1 000,00 ₽"},
		{123456789, "1 234 567,89 ₽"},
		{-250, "-2,50 ₽"},
	}
	for _, tt := range tests {
		if got := Money(tt.cents); got != tt.want {
			t.Errorf("Money(%d)=%q want %q", tt.cents, got, tt.want)
		}
	}
}

func TestSignedAmountAndTitle(t *testing.T) {
	debit := models.Transaction{Type: models.TxnDebit, Amount: 1500}
	credit := models.Transaction{Type: models.TxnCredit, Amount: 1500, Description: "Salary"}
	if got := SignedAmount(debit); got != "−15,00 ₽" {
		t.Errorf("debit=%q", got)
	}
	if got := SignedAmount(credit); got != "+15,00 ₽" {
		t.Errorf("credit=%q", got)
	}
	if Title(debit) != "Debit" || Title(credit) != "Salary" {
		t.Errorf("titles=%q,%q", Title(debit), Title(credit))
	}
}

func TestCounterparty(t *testing.T) {
	id := int64(7)
	tests := []struct {
		tx   models.Transaction
		want string
	}{
		{models.Transaction{CounterpartyUsername: "bob", CounterpartyID: &id}, "@bob"},
		{models.Transaction{CounterpartyID: &id}, "ID:7"},
		{models.Transaction{}, "—"},
	}
	for _, tt := range tests {
		if got := Counterparty(tt.tx); got != tt.want {
			t.Errorf("got %q want %q", got, tt.want)
		}
	}
}

func TestDates(t *testing.T) {
	at := time.Date(2024, 1, 15, 7, 5, 9, 0, time.UTC)
	msk := time.FixedZone("MSK", 3*3600)
	if got := Date(at, msk); got != "15.01.2024, 10:05:09" {
		t.Errorf("Date=%q", got)
	}
	if got := DateLong(at, nil); got != "15 January 2024, 07:05:09" {
		t.Errorf("DateLong=%q", got)
	}
	if Date(time.Time{}, msk) != "" {
		t.Error("zero time should render empty")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "12,50", want: 1250},
		{in: " 1 250.5 ", want: 125050},
		{in: "0.005", want: 1},
		{in: "0.004", wantErr: true},
		{in: "10", want: 1000},
		{in: "0", wantErr: true},
		{in: "-3", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrBadAmount) {
				t.Errorf("ParseAmount(%q) err=%v want ErrBadAmount", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseAmount(%q)=%d,%v want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestDecimalRoundTrips(t *testing.T) {
	for _, cents := range []int64{1, 1250, 125050} {
		s := Decimal(cents)
		back, err := ParseAmount(s)
		if err != nil || back != cents {
			t.Errorf("Decimal(%d)=%q parsed back as %d,%v", cents, s, back, err)
		}
	}
}
