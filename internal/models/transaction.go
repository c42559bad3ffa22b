package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type TransactionType string
const (
	TxnCredit TransactionType = "credit"
	TxnDebit  TransactionType = "debit"
)

// Transaction is immutable once fetched; identity is ID.
type Transaction struct {
	ID                   int64           `json:"id"`
	Type                 TransactionType `json:"type"`
	Amount               int64           `json:"amount_cents"`
	Description          string          `json:"description,omitempty"`
	CounterpartyUsername string          `json:"counterparty_username,omitempty"`
	CounterpartyID       *int64          `json:"counterparty_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// UnmarshalJSON accepts both list shapes the backend has served over time:
// type debit|credit with counterparty_username/_id, and direction out|in with counterparty.
func (t *Transaction) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID                   int64  `json:"id"`
		Type                 string `json:"type"`
		Direction            string `json:"direction"`
		AmountCents          int64  `json:"amount_cents"`
		Description          string `json:"description"`
		CounterpartyUsername string `json:"counterparty_username"`
		CounterpartyID       *int64 `json:"counterparty_id"`
		Counterparty         string `json:"counterparty"`
		CreatedAt            string `json:"created_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	typ, err := normalizeType(raw.Type, raw.Direction)
	if err != nil {
		return err
	}
	created, err := ParseTime(raw.CreatedAt)
	if err != nil {
		return fmt.Errorf("transaction %d created_at: %w", raw.ID, err)
	}
	*t = Transaction{
		ID:                   raw.ID,
		Type:                 typ,
		Amount:               raw.AmountCents,
		Description:          raw.Description,
		CounterpartyUsername: raw.CounterpartyUsername,
		CounterpartyID:       raw.CounterpartyID,
		CreatedAt:            created,
	}
	if t.CounterpartyUsername == "" {
		t.CounterpartyUsername = raw.Counterparty
	}
	return nil
}

// DecodeTransactions decodes list rows one by one. Rows that fail are left
// out; their errors come back joined so the caller can log them.
func DecodeTransactions(rows []json.RawMessage) ([]Transaction, error) {
	items := make([]Transaction, 0, len(rows))
	var errs []error
	for i, row := range rows {
		var tx Transaction
		if err := json.Unmarshal(row, &tx); err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		items = append(items, tx)
	}
	return items, errors.Join(errs...)
}

func normalizeType(typ, direction string) (TransactionType, error) {
	switch strings.ToLower(typ) {
	case "debit":
		return TxnDebit, nil
	case "credit":
		return TxnCredit, nil
	}
	switch strings.ToLower(direction) {
	case "out":
		return TxnDebit, nil
	case "in":
		return TxnCredit, nil
	}
	return "", fmt.Errorf("unknown transaction type %q/%q", typ, direction)
}

// ParseTime reads RFC 3339 timestamps and the zone-less ISO form the backend
// writes for UTC instants. Empty input yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}
