package models

import (
	"fmt"
	"net/url"
	"strings"
)

type TxFilter string
const (
	FilterAll    TxFilter = "all"
	FilterDebit  TxFilter = "debit"
	FilterCredit TxFilter = "credit"
)

func ParseFilter(s string) (TxFilter, error) {
	switch f := TxFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterDebit, FilterCredit:
		return f, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// TxQuery is the filter/search pair a transaction list is scoped to.
type TxQuery struct {
	Filter TxFilter
	Search string
}

// Values omits type for "all" and q when empty, the way the list endpoint expects.
func (q TxQuery) Values() url.Values {
	v := url.Values{}
	if q.Filter == FilterDebit || q.Filter == FilterCredit {
		v.Set("type", string(q.Filter))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("q", s)
	}
	return v
}
