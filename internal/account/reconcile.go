package account

import "github.com/baharkarakas/insider-wallet/internal/models"

// Diff describes how to move a rendered list onto a freshly fetched one.
// Items is the full new list in server order; rows keep their identity by id.
type Diff struct {
	Removed []int64
	Added   []int64
	Items   []models.Transaction
}

func (d Diff) Empty() bool {
	return len(d.Removed) == 0 && len(d.Added) == 0
}

// Reconcile compares by transaction id. Order of Removed follows prev, order
// of Added follows next.
func Reconcile(prev, next []models.Transaction) Diff {
	seen := make(map[int64]struct{}, len(next))
	for _, tx := range next {
		seen[tx.ID] = struct{}{}
	}
	had := make(map[int64]struct{}, len(prev))
	d := Diff{Items: next}
	for _, tx := range prev {
		had[tx.ID] = struct{}{}
		if _, ok := seen[tx.ID]; !ok {
			d.Removed = append(d.Removed, tx.ID)
		}
	}
	for _, tx := range next {
		if _, ok := had[tx.ID]; !ok {
			d.Added = append(d.Added, tx.ID)
		}
	}
	return d
}
