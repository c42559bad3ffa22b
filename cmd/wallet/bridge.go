package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/baharkarakas/insider-wallet/internal/account"
	"github.com/baharkarakas/insider-wallet/internal/format"
	"github.com/baharkarakas/insider-wallet/internal/models"
	"github.com/baharkarakas/insider-wallet/internal/notify"
	"github.com/baharkarakas/insider-wallet/internal/payflow"
)

// bridge is how the rest of the client reaches the terminal program: the
// notice sink, the account view and the payment confirmation dialog. Every
// call becomes a message for the program's update loop, so it must never be
// used from inside Update.
type bridge struct {
	loc *time.Location

	mu   sync.Mutex
	send func(tea.Msg)
	done chan struct{}
}

func newBridge(loc *time.Location) *bridge {
	return &bridge{loc: loc, done: make(chan struct{})}
}

func (b *bridge) attach(send func(tea.Msg)) {
	b.mu.Lock(); defer b.mu.Unlock()
	b.send = send
}

// detach drops later messages and declines confirmations nobody can answer.
func (b *bridge) detach() {
	b.mu.Lock(); defer b.mu.Unlock()
	if b.send == nil {
		return
	}
	b.send = nil
	close(b.done)
}

func (b *bridge) post(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

func (b *bridge) printf(kind entryKind, msg string, args ...interface{}) {
	b.post(linesMsg{{kind: kind, text: fmt.Sprintf(msg, args...)}})
}

func (b *bridge) Notify(n notify.Notice) {
	switch n.Kind {
	case notify.KindSuccess:
		b.printf(entrySuccess, "✓ %s", n.Message)
	case notify.KindError:
		b.printf(entryError, "✗ %s", n.Message)
	default:
		b.printf(entryInfo, "· %s", n.Message)
	}
}

func (b *bridge) RenderUser(u models.User) {
	name := u.DisplayName()
	if name == "" {
		name = u.Username
	}
	b.post(userMsg{
		name:    name,
		handle:  format.Handle(u.Username),
		balance: format.Money(u.BalanceCents),
	})
}

func (b *bridge) RenderTransactions(d account.Diff) {
	out := make(linesMsg, 0, len(d.Items)+1)
	if !d.Empty() {
		out = append(out, entry{kind: entryInfo, text: fmt.Sprintf("transactions: %d new, %d gone", len(d.Added), len(d.Removed))})
	}
	if len(d.Items) == 0 {
		out = append(out, entry{kind: entryPlain, text: "  no transactions"})
	}
	for _, tx := range d.Items {
		kind := entryCredit
		if tx.Type == models.TxnDebit {
			kind = entryDebit
		}
		out = append(out, entry{kind: kind, text: fmt.Sprintf("  #%-5d %s  %-24s %-12s %s",
			tx.ID, format.Date(tx.CreatedAt, b.loc), format.Title(tx), format.Counterparty(tx), format.SignedAmount(tx))})
	}
	b.post(out)
}

func (b *bridge) detail(tx models.Transaction) {
	b.post(linesMsg{
		{kind: entryTitle, text: fmt.Sprintf("transaction #%d", tx.ID)},
		{kind: entryPlain, text: "  " + format.Title(tx)},
		{kind: entryPlain, text: "  " + format.SignedAmount(tx)},
		{kind: entryPlain, text: "  counterparty " + format.Counterparty(tx)},
		{kind: entryPlain, text: "  " + format.DateLong(tx.CreatedAt, b.loc)},
	})
}

func promptText(p payflow.Preview) string {
	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		desc = "no description"
	}
	return fmt.Sprintf("pay %s to %s (%s)? [y/N]", p.AmountDisplay(), p.Counterparty, desc)
}

// Confirm shows the dialog and waits for the program to answer it.
func (b *bridge) Confirm(ctx context.Context, p payflow.Preview) (bool, error) {
	b.mu.Lock()
	send, done := b.send, b.done
	b.mu.Unlock()
	if send == nil {
		return false, nil
	}
	reply := make(chan bool, 1)
	send(promptMsg{text: promptText(p), reply: reply})
	select {
	case ok := <-reply:
		return ok, nil
	case <-done:
		return false, nil
	case <-ctx.Done():
		b.post(promptGoneMsg{reply: reply})
		return false, ctx.Err()
	}
}
