// Package payflow takes a resolved invoice reference through preview,
// explicit confirmation, payment and the refresh that follows.
package payflow

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/baharkarakas/insider-wallet/internal/format"
	"github.com/baharkarakas/insider-wallet/internal/metrics"
	"github.com/baharkarakas/insider-wallet/internal/models"
	"github.com/baharkarakas/insider-wallet/internal/notify"
	"github.com/baharkarakas/insider-wallet/internal/paylink"
)

var (
	ErrBusy       = errors.New("another payment is in progress")
	ErrNotPending = errors.New("invoice already paid or cancelled")
)

type API interface {
	Invoice(ctx context.Context, id int64) (models.Invoice, error)
	PreviewPaylink(ctx context.Context, link string) (models.PaylinkInvoice, error)
	PayInvoice(ctx context.Context, id int64) error
	PayPaylink(ctx context.Context, link string) error
}

// Preview is what the user is asked to approve.
type Preview struct {
	Ref          paylink.Reference
	Amount       int64
	Counterparty string
	Description  string
}

func (p Preview) AmountDisplay() string { return format.Money(p.Amount) }

type Confirmer interface {
	Confirm(ctx context.Context, p Preview) (bool, error)
}

type ConfirmFunc func(ctx context.Context, p Preview) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p Preview) (bool, error) { return f(ctx, p) }

// Refresher reloads balance and transaction list, returning once both settle.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeDeclined Outcome = "declined"
)

type Options struct {
	// CloseModal dismisses the scan/pay dialog after a successful payment.
	CloseModal func()
	Log        *slog.Logger
}

type Flow struct {
	api      API
	confirm  Confirmer
	refresh  Refresher
	notifier notify.Notifier
	close    func()
	log      *slog.Logger

	busy atomic.Bool
}

func New(api API, c Confirmer, r Refresher, n notify.Notifier, opts Options) *Flow {
	f := &Flow{api: api, confirm: c, refresh: r, notifier: n, close: opts.CloseModal, log: opts.Log}
	if f.close == nil {
		f.close = func() {}
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f
}

// Busy is true while a confirmation is open or a payment is in flight; the
// submit control stays disabled for that whole span.
func (f *Flow) Busy() bool { return f.busy.Load() }

// Run is not re-entrant: a second call while one is in progress fails with
// ErrBusy and issues no request. On any failure the error is reported and
// returned, and balance and list are left as they were.
func (f *Flow) Run(ctx context.Context, ref paylink.Reference) (Outcome, error) {
	if !f.busy.CompareAndSwap(false, true) {
		metrics.Payments.WithLabelValues("busy").Inc()
		notify.Error(f.notifier, ErrBusy)
		return "", ErrBusy
	}
	defer f.busy.Store(false)

	log := f.log.With("ref", ref.String())
	pv, err := f.preview(ctx, ref)
	if err != nil {
		return "", f.fail(log, "preview", err)
	}
	ok, err := f.confirm.Confirm(ctx, pv)
	if err != nil {
		return "", f.fail(log, "confirm", err)
	}
	if !ok {
		metrics.Payments.WithLabelValues("declined").Inc()
		log.Debug("payment declined")
		return OutcomeDeclined, nil
	}
	if err := f.pay(ctx, ref); err != nil {
		return "", f.fail(log, "pay", err)
	}
	metrics.Payments.WithLabelValues("paid").Inc()
	log.Info("payment completed", "amount", pv.Amount)
	notify.Success(f.notifier, "Payment successful")

	// the payment stands even if the reload fails; the view reports it
	if err := f.refresh.Refresh(ctx); err != nil {
		log.Warn("refresh after payment", "err", err)
		notify.Error(f.notifier, err)
	}
	f.close()
	return OutcomePaid, nil
}

func (f *Flow) fail(log *slog.Logger, step string, err error) error {
	outcome := "failed"
	if errors.Is(err, ErrNotPending) {
		outcome = "not_pending"
	}
	metrics.Payments.WithLabelValues(outcome).Inc()
	log.Debug("payment flow stopped", "step", step, "err", err)
	notify.Error(f.notifier, err)
	return err
}

func (f *Flow) preview(ctx context.Context, ref paylink.Reference) (Preview, error) {
	if ref.IsPaylink() {
		inv, err := f.api.PreviewPaylink(ctx, ref.Paylink)
		if err != nil {
			return Preview{}, err
		}
		who := format.Handle(inv.RecipientUsername)
		if inv.RecipientUsername == "" {
			who = "ID:" + strconv.FormatInt(inv.RecipientID, 10)
		}
		return Preview{Ref: ref, Amount: inv.Amount, Counterparty: who, Description: inv.Description}, nil
	}

	inv, err := f.api.Invoice(ctx, ref.InvoiceID)
	if err != nil {
		return Preview{}, err
	}
	if inv.Status != models.InvoicePending {
		return Preview{}, ErrNotPending
	}
	who := format.Handle(inv.CreatorUsername)
	if inv.CreatorUsername == "" {
		who = "ID:" + strconv.FormatInt(inv.CreatorID, 10)
	}
	return Preview{Ref: ref, Amount: inv.Amount, Counterparty: who, Description: inv.Description}, nil
}

func (f *Flow) pay(ctx context.Context, ref paylink.Reference) error {
	if ref.IsPaylink() {
		return f.api.PayPaylink(ctx, ref.Paylink)
	}
	return f.api.PayInvoice(ctx, ref.InvoiceID)
}
