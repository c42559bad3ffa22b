// Package page holds the state that lives exactly as long as one visit to the
// account page: the view model, the scanner and the payment flow. Open builds
// it on entry and Close tears it down on navigation.
package page

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/baharkarakas/insider-wallet/internal/account"
	"github.com/baharkarakas/insider-wallet/internal/api/validate"
	"github.com/baharkarakas/insider-wallet/internal/config"
	"github.com/baharkarakas/insider-wallet/internal/format"
	"github.com/baharkarakas/insider-wallet/internal/models"
	"github.com/baharkarakas/insider-wallet/internal/notify"
	"github.com/baharkarakas/insider-wallet/internal/paylink"
	"github.com/baharkarakas/insider-wallet/internal/payflow"
	"github.com/baharkarakas/insider-wallet/internal/scanner"
	"github.com/baharkarakas/insider-wallet/internal/session"
)

type API interface {
	account.API
	payflow.API
	CreateInvoice(ctx context.Context, r models.InvoiceRequest) (models.Invoice, error)
	CreateQR(ctx context.Context, r models.InvoiceRequest) (models.QRCode, error)
	Transfer(ctx context.Context, r models.TransferRequest) error
}

type Deps struct {
	API       API
	View      account.View
	Confirmer payflow.Confirmer
	Notifier  notify.Notifier
	Navigator session.Navigator
	Camera    scanner.Camera
	Decoder   scanner.Decoder
	// Dispatch runs decode handlers; a worker pool's Submit fits.
	Dispatch func(func()) bool
	Config   config.Config
	Log      *slog.Logger
}

type Account struct {
	api    API
	n      notify.Notifier
	log    *slog.Logger
	resume time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	vm   *account.ViewModel
	scan *scanner.Controller
	flow *payflow.Flow

	mu      sync.Mutex
	modal   bool
	timer   *time.Timer
	closed  bool
	scanCtx context.Context
	dismiss context.CancelFunc // ends a confirmation started from the modal
}

// Open enters the account page and performs the initial load. If the user
// snapshot cannot be fetched the page is torn down, the navigator is sent to
// login and the error is returned.
func Open(ctx context.Context, d Deps) (*Account, error) {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &Account{
		api:    d.API,
		n:      d.Notifier,
		log:    d.Log,
		resume: d.Config.ScanResume,
		ctx:    ctx,
		cancel: cancel,
	}
	a.vm = account.New(ctx, d.API, d.View, account.Options{
		Debounce: d.Config.SearchDebounce,
		Notifier: d.Notifier,
		Log:      d.Log,
	})
	a.scan = scanner.New(d.Camera, d.Decoder, scanner.Options{
		Interval: d.Config.ScanInterval,
		Dispatch: d.Dispatch,
		Log:      d.Log,
	})
	a.scan.OnDecode(a.onDecode)
	a.flow = payflow.New(d.API, modalConfirmer{d.Confirmer}, a.vm, d.Notifier, payflow.Options{
		CloseModal: a.CloseScan,
		Log:        d.Log,
	})

	if err := a.vm.Load(ctx); err != nil {
		if errors.Is(err, account.ErrAuthRequired) {
			a.log.Info("account load failed, back to login", "err", err)
			a.Close()
			d.Navigator.Navigate(session.PageLogin)
			return nil, err
		}
		notify.Error(a.n, err)
	}
	return a, nil
}

func (a *Account) ViewModel() *account.ViewModel { return a.vm }

// Busy reports a payment confirmation in progress.
func (a *Account) Busy() bool { return a.flow.Busy() }

func (a *Account) SetFilter(name string) error {
	f, err := models.ParseFilter(name)
	if err != nil {
		return a.report(validate.Errs{{Field: "filter", Msg: "must be all, debit or credit"}})
	}
	return a.report(a.vm.SetFilter(a.ctx, f))
}

func (a *Account) Search(q string) { a.vm.Search(q) }

func (a *Account) Refresh(ctx context.Context) error { return a.report(a.vm.Refresh(ctx)) }

func (a *Account) Detail(ctx context.Context, id int64) (models.Transaction, error) {
	tx, err := a.vm.Detail(ctx, id)
	return tx, a.report(err)
}

// ---------- scan modal ----------

// OpenScan shows the scan modal and starts the camera. A camera failure is
// reported and the modal stays open for manual entry.
func (a *Account) OpenScan() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.modal = true
	if a.dismiss == nil {
		a.scanCtx, a.dismiss = context.WithCancel(a.ctx)
	}
	a.mu.Unlock()
	return a.report(a.scan.Start(a.ctx))
}

// CloseScan hides the modal and releases the camera. A confirmation opened
// by a scan is dismissed with it and the camera is not reacquired. Safe to
// call repeatedly.
func (a *Account) CloseScan() {
	a.mu.Lock()
	a.modal = false
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	dismiss := a.dismiss
	a.dismiss, a.scanCtx = nil, nil
	a.mu.Unlock()
	if dismiss != nil {
		dismiss()
	}
	a.scan.Stop()
}

func (a *Account) ScanOpen() bool {
	a.mu.Lock(); defer a.mu.Unlock()
	return a.modal
}

func (a *Account) ScanState() scanner.State { return a.scan.State() }

func (a *Account) onDecode(payload string) {
	a.mu.Lock()
	modal, open := a.scanCtx, a.modal
	a.mu.Unlock()
	if !open || modal == nil {
		return
	}
	log := a.log.With("session", a.scan.Session())
	ref, err := paylink.Resolve(payload)
	if err != nil {
		log.Debug("scan not recognized", "payload", payload)
		notify.Error(a.n, err)
		a.resumeLater()
		return
	}
	out, err := a.flow.Run(context.WithValue(a.ctx, modalKey{}, modal), ref)
	if err != nil || out == payflow.OutcomeDeclined {
		a.resumeLater()
	}
}

type modalKey struct{}

// modalConfirmer dismisses a confirmation opened from the scan modal once the
// modal closes. A confirmed payment is not cut short.
type modalConfirmer struct{ next payflow.Confirmer }

func (m modalConfirmer) Confirm(ctx context.Context, p payflow.Preview) (bool, error) {
	modal, ok := ctx.Value(modalKey{}).(context.Context)
	if !ok {
		return m.next.Confirm(ctx, p)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(modal, cancel)
	defer stop()
	return m.next.Confirm(ctx, p)
}

// resumeLater restarts sampling after a pause if the modal is still open.
func (a *Account) resumeLater() {
	a.mu.Lock(); defer a.mu.Unlock()
	if !a.modal || a.closed {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.resume, func() {
		if !a.ScanOpen() {
			return
		}
		notify.Error(a.n, a.scan.Resume(a.ctx))
		// the modal may have closed while the camera was being reopened
		if !a.ScanOpen() {
			a.scan.Stop()
		}
	})
}

// ---------- payments ----------

// Pay runs the confirmation flow for manually entered text.
func (a *Account) Pay(ctx context.Context, text string) (payflow.Outcome, error) {
	ref, err := paylink.Resolve(text)
	if err != nil {
		return "", a.report(err)
	}
	return a.flow.Run(ctx, ref)
}

func (a *Account) amount(s string) (int64, error) {
	cents, err := format.ParseAmount(s)
	if err != nil {
		return 0, validate.Errs{{Field: "amount", Msg: "must be a positive amount"}}
	}
	return cents, nil
}

func (a *Account) CreateInvoice(ctx context.Context, amount, desc string) (models.Invoice, error) {
	cents, err := a.amount(amount)
	if err != nil {
		return models.Invoice{}, a.report(err)
	}
	inv, err := a.api.CreateInvoice(ctx, models.InvoiceRequest{Amount: format.Decimal(cents), Description: strings.TrimSpace(desc)})
	if err != nil {
		return models.Invoice{}, a.report(err)
	}
	notify.Success(a.n, "Invoice created")
	return inv, nil
}

func (a *Account) CreateQR(ctx context.Context, amount, desc string) (models.QRCode, error) {
	cents, err := a.amount(amount)
	if err != nil {
		return models.QRCode{}, a.report(err)
	}
	qr, err := a.api.CreateQR(ctx, models.InvoiceRequest{Amount: format.Decimal(cents), Description: strings.TrimSpace(desc)})
	return qr, a.report(err)
}

// Transfer sends money to a username and then reloads balance and list the
// same way a paid invoice does.
func (a *Account) Transfer(ctx context.Context, to, amount, desc string) error {
	to = strings.TrimPrefix(strings.TrimSpace(to), "@")
	cents, err := a.amount(amount)
	if verr := validate.Required("recipient_username", to); verr != nil {
		return a.report(validate.Errs{*verr})
	}
	if err != nil {
		return a.report(err)
	}
	req := models.TransferRequest{RecipientUsername: to, Amount: format.Decimal(cents), Description: strings.TrimSpace(desc)}
	if err := a.api.Transfer(ctx, req); err != nil {
		return a.report(err)
	}
	notify.Success(a.n, "Transfer completed")
	return a.report(a.vm.Refresh(ctx))
}

func (a *Account) report(err error) error {
	notify.Error(a.n, err)
	return err
}

// Close is the navigation teardown: the camera is released, pending searches
// are dropped and late results are ignored.
func (a *Account) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.CloseScan()
	a.vm.Close()
	a.cancel()
}
