// Package account holds the state behind the account page: the user
// snapshot, the filter/search pair and the rendered transaction list.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/baharkarakas/insider-wallet/internal/metrics"
	"github.com/baharkarakas/insider-wallet/internal/models"
	"github.com/baharkarakas/insider-wallet/internal/notify"
)

// ErrAuthRequired marks an initial load that could not fetch the user.
var ErrAuthRequired = errors.New("authorization required")

type API interface {
	Me(ctx context.Context) (models.User, error)
	Transactions(ctx context.Context, q models.TxQuery) ([]models.Transaction, error)
	Transaction(ctx context.Context, id int64) (models.Transaction, error)
}

// View receives every applied change. Calls are serialized and made with the
// view model locked, so a View must not call back into it.
type View interface {
	RenderUser(u models.User)
	RenderTransactions(d Diff)
}

type Options struct {
	Debounce time.Duration
	Notifier notify.Notifier
	Log      *slog.Logger
}

type ViewModel struct {
	api  API
	view View
	n    notify.Notifier
	log  *slog.Logger
	ctx  context.Context

	search debouncer

	mu       sync.Mutex
	query    models.TxQuery
	listGen  uint64
	userGen  uint64
	user     models.User
	hasUser  bool
	txs      []models.Transaction
	selected int64
	closed   bool
}

// New starts with an empty query (filter "all"). ctx bounds debounced refreshes.
func New(ctx context.Context, api API, view View, opts Options) *ViewModel {
	if opts.Debounce <= 0 {
		opts.Debounce = 250 * time.Millisecond
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Slog{Log: opts.Log}
	}
	return &ViewModel{
		api:    api,
		view:   view,
		n:      opts.Notifier,
		log:    opts.Log,
		ctx:    ctx,
		search: debouncer{wait: opts.Debounce},
		query:  models.TxQuery{Filter: models.FilterAll},
	}
}

func (vm *ViewModel) Query() models.TxQuery {
	vm.mu.Lock(); defer vm.mu.Unlock()
	return vm.query
}

func (vm *ViewModel) User() (models.User, bool) {
	vm.mu.Lock(); defer vm.mu.Unlock()
	return vm.user, vm.hasUser
}

func (vm *ViewModel) Transactions() []models.Transaction {
	vm.mu.Lock(); defer vm.mu.Unlock()
	return append([]models.Transaction(nil), vm.txs...)
}

// Selected is the id of the row whose detail is open, 0 if none.
func (vm *ViewModel) Selected() int64 {
	vm.mu.Lock(); defer vm.mu.Unlock()
	return vm.selected
}

func (vm *ViewModel) Deselect() {
	vm.mu.Lock(); defer vm.mu.Unlock()
	vm.selected = 0
}

// SetFilter applies immediately and absorbs any pending search refresh.
func (vm *ViewModel) SetFilter(ctx context.Context, f models.TxFilter) error {
	vm.search.cancel()
	vm.mu.Lock()
	vm.query.Filter = f
	vm.mu.Unlock()
	return vm.RefreshTransactions(ctx)
}

// Search records the query and schedules a refresh after the quiet period.
// Errors of the deferred refresh go to the notifier.
func (vm *ViewModel) Search(q string) {
	vm.mu.Lock()
	vm.query.Search = q
	vm.mu.Unlock()
	vm.search.schedule(func() {
		notify.Error(vm.n, vm.RefreshTransactions(vm.ctx))
	})
}

// RefreshTransactions fetches the list for the current filter/query pair.
// Only the most recently issued fetch is applied; an older one that settles
// later, successfully or not, is dropped and returns nil.
func (vm *ViewModel) RefreshTransactions(ctx context.Context) error {
	vm.mu.Lock()
	vm.listGen++
	gen, q := vm.listGen, vm.query
	vm.mu.Unlock()

	txs, err := vm.api.Transactions(ctx, q)

	vm.mu.Lock(); defer vm.mu.Unlock()
	if gen != vm.listGen || vm.closed {
		metrics.Refreshes.WithLabelValues("transactions", "stale").Inc()
		vm.log.Debug("stale transaction list dropped", "filter", q.Filter, "q", q.Search)
		return nil
	}
	if err != nil {
		metrics.Refreshes.WithLabelValues("transactions", "failed").Inc()
		return fmt.Errorf("load transactions: %w", err)
	}
	d := Reconcile(vm.txs, txs)
	for _, id := range d.Removed {
		if id == vm.selected {
			vm.selected = 0
		}
	}
	vm.txs = txs
	metrics.Refreshes.WithLabelValues("transactions", "applied").Inc()
	vm.view.RenderTransactions(d)
	return nil
}

// RefreshBalance replaces the user snapshot wholesale.
func (vm *ViewModel) RefreshBalance(ctx context.Context) error {
	vm.mu.Lock()
	vm.userGen++
	gen := vm.userGen
	vm.mu.Unlock()

	u, err := vm.api.Me(ctx)

	vm.mu.Lock(); defer vm.mu.Unlock()
	if gen != vm.userGen || vm.closed {
		metrics.Refreshes.WithLabelValues("balance", "stale").Inc()
		return nil
	}
	if err != nil {
		metrics.Refreshes.WithLabelValues("balance", "failed").Inc()
		return fmt.Errorf("load balance: %w", err)
	}
	vm.user, vm.hasUser = u, true
	metrics.Refreshes.WithLabelValues("balance", "applied").Inc()
	vm.view.RenderUser(u)
	return nil
}

// Refresh runs both fetches in parallel and returns after both settle.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return vm.RefreshBalance(ctx) })
	g.Go(func() error { return vm.RefreshTransactions(ctx) })
	return g.Wait()
}

// Load is the page-entry fetch. A failed user fetch wraps ErrAuthRequired so
// the caller can send the user back to login.
func (vm *ViewModel) Load(ctx context.Context) error {
	var g errgroup.Group
	var userErr error
	g.Go(func() error { userErr = vm.RefreshBalance(ctx); return nil })
	g.Go(func() error { return vm.RefreshTransactions(ctx) })
	listErr := g.Wait()
	if userErr != nil {
		return fmt.Errorf("%w: %w", ErrAuthRequired, userErr)
	}
	return listErr
}

// Detail fetches one transaction and marks it selected.
func (vm *ViewModel) Detail(ctx context.Context, id int64) (models.Transaction, error) {
	tx, err := vm.api.Transaction(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	vm.mu.Lock()
	vm.selected = id
	vm.mu.Unlock()
	return tx, nil
}

// Close drops pending searches; results arriving afterwards are discarded.
func (vm *ViewModel) Close() {
	vm.search.cancel()
	vm.mu.Lock(); defer vm.mu.Unlock()
	vm.closed = true
}
