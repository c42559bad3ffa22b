package page

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/baharkarakas/insider-wallet/internal/account"
	"github.com/baharkarakas/insider-wallet/internal/api"
	"github.com/baharkarakas/insider-wallet/internal/api/apitest"
	"github.com/baharkarakas/insider-wallet/internal/api/validate"
	"github.com/baharkarakas/insider-wallet/internal/config"
	"github.com/baharkarakas/insider-wallet/internal/logger"
	"github.com/baharkarakas/insider-wallet/internal/models"
	"github.com/baharkarakas/insider-wallet/internal/notify"
	"github.com/baharkarakas/insider-wallet/internal/payflow"
	"github.com/baharkarakas/insider-wallet/internal/scanner"
	"github.com/baharkarakas/insider-wallet/internal/session"
	"github.com/baharkarakas/insider-wallet/internal/worker"
)

type view struct {
	mu    sync.Mutex
	users int
	lists int
}

func (v *view) RenderUser(models.User)          { v.mu.Lock(); defer v.mu.Unlock(); v.users++ }
func (v *view) RenderTransactions(account.Diff) { v.mu.Lock(); defer v.mu.Unlock(); v.lists++ }

type confirmer struct {
	mu       sync.Mutex
	previews []payflow.Preview
	answer   bool
	// when hold is set, Confirm signals asked and waits for hold or ctx
	hold  chan struct{}
	asked chan struct{}
}

func (c *confirmer) Confirm(ctx context.Context, p payflow.Preview) (bool, error) {
	c.mu.Lock()
	c.previews = append(c.previews, p)
	hold, asked, answer := c.hold, c.asked, c.answer
	c.mu.Unlock()
	if hold == nil {
		return answer, nil
	}
	asked <- struct{}{}
	select {
	case <-hold:
		return answer, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *confirmer) holdAnswers() {
	c.mu.Lock(); defer c.mu.Unlock()
	c.hold = make(chan struct{})
	c.asked = make(chan struct{}, 1)
}

func (c *confirmer) seen() []payflow.Preview {
	c.mu.Lock(); defer c.mu.Unlock()
	return append([]payflow.Preview(nil), c.previews...)
}

type pages struct {
	mu   sync.Mutex
	last session.Page
}

func (p *pages) Navigate(pg session.Page) { p.mu.Lock(); defer p.mu.Unlock(); p.last = pg }

type env struct {
	b     *apitest.Backend
	alice int64
	bob   int64
	feed  *scanner.Feed
	conf  *confirmer
	rec   *notify.Recorder
	nav   *pages
	view  *view
	page  *Account
}

func setup(t *testing.T, login bool) (*env, error) {
	t.Helper()
	b := apitest.New()
	t.Cleanup(b.Close)
	e := &env{
		b:    b,
		feed: scanner.NewFeed(),
		conf: &confirmer{answer: true},
		rec:  &notify.Recorder{},
		nav:  &pages{},
		view: &view{},
	}
	e.alice = b.AddUser("alice", "secret1", 100000)
	e.bob = b.AddUser("bob", "secret2", 0)
	b.AddTx(e.bob, e.alice, 500, "refund")

	jar, _ := cookiejar.New(nil)
	c := api.NewWithHTTPClient(b.URL(), &http.Client{Jar: jar}, logger.Discard())
	if login {
		if err := c.Login(context.Background(), models.Credentials{Username: "alice", Password: "secret1"}); err != nil {
			t.Fatal(err)
		}
	}

	pool := worker.NewPool(2)
	t.Cleanup(pool.Stop)
	p, err := Open(context.Background(), Deps{
		API:       c,
		View:      e.view,
		Confirmer: e.conf,
		Notifier:  e.rec,
		Navigator: e.nav,
		Camera:    e.feed,
		Decoder:   scanner.TextDecoder{},
		Dispatch:  pool.Submit,
		Config: config.Config{
			SearchDebounce: 10 * time.Millisecond,
			ScanInterval:   time.Millisecond,
			ScanResume:     10 * time.Millisecond,
		},
		Log: logger.Discard(),
	})
	if p != nil {
		t.Cleanup(p.Close)
	}
	e.page = p
	return e, err
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoginThenAccountLoadsOnce(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	if n := e.b.Calls("GET /api/me"); n != 1 {
		t.Fatalf("me calls=%d", n)
	}
	if n := e.b.Calls("GET /api/transactions"); n != 1 {
		t.Fatalf("list calls=%d", n)
	}
	u, ok := e.page.ViewModel().User()
	if !ok || u.BalanceCents != 100000 {
		t.Fatalf("user=%+v", u)
	}
	if got := e.page.ViewModel().Transactions(); len(got) != 1 || got[0].Description != "refund" {
		t.Fatalf("list=%+v", got)
	}
}

func TestLoadWithoutSessionGoesToLogin(t *testing.T) {
	e, err := setup(t, false)
	if !errors.Is(err, account.ErrAuthRequired) {
		t.Fatalf("err=%v", err)
	}
	if e.page != nil {
		t.Fatal("page returned after auth failure")
	}
	if e.nav.last != session.PageLogin {
		t.Fatalf("page=%q", e.nav.last)
	}
	if n := e.rec.Errors(); len(n) != 0 {
		t.Fatalf("auth failure on load should navigate, not notify: %v", n)
	}
}

func TestScanPaysInvoice(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	inv := e.b.AddInvoice(e.bob, 25000, "concert", "pending")

	if err := e.page.OpenScan(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "camera open", e.feed.IsOpen)
	e.feed.Push("PAY:" + strconv.FormatInt(inv, 10))

	eventually(t, "modal closed", func() bool { return !e.page.ScanOpen() })

	pv := e.conf.seen()
	if len(pv) != 1 || pv[0].Amount != 25000 || pv[0].Description != "concert" || pv[0].Counterparty != "@bob" {
		t.Fatalf("previews=%+v", pv)
	}
	if n := e.b.Calls("POST /api/pay"); n != 1 {
		t.Fatalf("pay calls=%d", n)
	}
	if e.b.InvoiceStatus(inv) != "paid" {
		t.Fatalf("status=%q", e.b.InvoiceStatus(inv))
	}
	if me, list := e.b.Calls("GET /api/me"), e.b.Calls("GET /api/transactions"); me != 2 || list != 2 {
		t.Fatalf("me=%d list=%d, want one load and one refresh each", me, list)
	}
	u, _ := e.page.ViewModel().User()
	if u.BalanceCents != 75000 {
		t.Fatalf("balance=%d", u.BalanceCents)
	}
	if got := e.page.ViewModel().Transactions(); len(got) != 2 || got[0].Description != "concert" {
		t.Fatalf("list=%+v", got)
	}
	if e.feed.IsOpen() {
		t.Fatal("camera still held")
	}
}

func TestUnrecognizedScanResumes(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	inv := e.b.AddInvoice(e.bob, 100, "", "pending")

	if err := e.page.OpenScan(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "camera open", e.feed.IsOpen)
	e.feed.Push("hello")
	eventually(t, "error notice", func() bool { return len(e.rec.Errors()) == 1 })
	if msg := e.rec.Errors()[0]; msg != "could not recognize invoice" {
		t.Fatalf("msg=%q", msg)
	}

	eventually(t, "scanner resumed", func() bool { return e.feed.Opens() == 2 && e.feed.IsOpen() })
	e.feed.Push("PAY:" + strconv.FormatInt(inv, 10))
	eventually(t, "modal closed", func() bool { return !e.page.ScanOpen() })
	if e.b.InvoiceStatus(inv) != "paid" {
		t.Fatal("invoice not paid after resume")
	}
}

func TestScanOfSettledInvoiceNeverPays(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	inv := e.b.AddInvoice(e.bob, 100, "", "paid")

	if err := e.page.OpenScan(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "camera open", e.feed.IsOpen)
	e.feed.Push("https://w.example/invoice/" + strconv.FormatInt(inv, 10))
	eventually(t, "error notice", func() bool { return len(e.rec.Errors()) == 1 })

	if n := e.b.Calls("POST /api/pay"); n != 0 {
		t.Fatalf("pay calls=%d", n)
	}
	if len(e.conf.seen()) != 0 {
		t.Fatal("confirmation shown")
	}
	if !e.page.ScanOpen() {
		t.Fatal("modal closed after a failed scan")
	}
	eventually(t, "scanner resumed", func() bool { return e.feed.Opens() == 2 })
}

func TestCloseReleasesCamera(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.page.OpenScan(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "camera open", e.feed.IsOpen)

	e.page.Close()
	if e.feed.IsOpen() {
		t.Fatal("camera held after page close")
	}
	if e.page.ScanState() != scanner.StateIdle {
		t.Fatalf("state=%q", e.page.ScanState())
	}
	if err := e.page.OpenScan(); err != nil || e.feed.IsOpen() {
		t.Fatal("scan reopened on a closed page")
	}
}

func TestCameraDeniedKeepsManualEntry(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	e.feed.Deny(errors.New("permission denied"))
	inv := e.b.AddInvoice(e.bob, 300, "tea", "pending")

	if err := e.page.OpenScan(); !errors.Is(err, notify.ErrCapability) {
		t.Fatalf("err=%v", err)
	}
	if n := e.rec.All(); len(n) != 1 || n[0].Class != notify.ClassCapability {
		t.Fatalf("notices=%+v", n)
	}

	out, err := e.page.Pay(context.Background(), "  pay:"+strconv.FormatInt(inv, 10))
	if err != nil || out != payflow.OutcomePaid {
		t.Fatalf("out=%q err=%v", out, err)
	}
}

func TestManualEntryUnrecognized(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.page.Pay(context.Background(), "abc"); err == nil {
		t.Fatal("expected error")
	}
	if n := e.rec.All(); len(n) != 1 || n[0].Class != notify.ClassValidation {
		t.Fatalf("notices=%+v", n)
	}
	if n := e.b.Calls("GET /api/invoices/{id}"); n != 0 {
		t.Fatalf("invoice fetched for unrecognized text")
	}
}

func TestTransfer(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	err = e.page.Transfer(ctx, "@bob", "12,5", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := e.b.Balance(e.bob); got != 1250 {
		t.Fatalf("bob balance=%d", got)
	}
	u, _ := e.page.ViewModel().User()
	if u.BalanceCents != 100000-1250 {
		t.Fatalf("balance not refreshed: %d", u.BalanceCents)
	}

	before := e.b.Calls("POST /api/transfer")
	err = e.page.Transfer(ctx, "bob", "-1", "")
	var verrs validate.Errs
	if !errors.As(err, &verrs) || e.b.Calls("POST /api/transfer") != before {
		t.Fatalf("err=%v, bad amount should fail before the network", err)
	}
}

func TestCreateInvoiceAndQR(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	inv, err := e.page.CreateInvoice(ctx, "1 250,50", " rent ")
	if err != nil {
		t.Fatal(err)
	}
	if inv.Amount != 125050 || inv.Description != "rent" || inv.Payload == "" {
		t.Fatalf("invoice=%+v", inv)
	}

	qr, err := e.page.CreateQR(ctx, "10", "")
	if err != nil || len(qr.PNG) == 0 || qr.Paylink == "" {
		t.Fatalf("qr=%+v err=%v", qr, err)
	}
}

func TestFilterAndSearch(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	e.b.AddTx(e.alice, e.bob, 100, "coffee")

	if err := e.page.SetFilter("debit"); err != nil {
		t.Fatal(err)
	}
	got := e.page.ViewModel().Transactions()
	if len(got) != 1 || got[0].Description != "coffee" {
		t.Fatalf("debits=%+v", got)
	}
	if err := e.page.SetFilter("sideways"); err == nil {
		t.Fatal("unknown filter accepted")
	}

	_ = e.page.SetFilter("all")
	e.page.Search("REF")
	eventually(t, "search applied", func() bool {
		list := e.page.ViewModel().Transactions()
		return len(list) == 1 && list[0].Description == "refund"
	})
}

// scanToPrompt opens the modal and scans a pending invoice, returning once
// the confirmation is waiting.
func scanToPrompt(t *testing.T, e *env) int64 {
	t.Helper()
	inv := e.b.AddInvoice(e.bob, 25000, "concert", "pending")
	e.conf.holdAnswers()
	if err := e.page.OpenScan(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "camera open", e.feed.IsOpen)
	e.feed.Push("PAY:" + strconv.FormatInt(inv, 10))
	select {
	case <-e.conf.asked:
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation never asked")
	}
	return inv
}

// stayReleased checks the camera is free and is not reacquired after the
// resume pause has passed several times over.
func stayReleased(t *testing.T, e *env, opens int) {
	t.Helper()
	eventually(t, "payment flow unwound", func() bool { return !e.page.Busy() })
	time.Sleep(60 * time.Millisecond)
	if e.feed.IsOpen() || e.feed.Opens() != opens {
		t.Fatalf("camera held=%v opens=%d want %d", e.feed.IsOpen(), e.feed.Opens(), opens)
	}
	if st := e.page.ScanState(); st != scanner.StateIdle {
		t.Fatalf("scanner state=%q", st)
	}
}

func TestCloseScanDuringConfirmationReleasesCamera(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	inv := scanToPrompt(t, e)
	opens := e.feed.Opens()

	e.page.CloseScan()

	stayReleased(t, e, opens)
	if e.page.ScanOpen() {
		t.Fatal("modal still open")
	}
	if n := e.b.Calls("POST /api/pay"); n != 0 || e.b.InvoiceStatus(inv) != "pending" {
		t.Fatalf("pay calls=%d status=%q", n, e.b.InvoiceStatus(inv))
	}
	if errs := e.rec.Errors(); len(errs) != 0 {
		t.Fatalf("dismissal is not an error: %v", errs)
	}
}

func TestLeavingPageDuringConfirmationReleasesCamera(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	inv := scanToPrompt(t, e)
	opens := e.feed.Opens()

	e.page.Close()

	stayReleased(t, e, opens)
	if n := e.b.Calls("POST /api/pay"); n != 0 || e.b.InvoiceStatus(inv) != "pending" {
		t.Fatalf("pay calls=%d status=%q", n, e.b.InvoiceStatus(inv))
	}
}

func TestManualConfirmationOutlivesModal(t *testing.T) {
	e, err := setup(t, true)
	if err != nil {
		t.Fatal(err)
	}
	inv := e.b.AddInvoice(e.bob, 1000, "tea", "pending")
	e.conf.holdAnswers()

	res := make(chan payflow.Outcome, 1)
	go func() {
		out, _ := e.page.Pay(context.Background(), "PAY:"+strconv.FormatInt(inv, 10))
		res <- out
	}()
	<-e.conf.asked
	e.page.CloseScan()
	close(e.conf.hold)

	if out := <-res; out != payflow.OutcomePaid {
		t.Fatalf("outcome=%q", out)
	}
	if e.b.InvoiceStatus(inv) != "paid" {
		t.Fatalf("status=%q", e.b.InvoiceStatus(inv))
	}
}
