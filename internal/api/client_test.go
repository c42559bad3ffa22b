package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/baharkarakas/insider-wallet/internal/api/apitest"
	"github.com/baharkarakas/insider-wallet/internal/logger"
	"github.com/baharkarakas/insider-wallet/internal/models"
)

func newClient(t *testing.T, base string) *Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewWithHTTPClient(base, &http.Client{Jar: jar}, logger.Discard())
}

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return newClient(t, srv.URL)
}

func TestCallSendsJSONHeaders(t *testing.T) {
	var gotCT, gotReqID string
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		gotReqID = r.Header.Get("X-Request-Id")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	if _, err := c.Call(context.Background(), http.MethodGet, "/api/me", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCT != "application/json" {
		t.Errorf("content-type=%q", gotCT)
	}
	if gotReqID == "" {
		t.Error("missing request id")
	}
}

func TestCallOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		attachment bool
		wantErr    string
		wantApp    bool
		wantBinary bool
	}{
		{name: "ok envelope", status: 200, body: `{"ok":true,"x":1}`},
		{name: "no ok field", status: 200, body: `{"x":1}`},
		{name: "unparseable success body", status: 200, body: `<html>`},
		{name: "explicit failure", status: 200, body: `{"ok":false,"error":"insufficient funds"}`, wantErr: "insufficient funds", wantApp: true},
		{name: "failure without message", status: 200, body: `{"ok":false}`, wantErr: "status 200"},
		{name: "http error with message", status: 400, body: `{"error":"bad amount"}`, wantErr: "bad amount", wantApp: true},
		{name: "http error without body", status: 502, body: `bad gateway`, wantErr: "status 502"},
		{name: "attachment", status: 200, body: "PNGDATA", attachment: true, wantBinary: true},
		{name: "attachment with error status", status: 500, body: `{"ok":false,"error":"ignored"}`, attachment: true, wantErr: "status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.attachment {
					w.Header().Set("Content-Disposition", `attachment; filename="qr.png"`)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			p, err := c.Call(context.Background(), http.MethodPost, "/api/x", map[string]int{"a": 1})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("err=%v want %q", err, tt.wantErr)
				}
				var app *AppError
				if errors.As(err, &app) != tt.wantApp {
					t.Errorf("AppError=%v want %v", !tt.wantApp, tt.wantApp)
				}
			}
			if p.IsBinary() != tt.wantBinary {
				t.Errorf("binary=%v want %v", p.IsBinary(), tt.wantBinary)
			}
			if tt.wantBinary && (string(p.Binary) != tt.body || p.Filename != "qr.png") {
				t.Errorf("binary=%q name=%q", p.Binary, p.Filename)
			}
		})
	}
}

func TestUnauthorizedMatches(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error":"authorization required"}`))
	})
	_, err := c.Me(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v want ErrUnauthorized", err)
	}
}

func TestCallIsAttemptedOnce(t *testing.T) {
	calls := 0
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, _ = c.Transactions(context.Background(), models.TxQuery{Filter: models.FilterAll})
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestEndpointsAgainstBackend(t *testing.T) {
	b := apitest.New()
	defer b.Close()
	alice := b.AddUser("alice", "secret1", 50000)
	bob := b.AddUser("bob", "secret2", 1000)
	b.AddTx(alice, bob, 1500, "coffee")
	b.AddTx(bob, alice, 700, "lunch")
	inv := b.AddInvoice(bob, 2500, "book", "pending")

	ctx := context.Background()
	c := newClient(t, b.URL())

	if _, err := c.Me(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Me before login err=%v", err)
	}
	if err := c.Login(ctx, models.Credentials{Username: "alice", Password: "nope"}); err == nil || err.Error() != "invalid username or password" {
		t.Fatalf("bad login err=%v", err)
	}
	if err := c.Login(ctx, models.Credentials{Username: "alice", Password: "secret1"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	me, err := c.Me(ctx)
	if err != nil || me.Username != "alice" || me.BalanceCents != 50000 {
		t.Fatalf("me=%+v err=%v", me, err)
	}

	all, err := c.Transactions(ctx, models.TxQuery{Filter: models.FilterAll})
	if err != nil || len(all) != 2 {
		t.Fatalf("all=%v err=%v", all, err)
	}
	if all[0].Description != "lunch" || all[0].Type != models.TxnCredit {
		t.Errorf("newest first expected, got %+v", all[0])
	}
	debits, _ := c.Transactions(ctx, models.TxQuery{Filter: models.FilterDebit})
	if len(debits) != 1 || debits[0].Description != "coffee" {
		t.Errorf("debits=%+v", debits)
	}
	found, _ := c.Transactions(ctx, models.TxQuery{Filter: models.FilterAll, Search: "LUN"})
	if len(found) != 1 {
		t.Errorf("search=%+v", found)
	}

	tx, err := c.Transaction(ctx, all[1].ID)
	if err != nil || tx.CounterpartyUsername != "bob" {
		t.Errorf("tx=%+v err=%v", tx, err)
	}

	got, err := c.Invoice(ctx, inv)
	if err != nil || got.Status != models.InvoicePending || got.CreatorUsername != "bob" {
		t.Fatalf("invoice=%+v err=%v", got, err)
	}
	if err := c.PayInvoice(ctx, inv); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if err := c.PayInvoice(ctx, inv); err == nil {
		t.Fatal("second payment of the same invoice should fail")
	}
	if b.Balance(alice) != 47500 {
		t.Errorf("balance=%d want 47500", b.Balance(alice))
	}

	link := b.Paylink(bob, 300, "tea")
	pv, err := c.PreviewPaylink(ctx, link)
	if err != nil || pv.RecipientUsername != "bob" || pv.Amount != 300 {
		t.Fatalf("preview=%+v err=%v", pv, err)
	}
	if err := c.PayPaylink(ctx, link); err != nil {
		t.Fatalf("pay paylink: %v", err)
	}

	qr, err := c.CreateQR(ctx, models.InvoiceRequest{Amount: "10", Description: "x"})
	if err != nil || string(qr.PNG) != string(apitest.PNG) || qr.Paylink == "" {
		t.Fatalf("qr=%+v err=%v", qr, err)
	}
	b.ServeQRAsAttachment(true)
	qr, err = c.CreateQR(ctx, models.InvoiceRequest{Amount: "10"})
	if err != nil || string(qr.PNG) != string(apitest.PNG) || qr.Paylink != "" {
		t.Fatalf("attachment qr=%+v err=%v", qr, err)
	}

	created, err := c.CreateInvoice(ctx, models.InvoiceRequest{Amount: "12", Description: "rent"})
	if err != nil || created.Amount != 1200 || created.Payload == "" {
		t.Fatalf("created=%+v err=%v", created, err)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := c.Me(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Me after logout err=%v", err)
	}
}

func TestDecodeDataURL(t *testing.T) {
	tests := map[string]string{
		"data:image/png;base64,aGk=": "hi",
		"aGk=":                       "hi",
		"data:text/plain,a%20b":      "a b",
	}
	for in, want := range tests {
		got, err := decodeDataURL(in)
		if err != nil || string(got) != want {
			t.Errorf("decodeDataURL(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := decodeDataURL("data:broken"); err == nil {
		t.Error("expected error")
	}
}

func TestTransactionsKeepsGoodRows(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"items":[` +
			`{"id":9,"type":"credit","amount_cents":300,"created_at":"2024-05-02T08:00:00Z"},` +
			`{"id":8,"type":"chargeback","amount_cents":1},` +
			`{"id":7,"direction":"out","amount_cents":200,"created_at":"2024-05-01T08:00:00"}]}`))
	})
	items, err := c.Transactions(context.Background(), models.TxQuery{Filter: models.FilterAll})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(items) != 2 || items[0].ID != 9 || items[1].ID != 7 || items[1].Type != models.TxnDebit {
		t.Fatalf("items=%+v", items)
	}

	c = serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"items":{"id":1}}`))
	})
	if _, err := c.Transactions(context.Background(), models.TxQuery{Filter: models.FilterAll}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("non-array items err=%v", err)
	}
}
