// Package apitest runs an in-memory wallet backend for tests. It speaks the
// same envelope as the real server and keeps per-route call counts.
package apitest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baharkarakas/insider-wallet/internal/api/httpx"
	"github.com/baharkarakas/insider-wallet/internal/format"
)

const sessionCookie = "session"

// PNG is the image body served by /api/qr/create.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

type User struct {
	ID       int64
	Username string
	Password string
	FullName string
	Balance  int64
}

type Tx struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	Amount      int64
	Description string
	CreatedAt   time.Time
}

type Invoice struct {
	ID          int64
	CreatorID   int64
	Amount      int64
	Description string
	Status      string
}

type Backend struct {
	mu       sync.Mutex
	users    map[int64]*User
	sessions map[string]int64
	txs      []*Tx
	invoices map[int64]*Invoice
	nextID   int64
	calls    map[string]int
	hooks    map[string]func(*http.Request)
	now      time.Time

	qrAttachment bool

	srv *httptest.Server
}

func New() *Backend {
	b := &Backend{
		users:    map[int64]*User{},
		sessions: map[string]int64{},
		invoices: map[int64]*Invoice{},
		calls:    map[string]int{},
		hooks:    map[string]func(*http.Request){},
		now:      time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	b.srv = httptest.NewServer(b.Router())
	return b
}

func (b *Backend) URL() string { return b.srv.URL }
func (b *Backend) Close()      { b.srv.Close() }

func (b *Backend) id() int64 { b.nextID++; return b.nextID }

func (b *Backend) AddUser(username, password string, balance int64) int64 {
	b.mu.Lock(); defer b.mu.Unlock()
	u := &User{ID: b.id(), Username: username, Password: password, FullName: strings.ToUpper(username[:1]) + username[1:], Balance: balance}
	b.users[u.ID] = u
	return u.ID
}

func (b *Backend) AddTx(sender, receiver, amount int64, desc string) int64 {
	b.mu.Lock(); defer b.mu.Unlock()
	return b.addTxLocked(sender, receiver, amount, desc)
}

func (b *Backend) addTxLocked(sender, receiver, amount int64, desc string) int64 {
	b.now = b.now.Add(time.Minute)
	tx := &Tx{ID: b.id(), SenderID: sender, ReceiverID: receiver, Amount: amount, Description: desc, CreatedAt: b.now}
	b.txs = append(b.txs, tx)
	return tx.ID
}

func (b *Backend) AddInvoice(creator, amount int64, desc, status string) int64 {
	b.mu.Lock(); defer b.mu.Unlock()
	inv := &Invoice{ID: b.id(), CreatorID: creator, Amount: amount, Description: desc, Status: status}
	b.invoices[inv.ID] = inv
	return inv.ID
}

// ServeQRAsAttachment switches /api/qr/create to a binary response.
func (b *Backend) ServeQRAsAttachment(on bool) {
	b.mu.Lock(); defer b.mu.Unlock()
	b.qrAttachment = on
}

func (b *Backend) Balance(userID int64) int64 {
	b.mu.Lock(); defer b.mu.Unlock()
	if u, ok := b.users[userID]; ok {
		return u.Balance
	}
	return 0
}

func (b *Backend) InvoiceStatus(id int64) string {
	b.mu.Lock(); defer b.mu.Unlock()
	if inv, ok := b.invoices[id]; ok {
		return inv.Status
	}
	return ""
}

// Calls counts requests by "METHOD /route/pattern".
func (b *Backend) Calls(key string) int {
	b.mu.Lock(); defer b.mu.Unlock()
	return b.calls[key]
}

// Hook runs fn before the handler for key; fn may block to hold a request in flight.
func (b *Backend) Hook(key string, fn func(*http.Request)) {
	b.mu.Lock(); defer b.mu.Unlock()
	b.hooks[key] = fn
}

// Paylink builds a link in the backend's signed format.
func (b *Backend) Paylink(recipient, amount int64, desc string) string {
	q := url.Values{}
	q.Set("rid", strconv.FormatInt(recipient, 10))
	q.Set("amt", strconv.FormatInt(amount, 10))
	q.Set("desc", desc)
	q.Set("ts", "1700000000")
	q.Set("sig", "test")
	return b.srv.URL + "/paylink?" + q.Encode()
}

func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", b.login)
		r.Post("/login_by_id", b.loginByID)
		r.Post("/register", b.register)
		r.Post("/logout", b.logout)

		r.Group(func(r chi.Router) {
			r.Use(b.auth)
			r.Get("/me", b.me)
			r.Put("/me", b.updateMe)
			r.Put("/me/password", b.changePassword)
			r.Get("/transactions", b.listTx)
			r.Get("/transactions/{id}", b.getTx)
			r.Post("/transfer", b.transfer)
			r.Post("/invoices", b.createInvoice)
			r.Get("/invoices/{id}", b.getInvoice)
			r.Post("/pay/preview", b.preview)
			r.Post("/pay", b.pay)
			r.Post("/qr/create", b.createQR)
		})
	})
	return r
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + routeKey(r.URL.Path)
		b.mu.Lock()
		b.calls[key]++
		hook := b.hooks[key]
		b.mu.Unlock()
		if hook != nil {
			hook(r)
		}
		next.ServeHTTP(w, r)
	})
}

func routeKey(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func (b *Backend) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			fail(w, http.StatusUnauthorized, "authorization required")
			return
		}
		b.mu.Lock()
		_, ok := b.sessions[c.Value]
		b.mu.Unlock()
		if !ok {
			fail(w, http.StatusUnauthorized, "authorization required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// current must be called with b.mu held.
func (b *Backend) current(r *http.Request) *User {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	return b.users[b.sessions[c.Value]]
}

func fail(w http.ResponseWriter, status int, msg string) {
	httpx.WriteError(w, status, "", msg, nil)
}

func ok(w http.ResponseWriter, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["ok"] = true
	httpx.WriteJSON(w, http.StatusOK, data)
}

func decode(r *http.Request, v interface{}) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func (b *Backend) startSession(w http.ResponseWriter, userID int64) {
	tok := uuid.NewString()
	b.sessions[tok] = userID
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: tok, Path: "/", HttpOnly: true})
}

// ---------- session ----------

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct{ Username, Password string }
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	b.mu.Lock(); defer b.mu.Unlock()
	for _, u := range b.users {
		if u.Username == strings.TrimSpace(req.Username) && u.Password == req.Password {
			b.startSession(w, u.ID)
			ok(w, nil)
			return
		}
	}
	fail(w, http.StatusBadRequest, "invalid username or password")
}

func (b *Backend) loginByID(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	id, _ := strconv.ParseInt(req.UserID, 10, 64)
	b.mu.Lock(); defer b.mu.Unlock()
	if _, found := b.users[id]; !found {
		fail(w, http.StatusNotFound, "user not found"); return
	}
	b.startSession(w, id)
	ok(w, nil)
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	b.mu.Lock(); defer b.mu.Unlock()
	if len(strings.TrimSpace(req.Username)) < 3 {
		fail(w, http.StatusBadRequest, "username must be at least 3 characters"); return
	}
	for _, u := range b.users {
		if u.Username == req.Username {
			fail(w, http.StatusBadRequest, "username already taken"); return
		}
	}
	u := &User{ID: b.id(), Username: req.Username, Password: req.Password, Balance: 100000}
	b.users[u.ID] = u
	b.startSession(w, u.ID)
	ok(w, nil)
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		b.mu.Lock()
		delete(b.sessions, c.Value)
		b.mu.Unlock()
	}
	ok(w, nil)
}

// ---------- profile ----------

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock(); defer b.mu.Unlock()
	u := b.current(r)
	ok(w, map[string]interface{}{"user": map[string]interface{}{
		"id":            u.ID,
		"username":      u.Username,
		"full_name":     u.FullName,
		"balance_cents": u.Balance,
	}})
}

func (b *Backend) updateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	b.mu.Lock(); defer b.mu.Unlock()
	u := b.current(r)
	u.FullName = strings.TrimSpace(req.FirstName + " " + req.LastName)
	ok(w, map[string]interface{}{"message": "profile updated"})
}

func (b *Backend) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	b.mu.Lock(); defer b.mu.Unlock()
	u := b.current(r)
	if u.Password != req.OldPassword {
		fail(w, http.StatusBadRequest, "wrong password"); return
	}
	u.Password = req.NewPassword
	ok(w, map[string]interface{}{"message": "password changed"})
}

// ---------- transactions ----------

func (b *Backend) txJSON(tx *Tx, viewer int64) map[string]interface{} {
	typ, other := "credit", tx.SenderID
	if tx.SenderID == viewer {
		typ, other = "debit", tx.ReceiverID
	}
	out := map[string]interface{}{
		"id":           tx.ID,
		"type":         typ,
		"amount_cents": tx.Amount,
		"description":  tx.Description,
		"created_at":   tx.CreatedAt.Format(time.RFC3339),
	}
	if cp, found := b.users[other]; found {
		out["counterparty_username"] = cp.Username
		out["counterparty_id"] = cp.ID
	}
	return out
}

func (b *Backend) listTx(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	q := strings.ToLower(r.URL.Query().Get("q"))
	b.mu.Lock(); defer b.mu.Unlock()
	u := b.current(r)
	var rows []*Tx
	for _, tx := range b.txs {
		switch {
		case typ == "debit" && tx.SenderID != u.ID,
			typ == "credit" && tx.ReceiverID != u.ID,
			tx.SenderID != u.ID && tx.ReceiverID != u.ID:
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(tx.Description), q) {
			continue
		}
		rows = append(rows, tx)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	items := make([]map[string]interface{}, 0, len(rows))
	for _, tx := range rows {
		items = append(items, b.txJSON(tx, u.ID))
	}
	ok(w, map[string]interface{}{"items": items})
}

func (b *Backend) getTx(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	b.mu.Lock(); defer b.mu.Unlock()
	u := b.current(r)
	for _, tx := range b.txs {
		if tx.ID == id && (tx.SenderID == u.ID || tx.ReceiverID == u.ID) {
			ok(w, map[string]interface{}{"transaction": b.txJSON(tx, u.ID)})
			return
		}
	}
	fail(w, http.StatusNotFound, "transaction not found")
}

func (b *Backend) transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientUsername string `json:"recipient_username"`
		Amount            string `json:"amount"`
		Description       string `json:"description"`
	}
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	amount, err := format.ParseAmount(req.Amount)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid amount"); return
	}
	b.mu.Lock(); defer b.mu.Unlock()
	payer := b.current(r)
	var to *User
	for _, u := range b.users {
		if u.Username == req.RecipientUsername {
			to = u
		}
	}
	if to == nil {
		fail(w, http.StatusBadRequest, "recipient not found"); return
	}
	b.moveLocked(w, payer, to, amount, req.Description)
}

func (b *Backend) moveLocked(w http.ResponseWriter, payer, to *User, amount int64, desc string) bool {
	if payer.ID == to.ID {
		fail(w, http.StatusBadRequest, "cannot pay yourself"); return false
	}
	if payer.Balance < amount {
		fail(w, http.StatusBadRequest, "insufficient funds"); return false
	}
	payer.Balance -= amount
	to.Balance += amount
	b.addTxLocked(payer.ID, to.ID, amount, desc)
	ok(w, map[string]interface{}{"balance_cents": payer.Balance})
	return true
}

// ---------- invoices ----------

func (b *Backend) invoiceJSON(inv *Invoice) map[string]interface{} {
	out := map[string]interface{}{
		"id":           inv.ID,
		"amount_cents": inv.Amount,
		"description":  inv.Description,
		"creator_id":   inv.CreatorID,
		"status":       inv.Status,
		"payload":      "PAY:" + strconv.FormatInt(inv.ID, 10),
		"qr_url":       "/qr/" + strconv.FormatInt(inv.ID, 10) + ".png",
	}
	if u, found := b.users[inv.CreatorID]; found {
		out["creator_username"] = u.Username
	}
	return out
}

func (b *Backend) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	amount, err := format.ParseAmount(req.Amount)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid amount"); return
	}
	b.mu.Lock(); defer b.mu.Unlock()
	inv := &Invoice{ID: b.id(), CreatorID: b.current(r).ID, Amount: amount, Description: req.Description, Status: "pending"}
	b.invoices[inv.ID] = inv
	ok(w, map[string]interface{}{"invoice": b.invoiceJSON(inv)})
}

func (b *Backend) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	b.mu.Lock(); defer b.mu.Unlock()
	inv, found := b.invoices[id]
	if !found {
		fail(w, http.StatusNotFound, "invoice not found"); return
	}
	ok(w, map[string]interface{}{"invoice": b.invoiceJSON(inv)})
}

type parsedLink struct {
	recipient int64
	amount    int64
	desc      string
}

func parseLink(link string) (parsedLink, bool) {
	u, err := url.Parse(link)
	if err != nil || u.Path != "/paylink" {
		return parsedLink{}, false
	}
	q := u.Query()
	rid, err1 := strconv.ParseInt(q.Get("rid"), 10, 64)
	amt, err2 := strconv.ParseInt(q.Get("amt"), 10, 64)
	if err1 != nil || err2 != nil || q.Get("sig") == "" {
		return parsedLink{}, false
	}
	return parsedLink{recipient: rid, amount: amt, desc: q.Get("desc")}, true
}

func (b *Backend) preview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paylink string `json:"paylink"`
	}
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	pl, valid := parseLink(req.Paylink)
	if !valid {
		fail(w, http.StatusBadRequest, "malformed paylink"); return
	}
	b.mu.Lock(); defer b.mu.Unlock()
	to, found := b.users[pl.recipient]
	if !found {
		fail(w, http.StatusBadRequest, "recipient not found"); return
	}
	if to.ID == b.current(r).ID {
		fail(w, http.StatusBadRequest, "cannot pay yourself"); return
	}
	ok(w, map[string]interface{}{"invoice": map[string]interface{}{
		"recipient_id":       to.ID,
		"recipient_username": to.Username,
		"amount_cents":       pl.amount,
		"description":        pl.desc,
	}})
}

func (b *Backend) pay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceID int64  `json:"invoice_id"`
		Paylink   string `json:"paylink"`
	}
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	b.mu.Lock(); defer b.mu.Unlock()
	payer := b.current(r)
	if req.Paylink != "" {
		pl, valid := parseLink(req.Paylink)
		to, found := b.users[pl.recipient]
		if !valid || !found {
			fail(w, http.StatusBadRequest, "malformed paylink"); return
		}
		b.moveLocked(w, payer, to, pl.amount, pl.desc)
		return
	}
	inv, found := b.invoices[req.InvoiceID]
	if !found {
		fail(w, http.StatusNotFound, "invoice not found"); return
	}
	if inv.Status != "pending" {
		fail(w, http.StatusConflict, "invoice already paid or cancelled"); return
	}
	if b.moveLocked(w, payer, b.users[inv.CreatorID], inv.Amount, inv.Description) {
		inv.Status = "paid"
	}
}

func (b *Backend) createQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}
	if !decode(r, &req) {
		fail(w, http.StatusBadRequest, "bad request"); return
	}
	amount, err := format.ParseAmount(req.Amount)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid amount"); return
	}
	b.mu.Lock()
	attach := b.qrAttachment
	b.mu.Unlock()
	if attach {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", `attachment; filename="invoice.png"`)
		_, _ = w.Write(PNG)
		return
	}
	b.mu.Lock()
	link := b.Paylink(b.current(r).ID, amount, req.Description)
	b.mu.Unlock()
	ok(w, map[string]interface{}{
		"paylink":       link,
		"qr_png_base64": "data:image/png;base64," + base64.StdEncoding.EncodeToString(PNG),
	})
}
