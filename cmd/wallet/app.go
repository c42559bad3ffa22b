package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/baharkarakas/insider-wallet/internal/api"
	"github.com/baharkarakas/insider-wallet/internal/api/validate"
	"github.com/baharkarakas/insider-wallet/internal/config"
	"github.com/baharkarakas/insider-wallet/internal/debug"
	"github.com/baharkarakas/insider-wallet/internal/format"
	"github.com/baharkarakas/insider-wallet/internal/models"
	"github.com/baharkarakas/insider-wallet/internal/notify"
	"github.com/baharkarakas/insider-wallet/internal/page"
	"github.com/baharkarakas/insider-wallet/internal/scanner"
	"github.com/baharkarakas/insider-wallet/internal/session"
	"github.com/baharkarakas/insider-wallet/internal/worker"
)

// app is one client process, the terminal counterpart of one browser tab.
// It owns the page state; the program in model.go drives it one command at
// a time.
type app struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.Config
	log    *slog.Logger
	api    *api.Client
	ui     *bridge
	hist   *scrollback
	n      notify.Notifier
	feed   *scanner.Feed
	pool   *worker.Pool
	sess   *session.Session

	mu   sync.Mutex
	cur  session.Page
	next session.Page
	acct *page.Account
	last string // last invoice payload or paylink, for copy
}

func newApp(ctx context.Context, cfg config.Config, client *api.Client, log *slog.Logger) *app {
	ui := newBridge(cfg.Location())
	a := &app{
		cfg:  cfg,
		log:  log,
		api:  client,
		ui:   ui,
		hist: &scrollback{},
		n:    notify.Fanout{ui, notify.Slog{Log: log}},
		feed: scanner.NewFeed(),
		pool: worker.NewPool(cfg.Workers),
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.sess = session.New(client, a, a.n, log)
	return a
}

// program builds the terminal program and connects the bridge to it.
func (a *app) program(opts ...tea.ProgramOption) *tea.Program {
	p := tea.NewProgram(newModel(a), append([]tea.ProgramOption{tea.WithContext(a.ctx)}, opts...)...)
	a.ui.attach(p.Send)
	return p
}

func (a *app) Navigate(p session.Page) {
	a.mu.Lock(); defer a.mu.Unlock()
	a.next = p
}

func (a *app) account() *page.Account {
	a.mu.Lock(); defer a.mu.Unlock()
	return a.acct
}

func (a *app) page() session.Page {
	a.mu.Lock(); defer a.mu.Unlock()
	return a.cur
}

// settle performs queued navigations. Entering a page may queue another one,
// as when the account page finds the session expired.
func (a *app) settle() {
	for {
		a.mu.Lock()
		next := a.next
		a.next = ""
		a.mu.Unlock()
		if next == "" {
			return
		}
		a.enter(a.ctx, next)
	}
}

func (a *app) enter(ctx context.Context, p session.Page) {
	a.mu.Lock()
	old := a.acct
	if p != session.PageAccount {
		a.acct = nil
	}
	a.cur = p
	a.mu.Unlock()
	if old != nil && p != session.PageAccount {
		old.Close()
	}
	a.ui.post(pageMsg(p))

	switch p {
	case session.PageLogin:
		a.ui.printf(entryTitle, "-- login: login <user> <password> | register <user> <password> <confirm> | id <user_id>")
	case session.PageAccount:
		if old != nil {
			return
		}
		acct, err := page.Open(ctx, page.Deps{
			API:       a.api,
			View:      a.ui,
			Confirmer: a.ui,
			Notifier:  a.n,
			Navigator: a,
			Camera:    a.feed,
			Decoder:   scanner.TextDecoder{},
			Dispatch:  a.pool.Submit,
			Config:    a.cfg,
			Log:       a.log,
		})
		if err != nil {
			return
		}
		a.mu.Lock()
		a.acct = acct
		a.mu.Unlock()
		a.ui.printf(entryTitle, "-- account: type help for commands")
	case session.PageProfile:
		u, err := a.sess.Profile(ctx)
		if err != nil {
			return
		}
		a.ui.printf(entryTitle, "-- profile: %s %s, born %s", u.DisplayName(), format.Handle(u.Username), orDash(u.BirthDate))
	}
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// scanFrame feeds a line to the camera while the scan modal is open. Command
// words are left to the command loop. Called from Update, so it only records
// to the scrollback and never goes through the bridge.
func (a *app) scanFrame(line string) bool {
	acct := a.account()
	if acct == nil || !acct.ScanOpen() {
		return false
	}
	if word := firstWord(line); controlWords[word] || word == "pay" || word == "help" {
		return false
	}
	if !a.feed.Push(line) {
		a.hist.add(entry{kind: entryInfo, text: "· camera is not streaming; type pay <reference> or close"})
	}
	return true
}

// shutdown runs once the program has exited.
func (a *app) shutdown() {
	a.ui.detach()
	a.cancel()
	a.mu.Lock()
	acct := a.acct
	a.acct = nil
	a.mu.Unlock()
	if acct != nil {
		acct.Close()
	}
	a.pool.Stop()
}

// exec runs one command line and reports whether the client should exit.
func (a *app) exec(line string) bool {
	ctx := a.ctx
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		a.help()
		return false
	}

	switch a.page() {
	case session.PageLogin:
		a.loginCmd(ctx, cmd, args)
	case session.PageAccount:
		a.accountCmd(ctx, cmd, args)
	case session.PageProfile:
		a.profileCmd(ctx, cmd, args)
	}
	return false
}

func (a *app) unknown(cmd string) {
	a.ui.printf(entryInfo, "unknown command %q, type help", cmd)
}

func (a *app) usage(u string) {
	notify.Error(a.n, validate.Errs{{Field: "usage", Msg: u}})
}

func (a *app) loginCmd(ctx context.Context, cmd string, args []string) {
	switch cmd {
	case "login":
		if len(args) != 2 {
			a.usage("login <user> <password>")
			return
		}
		_ = a.sess.Login(ctx, models.Credentials{Username: args[0], Password: args[1]})
	case "register":
		if len(args) < 3 {
			a.usage("register <user> <password> <confirm> [first] [last] [patronymic]")
			return
		}
		r := models.Registration{Username: args[0], Password: args[1], PasswordConfirm: args[2]}
		names := append(args[3:], "", "", "")
		r.FirstName, r.LastName, r.Patronymic = names[0], names[1], names[2]
		_ = a.sess.Register(ctx, r)
	case "id":
		if len(args) != 1 {
			a.usage("id <user_id>")
			return
		}
		_ = a.sess.LoginByID(ctx, args[0])
	default:
		a.unknown(cmd)
	}
}

func (a *app) accountCmd(ctx context.Context, cmd string, args []string) {
	acct := a.account()
	if acct == nil {
		return
	}
	rest := strings.Join(args, " ")
	switch cmd {
	case "refresh", "balance":
		_ = acct.Refresh(ctx)
	case "filter":
		_ = acct.SetFilter(rest)
	case "search":
		acct.Search(rest)
	case "show":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			a.usage("show <transaction id>")
			return
		}
		if tx, err := acct.Detail(ctx, id); err == nil {
			a.ui.detail(tx)
		}
	case "scan":
		if err := acct.OpenScan(); err == nil {
			a.ui.printf(entryInfo, "scanning: enter a scanned code, pay <reference> or close")
		} else {
			a.ui.printf(entryInfo, "camera unavailable: pay <reference> still works")
		}
	case "close", "cancel":
		acct.CloseScan()
	case "pay":
		if rest == "" {
			a.usage("pay <PAY:id | link | id>")
			return
		}
		_, _ = acct.Pay(ctx, rest)
	case "invoice":
		if len(args) < 1 {
			a.usage("invoice <amount> [description]")
			return
		}
		inv, err := acct.CreateInvoice(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return
		}
		a.remember(inv.Payload)
		a.ui.printf(entryPlain, "invoice #%d for %s: %s", inv.ID, format.Money(inv.Amount), inv.Payload)
	case "qr":
		if len(args) < 1 {
			a.usage("qr <amount> [description]")
			return
		}
		a.qr(ctx, acct, args[0], strings.Join(args[1:], " "))
	case "copy":
		a.copyLast()
	case "transfer":
		if len(args) < 2 {
			a.usage("transfer <@user> <amount> [description]")
			return
		}
		_ = acct.Transfer(ctx, args[0], args[1], strings.Join(args[2:], " "))
	case "profile":
		a.Navigate(session.PageProfile)
	case "logout":
		a.sess.Logout(ctx)
	default:
		a.unknown(cmd)
	}
}

func (a *app) remember(s string) {
	a.mu.Lock(); defer a.mu.Unlock()
	a.last = s
}

func (a *app) copyLast() {
	a.mu.Lock()
	s := a.last
	a.mu.Unlock()
	if s == "" {
		notify.Info(a.n, "nothing to copy yet")
		return
	}
	if err := copyToClipboard(s); err != nil {
		notify.Error(a.n, err)
		a.ui.printf(entryPlain, "%s", s)
		return
	}
	notify.Success(a.n, "Copied")
}

func (a *app) qr(ctx context.Context, acct *page.Account, amount, desc string) {
	qr, err := acct.CreateQR(ctx, amount, desc)
	if err != nil {
		return
	}
	f, err := os.CreateTemp("", "wallet-qr-*.png")
	if err != nil {
		notify.Error(a.n, fmt.Errorf("save qr: %w", err))
		return
	}
	defer f.Close()
	if _, err := f.Write(qr.PNG); err != nil {
		notify.Error(a.n, fmt.Errorf("save qr: %w", err))
		return
	}
	a.ui.printf(entryPlain, "qr saved to %s", f.Name())
	if qr.Paylink != "" {
		a.remember(qr.Paylink)
		a.ui.printf(entryPlain, "paylink: %s", qr.Paylink)
	}
}

func (a *app) profileCmd(ctx context.Context, cmd string, args []string) {
	switch cmd {
	case "update":
		upd, err := parseProfile(args)
		if err != nil {
			notify.Error(a.n, err)
			return
		}
		_ = a.sess.UpdateProfile(ctx, upd)
	case "password":
		if len(args) != 3 {
			a.usage("password <old> <new> <confirm>")
			return
		}
		_ = a.sess.ChangePassword(ctx, models.PasswordChange{OldPassword: args[0], NewPassword: args[1], NewPasswordConfirm: args[2]})
	case "back", "account":
		a.Navigate(session.PageAccount)
	case "logout":
		a.sess.Logout(ctx)
	default:
		a.unknown(cmd)
	}
}

// parseProfile reads first=, last=, patronymic= and birth= pairs.
func parseProfile(args []string) (models.ProfileUpdate, error) {
	var upd models.ProfileUpdate
	var errs validate.Errs
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		switch {
		case !ok:
			errs = append(errs, validate.ErrField{Field: kv, Msg: "expected key=value"})
		case k == "first":
			upd.FirstName = v
		case k == "last":
			upd.LastName = v
		case k == "patronymic":
			upd.Patronymic = v
		case k == "birth":
			upd.BirthDate = v
		default:
			errs = append(errs, validate.ErrField{Field: k, Msg: "unknown field"})
		}
	}
	if len(errs) > 0 {
		return models.ProfileUpdate{}, errs
	}
	return upd, nil
}

var helpText = map[session.Page][]string{
	session.PageLogin: {
		"login <user> <password>",
		"register <user> <password> <confirm> [first] [last] [patronymic]",
		"id <user_id>",
		"quit",
	},
	session.PageAccount: {
		"refresh | filter all|debit|credit | search <text> | show <id>",
		"scan | close | pay <reference>",
		"invoice <amount> [desc] | qr <amount> [desc] | copy | transfer <@user> <amount> [desc]",
		"profile | logout | quit",
	},
	session.PageProfile: {
		"update first=.. last=.. patronymic=.. birth=YYYY-MM-DD",
		"password <old> <new> <confirm>",
		"back | logout | quit",
	},
}

func (a *app) help() {
	lines := helpText[a.page()]
	out := make(linesMsg, 0, len(lines))
	for _, l := range lines {
		out = append(out, entry{kind: entryInfo, text: l})
	}
	a.ui.post(out)
}

// state feeds the debug listener.
func (a *app) state() debug.State {
	st := debug.State{Page: string(a.page())}
	acct := a.account()
	if acct == nil {
		return st
	}
	q := acct.ViewModel().Query()
	st.Filter, st.Search = string(q.Filter), q.Search
	if u, ok := acct.ViewModel().User(); ok {
		st.User = u.Username
	}
	st.Scanner = string(acct.ScanState())
	st.ScanOpen = acct.ScanOpen()
	st.PaymentBusy = acct.Busy()
	return st
}
