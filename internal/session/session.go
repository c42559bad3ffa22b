// Package session drives the login, registration, logout and profile
// transitions. Each action is one API call followed by navigation or a notice.
package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/baharkarakas/insider-wallet/internal/api/validate"
	"github.com/baharkarakas/insider-wallet/internal/models"
	"github.com/baharkarakas/insider-wallet/internal/notify"
)

type Page string

const (
	PageLogin   Page = "login"
	PageAccount Page = "account"
	PageProfile Page = "profile"
)

type Navigator interface {
	Navigate(p Page)
}

type NavigatorFunc func(Page)

func (f NavigatorFunc) Navigate(p Page) { f(p) }

type API interface {
	Login(ctx context.Context, cr models.Credentials) error
	LoginByID(ctx context.Context, userID string) error
	Register(ctx context.Context, r models.Registration) error
	Logout(ctx context.Context) error
	Me(ctx context.Context) (models.User, error)
	UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (string, error)
	ChangePassword(ctx context.Context, pc models.PasswordChange) (string, error)
}

type Session struct {
	api API
	nav Navigator
	n   notify.Notifier
	log *slog.Logger
}

func New(api API, nav Navigator, n notify.Notifier, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{api: api, nav: nav, n: n, log: log}
}

// report sends err to the notifier and hands it back.
func (s *Session) report(err error) error {
	notify.Error(s.n, err)
	return err
}

// Login leaves the caller's form untouched on failure so it can be retried.
func (s *Session) Login(ctx context.Context, cr models.Credentials) error {
	cr.Username = strings.TrimSpace(cr.Username)
	if err := validate.Collect(
		validate.Required("username", cr.Username),
		validate.Required("password", cr.Password),
	); err != nil {
		return s.report(err)
	}
	if err := s.api.Login(ctx, cr); err != nil {
		return s.report(err)
	}
	s.log.Info("logged in", "username", cr.Username)
	s.nav.Navigate(PageAccount)
	return nil
}

// LoginByID ignores an empty id.
func (s *Session) LoginByID(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if err := s.api.LoginByID(ctx, id); err != nil {
		return s.report(err)
	}
	s.log.Info("logged in by id", "user_id", id)
	s.nav.Navigate(PageAccount)
	return nil
}

// Register checks the password confirmation before anything is sent.
func (s *Session) Register(ctx context.Context, r models.Registration) error {
	r.Username = strings.TrimSpace(r.Username)
	if err := validate.Collect(
		validate.Required("username", r.Username),
		validate.Required("password", r.Password),
		validate.Match("password_confirm", r.Password, r.PasswordConfirm),
	); err != nil {
		return s.report(err)
	}
	if err := s.api.Register(ctx, r); err != nil {
		return s.report(err)
	}
	notify.Success(s.n, "Account created, welcome!")
	s.nav.Navigate(PageAccount)
	return nil
}

// Logout always ends on the login page; the API outcome is only logged.
func (s *Session) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.log.Warn("logout", "err", err)
	}
	s.nav.Navigate(PageLogin)
}

// Profile loads the snapshot that pre-fills the profile form. Without it the
// page cannot be shown, so failure returns to login.
func (s *Session) Profile(ctx context.Context) (models.User, error) {
	u, err := s.api.Me(ctx)
	if err != nil {
		s.report(err)
		s.nav.Navigate(PageLogin)
		return models.User{}, err
	}
	return u, nil
}

func (s *Session) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) error {
	if err := validate.Collect(
		validate.MaxLen("first_name", upd.FirstName, 100),
		validate.MaxLen("last_name", upd.LastName, 100),
		validate.MaxLen("patronymic", upd.Patronymic, 100),
	); err != nil {
		return s.report(err)
	}
	msg, err := s.api.UpdateProfile(ctx, upd)
	if err != nil {
		return s.report(err)
	}
	if msg == "" {
		msg = "Profile updated"
	}
	notify.Success(s.n, msg)
	return nil
}

func (s *Session) ChangePassword(ctx context.Context, pc models.PasswordChange) error {
	if err := validate.Collect(
		validate.Required("old_password", pc.OldPassword),
		validate.Required("new_password", pc.NewPassword),
		validate.Match("new_password_confirm", pc.NewPassword, pc.NewPasswordConfirm),
	); err != nil {
		return s.report(err)
	}
	msg, err := s.api.ChangePassword(ctx, pc)
	if err != nil {
		return s.report(err)
	}
	if msg == "" {
		msg = "Password changed"
	}
	notify.Success(s.n, msg)
	return nil
}
