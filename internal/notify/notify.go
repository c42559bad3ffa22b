// Package notify carries transient, dismissable user notifications and sorts
// errors into the classes they are reported under.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sync"

	"github.com/baharkarakas/insider-wallet/internal/api"
	"github.com/baharkarakas/insider-wallet/internal/api/validate"
	"github.com/baharkarakas/insider-wallet/internal/format"
	"github.com/baharkarakas/insider-wallet/internal/paylink"
)

// ErrCapability is wrapped by errors from OS capabilities (camera, clipboard, share).
var ErrCapability = errors.New("capability unavailable")

type Kind string
const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

type Class string
const (
	ClassNone        Class = ""
	ClassValidation  Class = "validation"
	ClassTransport   Class = "transport"
	ClassApplication Class = "application"
	ClassCapability  Class = "capability"
)

type Notice struct {
	Kind    Kind
	Class   Class
	Message string
}

type Notifier interface {
	Notify(Notice)
}

// Func adapts a plain function.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

func Success(n Notifier, msg string) { n.Notify(Notice{Kind: KindSuccess, Message: msg}) }
func Info(n Notifier, msg string)    { n.Notify(Notice{Kind: KindInfo, Message: msg}) }

// Error reports err unless it is nil or a cancellation.
func Error(n Notifier, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	n.Notify(Notice{Kind: KindError, Class: Classify(err), Message: err.Error()})
}

func Classify(err error) Class {
	var (
		verrs validate.Errs
		app   *api.AppError
		trans *api.TransportError
		uerr  *url.Error
		nerr  net.Error
	)
	switch {
	case err == nil:
		return ClassNone
	case errors.As(err, &verrs), errors.Is(err, paylink.ErrUnrecognized), errors.Is(err, format.ErrBadAmount):
		return ClassValidation
	case errors.Is(err, ErrCapability):
		return ClassCapability
	case errors.As(err, &app):
		return ClassApplication
	case errors.As(err, &trans), errors.As(err, &uerr), errors.As(err, &nerr), errors.Is(err, context.DeadlineExceeded):
		return ClassTransport
	}
	return ClassApplication
}

// Slog writes notices to a logger; useful as the sink of headless runs.
type Slog struct{ Log *slog.Logger }

func (s Slog) Notify(n Notice) {
	if n.Kind == KindError {
		s.Log.Warn("notice", "class", n.Class, "msg", n.Message)
		return
	}
	s.Log.Info("notice", "kind", n.Kind, "msg", n.Message)
}

// Recorder keeps every notice; safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock(); defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) All() []Notice {
	r.mu.Lock(); defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Errors returns the messages of error notices in order.
func (r *Recorder) Errors() []string {
	r.mu.Lock(); defer r.mu.Unlock()
	var out []string
	for _, n := range r.notices {
		if n.Kind == KindError {
			out = append(out, n.Message)
		}
	}
	return out
}

// Fanout delivers each notice to every sink.
type Fanout []Notifier

func (f Fanout) Notify(n Notice) {
	for _, s := range f {
		s.Notify(n)
	}
}
