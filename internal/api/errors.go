package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any failed call the server answered with 401.
var ErrUnauthorized = errors.New("unauthorized")

// TransportError is a non-success status without a structured error body.
type TransportError struct {
	Status int
}

func (e *TransportError) Error() string { return fmt.Sprintf("status %d", e.Status) }

func (e *TransportError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// AppError carries the server's own message from an ok:false envelope.
type AppError struct {
	Status  int
	Message string
	Code    string
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}
