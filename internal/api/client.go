// Package api is the wallet backend client. Every call is attempted exactly
// once; retrying is the caller's decision.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/baharkarakas/insider-wallet/internal/api/httpx"
	"github.com/baharkarakas/insider-wallet/internal/config"
	"github.com/baharkarakas/insider-wallet/internal/metrics"
)

type Client struct {
	base string
	hc   *http.Client
	log  *slog.Logger
}

// New builds a client whose cookie jar carries the server-held session.
func New(cfg config.Config, log *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return NewWithHTTPClient(cfg.BaseURL, &http.Client{Jar: jar, Timeout: cfg.HTTPTimeout}, log), nil
}

func NewWithHTTPClient(base string, hc *http.Client, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{base: strings.TrimRight(base, "/"), hc: hc, log: log}
}

// Call sends one JSON request and normalizes the outcome. A nil error means the
// transport succeeded and the envelope did not mark itself unsuccessful.
func (c *Client) Call(ctx context.Context, method, path string, body interface{}) (httpx.Payload, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return httpx.Payload{}, fmt.Errorf("encode %s: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return httpx.Payload{}, err
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)

	route := metrics.Route(path)
	start := time.Now()
	resp, err := c.hc.Do(req)
	metrics.APILatency.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(route, method, "error").Inc()
		c.log.Debug("api call failed", "method", method, "path", path, "request_id", reqID, "err", err)
		return httpx.Payload{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.APIRequests.WithLabelValues(route, method, strconv.Itoa(resp.StatusCode)).Inc()
	c.log.Debug("api call", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", reqID, "took", time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpx.Payload{}, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	if name, ok := httpx.Attachment(resp.Header); ok {
		if !success {
			return httpx.Payload{Status: resp.StatusCode}, &TransportError{Status: resp.StatusCode}
		}
		if raw == nil {
			raw = []byte{}
		}
		return httpx.Payload{Status: resp.StatusCode, Binary: raw, Filename: name}, nil
	}

	p := httpx.Payload{Status: resp.StatusCode, Fields: httpx.ParseFields(raw)}
	if success && !p.Unsuccessful() {
		return p, nil
	}
	if msg := p.String("error"); msg != "" {
		return p, &AppError{Status: resp.StatusCode, Message: msg, Code: p.String("code")}
	}
	return p, &TransportError{Status: resp.StatusCode}
}

func (c *Client) get(ctx context.Context, path string) (httpx.Payload, error) {
	return c.Call(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (httpx.Payload, error) {
	return c.Call(ctx, http.MethodPost, path, body)
}

func (c *Client) put(ctx context.Context, path string, body interface{}) (httpx.Payload, error) {
	return c.Call(ctx, http.MethodPut, path, body)
}
