package debug

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/baharkarakas/insider-wallet/internal/config"
	"github.com/baharkarakas/insider-wallet/internal/logger"
	"github.com/baharkarakas/insider-wallet/internal/metrics"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	metrics.Init()
	cfg := config.Config{DebugOrigins: []string{"http://localhost:*"}}
	srv := httptest.NewServer(NewRouter(cfg, func() State {
		return State{Page: "account", User: "alice", Filter: "debit", Scanner: "streaming", ScanOpen: true}
	}, logger.Discard()))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t)
	for _, path := range []string{"/health", "/metrics"} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("%s status=%d", path, res.StatusCode)
		}
		if res.Header.Get("X-Request-Id") == "" {
			t.Errorf("%s missing request id", path)
		}
	}
}

func TestState(t *testing.T) {
	srv := newServer(t)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/state", nil)
	req.Header.Set("X-Request-Id", "dash-1")
	req.Header.Set("Origin", "http://localhost:3000")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if got := res.Header.Get("X-Request-Id"); got != "dash-1" {
		t.Errorf("request id=%q", got)
	}
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin=%q", got)
	}
	var st State
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Page != "account" || st.Filter != "debit" || !st.ScanOpen {
		t.Fatalf("state=%+v", st)
	}
}

func TestServeDisabled(t *testing.T) {
	if err := Serve(context.Background(), config.Config{}, http.NotFoundHandler(), logger.Discard()); err != nil {
		t.Fatal(err)
	}
}
