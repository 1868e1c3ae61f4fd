package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/authgate/pkg/auth/apikey"
	"github.com/rhuss/authgate/pkg/auth/basic"
	"github.com/rhuss/authgate/pkg/config"
	"github.com/rhuss/authgate/pkg/gateway"
)

func newTestHandler(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	gw, err := gateway.New(context.Background(), &cfg, nil)
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	t.Cleanup(func() { gw.Close() })
	return newHandler(gw, &cfg)
}

func keyConfig() config.Config {
	cfg := config.Defaults()
	cfg.Auth.Links = []config.LinkConfig{{
		Type: config.LinkTypeAPIKey,
		Keys: []config.APIKeyConfig{{Key: "sk-alice", Subject: "alice", TenantID: "acme", Scopes: []string{"read"}}},
	}}
	cfg.Auth.AntiForgery.Enabled = true
	return cfg
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestHandler(t, keyConfig())

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := keyConfig()
	cfg.Observability.Metrics.Enabled = false
	h := newTestHandler(t, cfg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics = %d, want 404", rec.Code)
	}
}

func TestWhoami(t *testing.T) {
	h := newTestHandler(t, keyConfig())

	r := httptest.NewRequest("GET", "/api/whoami", nil)
	r.Header.Set(apikey.DefaultHeader, "sk-alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var got whoamiResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Subject != "alice" || got.AuthType != apikey.Scheme || got.TenantID != "acme" || len(got.Scopes) != 1 {
		t.Errorf("whoami = %+v", got)
	}
}

func TestWhoamiRequiresAuthentication(t *testing.T) {
	h := newTestHandler(t, keyConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/whoami", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestEcho(t *testing.T) {
	h := newTestHandler(t, keyConfig())

	r := httptest.NewRequest("POST", "/api/echo", strings.NewReader(`{"hello":"world"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(apikey.DefaultHeader, "sk-alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"hello":"world"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Authenticated-Subject") != "alice" {
		t.Errorf("X-Authenticated-Subject = %q, want alice", rec.Header().Get("X-Authenticated-Subject"))
	}
}

func TestAntiForgeryEndpoint(t *testing.T) {
	h := newTestHandler(t, keyConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/antiforgery", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Error("expected a token cookie")
	}

	cfg := keyConfig()
	cfg.Auth.AntiForgery.Enabled = false
	h = newTestHandler(t, cfg)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/antiforgery", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled: status = %d, want 404", rec.Code)
	}
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHashPasswordCmd(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"flag", "", []string{"hash-password", "--password", "s3cret", "--cost", "4"}},
		{"stdin", "s3cret\n", []string{"hash-password", "--cost", "4"}},
		{"stdin without newline", "s3cret", []string{"hash-password", "--cost", "4"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := runCmd(t, tc.stdin, tc.args...)
			if err != nil {
				t.Fatalf("hash-password: %v", err)
			}
			hash := strings.TrimSpace(out)
			if err := basic.VerifyPassword(hash, "s3cret"); err != nil {
				t.Errorf("printed hash does not verify: %v", err)
			}
		})
	}
}

func TestHashPasswordCmdEmpty(t *testing.T) {
	if _, err := runCmd(t, "\n", "hash-password"); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "authgate "+version {
		t.Errorf("version output = %q", out)
	}
}

func TestAPIKeyAddRequiresSubject(t *testing.T) {
	_, err := runCmd(t, "", "apikey", "add", "--dsn", "postgres://localhost/none")
	if err == nil || !strings.Contains(err.Error(), "--subject") {
		t.Errorf("err = %v, want missing subject", err)
	}
}

func TestKeyStoreConfig(t *testing.T) {
	cfg, err := keyStoreConfig("", "postgres://db/authgate")
	if err != nil || cfg.DSN != "postgres://db/authgate" {
		t.Errorf("explicit dsn: cfg=%+v err=%v", cfg, err)
	}

	t.Setenv("AUTHGATE_CONFIG", "")
	t.Setenv("AUTHGATE_API_KEYS", "")
	if _, err := keyStoreConfig("", ""); err == nil {
		t.Error("expected error without a postgres store")
	}
}

func TestNewAPIKey(t *testing.T) {
	a, b := newAPIKey(), newAPIKey()
	if !strings.HasPrefix(a, "sk-") || len(a) != 35 || a == b {
		t.Errorf("keys = %q, %q", a, b)
	}
}
