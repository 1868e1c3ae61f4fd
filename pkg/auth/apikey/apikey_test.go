package apikey

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/authgate/pkg/auth"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore([]RawKeyEntry{
		{
			Key: "sk-test-key-1",
			Identity: auth.Identity{
				Subject:     "alice",
				ServiceTier: "standard",
				Scopes:      []string{"read"},
				Metadata:    map[string]string{"tenant_id": "org-1"},
			},
		},
		{
			Key: "sk-test-key-2",
			Identity: auth.Identity{
				Subject:     "bob",
				ServiceTier: "premium",
			},
		},
	})
}

func newTestLink(t *testing.T, store KeyStore, header string) *Link {
	t.Helper()
	link, err := New(Config{Store: store, Header: header})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return link
}

func inbound(t *testing.T, link *Link, header, key string) (*auth.Response, *auth.Identity, error) {
	t.Helper()
	r := httptest.NewRequest("GET", "/", nil)
	if key != "" {
		r.Header.Set(header, key)
	}
	ctx := auth.WithCaller(context.Background())
	resp, err := link.OnInboundRequest(ctx, auth.NewRequest(r))
	return resp, auth.IdentityFromContext(ctx), err
}

func TestLinkProperties(t *testing.T) {
	link := newTestLink(t, newTestStore(), "")
	if link.AuthScheme() != Scheme {
		t.Errorf("AuthScheme = %q, want %q", link.AuthScheme(), Scheme)
	}
	if !link.BypassAntiForgeryToken() {
		t.Error("API keys should bypass anti-forgery checks")
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected an error without a key store")
	}
}

func TestValidKey(t *testing.T) {
	link := newTestLink(t, newTestStore(), "")

	resp, id, err := inbound(t, link, DefaultHeader, "sk-test-key-1")
	if err != nil || resp != nil {
		t.Fatalf("inbound = (%v, %v), want pass-through", resp, err)
	}
	if id == nil {
		t.Fatal("no caller recorded")
	}
	if id.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", id.Subject, "alice")
	}
	if id.ServiceTier != "standard" {
		t.Errorf("ServiceTier = %q, want %q", id.ServiceTier, "standard")
	}
	if id.TenantID() != "org-1" {
		t.Errorf("TenantID = %q, want %q", id.TenantID(), "org-1")
	}
	if id.AuthType != Scheme {
		t.Errorf("AuthType = %q, want %q", id.AuthType, Scheme)
	}
}

func TestSecondKey(t *testing.T) {
	link := newTestLink(t, newTestStore(), "")

	_, id, _ := inbound(t, link, DefaultHeader, "sk-test-key-2")
	if id == nil || id.Subject != "bob" || id.ServiceTier != "premium" {
		t.Errorf("identity = %+v, want bob/premium", id)
	}
}

func TestInvalidKey(t *testing.T) {
	link := newTestLink(t, newTestStore(), "")

	resp, id, err := inbound(t, link, DefaultHeader, "sk-wrong-key")
	if err != nil {
		t.Fatal(err)
	}
	if !auth.IsUnauthorized(resp) {
		t.Fatalf("expected 401, got %+v", resp)
	}
	if id != nil {
		t.Error("no caller should be recorded")
	}
}

func TestNoHeader(t *testing.T) {
	link := newTestLink(t, newTestStore(), "")

	resp, id, err := inbound(t, link, DefaultHeader, "")
	if resp != nil || id != nil || err != nil {
		t.Errorf("inbound = (%v, %v, %v), want pass-through", resp, id, err)
	}
}

func TestCustomHeader(t *testing.T) {
	link := newTestLink(t, newTestStore(), "x-gateway-token")

	_, id, _ := inbound(t, link, "X-Gateway-Token", "sk-test-key-1")
	if id == nil {
		t.Fatal("key in the configured header was not read")
	}

	_, id, _ = inbound(t, link, DefaultHeader, "sk-test-key-1")
	if id != nil {
		t.Error("the default header must be ignored when another is configured")
	}
}

type failingStore struct{ err error }

func (s failingStore) Lookup(context.Context, string) (*auth.Identity, error) {
	return nil, s.err
}

func TestStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	link := newTestLink(t, failingStore{err: boom}, "")

	resp, _, err := inbound(t, link, DefaultHeader, "sk-test-key-1")
	if !errors.Is(err, boom) || resp != nil {
		t.Errorf("inbound = (%v, %v), want store error", resp, err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := newTestStore()

	first, err := store.Lookup(context.Background(), "sk-test-key-1")
	if err != nil {
		t.Fatal(err)
	}
	first.Scopes[0] = "admin"
	first.Metadata["tenant_id"] = "evil"

	second, _ := store.Lookup(context.Background(), "sk-test-key-1")
	if second.Scopes[0] != "read" || second.TenantID() != "org-1" {
		t.Error("mutating a returned identity must not affect the store")
	}
	if store.Len() != 2 {
		t.Errorf("Len = %d, want 2", store.Len())
	}
}

func TestLinkInMiddleware(t *testing.T) {
	link, err := New(Config{Store: newTestStore(), IncludeByDefault: true})
	if err != nil {
		t.Fatal(err)
	}
	chain, err := auth.NewChain(link)
	if err != nil {
		t.Fatal(err)
	}

	handler := auth.Middleware(chain, auth.MiddlewareConfig{})(auth.RequireAuthenticated(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(auth.CurrentPrincipal(r.Context()).Name()))
		}),
	))

	req := httptest.NewRequest("GET", "/api/whoami", nil)
	req.Header.Set(DefaultHeader, "sk-test-key-2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "bob" {
		t.Errorf("got %d %q, want 200 bob", rec.Code, rec.Body.String())
	}
}
