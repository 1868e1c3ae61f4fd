package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/authgate/pkg/auth"
	"github.com/rhuss/authgate/pkg/config"
	"github.com/rhuss/authgate/pkg/gateway"
	"github.com/rhuss/authgate/pkg/observability"
	"github.com/rhuss/authgate/pkg/transport"
)

const maxEchoBody = 1 << 20

// newHandler builds the server's route table. Everything under /api/ runs
// through the auth chain; health and metrics endpoints do not.
func newHandler(gw *gateway.Gateway, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := gw.Ready(r.Context()); err != nil {
			transport.WriteError(w, http.StatusServiceUnavailable, transport.ErrorTypeServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	})
	if m := cfg.Observability.Metrics; m.Enabled {
		mux.Handle("GET "+m.Path, promhttp.Handler())
	}

	api := http.NewServeMux()
	api.Handle("GET /api/whoami", auth.RequireAuthenticated(http.HandlerFunc(whoami)))
	api.Handle("POST /api/echo", auth.RequireAuthenticated(http.HandlerFunc(echo)))
	if h := gw.AntiForgeryHandler(); h != nil {
		api.Handle("GET /api/antiforgery", h)
	}
	mux.Handle("/api/", gw.Protect(api))

	var h http.Handler = mux
	if cfg.Observability.Tracing.Enabled {
		h = observability.TracingMiddleware(h)
	}
	return observability.MetricsMiddleware(h)
}

type whoamiResponse struct {
	Subject     string   `json:"subject"`
	AuthType    string   `json:"auth_type"`
	TenantID    string   `json:"tenant_id,omitempty"`
	ServiceTier string   `json:"service_tier,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

func whoami(w http.ResponseWriter, r *http.Request) {
	resp := whoamiResponse{}
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		resp = whoamiResponse{
			Subject:     id.Subject,
			AuthType:    id.AuthType,
			TenantID:    id.TenantID(),
			ServiceTier: id.ServiceTier,
			Scopes:      id.Scopes,
		}
	} else if p := auth.CurrentPrincipal(r.Context()); p != nil {
		resp.Subject = p.Name()
		resp.AuthType = p.AuthenticationType()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// echo returns the request body, tagged with the caller.
func echo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEchoBody))
	if err != nil {
		transport.WriteErrorType(w, transport.ErrorTypeInvalidRequest, "reading body: "+err.Error())
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("X-Authenticated-Subject", auth.IdentityFromContext(r.Context()).Name())
	w.Write(body)
}
