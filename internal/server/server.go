// Package server builds the HTTP endpoints a pufacsd process exposes:
// gRPC-style health checking (grpc.health.v1, via connectrpc.com/grpchealth
// over h2c) and a small JSON status endpoint, following the same h2c-wrapped
// mux pattern the teacher daemon uses for its ConnectRPC service.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/grpchealth"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// readHeaderTimeout bounds slow-header attacks against both HTTP servers
// built here, matching the teacher's daemon server construction.
const readHeaderTimeout = 10 * time.Second

// StatusServiceName is reported to the health checker alongside the
// standard overall-server health check.
const StatusServiceName = "pufacs.v1.EngineStatus"

// StatusProvider supplies a point-in-time snapshot of engine state for the
// JSON status endpoint. *engine.Supplicant and *engine.Authenticator both
// satisfy a provider wrapped by the caller (they use different accessor
// names), so pufacsd/pufacs-supplicant adapt them to this interface at the
// call site rather than this package importing engine directly.
type StatusProvider interface {
	Status() Status
}

// Status is the JSON body served at /status.
type Status struct {
	Role      string `json:"role"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`

	// CredentialEntries is the Authenticator's live credential-store
	// session count (credstore.Store.Snapshot), omitted on the
	// Supplicant side where it has no meaning.
	CredentialEntries *int `json:"credential_entries,omitempty"`
}

// NewHealthServer builds an HTTP server serving the gRPC health-check
// protocol over h2c (plaintext HTTP/2), plus a plain JSON /status endpoint
// backed by provider.
func NewHealthServer(addr string, provider StatusProvider, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	checker := grpchealth.NewStaticChecker(
		grpchealth.HealthV1ServiceName,
		StatusServiceName,
	)
	mux.Handle(grpchealth.NewHandler(checker))

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.Status()); err != nil {
			logger.Warn("failed to encode status response", slog.String("error", err.Error()))
		}
	})

	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
