package server_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dantte-lp/pufacs/internal/server"
)

type fakeProvider struct {
	status server.Status
}

func (f fakeProvider) Status() server.Status {
	return f.status
}

func TestStatusEndpoint(t *testing.T) {
	provider := fakeProvider{status: server.Status{Role: "authenticator", State: "CONNECTED", Connected: true}}
	srv := server.NewHealthServer(":0", provider, slog.New(slog.DiscardHandler))

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want 200", resp.StatusCode)
	}

	var got server.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if got.Role != provider.status.Role || got.State != provider.status.State || got.Connected != provider.status.Connected {
		t.Errorf("status = %+v, want %+v", got, provider.status)
	}
}

func TestStatusEndpointIncludesCredentialEntries(t *testing.T) {
	n := 3
	provider := fakeProvider{status: server.Status{Role: "authenticator", State: "CONNECTED", Connected: true, CredentialEntries: &n}}
	srv := server.NewHealthServer(":0", provider, slog.New(slog.DiscardHandler))

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var got server.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.CredentialEntries == nil || *got.CredentialEntries != 3 {
		t.Errorf("CredentialEntries = %v, want 3", got.CredentialEntries)
	}
}
