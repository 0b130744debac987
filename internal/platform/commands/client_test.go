package commands

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/studiobook/api/internal/domain"
	"github.com/studiobook/api/internal/platform/config"
)

func TestClientApproveHitsExpectedEndpoint(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(config.CommandsConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if err := client.ApproveOrder(context.Background(), "ord_1"); err != nil {
		t.Fatalf("ApproveOrder returned error: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if gotPath != "/orders/ord_1/approve" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestClientFinalizeSendsFileMetadata(t *testing.T) {
	var payload struct {
		Files []map[string]any `json:"files"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(config.CommandsConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	files := []domain.DeliveredFile{{URL: "https://cdn.example.com/final.png", Name: "final.png", SizeBytes: 2048, ContentType: "image/png"}}
	if err := client.FinalizeService(context.Background(), "ord_1", files); err != nil {
		t.Fatalf("FinalizeService returned error: %v", err)
	}
	if len(payload.Files) != 1 {
		t.Fatalf("expected one file, got %d", len(payload.Files))
	}
	if payload.Files[0]["file_url"] != "https://cdn.example.com/final.png" {
		t.Fatalf("unexpected file_url %v", payload.Files[0]["file_url"])
	}
	if payload.Files[0]["file_name"] != "final.png" {
		t.Fatalf("unexpected file_name %v", payload.Files[0]["file_name"])
	}
}

func TestClientSurfacesRejectedCommands(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "order already approved", http.StatusConflict)
	}))
	defer server.Close()

	client, err := NewClient(config.CommandsConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	err = client.CancelOrder(context.Background(), "ord_1", "too late", "client")
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("expected ErrCommandRejected, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(config.CommandsConfig{}); err == nil {
		t.Fatal("expected error for missing base url")
	}
}
