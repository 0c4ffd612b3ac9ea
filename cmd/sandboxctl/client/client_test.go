package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetOrCreateSendsBearerTokenAndDecodesInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if r.URL.Path != "/api/v1/projects/proj-1/sandbox" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Info{SandboxID: "sb-1", ProjectID: "proj-1", Status: "running"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	info, err := c.GetOrCreate(context.Background(), "proj-1", GetOrCreateRequest{TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if info.SandboxID != "sb-1" || info.Status != "running" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestGetOrCreateReturnsAPIErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("resource limit exceeded"))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	_, err := c.GetOrCreate(context.Background(), "proj-1", GetOrCreateRequest{TenantID: "tenant-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("unexpected status: %d", apiErr.Status)
	}
}

func TestTerminateSendsPurgeQueryParam(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	if err := c.Terminate(context.Background(), "proj-1", true); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if gotQuery != "purge=true" {
		t.Errorf("expected purge=true query, got %q", gotQuery)
	}
}
