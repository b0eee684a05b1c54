package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckAPI_ok(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	if err := CheckAPI(context.Background(), srv.URL); err != nil {
		t.Fatalf("CheckAPI: %v", err)
	}
}

func TestCheckAPI_anyStatusIsUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	if err := CheckAPI(context.Background(), srv.URL); err != nil {
		t.Fatalf("a 401 still means the host is up: %v", err)
	}
}

func TestCheckAPI_emptyURL(t *testing.T) {
	if err := CheckAPI(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestCheckAPI_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	if err := CheckAPI(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestCheckDownloadDir(t *testing.T) {
	dir := t.TempDir()
	if err := CheckDownloadDir(dir); err != nil {
		t.Fatalf("CheckDownloadDir: %v", err)
	}
	// A missing directory is created.
	if err := CheckDownloadDir(dir + "/nested/out"); err != nil {
		t.Fatalf("CheckDownloadDir nested: %v", err)
	}
}
