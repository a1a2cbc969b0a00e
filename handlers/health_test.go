package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"keymint.app/commerce/internal/testutil"
	"keymint.app/commerce/storage"
)

func TestHealth(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("expected healthy status, got %q", body.Status)
	}
	if body.Version != "test" {
		t.Errorf("expected version test, got %q", body.Version)
	}
}
