package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"keymint.app/commerce/internal/testutil"
	"keymint.app/commerce/storage"
)

func TestRequireUser_MissingToken(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)

	w, env := doRequest(t, server.Router, http.MethodGet, "/api/v1/account/contracts", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", w.Code)
	}
	if env.Success {
		t.Errorf("expected error envelope")
	}
}

func TestRequireUser_UnknownToken(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)

	if err := store.SaveUser(context.Background(), testutil.CreateUser(1, "Ada", false)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}

	w, _ := doRequest(t, server.Router, http.MethodGet, "/api/v1/account/contracts", "not-a-real-token")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for an unknown token, got %d", w.Code)
	}
}

func TestRequireAdmin_BlocksRegularUsers(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)

	if err := store.SaveUser(context.Background(), testutil.CreateUser(1, "Ada", false)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}

	w, _ := doRequest(t, server.Router, http.MethodGet, "/api/v1/admin/users/search", "token-1")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}
