package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"keymint.app/commerce/internal/testutil"
	"keymint.app/commerce/models"
	"keymint.app/commerce/storage"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, router http.Handler, method, target, token string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env testEnvelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode envelope (status %d): %v", w.Code, err)
	}
	return w, env
}

func seedOrderWithContracts(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.SaveUser(ctx, testutil.CreateUser(1, "Owner", false)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	if err := store.SaveUser(ctx, testutil.CreateUser(2, "Other", false)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	if err := store.SaveUser(ctx, testutil.CreateUser(3, "Admin", true)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}

	order := testutil.CreateOrder(40, 1, models.LineItem{ID: 400, OrderID: 40, ProductID: 100, Quantity: 2})
	if err := store.SaveOrder(ctx, order); err != nil {
		t.Fatalf("failed to save order: %v", err)
	}

	now := time.Now()
	for unit := 1; unit <= 2; unit++ {
		key := fmt.Sprintf("order40-key-%d", unit)
		contract := testutil.CreateContract(40, 400, unit, 1, key, now.Add(time.Duration(unit)*time.Second))
		if err := store.SaveContract(ctx, contract); err != nil {
			t.Fatalf("failed to save contract: %v", err)
		}
	}
}

func TestOrderContracts_Owner(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)
	seedOrderWithContracts(t, store)

	w, env := doRequest(t, server.Router, http.MethodGet, "/api/v1/orders/40/contracts", "token-1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !env.Success {
		t.Fatalf("expected success envelope")
	}

	var contracts []models.Contract
	if err := json.Unmarshal(env.Data, &contracts); err != nil {
		t.Fatalf("failed to decode contracts: %v", err)
	}
	if len(contracts) != 2 {
		t.Errorf("expected 2 contracts, got %d", len(contracts))
	}
}

func TestOrderContracts_AdminAllowed(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)
	seedOrderWithContracts(t, store)

	w, env := doRequest(t, server.Router, http.MethodGet, "/api/v1/orders/40/contracts", "token-3")
	if w.Code != http.StatusOK || !env.Success {
		t.Errorf("expected admin to read any order, got status %d", w.Code)
	}
}

func TestOrderContracts_NonOwnerForbidden(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)
	seedOrderWithContracts(t, store)

	w, env := doRequest(t, server.Router, http.MethodGet, "/api/v1/orders/40/contracts", "token-2")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a non-owner, got %d", w.Code)
	}
	if env.Success {
		t.Errorf("expected error envelope")
	}
}

func TestOrderContracts_InvalidAndMissing(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)
	seedOrderWithContracts(t, store)

	w, _ := doRequest(t, server.Router, http.MethodGet, "/api/v1/orders/nonsense/contracts", "token-1")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed order id, got %d", w.Code)
	}

	w, _ = doRequest(t, server.Router, http.MethodGet, "/api/v1/orders/9999/contracts", "token-1")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown order, got %d", w.Code)
	}
}

func TestOrderContracts_EmptyListIsSuccess(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)
	ctx := context.Background()

	if err := store.SaveUser(ctx, testutil.CreateUser(1, "Owner", false)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	if err := store.SaveOrder(ctx, testutil.CreateOrder(41, 1)); err != nil {
		t.Fatalf("failed to save order: %v", err)
	}

	w, env := doRequest(t, server.Router, http.MethodGet, "/api/v1/orders/41/contracts", "token-1")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected success for an order without contracts, got %d", w.Code)
	}
	if string(env.Data) != "[]" {
		t.Errorf("expected empty array data, got %s", env.Data)
	}
}

func TestConfirmOrder_ProvisionsAndIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)
	ctx := context.Background()

	if err := store.SaveUser(ctx, testutil.CreateUser(3, "Admin", true)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	testutil.SeedLicensedOrder(t, store, 50, 1, 500, 2)

	w, env := doRequest(t, server.Router, http.MethodPost, "/api/v1/orders/50/confirm", "token-3")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected confirmation to succeed, got %d", w.Code)
	}

	contracts, _ := store.ContractsByOrder(ctx, 50)
	if len(contracts) != 2 {
		t.Fatalf("expected 2 contracts, got %d", len(contracts))
	}

	// Confirming again must not create more rows or remote calls.
	w, _ = doRequest(t, server.Router, http.MethodPost, "/api/v1/orders/50/confirm", "token-3")
	if w.Code != http.StatusOK {
		t.Fatalf("expected idempotent confirm to succeed, got %d", w.Code)
	}
	if got := len(stub.Requests()); got != 2 {
		t.Errorf("expected no additional remote calls, got %d total", got)
	}
}

func TestConfirmOrder_RequiresAdmin(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)

	if err := store.SaveUser(context.Background(), testutil.CreateUser(1, "Buyer", false)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	testutil.SeedLicensedOrder(t, store, 51, 1, 510, 1)

	w, _ := doRequest(t, server.Router, http.MethodPost, "/api/v1/orders/51/confirm", "token-1")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a non-admin, got %d", w.Code)
	}
}

func TestConfirmOrder_NotFound(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := testutil.NewLicensingStub(t)
	server := testutil.NewServer(t, store, stub)

	if err := store.SaveUser(context.Background(), testutil.CreateUser(3, "Admin", true)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}

	w, _ := doRequest(t, server.Router, http.MethodPost, "/api/v1/orders/777/confirm", "token-3")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown order, got %d", w.Code)
	}
}
