package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"keymint.app/commerce/handlers"
	"keymint.app/commerce/internal/config"
	"keymint.app/commerce/internal/licensing"
	"keymint.app/commerce/internal/orders"
	"keymint.app/commerce/internal/provision"
	"keymint.app/commerce/models"
	"keymint.app/commerce/storage"
)

// LicensingStub plays the remote licensing service. The first FailFirst
// requests abort mid-connection (transport error), the next CollideFirst
// report a contract_key collision, and RejectAll turns every request into
// a terminal field error. It records every request body it receives.
type LicensingStub struct {
	Server *httptest.Server

	mu           sync.Mutex
	requests     []licensing.CreateContractRequest
	failFirst    int
	collideFirst int
	rejectAll    bool
}

func NewLicensingStub(t *testing.T) *LicensingStub {
	t.Helper()

	stub := &LicensingStub{}
	stub.Server = httptest.NewServer(http.HandlerFunc(stub.handle))
	t.Cleanup(stub.Server.Close)
	return stub
}

func (s *LicensingStub) FailFirst(n int)    { s.mu.Lock(); s.failFirst = n; s.mu.Unlock() }
func (s *LicensingStub) CollideFirst(n int) { s.mu.Lock(); s.collideFirst = n; s.mu.Unlock() }
func (s *LicensingStub) RejectAll()         { s.mu.Lock(); s.rejectAll = true; s.mu.Unlock() }

func (s *LicensingStub) Requests() []licensing.CreateContractRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]licensing.CreateContractRequest(nil), s.requests...)
}

func (s *LicensingStub) handle(w http.ResponseWriter, r *http.Request) {
	var req licensing.CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	failNow := s.failFirst > 0
	if failNow {
		s.failFirst--
	}
	collideNow := !failNow && s.collideFirst > 0
	if collideNow {
		s.collideFirst--
	}
	reject := s.rejectAll
	s.mu.Unlock()

	switch {
	case failNow:
		// Drop the connection so the client sees a transport failure.
		panic(http.ErrAbortHandler)
	case collideNow:
		writeBody(w, map[string]interface{}{
			"response": map[string]interface{}{
				"code": 422,
				"errors": map[string]interface{}{
					"contract_key": []string{"has already been taken"},
				},
			},
		})
	case reject:
		writeBody(w, map[string]interface{}{
			"response": map[string]interface{}{
				"code": 404,
				"errors": map[string]interface{}{
					"product_id": "invalid product",
				},
			},
		})
	default:
		writeBody(w, map[string]interface{}{
			"response": map[string]interface{}{
				"code": 841,
				"contract": map[string]interface{}{
					"id":                    9000,
					"name":                  req.ContractName,
					"information":           req.ContractInformation,
					"contract_key":          req.ContractKey,
					"license_keys_quantity": req.LicenseKeysQuantity,
					"license_keys_count":    0,
					"product_id":            req.ProductID,
					"can_get_info":          req.CanGetInfo,
					"can_generate":          req.CanGenerate,
					"can_destroy":           req.CanDestroy,
					"can_destroy_all":       req.CanDestroyAll,
					"status":                req.Status,
				},
			},
		})
	}
}

func writeBody(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// FastOptions keeps provisioner retries near-instant in tests.
func FastOptions() provision.Options {
	return provision.Options{
		MaxAttempts:    15,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Microsecond,
	}
}

// NewServer wires a full handler stack over a memory store and the given
// licensing stub, with webhook signature checks disabled.
func NewServer(t *testing.T, store storage.Store, stub *LicensingStub) *handlers.Server {
	t.Helper()

	client := licensing.NewClient(stub.Server.URL, "test-api-key")
	provisioner := provision.New(store, client, FastOptions())
	ordersService := orders.NewService(store, provisioner, false)
	cfg := &config.Config{
		Port:            "0",
		DatabaseURL:     ":memory:",
		LicensingAPIURL: stub.Server.URL,
		LicensingAPIKey: "test-api-key",
		MaxAttempts:     15,
		TestMode:        true,
	}
	return handlers.NewServer(store, ordersService, provisioner, cfg, "test")
}

func CreateUser(id int64, name string, admin bool) *models.User {
	return &models.User{
		ID:          id,
		DisplayName: name,
		Email:       fmt.Sprintf("user%d@example.com", id),
		APIToken:    fmt.Sprintf("token-%d", id),
		IsAdmin:     admin,
		CreatedAt:   time.Now(),
	}
}

func CreateOrder(id, userID int64, items ...models.LineItem) *models.Order {
	return &models.Order{
		ID:        id,
		UserID:    userID,
		Status:    models.OrderPending,
		CreatedAt: time.Now(),
		Items:     items,
	}
}

func CreateContract(orderID, itemID int64, itemNumber int, userID int64, key string, createdAt time.Time) *models.Contract {
	return &models.Contract{
		ID:                  fmt.Sprintf("contract-%d-%d-%d", orderID, itemID, itemNumber),
		OrderID:             orderID,
		ItemID:              itemID,
		ItemNumber:          itemNumber,
		UserID:              userID,
		ProductID:           "ext-prod-1",
		Name:                fmt.Sprintf("Order #%d", orderID),
		Information:         fmt.Sprintf("Order #%d", orderID),
		ContractKey:         key,
		LicenseKeysQuantity: 5,
		CanGetInfo:          true,
		CanGenerate:         true,
		CanDestroy:          true,
		Status:              models.StatusActive,
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
	}
}

// SeedLicensedOrder stores a user, an order with one licensed line item,
// and the matching license config.
func SeedLicensedOrder(t *testing.T, store storage.Store, orderID, userID, itemID int64, quantity int) {
	t.Helper()
	ctx := context.Background()

	if err := store.SaveUser(ctx, CreateUser(userID, fmt.Sprintf("User %d", userID), false)); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	order := CreateOrder(orderID, userID, models.LineItem{
		ID:        itemID,
		OrderID:   orderID,
		ProductID: 100,
		Quantity:  quantity,
	})
	if err := store.SaveOrder(ctx, order); err != nil {
		t.Fatalf("failed to save order: %v", err)
	}
	if err := store.SaveLicenseConfig(ctx, &models.LicenseConfig{
		ProductID:         100,
		ExternalProductID: "ext-prod-1",
		LicenseQuantity:   5,
	}); err != nil {
		t.Fatalf("failed to save license config: %v", err)
	}
}

// AssertUUIDv4 checks the RFC 4122 version-4 shape: 36 characters, hyphens
// at 8/13/18/23, version nibble 4, variant bits 10.
func AssertUUIDv4(t *testing.T, value string) {
	t.Helper()

	if len(value) != 36 {
		t.Fatalf("expected 36 character uuid, got %d (%q)", len(value), value)
	}
	for _, pos := range []int{8, 13, 18, 23} {
		if value[pos] != '-' {
			t.Errorf("expected hyphen at position %d in %q", pos, value)
		}
	}
	if value[14] != '4' {
		t.Errorf("expected version nibble 4 in %q", value)
	}
	switch value[19] {
	case '8', '9', 'a', 'b', 'A', 'B':
	default:
		t.Errorf("expected variant bits 10 in %q", value)
	}
}
