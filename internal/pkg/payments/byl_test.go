package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func validCheckoutRequest() CheckoutRequest {
	return CheckoutRequest{
		LineItems: []CheckoutLineItem{
			{UnitAmount: 69000, ProductName: "Uulzalt Starter — monthly"},
		},
		SuccessURL:        "https://app.example.mn/billing/success",
		CancelURL:         "https://app.example.mn/billing/cancel",
		CustomerEmail:     "owner@example.mn",
		ClientReferenceID: "sub_42",
	}
}

func TestCreateCheckout(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("request body unreadable: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"chk_9","url":"https://byl.mn/checkout/chk_9"}}`))
	}))
	defer server.Close()

	client := &BylClient{
		APIBaseURL: server.URL,
		Token:      "test-token",
		ProjectID:  "214",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}

	checkout, err := client.CreateCheckout(context.Background(), validCheckoutRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checkout.ID != "chk_9" || checkout.URL != "https://byl.mn/checkout/chk_9" {
		t.Fatalf("unexpected checkout: %+v", checkout)
	}
	if gotPath != "/projects/214/checkouts" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotBody["client_reference_id"] != "sub_42" {
		t.Fatalf("client_reference_id not forwarded: %v", gotBody["client_reference_id"])
	}
	items, ok := gotBody["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected items payload: %v", gotBody["items"])
	}
}

func TestCreateCheckoutNotConfigured(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := &BylClient{
		APIBaseURL: server.URL,
		Token:      "",
		ProjectID:  "214",
		HTTPClient: server.Client(),
	}

	_, err := client.CreateCheckout(context.Background(), validCheckoutRequest())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("missing credentials must fail before any network call, saw %d", calls)
	}
}

func TestCreateCheckoutValidation(t *testing.T) {
	client := &BylClient{Token: "t", ProjectID: "214", HTTPClient: http.DefaultClient}

	req := validCheckoutRequest()
	req.LineItems = nil
	if _, err := client.CreateCheckout(context.Background(), req); err == nil {
		t.Fatalf("expected validation error for empty line items")
	}

	req = validCheckoutRequest()
	req.ClientReferenceID = ""
	if _, err := client.CreateCheckout(context.Background(), req); err == nil {
		t.Fatalf("expected validation error for missing client reference")
	}
}

func TestCreateCheckoutProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"The success url field is required."}`))
	}))
	defer server.Close()

	client := &BylClient{
		APIBaseURL: server.URL,
		Token:      "test-token",
		ProjectID:  "214",
		HTTPClient: server.Client(),
	}

	_, err := client.CreateCheckout(context.Background(), validCheckoutRequest())
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", pe.StatusCode)
	}
	if pe.Body == "" {
		t.Fatalf("expected provider body to be preserved")
	}
}

func TestCreateCheckoutMissingRedirectURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"chk_9"}}`))
	}))
	defer server.Close()

	client := &BylClient{
		APIBaseURL: server.URL,
		Token:      "test-token",
		ProjectID:  "214",
		HTTPClient: server.Client(),
	}

	if _, err := client.CreateCheckout(context.Background(), validCheckoutRequest()); err == nil {
		t.Fatalf("expected error for response without redirect url")
	}
}
