package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ganzorigb/uulzalt/internal/pkg/env"
	"github.com/go-playground/validator/v10"
)

const defaultBylAPIBaseURL = "https://byl.mn/api/v1"

// BylClient talks to the BYL checkout API. Checkout creation is a
// user-initiated, non-idempotent action: it is never retried here. A caller
// that wants to retry must do so with a fresh client reference id.
type BylClient struct {
	APIBaseURL string
	Token      string
	ProjectID  string

	HTTPClient *http.Client
}

// NewBylClientFromEnv builds a client from BYL_* environment configuration.
func NewBylClientFromEnv() *BylClient {
	return &BylClient{
		APIBaseURL: strings.TrimRight(env.GetEnv("BYL_API_BASE_URL", defaultBylAPIBaseURL), "/"),
		Token:      strings.TrimSpace(env.GetEnv("BYL_API_TOKEN", "")),
		ProjectID:  strings.TrimSpace(env.GetEnv("BYL_PROJECT_ID", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// IsConfigured reports whether both the API token and the project id are set.
func (c *BylClient) IsConfigured() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.ProjectID) != ""
}

// CreateCheckout submits a checkout-creation request and returns the hosted
// session id and redirect URL. It fails fast with ErrNotConfigured before any
// network traffic when credentials are missing, and with *ProviderError on a
// non-2xx response.
func (c *BylClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if err := validator.New().Struct(req); err != nil {
		return nil, fmt.Errorf("invalid checkout request: %w", err)
	}

	type priceData struct {
		UnitAmount  int64 `json:"unit_amount"`
		ProductData struct {
			Name        string `json:"name"`
			Description string `json:"description,omitempty"`
		} `json:"product_data"`
	}
	type item struct {
		PriceData priceData `json:"price_data"`
		Quantity  int       `json:"quantity"`
	}

	items := make([]item, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		var it item
		it.PriceData.UnitAmount = li.UnitAmount
		it.PriceData.ProductData.Name = li.ProductName
		it.PriceData.ProductData.Description = li.ProductDescription
		it.Quantity = 1
		items = append(items, it)
	}

	body, err := json.Marshal(map[string]any{
		"success_url":             req.SuccessURL,
		"cancel_url":              req.CancelURL,
		"items":                   items,
		"customer_email":          req.CustomerEmail,
		"client_reference_id":     req.ClientReferenceID,
		"phone_number_collection": req.PhoneCollection,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/projects/%s/checkouts", c.APIBaseURL, c.ProjectID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out struct {
		Data Checkout `json:"data"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("byl checkout response unreadable: %w", err)
	}
	if strings.TrimSpace(out.Data.URL) == "" {
		return nil, fmt.Errorf("byl checkout response missing redirect url")
	}
	return &out.Data, nil
}
