package payments

// CheckoutLineItem is one purchasable position on a checkout. UnitAmount is
// in minor currency units, exactly as BYL expects it.
type CheckoutLineItem struct {
	UnitAmount         int64  `json:"unit_amount" validate:"gte=0"`
	ProductName        string `json:"product_name" validate:"required,max=255"`
	ProductDescription string `json:"product_description" validate:"max=1000"`
}

// CheckoutRequest is the normalized input for creating a hosted BYL checkout.
// ClientReferenceID is assigned before the provider ever sees the request so
// webhook events can always be correlated back without fallback heuristics.
type CheckoutRequest struct {
	LineItems         []CheckoutLineItem `json:"line_items" validate:"required,min=1,dive"`
	SuccessURL        string             `json:"success_url" validate:"required,url"`
	CancelURL         string             `json:"cancel_url" validate:"required,url"`
	CustomerEmail     string             `json:"customer_email" validate:"omitempty,email"`
	ClientReferenceID string             `json:"client_reference_id" validate:"required,max=191"`
	PhoneCollection   bool               `json:"phone_collection"`
}

// Checkout is the provider-hosted session the caller redirects to.
type Checkout struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
