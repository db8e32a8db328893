package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType tags the webhook event kinds this pipeline handles. Everything
// else maps to EventUnknown explicitly so monitoring can tell expected
// ignorable events apart from genuinely new provider event types.
type EventType string

const (
	EventCheckoutCompleted EventType = "checkout.completed"
	EventInvoicePaid       EventType = "invoice.paid"
	EventPaymentSucceeded  EventType = "payment.succeeded"
	EventPaymentFailed     EventType = "payment.failed"
	EventUnknown           EventType = "unknown"
)

// ClassifyEventType maps a raw provider type string to a tagged variant.
func ClassifyEventType(raw string) EventType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(EventCheckoutCompleted):
		return EventCheckoutCompleted
	case string(EventInvoicePaid):
		return EventInvoicePaid
	case string(EventPaymentSucceeded):
		return EventPaymentSucceeded
	case string(EventPaymentFailed):
		return EventPaymentFailed
	default:
		return EventUnknown
	}
}

// EventObject is the union of object fields the handled event kinds carry.
type EventObject struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerEmail     string `json:"customer_email"`
	AmountTotal       int64  `json:"amount_total"`
	Status            string `json:"status"`
	SubscriptionID    string `json:"subscription"`
	InvoiceID         string `json:"invoice"`
	PeriodEnd         int64  `json:"period_end"`
	FailureReason     string `json:"failure_message"`
}

// Envelope is a parsed webhook event. The raw bytes it was parsed from are
// kept by the caller for signature verification and archival; the envelope
// itself is never re-serialized for those purposes.
type Envelope struct {
	ProviderEventID string
	RawType         string
	Type            EventType
	Object          EventObject
}

// ParseEnvelope decodes a BYL webhook body: {id, type, data:{object:{...}}}.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var payload struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object EventObject `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if strings.TrimSpace(payload.Type) == "" {
		return nil, errors.New("webhook payload missing event type")
	}

	return &Envelope{
		ProviderEventID: strings.TrimSpace(payload.ID),
		RawType:         strings.TrimSpace(payload.Type),
		Type:            ClassifyEventType(payload.Type),
		Object:          payload.Data.Object,
	}, nil
}

// Mutation describes one state change an event handler wants applied.
// Handlers describe, the service applies; that keeps handlers testable
// without a live store.
type Mutation interface {
	mutation()
}

// ActivateSubscription transitions the subscription correlated by
// ClientReferenceID to active and records the completed checkout payment.
type ActivateSubscription struct {
	ClientReferenceID string
	CheckoutID        string
	CustomerEmail     string
	AmountTotal       int64
}

// ExtendPaidThrough pushes the paid-through period of the referenced
// subscription forward. A zero PeriodEnd means "one billing month from the
// current paid-through (or now, whichever is later)".
type ExtendPaidThrough struct {
	ClientReferenceID      string
	ProviderSubscriptionID string
	InvoiceID              string
	PeriodEnd              time.Time
	Amount                 int64
}

// RecordPaymentStatus upserts the payment row for a provider payment id and,
// on failure, flags the correlated subscription past-due. Access is not
// revoked here; grace-period policy belongs to the entitlement layer.
type RecordPaymentStatus struct {
	ProviderPaymentID string
	ClientReferenceID string
	Status            string
	FailureReason     string
	Amount            int64
	MarkPastDue       bool
}

func (ActivateSubscription) mutation() {}
func (ExtendPaidThrough) mutation()    {}
func (RecordPaymentStatus) mutation()  {}

// Handler turns an event object into the mutations it implies. Handlers are
// pure: no store access, no provider calls.
type Handler func(obj EventObject) ([]Mutation, error)

// HandleCheckoutCompleted activates the subscription the checkout was created
// for. Checkouts without a correlation id were not issued by this system.
func HandleCheckoutCompleted(obj EventObject) ([]Mutation, error) {
	ref := strings.TrimSpace(obj.ClientReferenceID)
	if ref == "" {
		return nil, fmt.Errorf("%w: checkout %q carries no client_reference_id", ErrIgnorable, obj.ID)
	}
	if status := strings.ToLower(strings.TrimSpace(obj.Status)); status != "" && status != "paid" && status != "complete" {
		return nil, fmt.Errorf("%w: checkout %q completed with status %q", ErrIgnorable, obj.ID, obj.Status)
	}

	return []Mutation{
		ActivateSubscription{
			ClientReferenceID: ref,
			CheckoutID:        strings.TrimSpace(obj.ID),
			CustomerEmail:     strings.TrimSpace(obj.CustomerEmail),
			AmountTotal:       obj.AmountTotal,
		},
	}, nil
}

// HandleInvoicePaid extends the paid-through period of the invoice's
// subscription.
func HandleInvoicePaid(obj EventObject) ([]Mutation, error) {
	ref := strings.TrimSpace(obj.ClientReferenceID)
	subID := strings.TrimSpace(obj.SubscriptionID)
	if ref == "" && subID == "" {
		return nil, fmt.Errorf("%w: invoice %q carries no subscription reference", ErrIgnorable, obj.ID)
	}

	var periodEnd time.Time
	if obj.PeriodEnd > 0 {
		periodEnd = time.Unix(obj.PeriodEnd, 0).UTC()
	}

	return []Mutation{
		ExtendPaidThrough{
			ClientReferenceID:      ref,
			ProviderSubscriptionID: subID,
			InvoiceID:              strings.TrimSpace(obj.ID),
			PeriodEnd:              periodEnd,
			Amount:                 obj.AmountTotal,
		},
	}, nil
}

// HandlePaymentSucceeded records a successful charge.
func HandlePaymentSucceeded(obj EventObject) ([]Mutation, error) {
	return paymentStatusMutations(obj, "succeeded", false)
}

// HandlePaymentFailed records a failed charge and flags the subscription
// past-due.
func HandlePaymentFailed(obj EventObject) ([]Mutation, error) {
	return paymentStatusMutations(obj, "failed", true)
}

func paymentStatusMutations(obj EventObject, status string, markPastDue bool) ([]Mutation, error) {
	paymentID := strings.TrimSpace(obj.ID)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment event carries no payment id", ErrIgnorable)
	}

	return []Mutation{
		RecordPaymentStatus{
			ProviderPaymentID: paymentID,
			ClientReferenceID: strings.TrimSpace(obj.ClientReferenceID),
			Status:            status,
			FailureReason:     strings.TrimSpace(obj.FailureReason),
			Amount:            obj.AmountTotal,
			MarkPastDue:       markPastDue,
		},
	}, nil
}

// handlerFor is the dispatch table. EventUnknown deliberately has no entry.
func handlerFor(t EventType) (Handler, bool) {
	switch t {
	case EventCheckoutCompleted:
		return HandleCheckoutCompleted, true
	case EventInvoicePaid:
		return HandleInvoicePaid, true
	case EventPaymentSucceeded:
		return HandlePaymentSucceeded, true
	case EventPaymentFailed:
		return HandlePaymentFailed, true
	default:
		return nil, false
	}
}

// IsLocalReference reports whether a correlation id uses the reference scheme
// this system issues at checkout-creation time. Anything else is a foreign
// event and ignorable by definition.
func IsLocalReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	for _, prefix := range []string{"sub_", "biz_", "pay_"} {
		if strings.HasPrefix(ref, prefix) && len(ref) > len(prefix) {
			return true
		}
	}
	return false
}
