package payments

import (
	"errors"
	"testing"
	"time"
)

func TestClassifyEventType(t *testing.T) {
	tests := []struct {
		in   string
		want EventType
	}{
		{in: "checkout.completed", want: EventCheckoutCompleted},
		{in: "invoice.paid", want: EventInvoicePaid},
		{in: "payment.succeeded", want: EventPaymentSucceeded},
		{in: "payment.failed", want: EventPaymentFailed},
		{in: " Checkout.Completed ", want: EventCheckoutCompleted},
		{in: "customer.created", want: EventUnknown},
		{in: "", want: EventUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyEventType(tt.in); got != tt.want {
			t.Fatalf("ClassifyEventType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseEnvelope(t *testing.T) {
	raw := []byte(`{
		"id": "evt_123",
		"type": "checkout.completed",
		"data": {
			"object": {
				"id": "chk_9",
				"client_reference_id": "sub_42",
				"customer_email": "owner@example.mn",
				"amount_total": 69000,
				"status": "paid"
			}
		}
	}`)

	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if env.ProviderEventID != "evt_123" {
		t.Fatalf("unexpected event id %q", env.ProviderEventID)
	}
	if env.Type != EventCheckoutCompleted {
		t.Fatalf("unexpected type %q", env.Type)
	}
	if env.Object.ClientReferenceID != "sub_42" || env.Object.AmountTotal != 69000 {
		t.Fatalf("unexpected object: %+v", env.Object)
	}
}

func TestParseEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`{not json`)); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
	if _, err := ParseEnvelope([]byte(`{"id":"evt_1","data":{}}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestHandleCheckoutCompleted(t *testing.T) {
	muts, err := HandleCheckoutCompleted(EventObject{
		ID:                "chk_9",
		ClientReferenceID: "sub_42",
		CustomerEmail:     "owner@example.mn",
		AmountTotal:       69000,
		Status:            "paid",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(muts) != 1 {
		t.Fatalf("expected 1 mutation, got %d", len(muts))
	}
	act, ok := muts[0].(ActivateSubscription)
	if !ok {
		t.Fatalf("expected ActivateSubscription, got %T", muts[0])
	}
	if act.ClientReferenceID != "sub_42" || act.CheckoutID != "chk_9" || act.AmountTotal != 69000 {
		t.Fatalf("unexpected mutation: %+v", act)
	}
}

func TestHandleCheckoutCompletedIgnorableCases(t *testing.T) {
	if _, err := HandleCheckoutCompleted(EventObject{ID: "chk_9", Status: "paid"}); !errors.Is(err, ErrIgnorable) {
		t.Fatalf("missing reference should be ignorable, got %v", err)
	}
	if _, err := HandleCheckoutCompleted(EventObject{ID: "chk_9", ClientReferenceID: "sub_42", Status: "expired"}); !errors.Is(err, ErrIgnorable) {
		t.Fatalf("unpaid checkout should be ignorable, got %v", err)
	}
}

func TestHandleInvoicePaid(t *testing.T) {
	periodEnd := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	muts, err := HandleInvoicePaid(EventObject{
		ID:             "inv_7",
		SubscriptionID: "bsub_3",
		AmountTotal:    69000,
		PeriodEnd:      periodEnd.Unix(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ext, ok := muts[0].(ExtendPaidThrough)
	if !ok {
		t.Fatalf("expected ExtendPaidThrough, got %T", muts[0])
	}
	if !ext.PeriodEnd.Equal(periodEnd) {
		t.Fatalf("unexpected period end %v", ext.PeriodEnd)
	}
	if ext.ProviderSubscriptionID != "bsub_3" || ext.InvoiceID != "inv_7" {
		t.Fatalf("unexpected mutation: %+v", ext)
	}

	if _, err := HandleInvoicePaid(EventObject{ID: "inv_8"}); !errors.Is(err, ErrIgnorable) {
		t.Fatalf("invoice without any reference should be ignorable, got %v", err)
	}
}

func TestHandlePaymentEvents(t *testing.T) {
	muts, err := HandlePaymentFailed(EventObject{
		ID:                "pay_5",
		ClientReferenceID: "sub_42",
		FailureReason:     "card declined",
		AmountTotal:       69000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := muts[0].(RecordPaymentStatus)
	if rec.Status != "failed" || !rec.MarkPastDue || rec.FailureReason != "card declined" {
		t.Fatalf("unexpected mutation: %+v", rec)
	}

	muts, err = HandlePaymentSucceeded(EventObject{ID: "pay_6", AmountTotal: 69000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec = muts[0].(RecordPaymentStatus)
	if rec.Status != "succeeded" || rec.MarkPastDue {
		t.Fatalf("unexpected mutation: %+v", rec)
	}

	if _, err := HandlePaymentSucceeded(EventObject{}); !errors.Is(err, ErrIgnorable) {
		t.Fatalf("payment event without id should be ignorable, got %v", err)
	}
}

func TestHandlerForUnknown(t *testing.T) {
	if _, ok := handlerFor(EventUnknown); ok {
		t.Fatalf("unknown events must not dispatch")
	}
	for _, et := range []EventType{EventCheckoutCompleted, EventInvoicePaid, EventPaymentSucceeded, EventPaymentFailed} {
		if _, ok := handlerFor(et); !ok {
			t.Fatalf("expected handler for %q", et)
		}
	}
}

func TestIsLocalReference(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "sub_42", want: true},
		{in: "biz_7", want: true},
		{in: "pay_abc", want: true},
		{in: "sub_", want: false},
		{in: "cus_42", want: false},
		{in: "", want: false},
	}
	for _, tt := range tests {
		if got := IsLocalReference(tt.in); got != tt.want {
			t.Fatalf("IsLocalReference(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
