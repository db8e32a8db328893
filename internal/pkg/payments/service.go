package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ganzorigb/uulzalt/app/models"
	"gorm.io/gorm"
)

// Service routes verified webhook events through their handlers and applies
// the resulting mutations. Exactly-once effect per provider event id comes
// from the repository's compare-and-set on the webhook event row, not from
// in-process locking.
type Service struct {
	repo Repository
}

// NewService creates a payment service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ProcessingResult is what routing one event produced. Outcome is one of the
// models.WebhookOutcome* values; Note carries the classification detail that
// is persisted for manual reconciliation.
type ProcessingResult struct {
	Outcome string
	Note    string
}

// Acked reports whether the provider should receive a success acknowledgment.
// Only a failed outcome may trigger provider-side redelivery.
func (r ProcessingResult) Acked() bool {
	return r.Outcome != models.WebhookOutcomeFailed
}

// RecordWebhookEvent persists a webhook payload idempotently. Events without
// a provider-assigned id fall back to a content hash so replays of the same
// bytes still deduplicate.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed stores the outcome of one processing attempt.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, result ProcessingResult) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, result.Outcome, result.Note)
}

// ProcessEvent dispatches one parsed envelope to its handler and applies the
// mutations. Unknown event types and ignorable events are acknowledged as
// no-ops; only genuine failures produce a failed outcome (and thereby a
// provider retry).
func (s *Service) ProcessEvent(ctx context.Context, env *Envelope) ProcessingResult {
	handler, ok := handlerFor(env.Type)
	if !ok {
		return ProcessingResult{
			Outcome: models.WebhookOutcomeIgnored,
			Note:    fmt.Sprintf("unhandled event type %q", env.RawType),
		}
	}

	mutations, err := handler(env.Object)
	if err != nil {
		return classify(err)
	}

	for _, m := range mutations {
		if err := s.apply(ctx, m); err != nil {
			return classify(err)
		}
	}
	return ProcessingResult{Outcome: models.WebhookOutcomeProcessed}
}

func classify(err error) ProcessingResult {
	if errors.Is(err, ErrIgnorable) {
		return ProcessingResult{Outcome: models.WebhookOutcomeIgnored, Note: err.Error()}
	}
	return ProcessingResult{Outcome: models.WebhookOutcomeFailed, Note: err.Error()}
}

func (s *Service) apply(ctx context.Context, m Mutation) error {
	_ = ctx
	switch m := m.(type) {
	case ActivateSubscription:
		return s.applyActivateSubscription(m)
	case ExtendPaidThrough:
		return s.applyExtendPaidThrough(m)
	case RecordPaymentStatus:
		return s.applyRecordPaymentStatus(m)
	default:
		return fmt.Errorf("unknown mutation %T", m)
	}
}

func (s *Service) applyActivateSubscription(m ActivateSubscription) error {
	sub, err := s.resolveSubscription(m.ClientReferenceID, "")
	if err != nil {
		return err
	}

	now := time.Now()
	sub.Status = models.SubscriptionStatusActive
	sub.BylCheckoutID = m.CheckoutID
	if m.CustomerEmail != "" {
		sub.CustomerEmail = m.CustomerEmail
	}
	if sub.ActivatedAt == nil {
		sub.ActivatedAt = &now
	}
	if sub.PaidThrough == nil || sub.PaidThrough.Before(now) {
		paidThrough := now.AddDate(0, 1, 0)
		sub.PaidThrough = &paidThrough
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}

	return s.repo.UpsertPayment(&models.Payment{
		SubscriptionID:    sub.ID,
		BusinessID:        sub.BusinessID,
		Provider:          "byl",
		ProviderPaymentID: m.CheckoutID,
		Amount:            m.AmountTotal,
		Status:            models.PaymentStatusSucceeded,
	})
}

func (s *Service) applyExtendPaidThrough(m ExtendPaidThrough) error {
	sub, err := s.resolveSubscription(m.ClientReferenceID, m.ProviderSubscriptionID)
	if err != nil {
		return err
	}

	now := time.Now()
	base := now
	if sub.PaidThrough != nil && sub.PaidThrough.After(now) {
		base = *sub.PaidThrough
	}
	paidThrough := m.PeriodEnd
	if paidThrough.IsZero() {
		paidThrough = base.AddDate(0, 1, 0)
	}
	sub.PaidThrough = &paidThrough
	// A paid invoice clears a past-due flag.
	sub.Status = models.SubscriptionStatusActive
	if m.ProviderSubscriptionID != "" {
		sub.BylSubscriptionID = m.ProviderSubscriptionID
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}

	if m.InvoiceID == "" {
		return nil
	}
	return s.repo.UpsertPayment(&models.Payment{
		SubscriptionID:    sub.ID,
		BusinessID:        sub.BusinessID,
		Provider:          "byl",
		ProviderPaymentID: m.InvoiceID,
		ProviderInvoiceID: m.InvoiceID,
		Amount:            m.Amount,
		Status:            models.PaymentStatusSucceeded,
	})
}

func (s *Service) applyRecordPaymentStatus(m RecordPaymentStatus) error {
	status := models.PaymentStatusSucceeded
	if m.Status == "failed" {
		status = models.PaymentStatusFailed
	}

	if m.ClientReferenceID != "" {
		sub, err := s.resolveSubscription(m.ClientReferenceID, "")
		if err != nil {
			return err
		}
		if err := s.repo.UpsertPayment(&models.Payment{
			SubscriptionID:    sub.ID,
			BusinessID:        sub.BusinessID,
			Provider:          "byl",
			ProviderPaymentID: m.ProviderPaymentID,
			Amount:            m.Amount,
			Status:            status,
			FailureReason:     m.FailureReason,
		}); err != nil {
			return err
		}
		if m.MarkPastDue {
			sub.Status = models.SubscriptionStatusPastDue
			return s.repo.SaveSubscription(sub)
		}
		return nil
	}

	// No correlation id: only payments we already know about are updated.
	payment, err := s.repo.GetPaymentByProviderPaymentID("byl", m.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: unknown payment %q", ErrIgnorable, m.ProviderPaymentID)
		}
		return err
	}
	payment.Status = status
	payment.FailureReason = m.FailureReason
	if m.Amount > 0 {
		payment.Amount = m.Amount
	}
	if err := s.repo.UpsertPayment(payment); err != nil {
		return err
	}
	if m.MarkPastDue && payment.SubscriptionID != 0 {
		sub, err := s.repo.GetSubscriptionByID(payment.SubscriptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		sub.Status = models.SubscriptionStatusPastDue
		return s.repo.SaveSubscription(sub)
	}
	return nil
}

// resolveSubscription maps correlation keys back to a subscription row and
// draws the UnresolvedReference / Ignorable line: our own reference scheme
// with no row is retryable, anything foreign or absent is not ours to retry.
func (s *Service) resolveSubscription(ref, providerSubID string) (*models.Subscription, error) {
	if ref != "" {
		if !IsLocalReference(ref) {
			return nil, fmt.Errorf("%w: foreign reference %q", ErrIgnorable, ref)
		}
		sub, err := s.repo.GetSubscriptionByClientReference(ref)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedReference, ref)
	}

	if providerSubID != "" {
		sub, err := s.repo.GetSubscriptionByProviderSubID(providerSubID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: unknown provider subscription %q", ErrIgnorable, providerSubID)
	}

	return nil, fmt.Errorf("%w: no subscription reference", ErrIgnorable)
}
