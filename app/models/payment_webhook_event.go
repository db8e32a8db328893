package models

import "time"

const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeFailed    = "failed"
)

// PaymentWebhookEvent stores provider webhook payloads with deduplication
// metadata for idempotent processing. The unique (provider, provider_event_id)
// index is the compare-and-set that guarantees at most one successful handler
// execution per provider event, even under concurrent duplicate deliveries.
type PaymentWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_payment_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_payment_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	Outcome         string     `gorm:"type:varchar(20);not null;default:'';index" json:"outcome"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Settled reports whether the event already ran to an acknowledged terminal
// outcome. Failed events want another attempt, and an empty outcome means
// processing started but was never marked, so a redelivery must be dispatched
// again rather than acked as a duplicate.
func (e *PaymentWebhookEvent) Settled() bool {
	return e.Outcome == WebhookOutcomeProcessed || e.Outcome == WebhookOutcomeIgnored
}
