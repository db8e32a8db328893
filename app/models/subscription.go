package models

import (
	"strings"
	"time"
)

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
)

// Subscription tracks a paid plan for a business. ClientReferenceID is the
// correlation key handed to BYL at checkout-creation time; webhook events are
// resolved back to this row through it.
type Subscription struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	BusinessID         uint       `gorm:"not null;index" json:"business_id"`
	Plan               string     `gorm:"type:varchar(50);not null;default:'starter'" json:"plan"`
	Status             string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	ClientReferenceID  string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"client_reference_id"`
	BylCheckoutID      string     `gorm:"type:varchar(191);index" json:"byl_checkout_id"`
	BylSubscriptionID  string     `gorm:"type:varchar(191);index" json:"byl_subscription_id"`
	CustomerEmail      string     `gorm:"type:varchar(255)" json:"customer_email"`
	PaidThrough        *time.Time `gorm:"type:timestamp;default:null" json:"paid_through,omitempty"`
	ActivatedAt        *time.Time `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	LastPaymentPayload string     `gorm:"type:longtext" json:"-"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitled reports whether the subscription currently grants access.
// Past-due keeps access: revocation during the grace period is a policy
// decision owned by the plan enforcement layer, not the payment pipeline.
func (s *Subscription) IsEntitled() bool {
	switch strings.ToLower(strings.TrimSpace(s.Status)) {
	case SubscriptionStatusActive, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}
