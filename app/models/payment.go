package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Payment is one charge attempt reported by BYL. Amount is in minor currency
// units as delivered by the provider.
type Payment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID    uint      `gorm:"index" json:"subscription_id"`
	BusinessID        uint      `gorm:"index" json:"business_id"`
	Provider          string    `gorm:"type:varchar(20);not null;default:'byl';index:ux_payments_provider_payment,unique,priority:1" json:"provider"`
	ProviderPaymentID string    `gorm:"type:varchar(191);not null;index:ux_payments_provider_payment,unique,priority:2" json:"provider_payment_id"`
	ProviderInvoiceID string    `gorm:"type:varchar(191);index" json:"provider_invoice_id"`
	Amount            int64     `gorm:"not null;default:0" json:"amount"`
	Currency          string    `gorm:"type:varchar(8);not null;default:'MNT'" json:"currency"`
	Status            string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	FailureReason     string    `gorm:"type:text" json:"failure_reason"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
