package payments

import (
	"time"

	"github.com/ganzorigb/uulzalt/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payment service.
type Repository interface {
	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, outcome, processingError string) error
	GetSubscriptionByClientReference(ref string) (*models.Subscription, error)
	GetSubscriptionByProviderSubID(providerSubID string) (*models.Subscription, error)
	GetSubscriptionByID(id uint) (*models.Subscription, error)
	SaveSubscription(sub *models.Subscription) error
	UpsertPayment(p *models.Payment) error
	GetPaymentByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, outcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"outcome":          outcome,
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GetSubscriptionByClientReference(ref string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("client_reference_id = ?", ref).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByProviderSubID(providerSubID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("byl_subscription_id = ?", providerSubID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) UpsertPayment(p *models.Payment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_payment_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"subscription_id",
			"business_id",
			"provider_invoice_id",
			"amount",
			"status",
			"failure_reason",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider = ? AND provider_payment_id = ?", p.Provider, p.ProviderPaymentID).
		First(p).Error
}

func (r *gormRepository) GetPaymentByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
