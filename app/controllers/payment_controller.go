package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ganzorigb/uulzalt/app/models"
	"github.com/ganzorigb/uulzalt/internal/pkg/archive"
	"github.com/ganzorigb/uulzalt/internal/pkg/cache"
	"github.com/ganzorigb/uulzalt/internal/pkg/database"
	"github.com/ganzorigb/uulzalt/internal/pkg/env"
	"github.com/ganzorigb/uulzalt/internal/pkg/mail"
	"github.com/ganzorigb/uulzalt/internal/pkg/metrics/counter"
	"github.com/ganzorigb/uulzalt/internal/pkg/payments"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	bylProvider        = "byl"
	bylSignatureHeader = "x-byl-signature"

	// TTL for the Redis fast path in front of the durable dedup index.
	webhookDedupTTL = 24 * time.Hour
)

var webhookArchive *archive.Client

// InitializePaymentController wires the optional webhook archive. Called once
// at router installation.
func InitializePaymentController() {
	cfg, err := archive.LoadConfig()
	if err != nil {
		log.Warnf("[Billing] webhook archive misconfigured: %v", err)
		return
	}
	if !cfg.IsEnabled() {
		return
	}
	client, err := archive.NewClient(cfg)
	if err != nil {
		log.Warnf("[Billing] webhook archive unavailable: %v", err)
		return
	}
	webhookArchive = client
}

type checkoutPayload struct {
	payments.CheckoutRequest
	SubscriptionID uint `json:"subscription_id"`
}

// HandleCreateCheckout creates a hosted BYL checkout and returns the redirect
// target. Checkout creation is never retried here: a duplicate call would
// open a second session, so retrying is the caller's decision with a fresh
// client reference id.
func HandleCreateCheckout(c *fiber.Ctx) error {
	setBylCORSHeaders(c)

	var payload checkoutPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	req := payload.CheckoutRequest
	if strings.TrimSpace(req.ClientReferenceID) == "" {
		ref, err := assignClientReference(payload.SubscriptionID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "client_reference_id or a known subscription_id is required",
			})
		}
		req.ClientReferenceID = ref
	}

	client := payments.NewBylClientFromEnv()
	if !client.IsConfigured() {
		log.Errorf("[Billing] checkout requested without BYL credentials configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "BYL API credentials not configured",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	checkout, err := client.CreateCheckout(ctx, req)
	if err != nil {
		var pe *payments.ProviderError
		switch {
		case errors.Is(err, payments.ErrNotConfigured):
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "BYL API credentials not configured",
			})
		case errors.As(err, &pe):
			log.Warnf("[Billing] BYL rejected checkout ref=%s status=%d", req.ClientReferenceID, pe.StatusCode)
			return c.Status(pe.StatusCode).JSON(fiber.Map{
				"success": false,
				"error":   "Checkout creation failed",
				"details": pe.Body,
			})
		default:
			log.Errorf("[Billing] checkout creation failed ref=%s: %v", req.ClientReferenceID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"error":   "Checkout creation failed",
				"details": err.Error(),
			})
		}
	}

	log.Infof("[Billing] checkout %s created for ref=%s", checkout.ID, req.ClientReferenceID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":  true,
		"checkout": checkout,
	})
}

// HandleBylWebhook ingests asynchronous BYL payment events. Any
// signature-valid, syntactically valid envelope is acknowledged with 200;
// only unexpected internal failures return 500 so the provider redelivers.
func HandleBylWebhook(c *fiber.Ctx) error {
	setBylCORSHeaders(c)

	// The exact bytes received; verification is never run over re-serialized data.
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(bylSignatureHeader))
	secret := env.GetEnv("BYL_WEBHOOK_SECRET", "")

	sigStatus := payments.VerifySignature(rawBody, signature, secret)
	if sigStatus == payments.SignatureInvalid {
		log.Warnf("[Billing] webhook rejected: invalid signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid signature"})
	}
	if sigStatus == payments.SignatureSkipped {
		// Weak mode for environments without a configured secret.
		log.Warnf("[Billing] webhook signature verification skipped (secret or header missing)")
	}

	svc := payments.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	envelope, parseErr := payments.ParseEnvelope(rawBody)
	if parseErr != nil {
		// Still leave an audit row behind for reconciliation.
		if _, stored, err := svc.RecordWebhookEvent(ctx, payments.WebhookEventInput{
			Provider:       bylProvider,
			PayloadJSON:    string(rawBody),
			SignatureValid: sigStatus == payments.SignatureValid,
		}); err == nil {
			_ = svc.MarkWebhookProcessed(ctx, stored.ID, payments.ProcessingResult{
				Outcome: models.WebhookOutcomeFailed,
				Note:    parseErr.Error(),
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payload"})
	}

	// Fast path: an event id we already acknowledged successfully.
	if envelope.ProviderEventID != "" {
		if _, err := cache.Get(webhookDedupKey(envelope.ProviderEventID)); err == nil {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
		}
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, payments.WebhookEventInput{
		Provider:        bylProvider,
		ProviderEventID: envelope.ProviderEventID,
		EventType:       envelope.RawType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  sigStatus == payments.SignatureValid,
	})
	if err != nil {
		log.Errorf("[Billing] webhook persist failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Webhook processing failed"})
	}

	if webhookArchive != nil && created {
		webhookArchive.StoreAsync(bylProvider, stored.ProviderEventID, rawBody)
	}

	// Replays of an event that already went through successfully are
	// acknowledged without re-invoking the handler. A failed or still
	// pending outcome is redelivery and gets another attempt.
	if !created && stored.Settled() {
		rememberAcked(stored.ProviderEventID)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	result := svc.ProcessEvent(ctx, envelope)
	if err := counter.AddWebhookOutcome(bylProvider, result.Outcome); err != nil {
		log.Debugf("[Billing] outcome counter failed: %v", err)
	}
	if err := svc.MarkWebhookProcessed(ctx, stored.ID, result); err != nil {
		log.Errorf("[Billing] marking webhook %d failed: %v", stored.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Webhook processing failed"})
	}

	if !result.Acked() {
		log.Warnf("[Billing] event %s (%s) failed: %s", stored.ProviderEventID, envelope.RawType, result.Note)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Webhook processing failed"})
	}

	if result.Outcome == models.WebhookOutcomeIgnored && result.Note != "" {
		log.Infof("[Billing] event %s (%s) ignored: %s", stored.ProviderEventID, envelope.RawType, result.Note)
	}
	if result.Outcome == models.WebhookOutcomeProcessed && envelope.Type == payments.EventPaymentFailed {
		notifyPaymentFailedAsync(envelope.Object.ClientReferenceID)
	}
	rememberAcked(stored.ProviderEventID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// HandleBylOptions answers CORS preflight for both BYL endpoints.
func HandleBylOptions(c *fiber.Ctx) error {
	setBylCORSHeaders(c)
	return c.SendStatus(fiber.StatusOK)
}

func setBylCORSHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowMethods, "POST, OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization, "+bylSignatureHeader)
}

func webhookDedupKey(eventID string) string {
	return "byl:webhook:acked:" + eventID
}

func rememberAcked(eventID string) {
	if eventID == "" {
		return
	}
	if _, err := cache.SetNX(webhookDedupKey(eventID), "1", webhookDedupTTL); err != nil {
		log.Debugf("[Billing] dedup cache write failed: %v", err)
	}
}

// notifyPaymentFailedAsync mails the subscription owner that a charge failed.
// Best effort: the webhook has already been acknowledged at this point.
func notifyPaymentFailedAsync(clientReferenceID string) {
	ref := strings.TrimSpace(clientReferenceID)
	if ref == "" {
		return
	}
	go func() {
		var sub models.Subscription
		if err := database.GetDB().Where("client_reference_id = ?", ref).First(&sub).Error; err != nil {
			return
		}
		if sub.CustomerEmail == "" {
			return
		}
		body := "<p>A payment for your Uulzalt subscription failed. " +
			"Please update your payment details to keep your plan active.</p>"
		if err := mail.SendMail(sub.CustomerEmail, "Payment failed for your Uulzalt subscription", body); err != nil {
			log.Warnf("[Billing] payment-failed notice to %s failed: %v", sub.CustomerEmail, err)
		}
	}()
}

// assignClientReference makes the correlation id durable before the provider
// ever sees the checkout: it is minted here and written to the subscription
// row, so webhook-time resolution never needs a fallback branch.
func assignClientReference(subscriptionID uint) (string, error) {
	if subscriptionID == 0 {
		return "", errors.New("no subscription reference supplied")
	}
	db := database.GetDB()
	var sub models.Subscription
	if err := db.First(&sub, subscriptionID).Error; err != nil {
		return "", err
	}
	if sub.ClientReferenceID != "" {
		return sub.ClientReferenceID, nil
	}
	sub.ClientReferenceID = "sub_" + uuid.NewString()
	if err := db.Save(&sub).Error; err != nil {
		return "", err
	}
	return sub.ClientReferenceID, nil
}
