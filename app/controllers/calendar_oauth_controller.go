package controllers

import (
	"errors"
	"time"

	"github.com/ganzorigb/uulzalt/app/models"
	"github.com/ganzorigb/uulzalt/internal/pkg/database"
	"github.com/ganzorigb/uulzalt/internal/pkg/session"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	gothfiber "github.com/shareed2k/goth_fiber"
	"gorm.io/gorm"
)

const connectBusinessSessionKey = "connect_business_id"

// HandleGoogleConnect starts the OAuth flow that links a business to its
// Google account. The target business is pinned in the session so the
// callback knows whose tokens it is storing.
func HandleGoogleConnect(c *fiber.Ctx) error {
	businessID := c.QueryInt("business_id")
	if businessID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "business_id is required"})
	}

	var biz models.Business
	if err := database.GetDB().First(&biz, businessID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "business not found"})
		}
		log.Errorf("[OAuth] loading business %d: %v", businessID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load business"})
	}

	if err := session.SetSessionValue(c, connectBusinessSessionKey, businessID); err != nil {
		log.Errorf("[OAuth] storing connect session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session unavailable"})
	}

	// The route carries no :provider param, so name the provider explicitly.
	c.Locals("provider", "google")
	return gothfiber.BeginAuthHandler(c)
}

// HandleGoogleCallback finishes the flow and persists the token pair on the
// business row. A missing refresh token is an error: without it the meetings
// client dies the moment the access token expires.
func HandleGoogleCallback(c *fiber.Ctx) error {
	c.Locals("provider", "google")
	user, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		log.Warnf("[OAuth] google callback failed: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "google authorization failed"})
	}

	raw, err := session.GetSessionValue(c, connectBusinessSessionKey)
	if err != nil || raw == nil {
		log.Warnf("[OAuth] google callback without connect session")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no connect flow in progress"})
	}
	businessID, ok := raw.(int)
	if !ok || businessID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no connect flow in progress"})
	}

	db := database.GetDB()
	var biz models.Business
	if err := db.First(&biz, businessID).Error; err != nil {
		log.Errorf("[OAuth] loading business %d after callback: %v", businessID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load business"})
	}

	if user.RefreshToken == "" && biz.GoogleRefreshToken == "" {
		log.Warnf("[OAuth] google granted no refresh token for business %d", businessID)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "google did not grant offline access, remove the app from your account and connect again",
		})
	}

	biz.GoogleAccountID = user.UserID
	biz.GoogleAccessToken = user.AccessToken
	if user.RefreshToken != "" {
		biz.GoogleRefreshToken = user.RefreshToken
	}
	if !user.ExpiresAt.IsZero() {
		expiry := user.ExpiresAt.UTC()
		biz.GoogleTokenExpiry = &expiry
	} else {
		expiry := time.Now().Add(55 * time.Minute).UTC()
		biz.GoogleTokenExpiry = &expiry
	}

	if err := db.Save(&biz).Error; err != nil {
		log.Errorf("[OAuth] saving google tokens for business %d: %v", businessID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not save credentials"})
	}

	log.Infof("[OAuth] business %d connected google account %s", businessID, user.UserID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "business_id": businessID})
}
