package controllers

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookDedupKey(t *testing.T) {
	assert.Equal(t, "byl:webhook:acked:evt_1", webhookDedupKey("evt_1"))
}

func TestHandleBylOptions(t *testing.T) {
	app := fiber.New()
	app.Options("/byl-webhook", HandleBylOptions)

	req := httptest.NewRequest(fiber.MethodOptions, "/byl-webhook", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "POST, OPTIONS", resp.Header.Get(fiber.HeaderAccessControlAllowMethods))
	assert.Contains(t, resp.Header.Get(fiber.HeaderAccessControlAllowHeaders), "x-byl-signature")
}
