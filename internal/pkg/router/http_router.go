package router

import (
	"github.com/ganzorigb/uulzalt/app/controllers"
	"github.com/ganzorigb/uulzalt/internal/pkg/constants"
	"github.com/ganzorigb/uulzalt/internal/pkg/metrics/counter"
	"github.com/ganzorigb/uulzalt/internal/pkg/oauth"
	"github.com/ganzorigb/uulzalt/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Initialize payment controller (webhook archive)
	controllers.InitializePaymentController()

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// health check with pipeline counters
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "ok"}
		if webhooks, meetings, err := counter.Snapshot(); err == nil {
			body["webhook_outcomes"] = webhooks
			body["meeting_operations"] = meetings
		}
		return c.Status(fiber.StatusOK).JSON(body)
	})

	// BYL payment endpoints. Both answer preflight themselves; the webhook is
	// called server-to-server by BYL, the checkout endpoint by our frontends.
	app.Post(constants.BylCheckoutRoute, controllers.HandleCreateCheckout)
	app.Options(constants.BylCheckoutRoute, controllers.HandleBylOptions)
	app.Post(constants.BylWebhookRoute, controllers.HandleBylWebhook)
	app.Options(constants.BylWebhookRoute, controllers.HandleBylOptions)

	// Google Calendar connect flow
	app.Get(constants.ConnectGoogleRoute, controllers.HandleGoogleConnect)
	app.Get(constants.GoogleCallbackRoute, controllers.HandleGoogleCallback)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
