package router

import (
	"github.com/ganzorigb/uulzalt/app/controllers"
	"github.com/ganzorigb/uulzalt/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	appointments := v1.Group("/appointments", middleware.APIKeyAuthMiddleware())
	appointments.Post("/:id/confirm", controllers.HandleAppointmentConfirm)
	appointments.Post("/:id/reschedule", controllers.HandleAppointmentReschedule)
	appointments.Post("/:id/cancel", controllers.HandleAppointmentCancel)
	appointments.Get("/:id/meeting", controllers.HandleAppointmentMeeting)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
