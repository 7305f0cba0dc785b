package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/jemaat/internal/config"
	"github.com/example/jemaat/internal/handlers"
	"github.com/example/jemaat/internal/middleware"
	"github.com/example/jemaat/internal/services"
	"github.com/example/jemaat/internal/session"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, sessions *session.Manager, directory *services.DirectoryService, wagate *services.WagateService, log zerolog.Logger) {
	deviceHandler := handlers.NewDeviceHandler(db, cfg)
	churchHandler := handlers.NewChurchHandler(db)
	checkinHandler := handlers.NewCheckinHandler(db, cfg, sessions, directory, wagate, log)
	companionHandler := handlers.NewCompanionHandler(db, sessions, directory, wagate, log)
	eventHandler := handlers.NewEventHandler(db)
	wagateHandler := handlers.NewWagateHandler(db, log)

	api := app.Group("/api")

	// Kiosk enrollment
	devices := api.Group("/devices")
	devices.Post("/register", deviceHandler.Register)
	devices.Post("/login", deviceHandler.Login)

	// Gateway callbacks (shared-key auth, no device token)
	api.Post("/gateway/delivery", middleware.GatewayAuthMiddleware(cfg.GatewayAPIKey), wagateHandler.DeliveryCallback)

	// Everything below requires an enrolled kiosk
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Get("/church", churchHandler.GetChurch)
	protected.Put("/church", churchHandler.SetChurch)

	protected.Get("/events", eventHandler.ListEvents)
	protected.Post("/events", eventHandler.CreateEvent)
	protected.Get("/events/:id", eventHandler.GetEvent)
	protected.Get("/events/:id/attendees", eventHandler.ListAttendees)

	checkin := protected.Group("/checkin/sessions")
	checkin.Post("/", checkinHandler.CreateSession)
	checkin.Get("/:id", checkinHandler.GetSession)
	checkin.Delete("/:id", checkinHandler.CloseSession)
	checkin.Post("/:id/phone", checkinHandler.SubmitPhone)
	checkin.Post("/:id/resend", checkinHandler.Resend)
	checkin.Post("/:id/verify", checkinHandler.Verify)
	checkin.Post("/:id/checkin", checkinHandler.CheckIn)

	checkin.Post("/:id/selector/mode", companionHandler.SetMode)
	checkin.Post("/:id/selector/query", companionHandler.SetQuery)
	checkin.Get("/:id/selector/results", companionHandler.Results)
	checkin.Post("/:id/selector/pick", companionHandler.Pick)
	checkin.Post("/:id/selector/draft", companionHandler.Draft)

	checkin.Post("/:id/companions", companionHandler.Finalize)
	checkin.Delete("/:id/companions/:key", companionHandler.Remove)
	checkin.Post("/:id/submit", companionHandler.Submit)
}
