package main

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/example/jemaat/internal/config"
	"github.com/example/jemaat/internal/database"
	"github.com/example/jemaat/internal/routes"
	"github.com/example/jemaat/internal/services"
	"github.com/example/jemaat/internal/session"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)

	directory := services.NewDirectoryService(cfg.DirectoryBaseURL, cfg.DirectoryAPIKey, cfg.DirectorySecret, log)
	wagate := services.NewWagateService(cfg.GatewayBaseURL, cfg.GatewayAPIKey, log)

	sessions := session.NewManager(directory, cfg.SessionTTL, log)
	sessions.StartSweeper(cfg.SessionTTL / 10)
	defer sessions.Stop()

	app := fiber.New(fiber.Config{
		AppName: "Jemaat Kiosk Backend",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, db, cfg, sessions, directory, wagate, log)

	log.Info().Str("port", cfg.AppPort).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("fiber.Listen error")
	}
}
