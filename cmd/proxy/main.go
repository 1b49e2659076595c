package main

import (
	"os"

	"discussion-companion-be/internal/config"
	"discussion-companion-be/internal/controller"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/pkg/chatbot"

	"github.com/fatih/color"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"
)

func main() {
	var port string

	root := &cobra.Command{
		Use:   "proxy",
		Short: "Serve only the completion proxy at /api/chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port == "" {
				port = cfg.App.Port
			}
			log := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
			defer log.Sync()

			app := fiber.New(fiber.Config{DisableStartupMessage: true})
			app.Use(cors.New(cors.Config{
				AllowOrigins: cfg.App.CorsAllowedOrigins,
				AllowHeaders: "Origin, Content-Type, Accept",
				AllowMethods: "POST, OPTIONS",
			}))
			controller.NewProxyController(
				chatbot.GenerateContentURL(cfg.Ai.GeminiBaseURL, cfg.Ai.GeminiModel),
				cfg.Keys.GoogleGemini,
				log,
			).RegisterRoutes(app.Group("/api"))

			color.Cyan("Completion proxy listening on :%s", port)
			return app.Listen(":" + port)
		},
	}
	root.Flags().StringVar(&port, "port", "", "listen port (default APP_PORT)")

	if err := root.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
