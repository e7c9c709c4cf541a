package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"

	"github.com/dibantu/wa-relay/internal/core/llm"
	"github.com/dibantu/wa-relay/internal/core/tenant"
	"github.com/dibantu/wa-relay/internal/core/transport"
	"github.com/dibantu/wa-relay/internal/modules/relay/handlers"
	"github.com/dibantu/wa-relay/internal/modules/relay/repositories"
	"github.com/dibantu/wa-relay/internal/modules/relay/services"
	"github.com/dibantu/wa-relay/internal/shared/config"
	"github.com/dibantu/wa-relay/internal/shared/database"
	"github.com/dibantu/wa-relay/internal/shared/logging"
)

// @title Dibantu WA Relay API
// @version 1.0
// @description Multi-tenant WhatsApp webhook relay with AI-generated replies
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	// Load config
	cfg := config.LoadConfig()
	logging.Init(cfg.Env)
	log.Printf("🚀 Starting wa-relay on port %s", cfg.Port)

	// Init database
	db := database.NewDB(cfg.DatabaseURL)
	defer db.Close()

	// Init repositories
	tenantRepo := repositories.NewTenantRepo(db.DB)
	contextRepo := repositories.NewContextRepo(db.GORM)
	conversationRepo := repositories.NewConversationRepo(db.GORM)

	// Init tenant resolver
	resolver := tenant.NewResolver(tenantRepo, contextRepo)

	// Init LLM service (multi-provider support)
	llmService := llm.NewService(time.Duration(cfg.ReplyTimeoutSecs) * time.Second)

	// Init WhatsApp transport (cloudapi / fonnte / whatsmeow)
	transportService := transport.NewService(cfg.WhatsAppStoreURL)
	if err := transportService.Connect(); err != nil {
		log.Fatalf("❌ Failed to connect transport: %v", err)
	}
	defer transportService.Disconnect()

	log.Printf("📱 Using WhatsApp transport: %s", transportService.GetProviderName())
	log.Printf("🤖 Using LLM provider: %s", llmService.GetProviderName())

	// Init services
	relayService := services.NewRelayService(resolver, conversationRepo, llmService, transportService, cfg.HistoryLimit)

	retentionService := services.NewRetentionService(conversationRepo, cfg.RetentionDays)
	if err := retentionService.Start(); err != nil {
		log.Fatalf("❌ Failed to start retention sweeper: %v", err)
	}
	defer retentionService.Stop()

	// Init handlers
	webhookHandler := handlers.NewWebhookHandler(relayService, cfg.WebhookVerifyToken)
	tenantHandler := handlers.NewTenantHandler(tenantRepo, contextRepo, conversationRepo)
	healthHandler := handlers.NewHealthHandler(transportService)

	// Init Fiber app
	app := fiber.New(fiber.Config{
		AppName: "Dibantu WA Relay",
	})

	// Middleware
	app.Use(cors.New())

	// Swagger
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Health check
	app.Get("/health", healthHandler.Health)

	// Webhook routes (Meta Cloud API)
	app.Get("/webhook", webhookHandler.VerifyWebhook)
	app.Post("/webhook", webhookHandler.ReceiveWebhook)

	// Admin routes
	admin := app.Group("/admin", handlers.AdminKeyMiddleware(cfg.AdminAPIKey))
	admin.Get("/tenants", tenantHandler.ListTenants)
	admin.Post("/tenants", tenantHandler.CreateTenant)
	admin.Get("/tenants/:id", tenantHandler.GetTenantDetail)
	admin.Put("/tenants/:id", tenantHandler.UpdateTenant)
	admin.Delete("/tenants/:id", tenantHandler.DeleteTenant)
	admin.Put("/tenants/:id/context", tenantHandler.UpdateContext)
	admin.Get("/whatsapp/qr", healthHandler.GenerateQR)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("✅ wa-relay running at :%s", port)
	log.Printf("📄 Swagger UI: http://localhost:%s/swagger/", port)
	log.Fatal(app.Listen(":" + port))
}
