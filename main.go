package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/sanovia-health/messaging-backend/database"
	"github.com/sanovia-health/messaging-backend/internal/jobs"
	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/routes"
	"github.com/sanovia-health/messaging-backend/internal/services"
	"github.com/sanovia-health/messaging-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		err := godotenv.Load(".env")
		if err != nil {
			err = godotenv.Load("environments/.env.development")
			if err != nil {
				log.Println("⚠️  No .env file found - checking environment variables")
			}
		}
	}

	// Initialize storage
	var store storage.Store

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.ConsentRecord{},
			&models.ConsentAuditEntry{},
			&models.MessageLog{},
			&models.OTP{},
			&models.IncomingMessage{},
			&models.ReminderLog{},
			&models.OverdueReminderLog{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
	}

	// Initialize the channel gateway
	gateway, err := services.NewTwilioGateway()
	if err != nil {
		log.Fatal("Failed to initialize message gateway:", err)
	}
	log.Printf("✅ Message gateway initialized (%s mode)", gateway.Mode())

	if err := gateway.HealthCheck(context.Background()); err != nil {
		log.Printf("⚠️  Gateway health check failed: %v", err)
	}

	// Initialize services
	consentService := services.NewConsentService(store)
	messenger := services.NewMessenger(store, consentService, gateway)
	otpService := services.NewOTPService(store, gateway)
	inboundProcessor := services.NewInboundProcessor(store, consentService).
		WithNotifyHook(func(userID string, msg *models.IncomingMessage) {
			// In-app notification fan-out lives in the main application;
			// here the stored message is the notification.
			log.Printf("🔔 New two-way message for user %s (id %d)", userID, msg.ID)
		})

	// Start the retention sweeper
	retentionJob := jobs.NewRetentionJob(store)
	retentionJob.Start()

	log.Println("✅ All services initialized")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "Sanovia Messaging Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check endpoint with database status
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":     "Sanovia Messaging Backend",
			"version":     "1.0.0",
			"status":      "healthy",
			"environment": getEnvironment(),
			"storage":     getStorageType(),
			"gateway":     string(gateway.Mode()),
			"templates":   len(services.MessageTemplates),
		})
	})

	// Health check endpoint for monitoring
	app.Get("/health", func(c *fiber.Ctx) error {
		status := "healthy"
		statusCode := fiber.StatusOK

		if os.Getenv("USE_MEMORY_STORE") != "true" && database.DB != nil {
			sqlDB, err := database.DB.DB()
			if err != nil || sqlDB.Ping() != nil {
				status = "unhealthy"
				statusCode = fiber.StatusServiceUnavailable
			}
		}

		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()
		gatewayHealthy := gateway.HealthCheck(ctx) == nil

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"services": fiber.Map{
				"database": status == "healthy",
				"gateway":  gatewayHealthy,
			},
		})
	})

	// Setup routes
	routes.SetupRoutes(app, store, consentService, messenger, otpService, inboundProcessor, retentionJob)

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		retentionJob.Stop()
		_ = app.Shutdown()
	}()

	// Start server
	log.Println("========================================")
	log.Printf("🚀 Sanovia Messaging Backend starting on port %s", port)
	log.Printf("📊 Storage: %s", getStorageType())
	log.Printf("🌍 Environment: %s", getEnvironment())
	log.Printf("📱 Gateway mode: %s", gateway.Mode())
	log.Printf("📋 Templates: %d loaded", len(services.MessageTemplates))
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

func getEnvironment() string {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return "Production (Cloud Run)"
	}
	return "Development (Local)"
}

func getStorageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}
