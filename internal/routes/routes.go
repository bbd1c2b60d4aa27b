package routes

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/sanovia-health/messaging-backend/internal/handlers"
	"github.com/sanovia-health/messaging-backend/internal/jobs"
	"github.com/sanovia-health/messaging-backend/internal/middleware"
	"github.com/sanovia-health/messaging-backend/internal/services"
	"github.com/sanovia-health/messaging-backend/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, consent *services.ConsentService,
	messenger *services.Messenger, otp *services.OTPService,
	processor *services.InboundProcessor, retention *jobs.RetentionJob) {

	webhookHandler := handlers.NewWebhookHandler(processor)
	notificationHandler := handlers.NewNotificationHandler(messenger)
	consentHandler := handlers.NewConsentHandler(consent)
	otpHandler := handlers.NewOTPHandler(otp)
	inboxHandler := handlers.NewInboxHandler(store)
	adminHandler := handlers.NewAdminHandler(retention)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		// Development: skip signature validation so tunneled requests work
		webhooks.Post("/incoming", webhookHandler.HandleIncoming)
		webhooks.Post("/status", webhookHandler.HandleStatus)
		if os.Getenv("ENVIRONMENT") == "development" {
			println("⚠️  Webhook signature validation DISABLED for development")
		}
	} else {
		webhooks.Post("/incoming", middleware.ValidateTwilioSignature(), webhookHandler.HandleIncoming)
		webhooks.Post("/status", middleware.ValidateTwilioSignature(), webhookHandler.HandleStatus)
	}

	// ========== PRODUCER API ==========
	api := app.Group("/api")

	api.Post("/notifications/send", notificationHandler.HandleSend)

	consentRoutes := api.Group("/consent")
	consentRoutes.Post("/", consentHandler.HandleSet)
	consentRoutes.Get("/:userID/:type", consentHandler.HandleCheck)
	consentRoutes.Post("/:userID/opt-in", consentHandler.HandleOptIn)
	consentRoutes.Post("/:userID/opt-out", consentHandler.HandleOptOut)
	consentRoutes.Delete("/:userID", consentHandler.HandleErase)

	otpRoutes := api.Group("/otp")
	otpRoutes.Post("/issue", otpHandler.HandleIssue)
	otpRoutes.Post("/verify", otpHandler.HandleVerify)

	inbox := api.Group("/inbox")
	inbox.Get("/:userID", inboxHandler.HandleList)
	inbox.Post("/:id/read", inboxHandler.HandleMarkRead)

	// ========== ADMIN / CRON ROUTES ==========
	admin := app.Group("/admin")
	admin.Post("/cleanup", adminHandler.HandleCleanup)
	admin.Post("/cleanup/otps", adminHandler.HandleCleanupOTPs)
}
