package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/services"
)

// NotificationHandler is the entry point for clinical workflow producers:
// they name a template and variables, the messenger does the rest.
type NotificationHandler struct {
	messenger *services.Messenger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(messenger *services.Messenger) *NotificationHandler {
	return &NotificationHandler{messenger: messenger}
}

// SendRequest is the producer-facing send payload.
type SendRequest struct {
	UserID   string            `json:"user_id"`
	Template string            `json:"template"`
	Priority string            `json:"priority"`
	Vars     map[string]string `json:"vars"`
}

// HandleSend runs one orchestrated send and reports the outcome.
func (h *NotificationHandler) HandleSend(c *fiber.Ctx) error {
	var req SendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" || req.Template == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and template are required",
		})
	}

	priority := models.MessagePriority(req.Priority)
	if priority == "" {
		priority = models.PriorityNormal
	}

	result, err := h.messenger.SendWithFallback(c.Context(), req.UserID, req.Template, priority, req.Vars)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoPhoneNumber):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "no_phone_number",
			})
		case errors.Is(err, services.ErrConsentDenied):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "consent_denied",
			})
		case errors.Is(err, services.ErrTemplateNotFound):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		var missing *services.TemplateVariableMissingError
		if errors.As(err, &missing) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": missing.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "send failed",
		})
	}

	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}
