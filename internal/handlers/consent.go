package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/services"
)

// ConsentHandler exposes consent management to the surrounding application.
type ConsentHandler struct {
	consent *services.ConsentService
}

// NewConsentHandler creates a new consent handler
func NewConsentHandler(consent *services.ConsentService) *ConsentHandler {
	return &ConsentHandler{consent: consent}
}

// SetConsentRequest is the create-or-merge payload.
type SetConsentRequest struct {
	UserID string                `json:"user_id"`
	Phone  string                `json:"phone"`
	Flags  services.ConsentFlags `json:"flags"`
	Source string                `json:"source"`
}

// HandleSet creates or merges a consent record.
func (h *ConsentHandler) HandleSet(c *fiber.Ctx) error {
	var req SetConsentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" || req.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and phone are required",
		})
	}

	rec, err := h.consent.SetConsent(req.UserID, req.Phone, req.Flags, models.ConsentSource(req.Source))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save consent",
		})
	}
	return c.JSON(fiber.Map{
		"user_id":       rec.UserID,
		"sms":           rec.SMS,
		"whatsapp":      rec.WhatsApp,
		"marketing":     rec.Marketing,
		"transactional": rec.Transactional,
	})
}

// HandleCheck reports whether the user grants one consent type.
func (h *ConsentHandler) HandleCheck(c *fiber.Ctx) error {
	userID := c.Params("userID")
	consentType := models.ConsentType(c.Params("type"))

	granted, err := h.consent.HasConsent(userID, consentType)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to check consent",
		})
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"type":    consentType,
		"granted": granted,
	})
}

// FlagChangeRequest names one consent type for opt-in/opt-out.
type FlagChangeRequest struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// HandleOptIn grants one consent type on an existing record.
func (h *ConsentHandler) HandleOptIn(c *fiber.Ctx) error {
	return h.changeFlag(c, h.consent.OptIn)
}

// HandleOptOut revokes one consent type on an existing record.
func (h *ConsentHandler) HandleOptOut(c *fiber.Ctx) error {
	return h.changeFlag(c, h.consent.OptOut)
}

func (h *ConsentHandler) changeFlag(c *fiber.Ctx, apply func(string, models.ConsentType, models.ConsentSource) error) error {
	userID := c.Params("userID")
	var req FlagChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	err := apply(userID, models.ConsentType(req.Type), models.ConsentSource(req.Source))
	switch {
	case errors.Is(err, services.ErrConsentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no consent record for user",
		})
	case errors.Is(err, services.ErrTransactionalLocked):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "transactional consent cannot be changed",
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update consent",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleErase hard-deletes the user's consent record on an erasure request.
func (h *ConsentHandler) HandleErase(c *fiber.Ctx) error {
	userID := c.Params("userID")

	err := h.consent.EraseConsent(userID)
	if errors.Is(err, services.ErrConsentNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no consent record for user",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to erase consent",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}
