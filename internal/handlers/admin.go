package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sanovia-health/messaging-backend/internal/jobs"
)

// AdminHandler exposes the cron-style maintenance triggers. These routes are
// internal; the platform scheduler calls them, not end users.
type AdminHandler struct {
	retention *jobs.RetentionJob
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(retention *jobs.RetentionJob) *AdminHandler {
	return &AdminHandler{retention: retention}
}

// HandleCleanup runs a full retention sweep across all collections.
func (h *AdminHandler) HandleCleanup(c *fiber.Ctx) error {
	report := h.retention.RunAll(c.Context())
	return c.JSON(report)
}

// HandleCleanupOTPs sweeps only expired OTP records.
func (h *AdminHandler) HandleCleanupOTPs(c *fiber.Ctx) error {
	count, err := h.retention.SweepOTPs(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "otp sweep failed",
		})
	}
	return c.JSON(fiber.Map{"deleted": count})
}
