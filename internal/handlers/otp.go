package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/services"
)

// OTPHandler exposes OTP issuance and verification.
type OTPHandler struct {
	otp *services.OTPService
}

// NewOTPHandler creates a new OTP handler
func NewOTPHandler(otp *services.OTPService) *OTPHandler {
	return &OTPHandler{otp: otp}
}

// IssueRequest asks for a new code. Validity defaults to 10 minutes, the
// channel to SMS.
type IssueRequest struct {
	UserID          string `json:"user_id"`
	Phone           string `json:"phone"`
	Purpose         string `json:"purpose"`
	ValidityMinutes int    `json:"validity_minutes"`
	Channel         string `json:"channel"`
}

// HandleIssue issues and sends a new code. The response carries metadata
// only, never the code.
func (h *OTPHandler) HandleIssue(c *fiber.Ctx) error {
	var req IssueRequest
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

	channel := models.Channel(req.Channel)
	if channel == "" {
		channel = models.ChannelSMS
	}
	purpose := models.OTPPurpose(req.Purpose)
	if purpose == "" {
		purpose = models.PurposeVerification
	}

	issue, err := h.otp.Issue(c.Context(), req.UserID, req.Phone, purpose, req.ValidityMinutes, channel)
	if err != nil {
		if errors.Is(err, services.ErrOTPSendFailed) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "failed to deliver code",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to issue code",
		})
	}
	return c.JSON(issue)
}

// VerifyRequest submits a candidate code.
type VerifyRequest struct {
	UserID      string `json:"user_id"`
	Code        string `json:"code"`
	Purpose     string `json:"purpose"`
	MaxAttempts int    `json:"max_attempts"`
}

// HandleVerify checks a candidate code. OTP failures are user-facing
// validation results, never retried server-side.
func (h *OTPHandler) HandleVerify(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	purpose := models.OTPPurpose(req.Purpose)
	if purpose == "" {
		purpose = models.PurposeVerification
	}

	err := h.otp.Verify(c.Context(), req.UserID, req.Code, purpose, req.MaxAttempts)
	if err != nil {
		var invalid *services.InvalidCodeError
		switch {
		case errors.Is(err, services.ErrOTPNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "not_found",
			})
		case errors.Is(err, services.ErrOTPExpired):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "expired",
			})
		case errors.Is(err, services.ErrOTPAttemptsExceeded):
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "attempts_exceeded",
			})
		case errors.As(err, &invalid):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":              "invalid_code",
				"attempts_remaining": invalid.AttemptsRemaining,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "verification failed",
		})
	}
	return c.JSON(fiber.Map{"verified": true})
}
