package handlers

import (
	"encoding/xml"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sanovia-health/messaging-backend/internal/models"
	"github.com/sanovia-health/messaging-backend/internal/services"
)

// WebhookHandler receives gateway callbacks: inbound messages and delivery
// status updates.
type WebhookHandler struct {
	processor *services.InboundProcessor
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(processor *services.InboundProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// IncomingPayload is the form body Twilio posts for an inbound message.
// A "whatsapp:" prefix on From marks the WhatsApp channel.
type IncomingPayload struct {
	MessageSid string `form:"MessageSid"`
	AccountSid string `form:"AccountSid"`
	From       string `form:"From"`
	To         string `form:"To"`
	Body       string `form:"Body"`
	NumMedia   string `form:"NumMedia"`
}

// StatusPayload is the form body Twilio posts on delivery status changes.
type StatusPayload struct {
	MessageSid    string `form:"MessageSid"`
	MessageStatus string `form:"MessageStatus"`
	ErrorCode     string `form:"ErrorCode"`
	ErrorMessage  string `form:"ErrorMessage"`
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// HandleIncoming processes an inbound message callback and replies with
// TwiML. The webhook always answers, even when processing fails internally.
func (h *WebhookHandler) HandleIncoming(c *fiber.Ctx) error {
	var payload IncomingPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing incoming webhook: %v", err)
		return replyTwiML(c, services.ReplyTechnicalIssue)
	}

	channel := models.ChannelSMS
	if strings.HasPrefix(payload.From, "whatsapp:") {
		channel = models.ChannelWhatsApp
	}

	reply, err := h.processor.ProcessIncoming(payload.From, payload.Body, payload.MessageSid, channel)
	if err != nil {
		log.Printf("Error processing inbound message: %v", err)
	}
	return replyTwiML(c, reply)
}

// HandleStatus processes a delivery status callback. Unknown message ids are
// acknowledged without effect; the log may already have been swept.
func (h *WebhookHandler) HandleStatus(c *fiber.Ctx) error {
	var payload StatusPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid status payload",
		})
	}

	err := h.processor.ProcessStatusUpdate(
		payload.MessageSid,
		models.MessageStatus(payload.MessageStatus),
		payload.ErrorCode,
		payload.ErrorMessage,
	)
	if err != nil {
		log.Printf("Error applying status update for %s: %v", payload.MessageSid, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to apply status update",
		})
	}
	return c.SendStatus(fiber.StatusOK)
}

func replyTwiML(c *fiber.Ctx, message string) error {
	body, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	c.Set(fiber.HeaderContentType, "application/xml")
	return c.SendString(xml.Header + string(body))
}
