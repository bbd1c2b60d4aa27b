package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sanovia-health/messaging-backend/internal/storage"
)

// InboxHandler lists stored two-way messages and marks them read.
type InboxHandler struct {
	store storage.Store
}

// NewInboxHandler creates a new inbox handler
func NewInboxHandler(store storage.Store) *InboxHandler {
	return &InboxHandler{store: store}
}

// HandleList returns the user's stored inbound messages, newest first.
func (h *InboxHandler) HandleList(c *fiber.Ctx) error {
	userID := c.Params("userID")
	limit := c.QueryInt("limit", 50)

	msgs, err := h.store.GetIncomingMessages(userID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load messages",
		})
	}
	return c.JSON(fiber.Map{
		"user_id":  userID,
		"messages": msgs,
	})
}

// HandleMarkRead flags one inbound message as read.
func (h *InboxHandler) HandleMarkRead(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid message id",
		})
	}

	if err := h.store.MarkIncomingRead(uint(id)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "message not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to mark message read",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}
