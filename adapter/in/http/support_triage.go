package http

import (
	"context"
	"time"

	"support_server/core/port/out"
	"support_server/pkg/apperr"
	"support_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// TriageHandler exposes the manual triage operations: an operator can
// force a message back through the pipeline regardless of its status,
// for example after an auto-send failure left a draft approved.
type TriageHandler struct {
	messages out.MessageRepository
	producer out.JobProducer
}

func NewTriageHandler(messages out.MessageRepository, producer out.JobProducer) *TriageHandler {
	return &TriageHandler{
		messages: messages,
		producer: producer,
	}
}

func (h *TriageHandler) Register(router fiber.Router) {
	router.Post("/messages/:id/reprocess", h.Reprocess)
}

func (h *TriageHandler) Reprocess(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid message id"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	msg, err := h.messages.GetByID(ctx, int64(id))
	if err != nil {
		if apperr.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "message not found"})
		}
		logger.WithMessageID(int64(id)).WithError(err).Error("Reprocess lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
	}

	jobID, err := h.producer.PublishReprocess(ctx, msg.ID)
	if err != nil {
		logger.WithMessageID(msg.ID).WithError(err).Error("Failed to enqueue reprocess job")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "enqueue failed"})
	}

	logger.WithMessageID(msg.ID).Info("Reprocess job %s enqueued", jobID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":     jobID,
		"message_id": msg.ID,
		"status":     string(msg.Status),
	})
}
