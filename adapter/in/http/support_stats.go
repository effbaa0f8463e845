package http

import (
	"context"
	"time"

	"support_server/adapter/in/worker"
	"support_server/core/port/out"
	"support_server/infra/database"
	"support_server/internal/stream"
	"support_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatsHandler exposes operational counters: message volume by status
// and category, queue backlog, worker pool metrics and DB pool usage.
type StatsHandler struct {
	messages out.MessageRepository
	pool     *worker.Pool
	streams  *stream.RedisStream
	db       *pgxpool.Pool
}

func NewStatsHandler(messages out.MessageRepository, pool *worker.Pool, streams *stream.RedisStream, db *pgxpool.Pool) *StatsHandler {
	return &StatsHandler{
		messages: messages,
		pool:     pool,
		streams:  streams,
		db:       db,
	}
}

func (h *StatsHandler) Register(router fiber.Router) {
	router.Get("/stats/messages", h.Messages)
	router.Get("/stats/queue", h.Queue)
	router.Get("/stats/db", h.Database)
}

func (h *StatsHandler) Messages(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	byStatus, err := h.messages.CountByStatus(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to count messages by status")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats unavailable"})
	}

	byCategory, err := h.messages.CountByCategory(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to count messages by category")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats unavailable"})
	}

	return c.JSON(fiber.Map{
		"by_status":   byStatus,
		"by_category": byCategory,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *StatsHandler) Queue(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	pending := make(map[string]int64)
	if h.streams != nil {
		for _, s := range []string{stream.StreamTriage, stream.StreamEscalation, stream.StreamMaintenance} {
			count, err := h.streams.Pending(ctx, s)
			if err != nil {
				// A stream that has never seen a group reports an error, not zero.
				continue
			}
			pending[s] = count
		}
	}

	resp := fiber.Map{
		"pending":   pending,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.pool != nil {
		resp["pool"] = h.pool.GetMetrics()
	}

	return c.JSON(resp)
}

func (h *StatsHandler) Database(c *fiber.Ctx) error {
	if h.db == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "database not configured"})
	}

	return c.JSON(fiber.Map{
		"pool":      database.GetPoolStats(h.db),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
