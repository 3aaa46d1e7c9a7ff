package http

import (
	"github.com/gofiber/fiber/v2"

	"scanq/internal/queue"
	"scanq/internal/retention"
)

func queueStatsHandler(c *fiber.Ctx) error {
	q := c.Locals("queue").(queue.Queue)

	high, err := q.Len(c.Context(), queue.LaneHigh)
	if err != nil {
		return queueErrorResponse(c, err)
	}
	normal, err := q.Len(c.Context(), queue.LaneNormal)
	if err != nil {
		return queueErrorResponse(c, err)
	}
	return c.JSON(QueueStatsResponse{Success: true, High: high, Normal: normal})
}

func queueClearHandler(c *fiber.Ctx) error {
	q := c.Locals("queue").(queue.Queue)

	lane := queue.Lane(c.Query("lane", string(queue.LaneAll)))
	switch lane {
	case queue.LaneHigh, queue.LaneNormal, queue.LaneAll:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "lane must be high, normal, or all",
		})
	}

	if err := q.Clear(c.Context(), lane); err != nil {
		return queueErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "lane": string(lane)})
}

func retentionSweepHandler(c *fiber.Ctx) error {
	sweeper := c.Locals("sweeper").(*retention.Sweeper)

	stats := sweeper.SweepAll(c.Context())
	return c.JSON(SweepResponse{
		Success:      true,
		ScansDeleted: stats.ScansDeleted,
		Errors:       stats.Errors,
	})
}

func retentionStatsHandler(c *fiber.Ctx) error {
	sweeper := c.Locals("sweeper").(*retention.Sweeper)

	counts, errs := sweeper.CountAll(c.Context())
	return c.JSON(RetentionStatsResponse{
		Success: true,
		Tiers:   counts,
		Errors:  errs,
	})
}

func queueErrorResponse(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Success: false,
		Code:    "INTERNAL_ERROR",
		Error:   "Queue operation failed: " + err.Error(),
	})
}
