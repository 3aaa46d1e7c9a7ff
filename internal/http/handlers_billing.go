package http

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"scanq/internal/tier"
)

// billingEventHandler consumes tier-change events from the billing
// provider. The new tier applies to the account's next request; scans
// already swept under the old retention horizon are not resurrected.
func billingEventHandler(c *fiber.Ctx) error {
	accounts := c.Locals("accounts").(Accounts)

	var ev BillingEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid JSON body",
		})
	}

	ev.Email = strings.TrimSpace(ev.Email)
	if ev.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "email is required",
		})
	}

	normalized := tier.Normalize(ev.Tier)
	if !strings.EqualFold(strings.TrimSpace(ev.Tier), string(normalized)) {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "tier must be free, premium, or enterprise",
		})
	}

	acct, err := accounts.UpdateAccountTier(c.Context(), ev.Email, string(normalized))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "Account not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "Failed to update tier",
		})
	}

	return c.JSON(BillingEventResponse{Success: true, Email: acct.Email, Tier: acct.Tier})
}
