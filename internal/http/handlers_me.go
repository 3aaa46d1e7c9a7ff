package http

import (
	"github.com/gofiber/fiber/v2"

	"scanq/internal/tier"
)

// tierMeHandler reports the limits the current account is operating
// under, bypass elevation included.
func tierMeHandler(c *fiber.Ctx) error {
	acct, ok := currentAccount(c)
	if !ok {
		return unauthenticated(c)
	}
	registry := c.Locals("tiers").(*tier.Registry)

	limits := registry.Limits(tier.Normalize(acct.Tier), acct.Email)
	return c.JSON(TierInfoResponse{
		Success:        true,
		Tier:           string(limits.Tier),
		RateLimit:      limits.RateLimit,
		RateWindowSecs: int(limits.RateWindow.Seconds()),
		ScansPerDay:    limits.ScansPerDay,
		AllowedModes:   limits.AllowedModes,
		RetentionDays:  limits.RetentionDays,
		Bypass:         registry.Bypass(acct.Email),
	})
}
