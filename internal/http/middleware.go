package http

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"scanq/internal/admission"
	"scanq/internal/config"
	"scanq/internal/ratelimit"
	"scanq/internal/store"
	"scanq/internal/tier"
)

// Accounts is the account-lookup port the middleware and the billing
// webhook need. *store.Store satisfies it.
type Accounts interface {
	GetAccountByRawKey(ctx context.Context, rawKey string) (store.Account, error)
	UpdateAccountTier(ctx context.Context, email, newTier string) (store.Account, error)
}

// authMiddleware validates the Authorization: Bearer <key> header and
// attaches the resolved account to the context as "account".
func authMiddleware(cfg *config.Config, accounts Accounts) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Auth.Enabled {
			return c.Next()
		}

		rawAuth := c.Get("Authorization")
		if rawAuth == "" || !strings.HasPrefix(rawAuth, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Success: false,
				Code:    "UNAUTHENTICATED",
				Error:   "Missing Authorization Bearer token",
			})
		}

		token := strings.TrimSpace(strings.TrimPrefix(rawAuth, "Bearer "))
		if token == "" || !strings.HasPrefix(token, "scanq_") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Success: false,
				Code:    "UNAUTHENTICATED",
				Error:   "Invalid API key format",
			})
		}

		acct, err := accounts.GetAccountByRawKey(c.Context(), token)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
					Success: false,
					Code:    "UNAUTHENTICATED",
					Error:   "Invalid or revoked API key",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
				Success: false,
				Code:    "INTERNAL_ERROR",
				Error:   fmt.Sprintf("API key lookup failed: %v", err),
			})
		}

		c.Locals("account", acct)
		return c.Next()
	}
}

// adminOnlyMiddleware ensures the current account has admin privileges.
func adminOnlyMiddleware(c *fiber.Ctx) error {
	acct, ok := currentAccount(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Success: false,
			Code:    "UNAUTHENTICATED",
			Error:   "Account not found in context",
		})
	}
	if !acct.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Success: false,
			Code:    "FORBIDDEN",
			Error:   "Admin privileges required",
		})
	}
	return c.Next()
}

func currentAccount(c *fiber.Ctx) (store.Account, bool) {
	acct, ok := c.Locals("account").(store.Account)
	return acct, ok
}

// currentSubject resolves the admission subject for the request. The
// tier is re-read from the account on every request so billing events
// take effect immediately.
func currentSubject(c *fiber.Ctx) (admission.Subject, bool) {
	acct, ok := currentAccount(c)
	if !ok {
		return admission.Subject{}, false
	}
	return admission.Subject{
		ID:    acct.ID,
		Email: acct.Email,
		Tier:  tier.Normalize(acct.Tier),
	}, true
}

// setRateHeaders exposes the window state on the response. Unlimited
// tiers and bypass subjects produce no headers.
func setRateHeaders(c *fiber.Ctx, d ratelimit.Decision) {
	if !d.Limited {
		return
	}
	c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func unauthenticated(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Success: false,
		Code:    "UNAUTHENTICATED",
		Error:   "Account context is not available for this request",
	})
}
