package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"scanq/internal/config"
	"scanq/internal/metrics"
	"scanq/internal/queue"
	"scanq/internal/retention"
	"scanq/internal/scans"
	"scanq/internal/store"
	"scanq/internal/tier"
)

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

// Deps carries everything the HTTP surface needs. Handlers retrieve
// these through request locals.
type Deps struct {
	Store   *store.Store
	Scans   *scans.Service
	Queue   queue.Queue
	Sweeper *retention.Sweeper
	Tiers   *tier.Registry
	Redis   *redis.Client
}

func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	app := fiber.New()

	// Inject dependencies into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("scans", deps.Scans)
		c.Locals("queue", deps.Queue)
		c.Locals("sweeper", deps.Sweeper)
		c.Locals("tiers", deps.Tiers)
		c.Locals("accounts", Accounts(deps.Store))
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()

		metrics.RecordRequest(c.Method(), c.Path(), status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
		return err
	})

	// Health endpoints
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if deps.Store == nil || deps.Store.DB == nil {
			dbStatus = "disabled"
		} else if err := deps.Store.DB.PingContext(ctx); err != nil {
			dbStatus = "error"
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		status := "ok"
		code := fiber.StatusOK
		if dbStatus == "error" || redisStatus == "error" {
			status = "error"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	authMw := authMiddleware(cfg, deps.Store)

	v1 := app.Group("/v1", authMw)
	registerV1Routes(v1)

	admin := v1.Group("/admin", adminOnlyMiddleware)
	registerAdminRoutes(admin)

	return &Server{app: app, config: cfg, logger: logger}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func registerV1Routes(group fiber.Router) {
	group.Post("/scans", createScanHandler)
	group.Get("/scans", listScansHandler)
	group.Get("/scans/:id", getScanHandler)
	group.Delete("/scans/:id", deleteScanHandler)
	group.Post("/scans/:id/cancel", cancelScanHandler)
	group.Get("/scans/:id/status", scanStatusHandler)
	group.Get("/scans/:id/report", scanReportHandler)
	group.Get("/tiers/me", tierMeHandler)
	group.Post("/billing/events", billingEventHandler)
}

func registerAdminRoutes(group fiber.Router) {
	group.Get("/queue", queueStatsHandler)
	group.Post("/queue/clear", queueClearHandler)
	group.Post("/retention/sweep", retentionSweepHandler)
	group.Get("/retention/stats", retentionStatsHandler)
}
