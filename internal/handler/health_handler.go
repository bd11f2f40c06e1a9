package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler reports whether the delivery ledger (postgres) and the rate
// limiter backend (redis) are reachable. Either one down means the service
// cannot accept notifications.
func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		ledgerErr := sqlDB.PingContext(ctx)
		limiterErr := rdb.Ping(ctx).Err()

		ledgerStatus := "ok"
		if ledgerErr != nil {
			ledgerStatus = "down"
		}
		limiterStatus := "ok"
		if limiterErr != nil {
			limiterStatus = "down"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if ledgerErr != nil || limiterErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"ledger":      ledgerStatus,
				"ratelimiter": limiterStatus,
			},
		})
	}
}
