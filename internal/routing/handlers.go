package routing

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/routes/stats", func(c *fiber.Ctx) error {
		var req StatsRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		stats, err := svc.StatsForPoints(req.Points)
		if err != nil {
			return routingError(err)
		}
		return c.JSON(stats)
	})

	r.Get("/routes/active", func(c *fiber.Ctx) error {
		active, ok := svc.Session().Active()
		if !ok {
			return c.JSON(fiber.Map{"active": nil})
		}
		return c.JSON(fiber.Map{"active": active})
	})

	r.Put("/routes/active", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			ID string `json:"id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.ID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "id required")
		}
		active, err := svc.Activate(c.Context(), req.ID)
		if err != nil {
			return routingError(err)
		}
		return c.JSON(fiber.Map{"active": active})
	})

	r.Delete("/routes/active", authMiddleware, func(c *fiber.Ctx) error {
		svc.Session().ClearActive()
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/routes/:id/stats", func(c *fiber.Ctx) error {
		summary, err := svc.Stats(c.Context(), c.Params("id"))
		if err != nil {
			return routingError(err)
		}
		return c.JSON(summary)
	})
}

func routingError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPoints):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRouteNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
}
