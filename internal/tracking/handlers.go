package tracking

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/tracks", authMiddleware, func(c *fiber.Ctx) error {
		var req TrackCreate
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		track, err := svc.StartTrack(c.Context(), req)
		if err != nil {
			return trackingError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(track)
	})

	r.Post("/points", authMiddleware, func(c *fiber.Ctx) error {
		var req TrackPoint
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Timestamp.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "timestamp required")
		}
		status, err := svc.AddPoint(c.Context(), req)
		if err != nil {
			return trackingError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(status)
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		status, err := svc.StopTrack(c.Context())
		var flushErr *FlushError
		if errors.As(err, &flushErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":    flushErr.Error(),
				"track_id": flushErr.TrackID,
				"unsent":   flushErr.Points,
			})
		}
		if err != nil {
			return trackingError(err)
		}
		return c.JSON(status)
	})

	r.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(svc.Status())
	})
}

func trackingError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPoint):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotTracking), errors.Is(err, ErrAlreadyTracking):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
}
