package offline

import (
	"errors"
	"os"
	"strconv"

	"marinenav/internal/tiles"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/plan", func(c *fiber.Ctx) error {
		var req tiles.Request
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		plan, err := svc.Plan(req)
		if err != nil {
			return validationError(err)
		}
		return c.JSON(plan)
	})

	r.Post("/downloads", authMiddleware, func(c *fiber.Ctx) error {
		var req tiles.Request
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		d, err := svc.Start(c.Context(), req)
		if err != nil {
			return validationError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(d)
	})

	r.Get("/downloads/:id", func(c *fiber.Ctx) error {
		d, err := svc.Status(c.Context(), c.Params("id"))
		if err != nil {
			return downloadError(err)
		}
		return c.JSON(d)
	})

	r.Delete("/downloads/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Cancel(c.Context(), c.Params("id")); err != nil {
			return downloadError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/tiles", func(c *fiber.Ctx) error {
		z, err := strconv.Atoi(c.Query("z"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "z required")
		}
		cached, err := svc.CachedTiles(c.Context(), z)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(cached)
	})

	r.Get("/tiles/:z/:x/:y.png", func(c *fiber.Ctx) error {
		addr, ok := parseAddress(c)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "invalid tile address")
		}
		path := svc.Source().Path(addr)
		if _, err := os.Stat(path); err != nil {
			return fiber.NewError(fiber.StatusNotFound, "tile not cached")
		}
		c.Type("png")
		return c.SendFile(path)
	})
}

func parseAddress(c *fiber.Ctx) (tiles.Address, bool) {
	z, errZ := strconv.Atoi(c.Params("z"))
	x, errX := strconv.Atoi(c.Params("x"))
	y, errY := strconv.Atoi(c.Params("y"))
	if errZ != nil || errX != nil || errY != nil || z < 0 || z > 30 {
		return tiles.Address{}, false
	}
	n := 1 << z
	if x < 0 || y < 0 || x >= n || y >= n {
		return tiles.Address{}, false
	}
	return tiles.Address{Z: z, X: x, Y: y}, true
}

func validationError(err error) error {
	switch {
	case errors.Is(err, tiles.ErrAreaTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, tiles.ErrInvalidBBox), errors.Is(err, tiles.ErrInvalidZoom):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrServiceClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func downloadError(err error) error {
	if errors.Is(err, ErrDownloadNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
