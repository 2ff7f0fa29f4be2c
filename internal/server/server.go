package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"marinenav/internal/auth"
	"marinenav/internal/config"
	"marinenav/internal/db"
	"marinenav/internal/navapi"
	"marinenav/internal/offline"
	"marinenav/internal/routing"
	"marinenav/internal/stream"
	"marinenav/internal/tiles"
	"marinenav/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Log      *zap.Logger
	Stream   *stream.Hub
	Backend  *navapi.Client
	Offline  *offline.Service
	Tracking *tracking.Service
	Routing  *routing.Service

	// tilesOffline is decided once at startup.
	tilesOffline bool
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient, log.Named("stream"))
	backend := navapi.NewClient(cfg.BackendURL, cfg.HTTPTimeout, log.Named("navapi"))

	var q db.Querier
	if pg != nil {
		q = pg
	}
	source := tiles.Source{ServerURL: cfg.TileServerURL, StorageRoot: cfg.StorageRoot}
	limits := tiles.Limits{MinZoom: cfg.TileMinZoom, MaxZoom: cfg.TileMaxZoom, MaxTiles: cfg.MaxTilesPerBatch}
	if limits.MinZoom == 0 && limits.MaxZoom == 0 && limits.MaxTiles == 0 {
		limits = tiles.DefaultLimits()
	}
	fetcher := offline.NewFetcher(
		&http.Client{},
		offline.Options{Workers: cfg.TileWorkers, Timeout: cfg.HTTPTimeout},
		log.Named("fetcher"),
	)

	recorder := tracking.NewRecorder(backend, hub, tracking.Options{Threshold: cfg.TrackFlushThreshold}, log.Named("tracking"))

	s := &Server{
		App:          app,
		Cfg:          cfg,
		DB:           pg,
		Redis:        redisClient,
		Log:          log,
		Stream:       hub,
		Backend:      backend,
		Offline:      offline.NewService(fetcher, offline.NewCatalog(q), hub, source, limits, log.Named("offline")),
		Tracking:     tracking.NewService(backend, recorder),
		Routing:      routing.NewService(backend, routing.NewSession()),
		tilesOffline: storageWritable(cfg.StorageRoot),
	}
	if !s.tilesOffline {
		log.Warn("tile storage not writable, offline tiles disabled", zap.String("storage_root", cfg.StorageRoot))
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":        "ok",
			"tiles_offline": s.tilesOffline,
			"catalog":       s.DB != nil,
			"fan_out":       s.Redis != nil,
		})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.Cfg.OperatorPasswordHash))
	offline.RegisterRoutes(s.App.Group("/offline", s.requireTiles), s.Offline, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	routing.RegisterRoutes(s.App, s.Routing, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

func (s *Server) requireTiles(c *fiber.Ctx) error {
	if !s.tilesOffline {
		return fiber.NewError(fiber.StatusServiceUnavailable, "offline tiles unavailable")
	}
	return c.Next()
}

// Shutdown cancels running tile downloads and waits for them to record their
// final state, so it must run before the pool is closed.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Offline.Shutdown(ctx)
}

// Close releases the stream hub. The pool and redis client belong to the
// caller.
func (s *Server) Close() error {
	return s.Stream.Close()
}

func storageWritable(root string) bool {
	if root == "" {
		return false
	}
	dir := filepath.Join(root, "tiles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
