package bootstrap

import (
	"context"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"vendoriq_server/adapter/in/http"
	"vendoriq_server/config"
	"vendoriq_server/core/service/schedule"
	"vendoriq_server/infra/middleware"
	"vendoriq_server/pkg/logger"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	// Initialize logger
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "vendoriq-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.Error("Failed to initialize dependencies: %v", err)
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		Prefork:               false,
		StrictRouting:         false,
		CaseSensitive:         false,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json replaces encoding/json for request/response bodies
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:   10 * 1024 * 1024,
		Concurrency: 256 * 1024,

		ServerHeader:       "",
		DisableDefaultDate: true,
		DisableKeepalive:   false,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS. AllowCredentials:true requires explicit origins, never "*".
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check (no auth required)
	healthHandler := http.NewHealthHandler(deps.MongoDB, deps.Redis)
	healthHandler.Register(app)

	// Durable job scheduler: restore persisted jobs, then start ticking.
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "scheduler").Logger()
	scheduler := schedule.New(deps.JobRepo, deps.IngestionService, zlog, cfg.IsDevelopment())
	if cfg.SchedulerEnabled {
		if err := scheduler.Restore(context.Background()); err != nil {
			logger.Warn("Failed to restore scheduled jobs: %v", err)
		}
		scheduler.Start()
		logger.Info("Job scheduler started")
	} else {
		logger.Warn("Job scheduler disabled by configuration")
	}

	// API routes
	public := app.Group("/api/v1")
	protected := app.Group("/api/v1")
	protected.Use(middleware.JWTAuth(cfg.JWTSecret, deps.TokenBlacklist))

	authHandler := http.NewAuthHandler(deps.AuthService)
	authHandler.Register(public, protected)

	emailHandler := http.NewEmailHandler(deps.IngestionService, scheduler)
	emailHandler.Register(protected)

	driveHandler := http.NewDriveHandler(deps.DriveProvider, deps.UserRepo)
	driveHandler.Register(protected)

	analyticsHandler := http.NewAnalyticsHandler(deps.AnalyticsService)
	analyticsHandler.Register(protected)

	fullCleanup := func() {
		scheduler.Stop()
		cleanup()
	}

	logger.Info("API server initialized successfully")

	return app, fullCleanup, nil
}
