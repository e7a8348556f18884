package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/PowerLink/config"
	"github.com/sifan077/PowerLink/internal/app/service"
	inthttp "github.com/sifan077/PowerLink/internal/http/handler"
	"github.com/sifan077/PowerLink/internal/http/middleware"
	infraPostgres "github.com/sifan077/PowerLink/internal/infra/postgres"
	infraRedis "github.com/sifan077/PowerLink/internal/infra/redis"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs.
type Dependencies struct {
	Logger   *zap.Logger
	Config   config.Config
	Postgres *pgxpool.Pool
	// Redis is optional; without it creation is not rate limited.
	Redis     *redis.Client
	Links     service.LinkService
	Redirects inthttp.Redirector
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with all routes registered.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "PowerLink",
		DisableStartupMessage: deps.Config.IsProduction(),
		ErrorHandler:          errorHandler(deps.Logger),
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(
		middleware.RequestID(),
		middleware.Recovery(s.deps.Logger),
		middleware.Logger(s.deps.Logger),
		middleware.CORS(),
	)
}

func (s *Server) registerRoutes() {
	cfg := s.deps.Config

	var createLimit fiber.Handler
	if s.deps.Redis != nil {
		limit := middleware.DefaultRateLimitConfig()
		if cfg.RateLimit.MaxRequests > 0 {
			limit.MaxRequests = cfg.RateLimit.MaxRequests
		}
		if cfg.RateLimit.Window > 0 {
			limit.Window = cfg.RateLimit.Window
		}
		createLimit = middleware.RateLimit(middleware.NewRedisCounter(s.deps.Redis), limit, s.deps.Logger)
	}

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.Links,
		Auth: middleware.Auth(middleware.AuthConfig{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
		}),
		CreateLimit:   createLimit,
		PublicBaseURL: cfg.App.PublicBaseURL,
	})
	apiHandler.Register(s.app)

	// Registered last: /:shortCode matches any single segment.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:    s.deps.Logger,
		Redirects: s.deps.Redirects,
		Checks:    s.healthChecks(),
	})
	redirectHandler.Register(s.app)
}

func (s *Server) healthChecks() []inthttp.HealthCheck {
	var checks []inthttp.HealthCheck
	if pool := s.deps.Postgres; pool != nil {
		checks = append(checks, inthttp.HealthCheck{
			Name: "postgres",
			Ping: func(ctx context.Context) error { return infraPostgres.Ping(ctx, pool) },
		})
	}
	if rdb := s.deps.Redis; rdb != nil {
		checks = append(checks, inthttp.HealthCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return infraRedis.Ping(ctx, rdb) },
		})
	}
	return checks
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code, message = fe.Code, fe.Message
		} else {
			log.Error("unhandled request error", zap.String("path", c.Path()), zap.Error(err))
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
