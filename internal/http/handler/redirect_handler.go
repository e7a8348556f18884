package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/service"
	"go.uber.org/zap"
)

const healthTimeout = 3 * time.Second

// Redirector resolves short codes to their destination.
type Redirector interface {
	Resolve(ctx context.Context, code string, rc service.RequestContext) (*model.Link, error)
}

// HealthCheck probes one backing service.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger    *zap.Logger
	Redirects Redirector
	Checks    []HealthCheck
}

// RedirectHandler implements the public redirect and health endpoints.
type RedirectHandler struct {
	logger    *zap.Logger
	redirects Redirector
	checks    []HealthCheck
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:    logger,
		redirects: deps.Redirects,
		checks:    deps.Checks,
	}
}

// Register wires redirect routes onto the provided router. It must run after
// every other route so the short code wildcard does not shadow them.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/:shortCode", h.Resolve)
}

// Health reports readiness of the backing services.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	status := fiber.StatusOK
	checks := make(fiber.Map, len(h.checks))
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			checks[check.Name] = "down"
			status = fiber.StatusServiceUnavailable
			continue
		}
		checks[check.Name] = "up"
	}

	overall := "ok"
	if status != fiber.StatusOK {
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"service": "PowerLink",
		"status":  overall,
		"checks":  checks,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:shortCode
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("shortCode")

	link, err := h.redirects.Resolve(c.UserContext(), code, requestContext(c))
	if err != nil {
		return writeError(c, h.logger, err, "failed to resolve short link", zap.String("code", code))
	}

	h.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", link.OriginalURL))
	return c.Redirect(link.OriginalURL, fiber.StatusFound)
}

func requestContext(c *fiber.Ctx) service.RequestContext {
	rc := service.RequestContext{
		UserAgent:    c.Get(fiber.HeaderUserAgent),
		Referrer:     c.Get(fiber.HeaderReferer),
		ForwardedFor: c.Get(fiber.HeaderXForwardedFor),
	}
	if addr := c.Context().RemoteAddr(); addr != nil {
		rc.RemoteAddr = addr.String()
	}
	return rc
}
