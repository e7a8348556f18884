package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/service"
	"github.com/sifan077/PowerLink/internal/http/middleware"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
	// Auth authenticates owners; required.
	Auth fiber.Handler
	// CreateLimit throttles link creation; nil disables it.
	CreateLimit fiber.Handler
	// PublicBaseURL prefixes short codes; the request origin is used when empty.
	PublicBaseURL string
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger        *zap.Logger
	linkService   service.LinkService
	auth          fiber.Handler
	createLimit   fiber.Handler
	publicBaseURL string
	validator     *requestValidator
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:        logger,
		linkService:   deps.LinkService,
		auth:          deps.Auth,
		createLimit:   deps.CreateLimit,
		publicBaseURL: strings.TrimRight(deps.PublicBaseURL, "/"),
		validator:     newRequestValidator(),
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	urls := router.Group("/api/urls")
	{
		urls.Post("/anonymous", h.chain(h.CreateAnonymousLink, h.createLimit)...)
		urls.Post("/", h.chain(h.CreateLink, h.auth, h.createLimit)...)
		urls.Get("/", h.chain(h.ListLinks, h.auth)...)
		urls.Get("/:id/analytics", h.chain(h.GetAnalytics, h.auth)...)
		urls.Post("/:id/claim", h.chain(h.ClaimLink, h.auth)...)
		urls.Delete("/:id", h.chain(h.DeleteLink, h.auth)...)
	}
}

// chain drops nil middleware and appends the final handler.
func (h *APIHandler) chain(final fiber.Handler, middleware ...fiber.Handler) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(middleware)+1)
	for _, m := range middleware {
		if m != nil {
			handlers = append(handlers, m)
		}
	}
	return append(handlers, final)
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	OriginalURL   string `json:"originalUrl" validate:"required,max=2048"`
	CustomAlias   string `json:"customAlias,omitempty" validate:"omitempty,max=20"`
	ExpiresInDays *int   `json:"expiresInDays,omitempty"`
	MaxClicks     *int64 `json:"maxClicks,omitempty"`
}

// LinkResponse is the public view of a link.
type LinkResponse struct {
	ID          string     `json:"id"`
	OriginalURL string     `json:"originalUrl"`
	ShortCode   string     `json:"shortCode"`
	ShortURL    string     `json:"shortUrl"`
	Clicks      int64      `json:"clicks"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	MaxClicks   *int64     `json:"maxClicks"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// LinkListItem adds the evaluated status to a listed link.
type LinkListItem struct {
	LinkResponse
	IsExpired bool `json:"isExpired"`
	IsActive  bool `json:"isActive"`
}

// CreateLink handles POST /api/urls
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	owner := middleware.OwnerID(c)
	return h.create(c, &owner)
}

// CreateAnonymousLink handles POST /api/urls/anonymous
func (h *APIHandler) CreateAnonymousLink(c *fiber.Ctx) error {
	return h.create(c, nil)
}

func (h *APIHandler) create(c *fiber.Ctx, owner *string) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if msg, err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
		})
	}

	input := service.CreateLinkInput{
		OriginalURL:   req.OriginalURL,
		ExpiresInDays: req.ExpiresInDays,
		MaxClicks:     req.MaxClicks,
		OwnerID:       owner,
	}
	// Custom aliases are reserved for signed-in owners.
	if owner != nil {
		input.CustomAlias = req.CustomAlias
	}

	link, err := h.linkService.CreateLink(c.UserContext(), input)
	if err != nil {
		return writeError(c, h.logger, err, "failed to create link")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url": h.toResponse(c, link),
	})
}

// ListLinks handles GET /api/urls
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	owner := middleware.OwnerID(c)
	links, err := h.linkService.ListLinks(c.UserContext(), owner)
	if err != nil {
		return writeError(c, h.logger, err, "failed to list links", zap.String("owner_id", owner))
	}

	items := make([]LinkListItem, len(links))
	for i := range links {
		items[i] = LinkListItem{
			LinkResponse: h.toResponse(c, &links[i].Link),
			IsExpired:    links[i].Expired,
			IsActive:     links[i].IsActive,
		}
	}

	return c.JSON(fiber.Map{
		"count": len(items),
		"urls":  items,
	})
}

// GetAnalytics handles GET /api/urls/:id/analytics
func (h *APIHandler) GetAnalytics(c *fiber.Ctx) error {
	id := c.Params("id")
	link, summary, err := h.linkService.GetAnalytics(c.UserContext(), id, middleware.OwnerID(c))
	if err != nil {
		return writeError(c, h.logger, err, "failed to load analytics", zap.String("link_id", id))
	}

	return c.JSON(fiber.Map{
		"analytics": summary,
		"url":       h.toResponse(c, link),
	})
}

// ClaimLink handles POST /api/urls/:id/claim
func (h *APIHandler) ClaimLink(c *fiber.Ctx) error {
	id := c.Params("id")
	link, err := h.linkService.ClaimLink(c.UserContext(), id, middleware.OwnerID(c))
	if err != nil {
		return writeError(c, h.logger, err, "failed to claim link", zap.String("link_id", id))
	}

	return c.JSON(fiber.Map{
		"message": "url claimed successfully",
		"url":     h.toResponse(c, link),
	})
}

// DeleteLink handles DELETE /api/urls/:id
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.linkService.DeleteLink(c.UserContext(), id, middleware.OwnerID(c)); err != nil {
		return writeError(c, h.logger, err, "failed to delete link", zap.String("link_id", id))
	}

	return c.JSON(fiber.Map{
		"message": "url deleted successfully",
	})
}

func (h *APIHandler) toResponse(c *fiber.Ctx, link *model.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		OriginalURL: link.OriginalURL,
		ShortCode:   link.ShortCode,
		ShortURL:    shortURL(c, h.publicBaseURL, link.ShortCode),
		Clicks:      link.ClickCount,
		ExpiresAt:   link.ExpiresAt,
		MaxClicks:   link.MaxClicks,
		CreatedAt:   link.CreatedAt,
	}
}

func shortURL(c *fiber.Ctx, base, code string) string {
	if base == "" {
		base = c.BaseURL()
	}
	return base + "/" + code
}
