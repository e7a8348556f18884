package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

const maxURLLength = 2048

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error)
	ListLinks(ctx context.Context, ownerID string) ([]LinkStatus, error)
	GetAnalytics(ctx context.Context, id, callerID string) (*model.Link, *model.AnalyticsSummary, error)
	ClaimLink(ctx context.Context, id, ownerID string) (*model.Link, error)
	DeleteLink(ctx context.Context, id, callerID string) error
}

// CreateLinkInput captures data required to create a link.
type CreateLinkInput struct {
	OriginalURL   string
	CustomAlias   string
	ExpiresInDays *int
	MaxClicks     *int64
	// OwnerID is nil for anonymous links.
	OwnerID *string
}

// LinkStatus pairs a link with its expiry evaluated at listing time.
type LinkStatus struct {
	model.Link
	Expired bool
}

type linkService struct {
	links     repository.LinkRepository
	codes     *CodeGenerator
	analytics *AnalyticsAggregator
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewLinkService returns a service implementation backed by the given collaborators.
func NewLinkService(links repository.LinkRepository, codes *CodeGenerator, analytics *AnalyticsAggregator, m *metrics.Metrics, log *zap.Logger) LinkService {
	return &linkService{
		links:     links,
		codes:     codes,
		analytics: analytics,
		now:       func() time.Time { return time.Now().UTC() },
		metrics:   m,
		logger:    logger.Component(log, "link_service"),
	}
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	originalURL, err := validateOriginalURL(input.OriginalURL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	link := &model.Link{
		OriginalURL: originalURL,
		OwnerID:     input.OwnerID,
		IsActive:    true,
		CreatedAt:   now,
	}

	if input.ExpiresInDays != nil {
		if *input.ExpiresInDays <= 0 {
			return nil, invalid("expiresInDays", "must be a positive number of days")
		}
		expiresAt := now.AddDate(0, 0, *input.ExpiresInDays)
		link.ExpiresAt = &expiresAt
	}
	if input.MaxClicks != nil {
		if *input.MaxClicks <= 0 {
			return nil, invalid("maxClicks", "must be a positive number")
		}
		maxClicks := *input.MaxClicks
		link.MaxClicks = &maxClicks
	}

	if alias := strings.TrimSpace(input.CustomAlias); alias != "" {
		if err := ValidateAlias(alias); err != nil {
			return nil, err
		}
		link.ShortCode = alias
		if err := s.links.Create(ctx, link); err != nil {
			return nil, fmt.Errorf("create link: %w", err)
		}
		s.codes.Remember(alias)
		s.created(link, true)
		return link, nil
	}

	if _, err := s.codes.Assign(ctx, func(ctx context.Context, code string) error {
		link.ShortCode = code
		return s.links.Create(ctx, link)
	}); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	s.created(link, false)
	return link, nil
}

func (s *linkService) created(link *model.Link, custom bool) {
	s.metrics.LinkCreated(custom)
	fields := []zap.Field{
		zap.String("link_id", link.ID),
		zap.String("code", link.ShortCode),
		zap.Bool("custom", custom),
	}
	if link.OwnerID != nil {
		fields = append(fields, zap.String("owner_id", *link.OwnerID))
	}
	s.logger.Info("link created", fields...)
}

func (s *linkService) ListLinks(ctx context.Context, ownerID string) ([]LinkStatus, error) {
	links, err := s.links.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	now := s.now()
	result := make([]LinkStatus, len(links))
	for i := range links {
		result[i] = LinkStatus{Link: links[i], Expired: IsExpired(&links[i], now)}
	}
	return result, nil
}

func (s *linkService) GetAnalytics(ctx context.Context, id, callerID string) (*model.Link, *model.AnalyticsSummary, error) {
	link, err := s.ownedLink(ctx, id, callerID)
	if err != nil {
		return nil, nil, err
	}
	summary, err := s.analytics.AggregateLink(ctx, link)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate analytics: %w", err)
	}
	return link, summary, nil
}

func (s *linkService) ClaimLink(ctx context.Context, id, ownerID string) (*model.Link, error) {
	if err := s.links.Claim(ctx, id, ownerID); err != nil {
		return nil, fmt.Errorf("claim link: %w", err)
	}
	link, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}
	s.logger.Info("link claimed", zap.String("link_id", id), zap.String("owner_id", ownerID))
	return link, nil
}

func (s *linkService) DeleteLink(ctx context.Context, id, callerID string) error {
	if _, err := s.ownedLink(ctx, id, callerID); err != nil {
		return err
	}
	if err := s.links.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	s.logger.Info("link deleted", zap.String("link_id", id), zap.String("owner_id", callerID))
	return nil
}

// ownedLink loads id and checks callerID owns it. Unowned links must be claimed first.
func (s *linkService) ownedLink(ctx context.Context, id, callerID string) (*model.Link, error) {
	link, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}
	if !link.IsOwnedBy(callerID) {
		return nil, ErrForbidden
	}
	return link, nil
}

func validateOriginalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid("originalUrl", "is required")
	}
	if len(raw) > maxURLLength {
		return "", invalid("originalUrl", fmt.Sprintf("must be at most %d characters", maxURLLength))
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", invalid("originalUrl", "must be a valid absolute URL")
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return "", invalid("originalUrl", "must include a host")
	}
	return raw, nil
}

// IsClientError reports whether err is caused by the caller rather than the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAlreadyOwned) ||
		errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, ErrExpired)
}
