package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ClickAdmitter records admitted clicks.
type ClickAdmitter interface {
	Record(ctx context.Context, linkID string, rc RequestContext) (*model.ClickEvent, error)
}

// RedirectService resolves a short code to its destination:
// lookup, expiry gate, click recording, redirect.
type RedirectService struct {
	links    repository.LinkRepository
	recorder ClickAdmitter
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRedirectService creates the redirect orchestrator.
func NewRedirectService(links repository.LinkRepository, recorder ClickAdmitter, m *metrics.Metrics, log *zap.Logger) *RedirectService {
	return &RedirectService{
		links:    links,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
		metrics:  m,
		logger:   logger.Component(log, "redirect"),
	}
}

// Resolve returns the link to redirect to. ErrNotFound and ErrExpired are
// terminal; click recording failures are logged and do not block the redirect.
func (s *RedirectService) Resolve(ctx context.Context, code string, rc RequestContext) (*model.Link, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			s.metrics.Redirect(metrics.OutcomeNotFound)
			return nil, ErrNotFound
		}
		s.metrics.Redirect(metrics.OutcomeError)
		return nil, fmt.Errorf("load link: %w", err)
	}

	if IsExpired(link, s.now()) {
		s.metrics.Redirect(metrics.OutcomeExpired)
		return nil, ErrExpired
	}

	if _, err := s.recorder.Record(ctx, link.ID, rc); err != nil {
		if errors.Is(err, ErrExpired) {
			// Another redirect consumed the last click between lookup and admission.
			s.metrics.Redirect(metrics.OutcomeExpired)
			return nil, ErrExpired
		}
		s.logger.Error("failed to record click",
			zap.String("code", code),
			zap.String("link_id", link.ID),
			zap.Error(err),
		)
	}

	s.metrics.Redirect(metrics.OutcomeRedirected)
	return link, nil
}
