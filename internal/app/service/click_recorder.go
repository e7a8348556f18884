package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

const appendTimeout = 10 * time.Second

// RequestContext is the request metadata a click is derived from.
type RequestContext struct {
	UserAgent    string
	Referrer     string
	RemoteAddr   string
	ForwardedFor string
}

// ClickSink stores click events. The click store writes them directly; the
// JetStream publisher forwards them to the durable consumer.
type ClickSink interface {
	Append(ctx context.Context, event *model.ClickEvent) error
}

// ClickRecorderConfig tunes the click pipeline.
type ClickRecorderConfig struct {
	// TrustProxy prefers the first X-Forwarded-For entry over the peer address.
	TrustProxy bool
	// Workers appending events in the background; 0 appends inline.
	Workers   int
	QueueSize int
}

// ClickRecorder turns admitted redirects into click events. The counter is
// bumped synchronously so click budgets are enforced atomically; the event
// append happens off the redirect path.
type ClickRecorder struct {
	links      repository.LinkRepository
	sink       ClickSink
	trustProxy bool
	now        func() time.Time
	newID      func() string
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *model.ClickEvent
	wg     sync.WaitGroup
}

// NewClickRecorder creates a recorder and starts its append workers.
func NewClickRecorder(links repository.LinkRepository, sink ClickSink, cfg ClickRecorderConfig, m *metrics.Metrics, log *zap.Logger) *ClickRecorder {
	r := &ClickRecorder{
		links:      links,
		sink:       sink,
		trustProxy: cfg.TrustProxy,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		metrics:    m,
		logger:     logger.Component(log, "click_recorder"),
	}

	if cfg.Workers > 0 {
		size := cfg.QueueSize
		if size < 0 {
			size = 0
		}
		r.queue = make(chan *model.ClickEvent, size)
		for i := 0; i < cfg.Workers; i++ {
			r.wg.Add(1)
			go r.work()
		}
	}
	return r
}

// Capture derives the click event for linkID from the request metadata.
func (r *ClickRecorder) Capture(linkID string, rc RequestContext) model.ClickEvent {
	client := classifyUserAgent(rc.UserAgent)
	return model.ClickEvent{
		ID:        r.newID(),
		LinkID:    linkID,
		Timestamp: r.now(),
		Device:    client.Device,
		Browser:   client.Browser,
		OS:        client.OS,
		Referrer:  resolveReferrer(rc.Referrer),
		IP:        r.clientIP(rc),
	}
}

// Record admits one click on linkID and schedules its event append.
// ErrExpired means the link stopped admitting clicks; nothing is recorded then.
func (r *ClickRecorder) Record(ctx context.Context, linkID string, rc RequestContext) (*model.ClickEvent, error) {
	event := r.Capture(linkID, rc)

	if err := r.links.IncrementClicks(ctx, linkID); err != nil {
		if errors.Is(err, repository.ErrClickLimitReached) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("increment clicks: %w", err)
	}

	r.dispatch(&event)
	return &event, nil
}

// Close stops accepting queued work and waits for pending appends.
func (r *ClickRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		if r.queue != nil {
			close(r.queue)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("click recorder: drain: %w", ctx.Err())
	}
}

func (r *ClickRecorder) dispatch(event *model.ClickEvent) {
	r.mu.RLock()
	if !r.closed && r.queue != nil {
		select {
		case r.queue <- event:
			r.mu.RUnlock()
			return
		default:
			// Queue full: append inline rather than drop an admitted click.
		}
	}
	r.mu.RUnlock()

	r.appendEvent(event)
}

func (r *ClickRecorder) work() {
	defer r.wg.Done()
	for event := range r.queue {
		r.appendEvent(event)
	}
}

func (r *ClickRecorder) appendEvent(event *model.ClickEvent) {
	// The redirect may already be answered; the request context is not reused here.
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	err := r.sink.Append(ctx, event)
	r.metrics.ClickRecorded(err)
	if err == nil {
		return
	}

	if errors.Is(err, repository.ErrLinkNotFound) {
		r.logger.Info("click dropped for deleted link",
			zap.String("link_id", event.LinkID),
			zap.String("event_id", event.ID),
		)
		return
	}

	r.metrics.ReconciliationDiscrepancy()
	r.logger.Error("click reconciliation discrepancy",
		zap.String("stage", "append_event"),
		zap.String("link_id", event.LinkID),
		zap.String("event_id", event.ID),
		zap.Time("timestamp", event.Timestamp),
		zap.Error(err),
	)
}

func (r *ClickRecorder) clientIP(rc RequestContext) *string {
	if r.trustProxy && rc.ForwardedFor != "" {
		first, _, _ := strings.Cut(rc.ForwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return &first
		}
	}

	addr := strings.TrimSpace(rc.RemoteAddr)
	if addr == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return &addr
}

func resolveReferrer(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.DirectReferrer
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return model.UnknownValue
	}
	return u.Hostname()
}
