package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
)

// memoryStore mirrors the database guarantees the services rely on: unique
// short codes, conditional click increments and cascading deletes.
type memoryStore struct {
	mu     sync.Mutex
	links  map[string]model.Link
	codes  map[string]string
	events map[string][]model.ClickEvent
	seen   map[string]struct{}

	// appendFn, when set, replaces Append.
	appendFn func(ctx context.Context, event *model.ClickEvent) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		links:  make(map[string]model.Link),
		codes:  make(map[string]string),
		events: make(map[string][]model.ClickEvent),
		seen:   make(map[string]struct{}),
	}
}

func (s *memoryStore) Create(_ context.Context, link *model.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[link.ShortCode]; taken {
		return repository.ErrDuplicateCode
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	s.links[link.ID] = *link
	s.codes[link.ShortCode] = link.ID
	return nil
}

func (s *memoryStore) GetByCode(_ context.Context, code string) (*model.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.codes[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	link := s.links[id]
	return &link, nil
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*model.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return &link, nil
}

func (s *memoryStore) ExistsByCode(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *memoryStore) ListByOwner(_ context.Context, ownerID string) ([]model.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.Link
	for _, link := range s.links {
		if link.IsOwnedBy(ownerID) {
			result = append(result, link)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *memoryStore) IncrementClicks(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok || !link.IsActive || (link.MaxClicks != nil && link.ClickCount >= *link.MaxClicks) {
		return repository.ErrClickLimitReached
	}
	link.ClickCount++
	s.links[id] = link
	return nil
}

func (s *memoryStore) Claim(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return repository.ErrLinkNotFound
	}
	if link.OwnerID != nil {
		return repository.ErrAlreadyOwned
	}
	link.OwnerID = &ownerID
	s.links[id] = link
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return repository.ErrLinkNotFound
	}
	delete(s.links, id)
	delete(s.codes, link.ShortCode)
	delete(s.events, id)
	return nil
}

func (s *memoryStore) EachCode(_ context.Context, batchSize int, fn func(codes []string) error) error {
	s.mu.Lock()
	codes := make([]string, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	for start := 0; start < len(codes); start += batchSize {
		end := min(start+batchSize, len(codes))
		if err := fn(codes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, link := range s.links {
		if link.ExpiresAt != nil && link.ExpiresAt.Before(now) {
			delete(s.links, id)
			delete(s.codes, link.ShortCode)
			delete(s.events, id)
			purged++
		}
	}
	return purged, nil
}

func (s *memoryStore) Append(ctx context.Context, event *model.ClickEvent) error {
	if s.appendFn != nil {
		return s.appendFn(ctx, event)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[event.LinkID]; !ok {
		return repository.ErrLinkNotFound
	}
	if _, dup := s.seen[event.ID]; dup {
		return nil
	}
	s.seen[event.ID] = struct{}{}
	s.events[event.LinkID] = append(s.events[event.LinkID], *event)
	return nil
}

func (s *memoryStore) ListByLink(_ context.Context, linkID string) ([]model.ClickEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]model.ClickEvent, len(s.events[linkID]))
	copy(events, s.events[linkID])
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, nil
}

func (s *memoryStore) clickCount(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[id].ClickCount
}

func (s *memoryStore) eventCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[id])
}

var (
	_ repository.LinkRepository       = (*memoryStore)(nil)
	_ repository.ClickEventRepository = (*memoryStore)(nil)
)

// insertLink returns an insert callback storing a fresh active link per code.
func insertLink(store *memoryStore, originalURL string) func(ctx context.Context, code string) error {
	return func(ctx context.Context, code string) error {
		return store.Create(ctx, &model.Link{
			OriginalURL: originalURL,
			ShortCode:   code,
			IsActive:    true,
		})
	}
}

// seedLink stores link under code and returns the stored copy.
func seedLink(store *memoryStore, link model.Link) *model.Link {
	if link.OriginalURL == "" {
		link.OriginalURL = "https://example.com"
	}
	if err := store.Create(context.Background(), &link); err != nil {
		panic(err)
	}
	return &link
}
