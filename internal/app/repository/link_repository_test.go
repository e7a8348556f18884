package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/PowerLink/internal/app/model"
)

func TestLinkRepository_CreateAndLookup(t *testing.T) {
	db := newTestDB(t)
	repo := NewLinkRepository(db)
	ctx := context.Background()

	link := mustCreate(t, repo, newLink("abc1234"))
	if _, err := uuid.Parse(link.ID); err != nil {
		t.Fatalf("expected a uuid id, got %q", link.ID)
	}

	byCode, err := repo.GetByCode(ctx, "abc1234")
	if err != nil {
		t.Fatalf("GetByCode error: %v", err)
	}
	if byCode.ID != link.ID || byCode.OriginalURL != link.OriginalURL || !byCode.IsActive {
		t.Fatalf("unexpected link by code: %+v", byCode)
	}

	byID, err := repo.GetByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if byID.ShortCode != "abc1234" || byID.ClickCount != 0 || byID.OwnerID != nil {
		t.Fatalf("unexpected link by id: %+v", byID)
	}

	exists, err := repo.ExistsByCode(ctx, "abc1234")
	if err != nil || !exists {
		t.Fatalf("ExistsByCode(taken) = %v, %v", exists, err)
	}
	exists, err = repo.ExistsByCode(ctx, "free")
	if err != nil || exists {
		t.Fatalf("ExistsByCode(free) = %v, %v", exists, err)
	}
}

func TestLinkRepository_DuplicateCode(t *testing.T) {
	repo := NewLinkRepository(newTestDB(t))

	mustCreate(t, repo, newLink("taken"))
	err := repo.Create(context.Background(), newLink("taken"))
	if !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestLinkRepository_ConcurrentCreateSameCode(t *testing.T) {
	repo := NewLinkRepository(newTestDB(t))

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(context.Background(), newLink("race"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicateCode):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || conflicts != attempts-1 {
		t.Fatalf("created=%d conflicts=%d, want 1 and %d", created, conflicts, attempts-1)
	}
}

func TestLinkRepository_NotFound(t *testing.T) {
	repo := NewLinkRepository(newTestDB(t))
	ctx := context.Background()
	missing := uuid.NewString()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "get by unknown code", call: func() error { _, err := repo.GetByCode(ctx, "nope"); return err }},
		{name: "get by unknown id", call: func() error { _, err := repo.GetByID(ctx, missing); return err }},
		{name: "get by malformed id", call: func() error { _, err := repo.GetByID(ctx, "not-a-uuid"); return err }},
		{name: "claim unknown id", call: func() error { return repo.Claim(ctx, missing, "owner") }},
		{name: "claim malformed id", call: func() error { return repo.Claim(ctx, "42", "owner") }},
		{name: "delete unknown id", call: func() error { return repo.Delete(ctx, missing) }},
		{name: "delete malformed id", call: func() error { return repo.Delete(ctx, "'; drop table links") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrLinkNotFound) {
				t.Fatalf("expected ErrLinkNotFound, got %v", err)
			}
		})
	}
}

func TestLinkRepository_ListByOwner(t *testing.T) {
	repo := NewLinkRepository(newTestDB(t))
	owner, other := "user-1", "user-2"
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, code := range []string{"first", "second", "third"} {
		link := newLink(code)
		link.OwnerID = &owner
		link.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		mustCreate(t, repo, link)
	}
	foreign := newLink("foreign")
	foreign.OwnerID = &other
	mustCreate(t, repo, foreign)
	mustCreate(t, repo, newLink("anonymous"))

	links, err := repo.ListByOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("ListByOwner error: %v", err)
	}
	var codes []string
	for _, link := range links {
		codes = append(codes, link.ShortCode)
	}
	want := []string{"third", "second", "first"}
	if len(codes) != len(want) {
		t.Fatalf("codes = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v (newest first)", codes, want)
		}
	}
}

func TestLinkRepository_IncrementClicksConcurrent(t *testing.T) {
	repo := NewLinkRepository(newTestDB(t))
	link := mustCreate(t, repo, newLink("busy"))

	const redirects = 100
	var wg sync.WaitGroup
	for i := 0; i < redirects; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.IncrementClicks(context.Background(), link.ID); err != nil {
				t.Errorf("IncrementClicks error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(context.Background(), link.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ClickCount != redirects {
		t.Fatalf("click count = %d, want %d", got.ClickCount, redirects)
	}
}

func TestLinkRepository_IncrementClicksBudget(t *testing.T) {
	repo := NewLinkRepository(newTestDB(t))
	budget := int64(10)
	link := newLink("limited")
	link.MaxClicks = &budget
	mustCreate(t, repo, link)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		refused  int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.IncrementClicks(context.Background(), link.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, ErrClickLimitReached):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted != 10 || refused != 40 {
		t.Fatalf("admitted=%d refused=%d, want 10 and 40", admitted, refused)
	}
	got, err := repo.GetByID(context.Background(), link.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ClickCount != budget {
		t.Fatalf("click count = %d, want %d", got.ClickCount, budget)
	}
}

func TestLinkRepository_IncrementClicksRefused(t *testing.T) {
	db := newTestDB(t)
	repo := NewLinkRepository(db)
	ctx := context.Background()

	paused := mustCreate(t, repo, newLink("paused"))
	if err := db.Model(&model.Link{}).Where("id = ?", paused.ID).Update("is_active", false).Error; err != nil {
		t.Fatal(err)
	}

	if err := repo.IncrementClicks(ctx, paused.ID); !errors.Is(err, ErrClickLimitReached) {
		t.Fatalf("inactive link: expected ErrClickLimitReached, got %v", err)
	}
	if err := repo.IncrementClicks(ctx, uuid.NewString()); !errors.Is(err, ErrClickLimitReached) {
		t.Fatalf("missing link: expected ErrClickLimitReached, got %v", err)
	}

	got, err := repo.GetByID(ctx, paused.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ClickCount != 0 {
		t.Fatalf("refused clicks must not count, got %d", got.ClickCount)
	}
}

func TestLinkRepository_Claim(t *testing.T) {
	repo := NewLinkRepository(newTestDB(t))
	ctx := context.Background()
	link := mustCreate(t, repo, newLink("orphan"))

	if err := repo.Claim(ctx, link.ID, "alice"); err != nil {
		t.Fatalf("first claim error: %v", err)
	}
	if err := repo.Claim(ctx, link.ID, "bob"); !errors.Is(err, ErrAlreadyOwned) {
		t.Fatalf("second claim: expected ErrAlreadyOwned, got %v", err)
	}
	if err := repo.Claim(ctx, link.ID, "alice"); !errors.Is(err, ErrAlreadyOwned) {
		t.Fatalf("repeat claim by owner: expected ErrAlreadyOwned, got %v", err)
	}

	got, err := repo.GetByID(ctx, link.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerID == nil || *got.OwnerID != "alice" {
		t.Fatalf("owner = %v, want alice", got.OwnerID)
	}
}

func TestLinkRepository_DeleteCascades(t *testing.T) {
	db := newTestDB(t)
	links := NewLinkRepository(db)
	clicks := NewClickEventRepository(db)
	ctx := context.Background()

	doomed := mustCreate(t, links, newLink("doomed"))
	kept := mustCreate(t, links, newLink("kept"))
	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		if err := clicks.Append(ctx, newEvent(doomed.ID, now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}
	if err := clicks.Append(ctx, newEvent(kept.ID, now)); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	if err := links.Delete(ctx, doomed.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	if _, err := links.GetByID(ctx, doomed.ID); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected deleted link to be gone, got %v", err)
	}
	var orphaned int64
	if err := db.Model(&model.ClickEvent{}).Where("link_id = ?", doomed.ID).Count(&orphaned).Error; err != nil {
		t.Fatal(err)
	}
	if orphaned != 0 {
		t.Fatalf("expected click events deleted with the link, %d left", orphaned)
	}
	remaining, err := clicks.ListByLink(ctx, kept.ID)
	if err != nil || len(remaining) != 1 {
		t.Fatalf("other link's events = %d, %v; want 1", len(remaining), err)
	}
	if err := links.Delete(ctx, doomed.ID); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("second delete: expected ErrLinkNotFound, got %v", err)
	}
}

func TestLinkRepository_PurgeExpired(t *testing.T) {
	db := newTestDB(t)
	links := NewLinkRepository(db)
	clicks := NewClickEventRepository(db)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)
	one := int64(1)

	stale := newLink("stale")
	stale.ExpiresAt = &past
	mustCreate(t, links, stale)
	if err := clicks.Append(ctx, newEvent(stale.ID, past)); err != nil {
		t.Fatal(err)
	}

	fresh := newLink("fresh")
	fresh.ExpiresAt = &future
	spent := newLink("spent")
	spent.MaxClicks = &one
	spent.ClickCount = 1
	for _, link := range []*model.Link{newLink("plain"), fresh, spent} {
		mustCreate(t, links, link)
	}

	purged, err := links.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged %d links, want 1", purged)
	}
	if _, err := links.GetByCode(ctx, "stale"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected stale link purged, got %v", err)
	}
	events, err := clicks.ListByLink(ctx, stale.ID)
	if err != nil || len(events) != 0 {
		t.Fatalf("stale link events = %d, %v; want 0", len(events), err)
	}
	for _, code := range []string{"plain", "fresh", "spent"} {
		if _, err := links.GetByCode(ctx, code); err != nil {
			t.Fatalf("link %q should be kept: %v", code, err)
		}
	}

	if purged, err := links.PurgeExpired(ctx, now); err != nil || purged != 0 {
		t.Fatalf("second purge = %d, %v; want 0", purged, err)
	}
}

func TestLinkRepository_EachCode(t *testing.T) {
	repo := NewLinkRepository(newTestDB(t))
	want := []string{"aa", "bb", "cc", "dd", "ee"}
	for _, code := range want {
		mustCreate(t, repo, newLink(code))
	}

	var (
		got     []string
		batches int
	)
	err := repo.EachCode(context.Background(), 2, func(codes []string) error {
		batches++
		got = append(got, codes...)
		return nil
	})
	if err != nil {
		t.Fatalf("EachCode error: %v", err)
	}
	if batches != 3 {
		t.Fatalf("batches = %d, want 3", batches)
	}
	sort.Strings(got)
	if len(got) != len(want) {
		t.Fatalf("codes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("codes = %v, want %v", got, want)
		}
	}
}
