package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sifan077/PowerLink/internal/app/model"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a file-backed SQLite database with the service schema.
// A single connection serializes writers the way row locks do in Postgres.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "links.db")), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.Link{}, &model.ClickEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newLink(code string) *model.Link {
	return &model.Link{
		OriginalURL: "https://example.com/" + code,
		ShortCode:   code,
		IsActive:    true,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func mustCreate(t *testing.T, repo LinkRepository, link *model.Link) *model.Link {
	t.Helper()
	if err := repo.Create(context.Background(), link); err != nil {
		t.Fatalf("Create(%q) error: %v", link.ShortCode, err)
	}
	return link
}

func newEvent(linkID string, at time.Time) *model.ClickEvent {
	return &model.ClickEvent{
		ID:        uuid.NewString(),
		LinkID:    linkID,
		Timestamp: at,
		Device:    "desktop",
		Browser:   "Chrome",
		OS:        "Linux",
		Referrer:  model.DirectReferrer,
	}
}
