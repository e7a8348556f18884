package repository

import (
	"context"

	"github.com/sifan077/PowerLink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClickEventRepository defines the data access contract for click events.
type ClickEventRepository interface {
	Append(ctx context.Context, event *model.ClickEvent) error
	ListByLink(ctx context.Context, linkID string) ([]model.ClickEvent, error)
}

type clickEventRepository struct {
	db *gorm.DB
}

// NewClickEventRepository returns a GORM-backed ClickEventRepository.
func NewClickEventRepository(db *gorm.DB) ClickEventRepository {
	return &clickEventRepository{db: db}
}

// Append stores the event while holding a share lock on its link, so it
// cannot outlive a concurrent delete. Re-appending the same event id is a no-op.
func (r *clickEventRepository) Append(ctx context.Context, event *model.ClickEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link model.Link
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id").
			Where("id = ?", event.LinkID).
			First(&link).Error; err != nil {
			return translateNotFound(err)
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(event).Error
	})
}

func (r *clickEventRepository) ListByLink(ctx context.Context, linkID string) ([]model.ClickEvent, error) {
	var events []model.ClickEvent
	if err := r.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
