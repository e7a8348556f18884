package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/PowerLink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LinkRepository defines the data access contract for short links.
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	GetByCode(ctx context.Context, code string) (*model.Link, error)
	GetByID(ctx context.Context, id string) (*model.Link, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Link, error)
	IncrementClicks(ctx context.Context, id string) error
	Claim(ctx context.Context, id, ownerID string) error
	Delete(ctx context.Context, id string) error
	EachCode(ctx context.Context, batchSize int, fn func(codes []string) error) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

// Create inserts the link. The unique index on short_code decides races
// between concurrent creators; the loser gets ErrDuplicateCode.
func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &link, nil
}

func (r *linkRepository) GetByID(ctx context.Context, id string) (*model.Link, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrLinkNotFound
	}
	var link model.Link
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &link, nil
}

func (r *linkRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Link{}).Where("short_code = ?", code).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *linkRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Link, error) {
	var result []model.Link
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// IncrementClicks admits one click with a single conditional update, so the
// click budget holds under concurrent redirects.
func (r *linkRepository) IncrementClicks(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("id = ? AND is_active = ? AND (max_clicks IS NULL OR click_count < max_clicks)", id, true).
		UpdateColumn("click_count", gorm.Expr("click_count + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrClickLimitReached
	}
	return nil
}

func (r *linkRepository) Claim(ctx context.Context, id, ownerID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrLinkNotFound
	}
	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("id = ? AND owner_id IS NULL", id).
		UpdateColumn("owner_id", ownerID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Link{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrLinkNotFound
	}
	return ErrAlreadyOwned
}

// Delete removes the link and all of its click events in one transaction.
func (r *linkRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrLinkNotFound
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the row first so in-flight appends either finish before us or see it gone.
		var link model.Link
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", id).
			First(&link).Error; err != nil {
			return translateNotFound(err)
		}
		if err := tx.Where("link_id = ?", id).Delete(&model.ClickEvent{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Link{}).Error
	})
}

func (r *linkRepository) EachCode(ctx context.Context, batchSize int, fn func(codes []string) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var batch []model.Link
	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Select("id", "short_code").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			codes := make([]string, len(batch))
			for i, link := range batch {
				codes[i] = link.ShortCode
			}
			return fn(codes)
		})
	return result.Error
}

// PurgeExpired deletes links whose expiry time has passed, with their events.
// Links that are only inactive or out of click budget are kept; they keep
// answering 410 and their owners keep the analytics.
func (r *linkRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&model.Link{}).
			Where("expires_at IS NOT NULL AND expires_at < ?", now).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("link_id IN ?", ids).Delete(&model.ClickEvent{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&model.Link{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	return purged, err
}
