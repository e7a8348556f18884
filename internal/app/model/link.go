package model

import "time"

// Link describes the core short-link entity stored in Postgres.
type Link struct {
	ID          string     `db:"id" gorm:"primaryKey;type:uuid"`
	OriginalURL string     `db:"original_url" gorm:"type:text;not null"`
	ShortCode   string     `db:"short_code" gorm:"size:20;not null;uniqueIndex"`
	OwnerID     *string    `db:"owner_id" gorm:"size:64;index"`
	ClickCount  int64      `db:"click_count" gorm:"not null;default:0"`
	ExpiresAt   *time.Time `db:"expires_at" gorm:"index"`
	MaxClicks   *int64     `db:"max_clicks"`
	IsActive    bool       `db:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time  `db:"created_at" gorm:"not null;index"`
}

// IsOwnedBy reports whether ownerID is the link's current owner.
func (l *Link) IsOwnedBy(ownerID string) bool {
	return l.OwnerID != nil && ownerID != "" && *l.OwnerID == ownerID
}
