package service

import (
	"time"

	"github.com/sifan077/PowerLink/internal/app/model"
)

// IsExpired reports whether link must no longer redirect at now.
// Nothing caches the result; it is evaluated on every redirect and listing.
func IsExpired(link *model.Link, now time.Time) bool {
	if link == nil || !link.IsActive {
		return true
	}
	if link.ExpiresAt != nil && now.After(*link.ExpiresAt) {
		return true
	}
	if link.MaxClicks != nil && link.ClickCount >= *link.MaxClicks {
		return true
	}
	return false
}
