package model

import "time"

// Classification fallbacks applied by the click recorder.
const (
	UnknownValue   = "unknown"
	DirectReferrer = "direct"
)

// ClickEvent represents a click event on a short link
type ClickEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	LinkID    string    `json:"link_id" gorm:"type:uuid;not null;index:idx_click_events_link_time,priority:1"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_click_events_link_time,priority:2"`
	Device    string    `json:"device" gorm:"size:16;not null;default:unknown"`
	Browser   string    `json:"browser" gorm:"size:64;not null;default:unknown"`
	OS        string    `json:"os" gorm:"size:64;not null;default:unknown"`
	Referrer  string    `json:"referrer" gorm:"size:255;not null;default:direct"`
	IP        *string   `json:"ip,omitempty" gorm:"size:64"`
	// Geolocation is reserved; nothing populates it yet.
	Country *string `json:"country,omitempty" gorm:"size:64"`
	City    *string `json:"city,omitempty" gorm:"size:128"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-recorder"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
