package model

import "time"

// NameCount is one grouped bucket of an analytics breakdown.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// DayCount is the number of clicks on one UTC calendar day (YYYY-MM-DD).
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// RecentClick is the projection of a click event shown in the recent list.
type RecentClick struct {
	Device    string    `json:"device"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	Referrer  string    `json:"referrer"`
	ClickedAt time.Time `json:"clickedAt"`
}

// AnalyticsSummary is computed on demand from every click event of a link.
//
// UniqueClicks is the number of stored events; visitors are not deduplicated.
type AnalyticsSummary struct {
	TotalClicks  int64         `json:"totalClicks"`
	UniqueClicks int64         `json:"uniqueClicks"`
	Devices      []NameCount   `json:"devices"`
	Browsers     []NameCount   `json:"browsers"`
	OS           []NameCount   `json:"os"`
	Referrers    []NameCount   `json:"referrers"`
	ClicksByDay  []DayCount    `json:"clicksByDay"`
	RecentClicks []RecentClick `json:"recentClicks"`
}
