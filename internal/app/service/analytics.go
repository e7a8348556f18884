package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
)

const (
	recentClickLimit = 10
	dayLayout        = "2006-01-02"
)

// ClickReader lists the stored click events of a link.
type ClickReader interface {
	ListByLink(ctx context.Context, linkID string) ([]model.ClickEvent, error)
}

// AnalyticsAggregator computes link analytics on demand from raw click events.
// It reads without locks, so a summary may miss clicks still in flight.
type AnalyticsAggregator struct {
	links  repository.LinkRepository
	clicks ClickReader
}

// NewAnalyticsAggregator creates an aggregator over the given stores.
func NewAnalyticsAggregator(links repository.LinkRepository, clicks ClickReader) *AnalyticsAggregator {
	return &AnalyticsAggregator{links: links, clicks: clicks}
}

// Aggregate summarises every click of linkID.
func (a *AnalyticsAggregator) Aggregate(ctx context.Context, linkID string) (*model.AnalyticsSummary, error) {
	link, err := a.links.GetByID(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}
	return a.AggregateLink(ctx, link)
}

// AggregateLink summarises the clicks of an already loaded link.
func (a *AnalyticsAggregator) AggregateLink(ctx context.Context, link *model.Link) (*model.AnalyticsSummary, error) {
	events, err := a.clicks.ListByLink(ctx, link.ID)
	if err != nil {
		return nil, fmt.Errorf("list clicks: %w", err)
	}
	return Summarize(link, events), nil
}

// Summarize groups events, given in recording order, into a summary.
// Breakdowns keep first-occurrence order; days are sorted ascending.
func Summarize(link *model.Link, events []model.ClickEvent) *model.AnalyticsSummary {
	var devices, browsers, oses, referrers tally
	days := make(map[string]int64)

	for _, e := range events {
		devices.add(e.Device)
		browsers.add(e.Browser)
		oses.add(e.OS)
		referrers.add(e.Referrer)
		days[e.Timestamp.UTC().Format(dayLayout)]++
	}

	byDay := make([]model.DayCount, 0, len(days))
	for date, count := range days {
		byDay = append(byDay, model.DayCount{Date: date, Count: count})
	}
	sort.Slice(byDay, func(i, j int) bool { return byDay[i].Date < byDay[j].Date })

	summary := &model.AnalyticsSummary{
		UniqueClicks: int64(len(events)),
		Devices:      devices.pairs(),
		Browsers:     browsers.pairs(),
		OS:           oses.pairs(),
		Referrers:    referrers.pairs(),
		ClicksByDay:  byDay,
		RecentClicks: recentClicks(events),
	}
	if link != nil {
		summary.TotalClicks = link.ClickCount
	}
	return summary
}

func recentClicks(events []model.ClickEvent) []model.RecentClick {
	sorted := make([]model.ClickEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > recentClickLimit {
		sorted = sorted[:recentClickLimit]
	}

	recent := make([]model.RecentClick, len(sorted))
	for i, e := range sorted {
		recent[i] = model.RecentClick{
			Device:    e.Device,
			Browser:   e.Browser,
			OS:        e.OS,
			Referrer:  e.Referrer,
			ClickedAt: e.Timestamp,
		}
	}
	return recent
}

// tally counts names, remembering the order each was first seen.
type tally struct {
	index  map[string]int
	counts []model.NameCount
}

func (t *tally) add(name string) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[name]; ok {
		t.counts[i].Count++
		return
	}
	t.index[name] = len(t.counts)
	t.counts = append(t.counts, model.NameCount{Name: name, Count: 1})
}

func (t *tally) pairs() []model.NameCount {
	if t.counts == nil {
		return []model.NameCount{}
	}
	return t.counts
}
