// Package analytics ingests client events and answers summary and
// per-user statistics queries over the event log, memoizing the
// expensive aggregations through the TTL cache.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"

	"eventlens/internal/cache"
	"eventlens/internal/db"
	"eventlens/internal/errs"
)

// dateOnly is the layout of date bounds without a time component.
const dateOnly = "2006-01-02"

// EventStore is the append-only event log the engine aggregates over.
// Implemented by db.EventStore.
type EventStore interface {
	Insert(ctx context.Context, event *db.Event) error
	CountEvents(ctx context.Context, f db.EventFilter) (int64, error)
	CountDistinctUsers(ctx context.Context, f db.EventFilter) (int64, error)
	GroupCountByDevice(ctx context.Context, f db.EventFilter) (map[string]int64, error)
	FindEvents(ctx context.Context, f db.EventFilter, orderBy string) ([]db.Event, error)
}

// CollectInput carries one client-submitted event. Timestamp is the
// client-asserted event time; a nil value means "now".
type CollectInput struct {
	EventName    string
	URL          string
	Referrer     string
	DeviceType   string
	ClientUserID string
	IPAddress    string
	Metadata     map[string]any
	Timestamp    *time.Time
}

// Summary is an aggregate over one application and one event name.
type Summary struct {
	Event           string           `json:"event"`
	Count           int64            `json:"count"`
	UniqueUsers     int64            `json:"uniqueUsers"`
	DeviceBreakdown map[string]int64 `json:"deviceBreakdown"`
	ApplicationID   string           `json:"applicationId"`
}

// UserStats describes one client user inside an application. The
// device, IP and last-seen fields are a snapshot from the user's most
// recent event, not an aggregate.
type UserStats struct {
	UserID        string         `json:"userId"`
	TotalEvents   int64          `json:"totalEvents"`
	ApplicationID string         `json:"applicationId"`
	DeviceDetails map[string]any `json:"deviceDetails"`
	IPAddress     string         `json:"ipAddress,omitempty"`
	LastSeen      time.Time      `json:"lastSeen"`
}

// Engine computes summaries and user stats, consulting the cache
// before the event store. Ingestion never invalidates cached entries,
// so results may lag new events by up to the cache TTL.
type Engine struct {
	events EventStore
	cache  cache.Cache
	ttl    time.Duration

	// now is the clock; swapped in tests.
	now func() time.Time
}

func NewEngine(events EventStore, c cache.Cache, ttl time.Duration) *Engine {
	return &Engine{
		events: events,
		cache:  c,
		ttl:    ttl,
		now:    time.Now,
	}
}

// CollectEvent appends one event to the application's log. The event
// is always attributed to the authenticated application; storage
// failures propagate to the caller.
func (e *Engine) CollectEvent(ctx context.Context, app *db.Application, input CollectInput) (*db.Event, error) {
	timestamp := e.now()
	if input.Timestamp != nil {
		timestamp = *input.Timestamp
	}

	metadata := datatypes.JSONMap{}
	for k, v := range input.Metadata {
		metadata[k] = v
	}

	event := &db.Event{
		ApplicationID: app.ID,
		EventName:     input.EventName,
		URL:           input.URL,
		Referrer:      input.Referrer,
		DeviceType:    input.DeviceType,
		ClientUserID:  input.ClientUserID,
		IPAddress:     input.IPAddress,
		Metadata:      metadata,
		Timestamp:     timestamp,
	}
	if err := e.events.Insert(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// GetEventSummary returns the aggregate for one event name, scoped to
// the authenticated application regardless of any application id the
// query may carry. Date bounds are inclusive; dates without a time
// component cover their whole calendar day. startDate and endDate may
// be empty for an unbounded side.
func (e *Engine) GetEventSummary(ctx context.Context, app *db.Application, eventName, startDate, endDate string) (*Summary, error) {
	cacheKey := cache.SummaryKey(app.ID, eventName, startDate, endDate)
	if raw, ok := e.cache.Get(ctx, cacheKey); ok {
		var summary Summary
		if err := json.Unmarshal(raw, &summary); err == nil {
			observeCache("event-summary", true)
			return &summary, nil
		}
		// Unreadable entry, fall through and recompute.
	}
	observeCache("event-summary", false)

	filter := db.EventFilter{ApplicationID: app.ID, EventName: eventName}
	start, err := ParseDateBound(startDate, false)
	if err != nil {
		return nil, err
	}
	end, err := ParseDateBound(endDate, true)
	if err != nil {
		return nil, err
	}
	filter.Start = start
	filter.End = end

	count, err := e.events.CountEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	uniqueUsers, err := e.events.CountDistinctUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	breakdown, err := e.events.GroupCountByDevice(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Event:           eventName,
		Count:           count,
		UniqueUsers:     uniqueUsers,
		DeviceBreakdown: breakdown,
		ApplicationID:   app.ID,
	}
	e.storeCached(ctx, cacheKey, summary)
	return summary, nil
}

// GetUserStats returns activity statistics for one client user inside
// the authenticated application. Fails with errs.ErrNotFound when the
// application has no events for that user.
func (e *Engine) GetUserStats(ctx context.Context, app *db.Application, clientUserID string) (*UserStats, error) {
	cacheKey := cache.UserStatsKey(app.ID, clientUserID)
	if raw, ok := e.cache.Get(ctx, cacheKey); ok {
		var stats UserStats
		if err := json.Unmarshal(raw, &stats); err == nil {
			observeCache("user-stats", true)
			return &stats, nil
		}
	}
	observeCache("user-stats", false)

	events, err := e.events.FindEvents(ctx, db.EventFilter{ApplicationID: app.ID, ClientUserID: clientUserID}, "timestamp DESC")
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no events for user %s: %w", clientUserID, errs.ErrNotFound)
	}

	latest := events[0]
	stats := &UserStats{
		UserID:        clientUserID,
		TotalEvents:   int64(len(events)),
		ApplicationID: app.ID,
		DeviceDetails: deviceDetails(&latest),
		IPAddress:     latest.IPAddress,
		LastSeen:      latest.Timestamp,
	}
	e.storeCached(ctx, cacheKey, stats)
	return stats, nil
}

// deviceDetails extracts the device snapshot from a single event:
// the stored device type plus the browser/os/screen fields clients
// put in metadata, when present.
func deviceDetails(event *db.Event) map[string]any {
	details := map[string]any{"deviceType": event.DeviceType}
	for _, field := range []string{"browser", "os", "screenSize"} {
		if v, ok := event.Metadata[field]; ok {
			details[field] = v
		}
	}
	return details
}

func (e *Engine) storeCached(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("failed to marshal cache entry %s: %v", key, err)
		return
	}
	e.cache.Set(ctx, key, raw, e.ttl)
}

// ParseDateBound parses one date bound, either a plain date or an
// RFC 3339 timestamp. Plain dates are extended to the end of their
// calendar day when they bound the upper side.
func ParseDateBound(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateOnly, value); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid date bound %q: %w", value, err)
	}
	return &t, nil
}
