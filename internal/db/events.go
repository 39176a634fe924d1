package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EventFilter narrows event queries. ApplicationID and EventName match
// exactly; Start/End bound the client-asserted event timestamp
// inclusively and may be nil for an unbounded side.
type EventFilter struct {
	ApplicationID string
	EventName     string
	ClientUserID  string
	Start         *time.Time
	End           *time.Time
}

// EventStore is the append-only event log. It backs the
// analytics.EventStore interface.
type EventStore struct {
	db *gorm.DB
}

func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Insert(ctx context.Context, event *Event) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *EventStore) scope(ctx context.Context, f EventFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Event{}).
		Where("application_id = ?", f.ApplicationID)
	if f.EventName != "" {
		q = q.Where("event_name = ?", f.EventName)
	}
	if f.ClientUserID != "" {
		q = q.Where("client_user_id = ?", f.ClientUserID)
	}
	if f.Start != nil {
		q = q.Where("timestamp >= ?", *f.Start)
	}
	if f.End != nil {
		q = q.Where("timestamp <= ?", *f.End)
	}
	return q
}

func (s *EventStore) CountEvents(ctx context.Context, f EventFilter) (int64, error) {
	var count int64
	if err := s.scope(ctx, f).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// CountDistinctUsers counts distinct non-empty client user ids among
// matching events.
func (s *EventStore) CountDistinctUsers(ctx context.Context, f EventFilter) (int64, error) {
	var count int64
	err := s.scope(ctx, f).
		Where("client_user_id <> ''").
		Distinct("client_user_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count distinct users: %w", err)
	}
	return count, nil
}

// GroupCountByDevice returns matching-event counts keyed by device type.
func (s *EventStore) GroupCountByDevice(ctx context.Context, f EventFilter) (map[string]int64, error) {
	var rows []struct {
		DeviceType string
		Count      int64
	}
	err := s.scope(ctx, f).
		Select("device_type, COUNT(*) AS count").
		Group("device_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("group events by device: %w", err)
	}

	breakdown := make(map[string]int64, len(rows))
	for _, r := range rows {
		breakdown[r.DeviceType] = r.Count
	}
	return breakdown, nil
}

// FindEvents returns the matching events in the given order, e.g.
// "timestamp DESC" for most recent first.
func (s *EventStore) FindEvents(ctx context.Context, f EventFilter, orderBy string) ([]Event, error) {
	var events []Event
	if err := s.scope(ctx, f).Order(orderBy).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	return events, nil
}
