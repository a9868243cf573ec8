// Package state holds the latest per-child snapshots and the event bus that
// fans snapshot updates out to the MQTT publisher and WebSocket clients.
package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/trymwestin/huckleberry/internal/core/events"
	"github.com/trymwestin/huckleberry/internal/core/tracker"
)

// DayStats counts today's records per category, in the configured timezone.
type DayStats struct {
	SleepCount   int `json:"sleep_count"`
	FeedCount    int `json:"feed_count"`
	BottleCount  int `json:"bottle_count"`
	DiaperCount  int `json:"diaper_count"`
	GrowthCount  int `json:"growth_count"`
	SleepMinutes int `json:"sleep_minutes"`
}

// ChildSnapshot is everything the sensor surfaces need for one child.
type ChildSnapshot struct {
	Child      tracker.Child  `json:"child"`
	Events     []events.Event `json:"events"`
	NextEvent  *events.Event  `json:"next_event,omitempty"`
	LastSleep  *events.Event  `json:"last_sleep,omitempty"`
	LastFeed   *events.Event  `json:"last_feed,omitempty"`
	LastDiaper *events.Event  `json:"last_diaper,omitempty"`
	Stats      DayStats       `json:"stats"`
	FetchedAt  time.Time      `json:"fetched_at"`
}

// EventType identifies event categories on the bus.
type EventType string

const (
	EventSnapshotUpdate EventType = "snapshot_update"
	EventAuthOK         EventType = "auth_ok"
	EventAuthError      EventType = "auth_error"
	EventPollError      EventType = "poll_error"
)

// Event represents a state change.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// StateReader provides read-only access to the store.
type StateReader interface {
	Snapshot() map[string]ChildSnapshot
	Child(uid string) (ChildSnapshot, bool)
}

// BuildSnapshot derives a ChildSnapshot from a fetched event list. Pure:
// today's stats use the day containing now in loc, the last-seen events are
// the latest ones starting at or before now, and the next event is the first
// one strictly after. The input list must already be sorted by start.
func BuildSnapshot(child tracker.Child, evts []events.Event, now time.Time, loc *time.Location) ChildSnapshot {
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	snap := ChildSnapshot{
		Child:     child,
		Events:    evts,
		FetchedAt: now,
	}

	for i := range evts {
		ev := &evts[i]

		if !ev.Start.Before(dayStart) && ev.Start.Before(dayEnd) {
			switch ev.Category {
			case events.CategorySleep:
				snap.Stats.SleepCount++
				snap.Stats.SleepMinutes += int(ev.End.Sub(ev.Start).Minutes())
			case events.CategoryFeed:
				snap.Stats.FeedCount++
			case events.CategoryBottle:
				snap.Stats.BottleCount++
			case events.CategoryDiaper:
				snap.Stats.DiaperCount++
			case events.CategoryGrowth:
				snap.Stats.GrowthCount++
			}
		}

		if ev.Start.After(now) {
			if snap.NextEvent == nil {
				snap.NextEvent = ev
			}
			continue
		}

		// Sorted input, so each assignment keeps the latest so far.
		switch ev.Category {
		case events.CategorySleep:
			snap.LastSleep = ev
		case events.CategoryFeed, events.CategoryBottle:
			snap.LastFeed = ev
		case events.CategoryDiaper:
			snap.LastDiaper = ev
		}
	}

	return snap
}

// --- EventBus ---

// EventBus is a simple publish/subscribe event bus.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(log *slog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan Event),
		log:         log,
	}
}

// Publish sends an event to all subscribers.
func (b *EventBus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.log.Warn("event bus: subscriber buffer full, dropping event", "subscriber_id", id, "event_type", evt.Type)
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe function.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		// drain anything still buffered
		for {
			select {
			case <-ch:
			default:
				return
			}
		}
	}
	return ch, unsub
}

// --- StateStore ---

// StateStore holds the current per-child snapshots with thread-safe access.
type StateStore struct {
	mu       sync.RWMutex
	children map[string]ChildSnapshot
	bus      *EventBus
	log      *slog.Logger
}

// NewStateStore creates a new store wired to the event bus.
func NewStateStore(bus *EventBus, log *slog.Logger) *StateStore {
	return &StateStore{
		children: make(map[string]ChildSnapshot),
		bus:      bus,
		log:      log,
	}
}

var _ StateReader = (*StateStore)(nil)

// Snapshot returns a copy of all child snapshots.
func (s *StateStore) Snapshot() map[string]ChildSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ChildSnapshot, len(s.children))
	for k, v := range s.children {
		out[k] = v
	}
	return out
}

// Child returns the snapshot for one child.
func (s *StateStore) Child(uid string) (ChildSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.children[uid]
	return snap, ok
}

// UpdateChild stores a fresh snapshot and publishes it on the bus.
func (s *StateStore) UpdateChild(snap ChildSnapshot) {
	s.mu.Lock()
	s.children[snap.Child.UID] = snap
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventSnapshotUpdate, Data: snap})
}
