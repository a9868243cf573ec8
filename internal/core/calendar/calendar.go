// Package calendar merges the four record sources into one event timeline per
// child. A query fans out to sleep, feed, diaper and growth fetches; a failed
// source logs and contributes nothing, so the caller always gets a list.
package calendar

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/trymwestin/huckleberry/internal/core/events"
	"github.com/trymwestin/huckleberry/internal/core/tracker"
	"github.com/trymwestin/huckleberry/internal/metrics"
)

// API is the slice of the tracker client the calendar needs.
type API interface {
	SleepIntervals(ctx context.Context, childUID string, startUnix, endUnix int64) ([]tracker.SleepInterval, error)
	FeedIntervals(ctx context.Context, childUID string, startUnix, endUnix int64) ([]tracker.FeedInterval, error)
	DiaperChanges(ctx context.Context, childUID string, startUnix, endUnix int64) ([]tracker.DiaperChange, error)
	GrowthEntries(ctx context.Context, childUID string, startUnix, endUnix int64) ([]tracker.GrowthEntry, error)
}

var _ API = (*tracker.Client)(nil)

// Calendar produces the merged event list for one child and remembers the
// last result to answer next-event lookups between fetches.
type Calendar struct {
	api      API
	childUID string
	loc      *time.Location
	log      *slog.Logger

	mu     sync.RWMutex
	events []events.Event
}

// New creates a Calendar for the given child.
func New(api API, childUID string, loc *time.Location, log *slog.Logger) *Calendar {
	return &Calendar{
		api:      api,
		childUID: childUID,
		loc:      loc,
		log:      log.With("component", "calendar", "child", childUID),
	}
}

// ChildUID returns the child this calendar serves.
func (c *Calendar) ChildUID() string {
	return c.childUID
}

// Events fetches all four sources for the window [start, end), merges them
// and returns the list sorted ascending by start time. Source failures are
// logged and degrade to zero events from that source; the query itself never
// fails. The result is cached for NextUpcoming and Cached.
func (c *Calendar) Events(ctx context.Context, start, end time.Time) []events.Event {
	startUnix, endUnix := start.Unix(), end.Unix()

	var sleep, feed, diaper, growth []events.Event
	var wg sync.WaitGroup
	wg.Add(4)

	// Each goroutine writes only its own slot; the merge below is the only
	// point that establishes order.
	go func() {
		defer wg.Done()
		sleep = fetchSource(ctx, c.log, "sleep", func(ctx context.Context) ([]tracker.SleepInterval, error) {
			return c.api.SleepIntervals(ctx, c.childUID, startUnix, endUnix)
		}, func(rec tracker.SleepInterval) events.Event {
			return events.FromSleep(rec, c.loc)
		})
	}()
	go func() {
		defer wg.Done()
		feed = fetchSource(ctx, c.log, "feed", func(ctx context.Context) ([]tracker.FeedInterval, error) {
			return c.api.FeedIntervals(ctx, c.childUID, startUnix, endUnix)
		}, func(rec tracker.FeedInterval) events.Event {
			if events.ClassifyFeed(rec) == events.KindBottle {
				return events.FromBottle(rec, c.loc)
			}
			return events.FromFeed(rec, c.loc)
		})
	}()
	go func() {
		defer wg.Done()
		diaper = fetchSource(ctx, c.log, "diaper", func(ctx context.Context) ([]tracker.DiaperChange, error) {
			return c.api.DiaperChanges(ctx, c.childUID, startUnix, endUnix)
		}, func(rec tracker.DiaperChange) events.Event {
			return events.FromDiaper(rec, c.loc)
		})
	}()
	go func() {
		defer wg.Done()
		growth = fetchSource(ctx, c.log, "growth", func(ctx context.Context) ([]tracker.GrowthEntry, error) {
			return c.api.GrowthEntries(ctx, c.childUID, startUnix, endUnix)
		}, func(rec tracker.GrowthEntry) events.Event {
			return events.FromGrowth(rec, c.loc)
		})
	}()
	wg.Wait()

	merged := make([]events.Event, 0, len(sleep)+len(feed)+len(diaper)+len(growth))
	merged = append(merged, sleep...)
	merged = append(merged, feed...)
	merged = append(merged, diaper...)
	merged = append(merged, growth...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Start.Before(merged[j].Start)
	})

	c.mu.Lock()
	c.events = merged
	c.mu.Unlock()

	return merged
}

// NextUpcoming returns the first event from the last fetch that starts
// strictly after now. The second result is false when no event qualifies.
func (c *Calendar) NextUpcoming() (events.Event, bool) {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	// The list is sorted, so the first qualifying event is the minimum.
	for _, ev := range c.events {
		if ev.Start.After(now) {
			return ev, true
		}
	}
	return events.Event{}, false
}

// Cached returns a copy of the last fetched event list.
func (c *Calendar) Cached() []events.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]events.Event, len(c.events))
	copy(out, c.events)
	return out
}

// fetchSource runs one source fetch and converts its records. Every source
// gets the identical failure treatment: log, count, contribute nothing.
func fetchSource[R any](ctx context.Context, log *slog.Logger, source string, fetch func(context.Context) ([]R, error), convert func(R) events.Event) []events.Event {
	metrics.RecordFetch(source)
	recs, err := fetch(ctx)
	if err != nil {
		metrics.RecordFetchError(source)
		log.Warn("source fetch failed, contributing zero events", "source", source, "error", err)
		return nil
	}
	out := make([]events.Event, 0, len(recs))
	for _, rec := range recs {
		out = append(out, convert(rec))
	}
	return out
}
