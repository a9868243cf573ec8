// Package poller refreshes every child's calendar on a schedule and pushes
// the derived snapshots into the state store.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trymwestin/huckleberry/internal/core/calendar"
	"github.com/trymwestin/huckleberry/internal/core/state"
	"github.com/trymwestin/huckleberry/internal/core/tracker"
	"github.com/trymwestin/huckleberry/internal/metrics"
)

// Config holds the refresh schedule and query window.
type Config struct {
	Interval      time.Duration
	WindowBack    time.Duration
	WindowForward time.Duration
}

// Poller drives the periodic refresh cycle.
type Poller struct {
	cfg       Config
	children  []tracker.Child
	calendars map[string]*calendar.Calendar
	store     *state.StateStore
	bus       *state.EventBus
	loc       *time.Location
	log       *slog.Logger
	cron      *cron.Cron
}

// New creates a Poller over the given calendars. The calendars map is keyed
// by child UID and must cover every child in the list.
func New(cfg Config, children []tracker.Child, calendars map[string]*calendar.Calendar, store *state.StateStore, bus *state.EventBus, loc *time.Location, log *slog.Logger) *Poller {
	return &Poller{
		cfg:       cfg,
		children:  children,
		calendars: calendars,
		store:     store,
		bus:       bus,
		loc:       loc,
		log:       log.With("component", "poller"),
		cron:      cron.New(cron.WithLocation(loc)),
	}
}

// Start runs one refresh immediately, then schedules recurring refreshes.
func (p *Poller) Start(ctx context.Context) error {
	p.refresh(ctx)

	spec := fmt.Sprintf("@every %s", p.cfg.Interval)
	if _, err := p.cron.AddFunc(spec, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), p.cfg.Interval)
		defer cancel()
		p.refresh(refreshCtx)
	}); err != nil {
		return fmt.Errorf("poller: schedule refresh: %w", err)
	}

	p.cron.Start()
	p.log.Info("poller started", "interval", p.cfg.Interval, "children", len(p.children))
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (p *Poller) Stop(ctx context.Context) error {
	stopped := p.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	p.log.Info("poller stopped")
	return nil
}

// refresh fetches every child's window and updates the store. A failing
// child (or source, handled further down) never blocks the others; the
// cycle only counts as failed when a snapshot could not be built at all.
func (p *Poller) refresh(ctx context.Context) {
	started := time.Now()
	now := time.Now().In(p.loc)
	windowStart := now.Add(-p.cfg.WindowBack)
	windowEnd := now.Add(p.cfg.WindowForward)

	for _, child := range p.children {
		cal, ok := p.calendars[child.UID]
		if !ok {
			p.log.Error("no calendar for child", "child", child.UID)
			continue
		}

		evts := cal.Events(ctx, windowStart, windowEnd)
		snap := state.BuildSnapshot(child, evts, now, p.loc)
		p.store.UpdateChild(snap)

		p.log.Debug("child refreshed", "child", child.UID, "events", len(evts))
	}

	if ctx.Err() != nil {
		metrics.RecordPoll("error", time.Since(started).Seconds())
		p.bus.Publish(state.Event{Type: state.EventPollError, Data: ctx.Err().Error()})
		p.log.Warn("poll cycle aborted", "error", ctx.Err())
		return
	}

	metrics.RecordPoll("ok", time.Since(started).Seconds())
	metrics.SetLastPollSuccess(time.Now().Unix())
	p.log.Info("poll cycle done", "duration", time.Since(started), "children", len(p.children))
}
