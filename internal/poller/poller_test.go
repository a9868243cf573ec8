package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trymwestin/huckleberry/internal/core/calendar"
	"github.com/trymwestin/huckleberry/internal/core/state"
	"github.com/trymwestin/huckleberry/internal/core/tracker"
	"github.com/trymwestin/huckleberry/internal/logging"
)

type fakeAPI struct {
	sleep []tracker.SleepInterval
}

func (f *fakeAPI) SleepIntervals(_ context.Context, _ string, _, _ int64) ([]tracker.SleepInterval, error) {
	return f.sleep, nil
}

func (f *fakeAPI) FeedIntervals(_ context.Context, _ string, _, _ int64) ([]tracker.FeedInterval, error) {
	return nil, nil
}

func (f *fakeAPI) DiaperChanges(_ context.Context, _ string, _, _ int64) ([]tracker.DiaperChange, error) {
	return nil, nil
}

func (f *fakeAPI) GrowthEntries(_ context.Context, _ string, _, _ int64) ([]tracker.GrowthEntry, error) {
	return nil, nil
}

func TestStartRunsImmediateRefresh(t *testing.T) {
	bus := state.NewEventBus(logging.Discard())
	store := state.NewStateStore(bus, logging.Discard())

	children := []tracker.Child{{UID: "c1", Name: "June"}}
	api := &fakeAPI{sleep: []tracker.SleepInterval{
		{Start: time.Now().Add(-2 * time.Hour).Unix(), DurationSeconds: 1800},
	}}
	calendars := map[string]*calendar.Calendar{
		"c1": calendar.New(api, "c1", time.UTC, logging.Discard()),
	}

	p := New(Config{
		Interval:      time.Minute,
		WindowBack:    24 * time.Hour,
		WindowForward: 24 * time.Hour,
	}, children, calendars, store, bus, time.UTC, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(context.Background())

	snap, ok := store.Child("c1")
	require.True(t, ok)
	assert.Len(t, snap.Events, 1)
	assert.Equal(t, "June", snap.Child.Name)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestRefreshSkipsMissingCalendar(t *testing.T) {
	bus := state.NewEventBus(logging.Discard())
	store := state.NewStateStore(bus, logging.Discard())

	children := []tracker.Child{{UID: "orphan"}}
	p := New(Config{
		Interval:      time.Minute,
		WindowBack:    time.Hour,
		WindowForward: time.Hour,
	}, children, map[string]*calendar.Calendar{}, store, bus, time.UTC, logging.Discard())

	p.refresh(context.Background())

	_, ok := store.Child("orphan")
	assert.False(t, ok)
}
