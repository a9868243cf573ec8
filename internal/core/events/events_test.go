package events

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trymwestin/huckleberry/internal/core/tracker"
)

func ptrF(v float64) *float64 { return &v }
func ptrS(v string) *string   { return &v }

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 sec"},
		{65, "1 min 5 sec"},
		{120, "2 min"},
		{45, "45 sec"},
		{214, "3 min 34 sec"},
		{1500, "25 min"},
		{59.6, "1 min"},
		{0.4, "0 sec"},
		{3600, "60 min"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSeconds(tt.in), "FormatSeconds(%v)", tt.in)
	}
}

func TestFromSleepDurations(t *testing.T) {
	tests := []struct {
		name     string
		seconds  float64
		wantDur  string
		wantMins int
	}{
		{"under an hour", 59 * 60, "59m", 59},
		{"exactly one hour", 3600, "1h", 60},
		{"hour and a half", 5400, "1h 30m", 90},
		{"fractional minutes truncate", 3599, "59m", 59},
		{"zero", 0, "0m", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tracker.SleepInterval{Start: 1700000000, DurationSeconds: tt.seconds}
			ev := FromSleep(rec, time.UTC)

			assert.Equal(t, "💤 Sleep ("+tt.wantDur+")", ev.Summary)
			assert.Equal(t, "Sleep duration: "+tt.wantDur, ev.Description)
			assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Start)
			assert.Equal(t, ev.Start.Add(time.Duration(tt.wantMins)*time.Minute), ev.End)
			assert.Equal(t, CategorySleep, ev.Category)
		})
	}
}

func TestClassifyFeed(t *testing.T) {
	tests := []struct {
		name string
		rec  tracker.FeedInterval
		want FeedKind
	}{
		{"mode bottle", tracker.FeedInterval{Mode: "bottle"}, KindBottle},
		{"type bottle", tracker.FeedInterval{Type: "bottle"}, KindBottle},
		{"bottle type present", tracker.FeedInterval{BottleType: ptrS("Formula")}, KindBottle},
		{"amount present", tracker.FeedInterval{Amount: ptrF(120)}, KindBottle},
		{"bottle amount present", tracker.FeedInterval{BottleAmount: ptrF(90)}, KindBottle},
		{"zero amount still bottle", tracker.FeedInterval{Amount: ptrF(0)}, KindBottle},
		{"plain nursing", tracker.FeedInterval{Mode: "breast", LeftSeconds: 900}, KindBreast},
		{"empty record", tracker.FeedInterval{}, KindBreast},
		{"other mode", tracker.FeedInterval{Mode: "pump", Type: "expressed"}, KindBreast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFeed(tt.rec))
		})
	}
}

func TestFromFeedSummaryAndDescription(t *testing.T) {
	rec := tracker.FeedInterval{
		Start:        1700000000,
		Mode:         "breast",
		LeftSeconds:  900,
		RightSeconds: 600,
	}
	ev := FromFeed(rec, time.UTC)

	assert.True(t, strings.HasPrefix(ev.Summary, "🍼 Feed"), "summary %q", ev.Summary)
	assert.Contains(t, ev.Summary, "L:15m")
	assert.Contains(t, ev.Summary, "R:10m")
	assert.Contains(t, ev.Description, "Feeding - Total: 25 min")
	assert.Contains(t, ev.Description, "Left: 15 min")
	assert.Contains(t, ev.Description, "Right: 10 min")
	assert.Equal(t, ev.Start.Add(1500*time.Second), ev.End)
	assert.Equal(t, CategoryFeed, ev.Category)
}

func TestFromFeedSecondsFormatting(t *testing.T) {
	rec := tracker.FeedInterval{
		Start:        1700000000,
		Mode:         "breast",
		LeftSeconds:  111,
		RightSeconds: 103,
	}
	ev := FromFeed(rec, time.UTC)

	assert.Contains(t, ev.Description, "Feeding - Total: 3 min 34 sec")
	assert.Contains(t, ev.Description, "Left: 1 min 51 sec")
	assert.Contains(t, ev.Description, "Right: 1 min 43 sec")
	// Both sides round to 2 whole minutes for the compact summary.
	assert.Equal(t, "🍼 Feed (L:2m R:2m)", ev.Summary)
	assert.Equal(t, ev.Start.Add(214*time.Second), ev.End)
}

func TestFromFeedShortAndEmptySides(t *testing.T) {
	// 20 seconds on one side rounds to zero minutes, so the summary falls
	// back to the seconds formatter while the description keeps the side.
	short := FromFeed(tracker.FeedInterval{Start: 1700001200, LeftSeconds: 20}, time.UTC)
	assert.Equal(t, "🍼 Feed (20 sec)", short.Summary)
	assert.Contains(t, short.Description, "Left: 20 sec")
	assert.NotContains(t, short.Description, "Right:")

	empty := FromFeed(tracker.FeedInterval{Start: 1700000000}, time.UTC)
	assert.Equal(t, "🍼 Feed (0 sec)", empty.Summary)
	assert.Equal(t, "Feeding - Total: 0 sec", empty.Description)
	assert.Equal(t, empty.Start, empty.End)
}

func TestFromBottle(t *testing.T) {
	t.Run("amount and units", func(t *testing.T) {
		rec := tracker.FeedInterval{
			Start:  1700000600,
			Mode:   "bottle",
			Amount: ptrF(120),
			Units:  "ml",
		}
		ev := FromBottle(rec, time.UTC)

		assert.Equal(t, "🍼 Bottle (120 ml)", ev.Summary)
		assert.Equal(t, "Bottle: 120 ml", ev.Description)
		assert.Equal(t, ev.Start, ev.End)
		assert.Equal(t, CategoryBottle, ev.Category)
	})

	t.Run("bottle type line", func(t *testing.T) {
		rec := tracker.FeedInterval{
			Start:      1700000600,
			Mode:       "bottle",
			BottleType: ptrS("Formula"),
			Amount:     ptrF(120),
			Units:      "ml",
		}
		ev := FromBottle(rec, time.UTC)
		assert.Contains(t, ev.Description, "Type: Formula")
	})

	t.Run("fallback amount and units", func(t *testing.T) {
		rec := tracker.FeedInterval{
			Start:        1700000600,
			BottleAmount: ptrF(4.5),
			BottleUnits:  "oz",
		}
		ev := FromBottle(rec, time.UTC)
		assert.Equal(t, "🍼 Bottle (4.5 oz)", ev.Summary)
	})

	t.Run("defaults", func(t *testing.T) {
		ev := FromBottle(tracker.FeedInterval{Start: 1700000600, Mode: "bottle"}, time.UTC)
		assert.Equal(t, "🍼 Bottle (0 ml)", ev.Summary)
	})
}

func TestFromDiaper(t *testing.T) {
	tests := []struct {
		mode        string
		wantSummary string
	}{
		{"pee", "💧 Diaper (Pee)"},
		{"poo", "💩 Diaper (Poo)"},
		{"both", "💧💩 Diaper (Both)"},
		{"dry", "✅ Diaper (Dry)"},
		{"mystery", "🩲 Diaper (Mystery)"},
		{"", "🩲 Diaper (Unknown)"},
	}
	for _, tt := range tests {
		t.Run("mode "+tt.mode, func(t *testing.T) {
			ev := FromDiaper(tracker.DiaperChange{Start: 1700000000, Mode: tt.mode}, time.UTC)
			assert.Equal(t, tt.wantSummary, ev.Summary)
			assert.Equal(t, ev.Start, ev.End)
		})
	}

	t.Run("detail lines", func(t *testing.T) {
		rec := tracker.DiaperChange{
			Start:       1700000000,
			Mode:        "poo",
			Color:       ptrS("yellow"),
			Consistency: ptrS("soft"),
			Amount:      ptrS("2"),
		}
		ev := FromDiaper(rec, time.UTC)
		require.Equal(t, "Diaper change: poo\nColor: yellow\nConsistency: soft\nAmount: 2", ev.Description)
	})

	t.Run("no details", func(t *testing.T) {
		ev := FromDiaper(tracker.DiaperChange{Start: 1700000000, Mode: "pee"}, time.UTC)
		assert.Equal(t, "Diaper change: pee", ev.Description)
	})
}

func TestFromGrowth(t *testing.T) {
	t.Run("all measurements", func(t *testing.T) {
		rec := tracker.GrowthEntry{
			Start:  1700000000,
			Weight: ptrF(4.2),
			Height: ptrF(55),
			Head:   ptrF(37.5),
		}
		ev := FromGrowth(rec, time.UTC)

		assert.Equal(t, "📏 Growth Measurement", ev.Summary)
		assert.Equal(t, "Growth tracking:\nWeight: 4.2\nHeight: 55\nHead: 37.5", ev.Description)
		assert.Equal(t, ev.Start, ev.End)
		assert.Equal(t, CategoryGrowth, ev.Category)
	})

	t.Run("partial measurements", func(t *testing.T) {
		ev := FromGrowth(tracker.GrowthEntry{Start: 1700000000, Height: ptrF(55)}, time.UTC)
		assert.Equal(t, "Growth tracking:\nHeight: 55", ev.Description)
		assert.NotContains(t, ev.Description, "Weight")
		assert.NotContains(t, ev.Description, "Head")
	})

	t.Run("no measurements", func(t *testing.T) {
		ev := FromGrowth(tracker.GrowthEntry{Start: 1700000000}, time.UTC)
		assert.Equal(t, "Growth tracking:", ev.Description)
	})
}

func TestEventsUseConfiguredZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ev := FromSleep(tracker.SleepInterval{Start: 1700000000, DurationSeconds: 3600}, loc)

	assert.Equal(t, loc, ev.Start.Location())
	assert.Equal(t, loc, ev.End.Location())
	assert.True(t, ev.Start.Equal(time.Unix(1700000000, 0)))
}
