// Package events turns raw tracker records into normalized calendar events.
//
// Every record becomes exactly one event: sleep and nursing records span an
// interval, bottle, diaper and growth records are instantaneous (end equals
// start). Summaries carry a category emoji plus a compact duration or
// quantity token; descriptions are multi-line detail text. All builders are
// pure and never fail: missing fields fall back to defaults.
package events

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/trymwestin/huckleberry/internal/core/tracker"
)

// Category tags an event with the record type it came from.
type Category string

const (
	CategorySleep  Category = "sleep"
	CategoryFeed   Category = "feed"
	CategoryBottle Category = "bottle"
	CategoryDiaper Category = "diaper"
	CategoryGrowth Category = "growth"
)

// Event is the uniform calendar representation of one tracker record.
type Event struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
}

// FeedKind is the outcome of classifying a feeding record.
type FeedKind int

const (
	KindBreast FeedKind = iota
	KindBottle
)

// ClassifyFeed decides whether a feeding record describes a bottle feed.
// Any one of five markers makes it a bottle: mode or type say "bottle", a
// bottle type is recorded, or an amount is present under either key.
// Everything else is a breast feed.
func ClassifyFeed(rec tracker.FeedInterval) FeedKind {
	if rec.Mode == "bottle" || rec.Type == "bottle" ||
		rec.BottleType != nil || rec.Amount != nil || rec.BottleAmount != nil {
		return KindBottle
	}
	return KindBreast
}

// FromSleep builds a sleep event. The recorded duration is in seconds; the
// app displays whole minutes, truncating fractional minutes, so the event
// end does the same.
func FromSleep(rec tracker.SleepInterval, loc *time.Location) Event {
	start := time.Unix(rec.Start, 0).In(loc)
	minutes := int(rec.DurationSeconds / 60)
	end := start.Add(time.Duration(minutes) * time.Minute)

	dur := sleepDuration(minutes)
	return Event{
		Start:       start,
		End:         end,
		Summary:     "💤 Sleep (" + dur + ")",
		Description: "Sleep duration: " + dur,
		Category:    CategorySleep,
	}
}

func sleepDuration(minutes int) string {
	if minutes >= 60 {
		h, m := minutes/60, minutes%60
		if m > 0 {
			return fmt.Sprintf("%dh %dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FromFeed builds a breast-feed event. Side durations are seconds; the
// summary shows per-side minutes rounded to nearest, the description runs
// every duration through FormatSeconds.
func FromFeed(rec tracker.FeedInterval, loc *time.Location) Event {
	start := time.Unix(rec.Start, 0).In(loc)
	totalSeconds := rec.LeftSeconds + rec.RightSeconds
	end := start.Add(time.Duration(math.Round(totalSeconds)) * time.Second)

	leftMin := int(math.Round(rec.LeftSeconds / 60))
	rightMin := int(math.Round(rec.RightSeconds / 60))

	var sides []string
	if leftMin > 0 {
		sides = append(sides, fmt.Sprintf("L:%dm", leftMin))
	}
	if rightMin > 0 {
		sides = append(sides, fmt.Sprintf("R:%dm", rightMin))
	}
	sidesStr := strings.Join(sides, " ")
	if len(sides) == 0 {
		sidesStr = FormatSeconds(totalSeconds)
	}

	desc := "Feeding - Total: " + FormatSeconds(totalSeconds)
	if rec.LeftSeconds > 0 {
		desc += "\nLeft: " + FormatSeconds(rec.LeftSeconds)
	}
	if rec.RightSeconds > 0 {
		desc += "\nRight: " + FormatSeconds(rec.RightSeconds)
	}

	return Event{
		Start:       start,
		End:         end,
		Summary:     "🍼 Feed (" + sidesStr + ")",
		Description: desc,
		Category:    CategoryFeed,
	}
}

// FromBottle builds a bottle event at the record's start. Quantity prefers
// amount over bottleAmount, units prefer units over bottleUnits and default
// to ml.
func FromBottle(rec tracker.FeedInterval, loc *time.Location) Event {
	start := time.Unix(rec.Start, 0).In(loc)

	amount := 0.0
	switch {
	case rec.Amount != nil:
		amount = *rec.Amount
	case rec.BottleAmount != nil:
		amount = *rec.BottleAmount
	}
	units := rec.Units
	if units == "" {
		units = rec.BottleUnits
	}
	if units == "" {
		units = "ml"
	}

	quantity := formatNumber(amount) + " " + units
	desc := "Bottle: " + quantity
	if rec.BottleType != nil && *rec.BottleType != "" {
		desc += "\nType: " + *rec.BottleType
	}

	return Event{
		Start:       start,
		End:         start,
		Summary:     "🍼 Bottle (" + quantity + ")",
		Description: desc,
		Category:    CategoryBottle,
	}
}

var diaperEmoji = map[string]string{
	"pee":  "💧",
	"poo":  "💩",
	"both": "💧💩",
	"dry":  "✅",
}

// FromDiaper builds a diaper event at the record's start. Unrecognized
// modes get the generic emoji; detail lines appear only for fields the
// record carries.
func FromDiaper(rec tracker.DiaperChange, loc *time.Location) Event {
	start := time.Unix(rec.Start, 0).In(loc)

	mode := rec.Mode
	if mode == "" {
		mode = "unknown"
	}
	emoji, ok := diaperEmoji[mode]
	if !ok {
		emoji = "🩲"
	}

	desc := "Diaper change: " + mode
	if rec.Color != nil {
		desc += "\nColor: " + *rec.Color
	}
	if rec.Consistency != nil {
		desc += "\nConsistency: " + *rec.Consistency
	}
	if rec.Amount != nil {
		desc += "\nAmount: " + *rec.Amount
	}

	return Event{
		Start:       start,
		End:         start,
		Summary:     emoji + " Diaper (" + capitalized(mode) + ")",
		Description: desc,
		Category:    CategoryDiaper,
	}
}

// FromGrowth builds a growth event at the record's start. Absent
// measurements are left out of the description entirely.
func FromGrowth(rec tracker.GrowthEntry, loc *time.Location) Event {
	start := time.Unix(rec.Start, 0).In(loc)

	var lines []string
	if rec.Weight != nil {
		lines = append(lines, "Weight: "+formatNumber(*rec.Weight))
	}
	if rec.Height != nil {
		lines = append(lines, "Height: "+formatNumber(*rec.Height))
	}
	if rec.Head != nil {
		lines = append(lines, "Head: "+formatNumber(*rec.Head))
	}

	desc := "Growth tracking:"
	if len(lines) > 0 {
		desc += "\n" + strings.Join(lines, "\n")
	}

	return Event{
		Start:       start,
		End:         start,
		Summary:     "📏 Growth Measurement",
		Description: desc,
		Category:    CategoryGrowth,
	}
}

// FormatSeconds renders a duration in seconds as compact text, rounding to
// the nearest whole second first: "3 min 34 sec", "2 min", "45 sec". Zero
// renders as "0 sec".
func FormatSeconds(seconds float64) string {
	total := int(math.Round(seconds))
	minutes, secs := total/60, total%60
	switch {
	case minutes > 0 && secs > 0:
		return fmt.Sprintf("%d min %d sec", minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%d min", minutes)
	default:
		return fmt.Sprintf("%d sec", secs)
	}
}

// formatNumber renders a quantity the way the app shows it: no exponent,
// no trailing zeros, so 120.0 comes out as "120".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// capitalized upper-cases the first rune and lower-cases the rest, the way
// the app renders mode labels.
func capitalized(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return string(unicode.ToUpper(r[0])) + strings.ToLower(string(r[1:]))
}
