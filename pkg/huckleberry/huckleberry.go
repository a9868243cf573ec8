// Package huckleberry provides a public facade re-exporting core types
// for external consumers of this module.
package huckleberry

import (
	"github.com/trymwestin/huckleberry/internal/core/auth"
	"github.com/trymwestin/huckleberry/internal/core/calendar"
	"github.com/trymwestin/huckleberry/internal/core/events"
	"github.com/trymwestin/huckleberry/internal/core/state"
	"github.com/trymwestin/huckleberry/internal/core/tracker"
)

// Re-export core types for external use.
type (
	// Event is the normalized calendar representation of one record.
	Event = events.Event
	// Category tags an event with its record type.
	Category = events.Category
	// FeedKind is the outcome of classifying a feeding record.
	FeedKind = events.FeedKind
	// Child represents a child profile.
	Child = tracker.Child
	// SleepInterval is a raw sleep record.
	SleepInterval = tracker.SleepInterval
	// FeedInterval is a raw feeding record, nursing or bottle.
	FeedInterval = tracker.FeedInterval
	// DiaperChange is a raw diaper record.
	DiaperChange = tracker.DiaperChange
	// GrowthEntry is a raw growth measurement.
	GrowthEntry = tracker.GrowthEntry
	// Calendar merges the four record sources for one child.
	Calendar = calendar.Calendar
	// Session holds an authenticated vendor session.
	Session = auth.Session
	// Classification is a user-facing auth failure category.
	Classification = auth.Classification
	// DayStats counts today's records per category.
	DayStats = state.DayStats
	// ChildSnapshot is the per-child sensor state.
	ChildSnapshot = state.ChildSnapshot
)

// Event category constants.
const (
	CategorySleep  = events.CategorySleep
	CategoryFeed   = events.CategoryFeed
	CategoryBottle = events.CategoryBottle
	CategoryDiaper = events.CategoryDiaper
	CategoryGrowth = events.CategoryGrowth
)

// Feed classification constants.
const (
	KindBreast = events.KindBreast
	KindBottle = events.KindBottle
)

// Auth failure classification constants.
const (
	ClassInvalidAuth     = auth.ClassInvalidAuth
	ClassAccountDisabled = auth.ClassAccountDisabled
	ClassTooManyAttempts = auth.ClassTooManyAttempts
	ClassUnreachable     = auth.ClassUnreachable
	ClassTimeout         = auth.ClassTimeout
	ClassUnknown         = auth.ClassUnknown
)
