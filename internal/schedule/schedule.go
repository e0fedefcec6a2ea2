// Package schedule resolves which missions of a plan are due on a given day.
//
// Day boundaries use UTC calendar days throughout: an enrollment's start
// date is truncated to UTC midnight when it is created, and "today" is the
// UTC calendar day of the injected clock. Calendar-day granularity (not
// elapsed hours) keeps the day index stable when a session spans midnight.
package schedule

import (
	"log/slog"
	"time"

	"github.com/salasoft/battleplan/internal/models"
)

// Clock supplies the current time. Injected so tests and callers control
// "now" instead of reading the wall clock ambiently.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a Clock pinned to a single instant, for tests.
type FixedClock struct {
	Instant time.Time
}

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time { return c.Instant }

// StartOfDay truncates t to its UTC calendar day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayIndex returns the 1-based day offset of now within a plan started at
// startDate. The result is 1 on the start day itself. Values below 1
// indicate clock skew (now before the start date).
func DayIndex(startDate, now time.Time) int {
	start := StartOfDay(startDate)
	today := StartOfDay(now)
	return int(today.Sub(start).Hours()/24) + 1
}

// ResolveTodayMissions returns the missions of plan scheduled for the
// enrollment's current day index. An empty slice means nothing is due today:
// the plan is exhausted, today is a rest day, or the clock is skewed before
// the start date. Callers must not treat empty as an error.
func ResolveTodayMissions(plan *models.PlanDefinition, enrollment *models.Enrollment, now time.Time) []models.Mission {
	dayIndex := DayIndex(enrollment.StartDate, now)
	if dayIndex < 1 || dayIndex > plan.DurationDays {
		slog.Debug("schedule.ResolveTodayMissions: day index outside plan window",
			"plan_id", plan.ID, "user_id", enrollment.UserID, "day_index", dayIndex, "duration_days", plan.DurationDays)
		return nil
	}
	var due []models.Mission
	for _, m := range plan.Missions {
		if m.Day == dayIndex {
			due = append(due, m)
		}
	}
	slog.Debug("schedule.ResolveTodayMissions: resolved",
		"plan_id", plan.ID, "user_id", enrollment.UserID, "day_index", dayIndex, "due", len(due))
	return due
}
