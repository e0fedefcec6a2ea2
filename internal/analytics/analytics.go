// Package analytics derives read-only reports from the completion ledger and
// the enrollment set. Nothing here mutates state; every derivation is a pure
// function over data loaded from the store.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/salasoft/battleplan/internal/models"
	"github.com/salasoft/battleplan/internal/schedule"
	"github.com/salasoft/battleplan/internal/store"
)

// Summary is a user's progression report.
type Summary struct {
	UserID              string                 `json:"user_id"`
	TotalMissions       int                    `json:"total_missions"`
	CurrentStreak       int                    `json:"current_streak"`
	FeelingDistribution map[models.Feeling]int `json:"feeling_distribution"`
	FrequentTopics      []string               `json:"frequent_topics"`
	ActivePlans         []models.Enrollment    `json:"active_plans"`
	CompletedPlans      []models.Enrollment    `json:"completed_plans"`
}

// Aggregator builds reports for a user. Topic ranking is delegated to a
// pluggable TopicExtractor.
type Aggregator struct {
	store     store.Store
	clock     schedule.Clock
	extractor TopicExtractor
}

// NewAggregator creates an aggregator. A nil extractor falls back to the
// stopword heuristic.
func NewAggregator(s store.Store, clock schedule.Clock, extractor TopicExtractor) *Aggregator {
	if extractor == nil {
		extractor = NewStopwordExtractor()
	}
	return &Aggregator{store: s, clock: clock, extractor: extractor}
}

// Summary assembles the full report for one user.
func (a *Aggregator) Summary(ctx context.Context, userID string) (*Summary, error) {
	entries, err := a.store.ListCompletionsByUser(ctx, userID)
	if err != nil {
		return nil, models.Transientf(err, "failed to load completion ledger for user %s", userID)
	}
	enrollments, err := a.store.ListEnrollmentsByUser(ctx, userID)
	if err != nil {
		return nil, models.Transientf(err, "failed to load enrollments for user %s", userID)
	}

	titles := make([]string, len(entries))
	for i, e := range entries {
		titles[i] = e.MissionTitle
	}
	active, completed := partitionEnrollments(enrollments)

	s := &Summary{
		UserID:              userID,
		TotalMissions:       len(entries),
		CurrentStreak:       CurrentStreak(entries, a.clock.Now()),
		FeelingDistribution: FeelingDistribution(entries),
		FrequentTopics:      a.extractor.Topics(titles, DefaultTopicLimit),
		ActivePlans:         active,
		CompletedPlans:      completed,
	}
	slog.Debug("Aggregator.Summary: report built", "user_id", userID,
		"total_missions", s.TotalMissions, "current_streak", s.CurrentStreak)
	return s, nil
}

// ActivityCalendar returns the distinct UTC calendar days within the given
// month that carry at least one completion, sorted ascending. Suited for
// heatmap rendering.
func (a *Aggregator) ActivityCalendar(ctx context.Context, userID string, year int, month time.Month) ([]time.Time, error) {
	entries, err := a.store.ListCompletionsByUser(ctx, userID)
	if err != nil {
		return nil, models.Transientf(err, "failed to load completion ledger for user %s", userID)
	}
	seen := make(map[time.Time]bool)
	for _, e := range entries {
		day := schedule.StartOfDay(e.CompletedAt)
		if day.Year() == year && day.Month() == month {
			seen[day] = true
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// CurrentStreak counts consecutive calendar days with at least one
// completion, anchored at today or yesterday. A most-recent completion older
// than yesterday breaks the chain and yields zero. Multiple completions on
// one day count once.
func CurrentStreak(entries []models.CompletionLogEntry, now time.Time) int {
	if len(entries) == 0 {
		return 0
	}
	seen := make(map[time.Time]bool, len(entries))
	for _, e := range entries {
		seen[schedule.StartOfDay(e.CompletedAt)] = true
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	today := schedule.StartOfDay(now)
	yesterday := today.AddDate(0, 0, -1)
	if !days[0].Equal(today) && !days[0].Equal(yesterday) {
		return 0
	}
	streak := 1
	for i := 1; i < len(days); i++ {
		if !days[i-1].AddDate(0, 0, -1).Equal(days[i]) {
			break
		}
		streak++
	}
	return streak
}

// FeelingDistribution counts ledger entries per feeling. The skipped
// sentinel is excluded: it records a declined prompt, not a mood.
func FeelingDistribution(entries []models.CompletionLogEntry) map[models.Feeling]int {
	dist := make(map[models.Feeling]int)
	for _, e := range entries {
		if e.Feeling == models.FeelingSkipped {
			continue
		}
		dist[e.Feeling]++
	}
	return dist
}

func partitionEnrollments(all []models.Enrollment) (active, completed []models.Enrollment) {
	active = []models.Enrollment{}
	completed = []models.Enrollment{}
	for _, e := range all {
		if e.Status == models.EnrollmentStatusCompleted {
			completed = append(completed, e)
		} else {
			active = append(active, e)
		}
	}
	return active, completed
}
