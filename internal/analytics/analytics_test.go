package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salasoft/battleplan/internal/models"
	"github.com/salasoft/battleplan/internal/schedule"
	"github.com/salasoft/battleplan/internal/store"
)

var reportNow = time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)

func entryAt(t time.Time, feeling models.Feeling, missionTitle string) models.CompletionLogEntry {
	return models.CompletionLogEntry{
		UserID:       "user-1",
		PlanID:       "plan-1",
		CompletedAt:  t,
		Feeling:      feeling,
		MissionTitle: missionTitle,
	}
}

func daysAgo(n int) time.Time {
	return reportNow.AddDate(0, 0, -n)
}

func TestCurrentStreakConsecutiveDays(t *testing.T) {
	entries := []models.CompletionLogEntry{
		entryAt(daysAgo(0), models.FeelingGrateful, "a"),
		entryAt(daysAgo(1), models.FeelingGrateful, "b"),
		entryAt(daysAgo(2), models.FeelingPeaceful, "c"),
	}
	assert.Equal(t, 3, CurrentStreak(entries, reportNow))
}

func TestCurrentStreakBrokenByGap(t *testing.T) {
	entries := []models.CompletionLogEntry{
		entryAt(daysAgo(2), models.FeelingGrateful, "a"),
	}
	assert.Equal(t, 0, CurrentStreak(entries, reportNow))
}

func TestCurrentStreakAnchorsOnYesterday(t *testing.T) {
	// No completion today yet; yesterday and the day before still chain.
	entries := []models.CompletionLogEntry{
		entryAt(daysAgo(1), models.FeelingGrateful, "a"),
		entryAt(daysAgo(2), models.FeelingGrateful, "b"),
	}
	assert.Equal(t, 2, CurrentStreak(entries, reportNow))
}

func TestCurrentStreakStopsAtFirstGap(t *testing.T) {
	entries := []models.CompletionLogEntry{
		entryAt(daysAgo(0), models.FeelingGrateful, "a"),
		entryAt(daysAgo(1), models.FeelingGrateful, "b"),
		// gap at daysAgo(2)
		entryAt(daysAgo(3), models.FeelingGrateful, "c"),
		entryAt(daysAgo(4), models.FeelingGrateful, "d"),
	}
	assert.Equal(t, 2, CurrentStreak(entries, reportNow))
}

func TestCurrentStreakSameDayCountsOnce(t *testing.T) {
	entries := []models.CompletionLogEntry{
		entryAt(daysAgo(0), models.FeelingGrateful, "a"),
		entryAt(daysAgo(0).Add(-2*time.Hour), models.FeelingPeaceful, "b"),
		entryAt(daysAgo(1), models.FeelingGrateful, "c"),
	}
	assert.Equal(t, 2, CurrentStreak(entries, reportNow))
}

func TestCurrentStreakEmptyLedger(t *testing.T) {
	assert.Equal(t, 0, CurrentStreak(nil, reportNow))
}

func TestFeelingDistributionExcludesSkipped(t *testing.T) {
	entries := []models.CompletionLogEntry{
		entryAt(daysAgo(0), models.FeelingGrateful, "a"),
		entryAt(daysAgo(0), models.FeelingGrateful, "b"),
		entryAt(daysAgo(1), models.FeelingPeaceful, "c"),
		entryAt(daysAgo(1), models.FeelingSkipped, "d"),
	}
	dist := FeelingDistribution(entries)
	assert.Equal(t, map[models.Feeling]int{
		models.FeelingGrateful: 2,
		models.FeelingPeaceful: 1,
	}, dist)
}

func TestStopwordExtractorPortugueseTitles(t *testing.T) {
	titles := []string{
		"Oração pela Família",
		"Oração pela Cura",
		"Leitura sobre Família",
	}
	topics := NewStopwordExtractor().Topics(titles, DefaultTopicLimit)
	require.GreaterOrEqual(t, len(topics), 2)
	// Repeated keywords outrank singletons; diacritics survive.
	assert.Equal(t, "oração", topics[0])
	assert.Equal(t, "família", topics[1])
	assert.NotContains(t, topics, "pela")
	assert.NotContains(t, topics, "sobre")
}

func TestStopwordExtractorDropsShortAndStopwords(t *testing.T) {
	titles := []string{"A fé que move montanhas, para sempre"}
	topics := NewStopwordExtractor().Topics(titles, DefaultTopicLimit)
	assert.NotContains(t, topics, "fé")   // length filter
	assert.NotContains(t, topics, "que")  // length filter
	assert.NotContains(t, topics, "para") // stopword
	assert.Contains(t, topics, "montanhas")
	assert.Contains(t, topics, "sempre")
}

func TestStopwordExtractorLimitAndTieOrder(t *testing.T) {
	titles := []string{"alpha bravo", "alpha charlie", "delta echo foxtrot golf"}
	topics := NewStopwordExtractor().Topics(titles, 3)
	require.Len(t, topics, 3)
	assert.Equal(t, "alpha", topics[0])
	// Singletons keep first-seen order.
	assert.Equal(t, []string{"bravo", "charlie"}, topics[1:])
}

func TestSummaryAssemblesReport(t *testing.T) {
	s := store.NewInMemoryStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateEnrollment(ctx, &models.Enrollment{
		ID: "enr-1", UserID: "user-1", PlanID: "plan-1",
		Status: models.EnrollmentStatusInProgress,
	}))
	require.NoError(t, s.CreateEnrollment(ctx, &models.Enrollment{
		ID: "enr-2", UserID: "user-1", PlanID: "plan-2",
		Status: models.EnrollmentStatusCompleted, ProgressPercentage: 100,
	}))
	seedCompletion(t, s, entryAt(daysAgo(0), models.FeelingGrateful, "Oração pela Família"), "e1")
	seedCompletion(t, s, entryAt(daysAgo(1), models.FeelingSkipped, "Oração pela Cura"), "e2")

	agg := NewAggregator(s, schedule.FixedClock{Instant: reportNow}, nil)
	report, err := agg.Summary(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalMissions)
	assert.Equal(t, 2, report.CurrentStreak)
	assert.Equal(t, map[models.Feeling]int{models.FeelingGrateful: 1}, report.FeelingDistribution)
	assert.Equal(t, "oração", report.FrequentTopics[0])
	require.Len(t, report.ActivePlans, 1)
	require.Len(t, report.CompletedPlans, 1)
	assert.Equal(t, "plan-1", report.ActivePlans[0].PlanID)
	assert.Equal(t, "plan-2", report.CompletedPlans[0].PlanID)
}

func TestSummaryEmptyUser(t *testing.T) {
	s := store.NewInMemoryStore()
	defer s.Close()

	agg := NewAggregator(s, schedule.FixedClock{Instant: reportNow}, nil)
	report, err := agg.Summary(context.Background(), "user-nobody")
	require.NoError(t, err)
	assert.Zero(t, report.TotalMissions)
	assert.Zero(t, report.CurrentStreak)
	assert.Empty(t, report.FeelingDistribution)
	assert.Empty(t, report.FrequentTopics)
	assert.Empty(t, report.ActivePlans)
	assert.Empty(t, report.CompletedPlans)
}

func TestActivityCalendarFiltersMonth(t *testing.T) {
	s := store.NewInMemoryStore()
	defer s.Close()
	ctx := context.Background()

	march5 := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	march5b := time.Date(2025, 3, 5, 21, 0, 0, 0, time.UTC)
	march9 := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	feb28 := time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	seedCompletion(t, s, entryAt(march5, models.FeelingGrateful, "a"), "c1")
	seedCompletion(t, s, entryAt(march5b, models.FeelingGrateful, "b"), "c2")
	seedCompletion(t, s, entryAt(march9, models.FeelingPeaceful, "c"), "c3")
	seedCompletion(t, s, entryAt(feb28, models.FeelingGrateful, "d"), "c4")

	agg := NewAggregator(s, schedule.FixedClock{Instant: reportNow}, nil)
	days, err := agg.ActivityCalendar(ctx, "user-1", 2025, time.March)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
	}, days)
}

// seedCompletion writes a ledger entry through the store's transactional
// path so tests exercise the same write route production does.
func seedCompletion(t *testing.T, s store.Store, entry models.CompletionLogEntry, id string) {
	t.Helper()
	entry.ID = id
	ensureEnrollment(t, s, entry.UserID, entry.PlanID)
	err := s.UpdateEnrollmentTx(context.Background(), entry.UserID, entry.PlanID, func(e *models.Enrollment) (*models.CompletionLogEntry, error) {
		return &entry, nil
	})
	require.NoError(t, err)
}

func ensureEnrollment(t *testing.T, s store.Store, userID, planID string) {
	t.Helper()
	if _, err := s.GetEnrollment(context.Background(), userID, planID); err == nil {
		return
	}
	err := s.CreateEnrollment(context.Background(), &models.Enrollment{
		ID: "enr-" + planID, UserID: userID, PlanID: planID,
		Status: models.EnrollmentStatusInProgress,
	})
	require.NoError(t, err)
}
