package schedule

import (
	"testing"
	"time"

	"github.com/salasoft/battleplan/internal/models"
)

func threeDayPlan() *models.PlanDefinition {
	return &models.PlanDefinition{
		ID:           "plan-1",
		Title:        "Jornada de Três Dias",
		DurationDays: 3,
		Missions: []models.Mission{
			{ID: "m1", Day: 1, Type: models.MissionTypePrayerSanctuary, Title: "Oração"},
			{ID: "m2", Day: 1, Type: models.MissionTypeJournalEntry, Title: "Diário"},
			{ID: "m3", Day: 2, Type: models.MissionTypeConfession, Title: "Confissão"},
			{ID: "m4", Day: 3, Type: models.MissionTypeFeelingJourney, Title: "Sentimentos"},
		},
	}
}

func enrollmentStarting(start time.Time) *models.Enrollment {
	return &models.Enrollment{
		UserID:    "u1",
		PlanID:    "plan-1",
		StartDate: StartOfDay(start),
		Status:    models.EnrollmentStatusInProgress,
	}
}

func TestDayIndex(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"start instant", start, 1},
		{"same day evening", start.Add(23 * time.Hour), 1},
		{"next day just past midnight", start.Add(24*time.Hour + time.Minute), 2},
		{"a week later", start.AddDate(0, 0, 7), 8},
		{"day before start", start.AddDate(0, 0, -1), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DayIndex(start, tc.now); got != tc.want {
				t.Errorf("DayIndex = %d, expected %d", got, tc.want)
			}
		})
	}
}

func TestDayIndexIgnoresStartTimeOfDay(t *testing.T) {
	// An enrollment created late in the evening still counts that calendar
	// day as day 1.
	start := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	now := time.Date(2026, 3, 11, 0, 30, 0, 0, time.UTC)
	if got := DayIndex(start, now); got != 2 {
		t.Errorf("DayIndex across midnight = %d, expected 2", got)
	}
}

func TestResolveTodayMissionsDayOne(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	plan := threeDayPlan()
	enr := enrollmentStarting(start)

	due := ResolveTodayMissions(plan, enr, start)
	if len(due) != 2 {
		t.Fatalf("expected 2 missions due on day 1, got %d", len(due))
	}
	if due[0].ID != "m1" || due[1].ID != "m2" {
		t.Errorf("expected [m1 m2], got [%s %s]", due[0].ID, due[1].ID)
	}
}

func TestResolveTodayMissionsMidPlan(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	plan := threeDayPlan()
	enr := enrollmentStarting(start)

	due := ResolveTodayMissions(plan, enr, start.AddDate(0, 0, 1))
	if len(due) != 1 || due[0].ID != "m3" {
		t.Fatalf("expected [m3] on day 2, got %v", due)
	}
}

func TestResolveTodayMissionsPlanExhausted(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	plan := threeDayPlan()
	enr := enrollmentStarting(start)

	due := ResolveTodayMissions(plan, enr, start.AddDate(0, 0, plan.DurationDays+5))
	if len(due) != 0 {
		t.Errorf("expected no missions past the plan window, got %d", len(due))
	}
}

func TestResolveTodayMissionsClockSkew(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	plan := threeDayPlan()
	enr := enrollmentStarting(start)

	due := ResolveTodayMissions(plan, enr, start.AddDate(0, 0, -2))
	if len(due) != 0 {
		t.Errorf("expected no missions when now precedes start, got %d", len(due))
	}
}

func TestResolveTodayMissionsRestDay(t *testing.T) {
	plan := threeDayPlan()
	plan.DurationDays = 4 // day 4 has no missions
	plan.Missions = plan.Missions[:3]
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	enr := enrollmentStarting(start)

	due := ResolveTodayMissions(plan, enr, start.AddDate(0, 0, 3))
	if len(due) != 0 {
		t.Errorf("expected empty slice on a rest day, got %d", len(due))
	}
}

func TestFixedClock(t *testing.T) {
	instant := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var c Clock = FixedClock{Instant: instant}
	if !c.Now().Equal(instant) {
		t.Error("FixedClock did not return its pinned instant")
	}
}
