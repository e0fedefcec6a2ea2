// Package enrollment owns per-user plan progression.
//
// The Tracker creates and reads enrollment records; the CompletionProcessor
// applies mission-completion events transactionally against the store's
// version-guarded enrollment update.
package enrollment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/salasoft/battleplan/internal/models"
	"github.com/salasoft/battleplan/internal/schedule"
	"github.com/salasoft/battleplan/internal/store"
)

// Tracker manages enrollment records.
type Tracker struct {
	store store.Store
	clock schedule.Clock
}

// NewTracker creates a tracker over the given store and clock.
func NewTracker(s store.Store, clock schedule.Clock) *Tracker {
	return &Tracker{store: s, clock: clock}
}

// StartPlan enrolls a user into a plan. The plan must be published unless
// the user is its author. At most one enrollment exists per (user, plan);
// a second call returns a conflict error. The start date is the UTC
// calendar day of the call, so day 1 is today.
func (t *Tracker) StartPlan(ctx context.Context, userID string, plan *models.PlanDefinition, consent bool) (*models.Enrollment, error) {
	if userID == "" {
		return nil, models.Validationf("user id is required")
	}
	if plan.Status != models.PlanStatusPublished && plan.CreatorID != userID {
		return nil, models.Validationf("plan %s is not published", plan.ID)
	}
	now := t.clock.Now().UTC()
	e := &models.Enrollment{
		ID:                     "enr_" + ulid.Make().String(),
		UserID:                 userID,
		PlanID:                 plan.ID,
		StartDate:              schedule.StartOfDay(now),
		Status:                 models.EnrollmentStatusInProgress,
		CompletedMissionIDs:    []string{},
		ProgressPercentage:     0,
		ConsentToShareProgress: consent,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := t.store.CreateEnrollment(ctx, e); err != nil {
		if errors.Is(err, store.ErrEnrollmentExists) {
			slog.Debug("Tracker.StartPlan: already enrolled", "user_id", userID, "plan_id", plan.ID)
			return nil, models.Conflictf("user %s is already enrolled in plan %s", userID, plan.ID)
		}
		slog.Error("Tracker.StartPlan: persist failed", "user_id", userID, "plan_id", plan.ID, "error", err)
		return nil, models.Transientf(err, "failed to create enrollment")
	}
	slog.Info("Tracker.StartPlan: enrollment created", "user_id", userID, "plan_id", plan.ID, "start_date", e.StartDate)
	return e, nil
}

// GetEnrollment fetches the enrollment for (user, plan).
func (t *Tracker) GetEnrollment(ctx context.Context, userID, planID string) (*models.Enrollment, error) {
	e, err := t.store.GetEnrollment(ctx, userID, planID)
	if err != nil {
		if errors.Is(err, store.ErrEnrollmentNotFound) {
			return nil, models.NotFoundf("no enrollment for user %s in plan %s", userID, planID)
		}
		return nil, models.Transientf(err, "failed to load enrollment")
	}
	return e, nil
}

// ListEnrollments returns every enrollment of the given user.
func (t *Tracker) ListEnrollments(ctx context.Context, userID string) ([]models.Enrollment, error) {
	out, err := t.store.ListEnrollmentsByUser(ctx, userID)
	if err != nil {
		return nil, models.Transientf(err, "failed to list enrollments for user %s", userID)
	}
	return out, nil
}
