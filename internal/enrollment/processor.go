package enrollment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sethvargo/go-retry"

	"github.com/salasoft/battleplan/internal/events"
	"github.com/salasoft/battleplan/internal/models"
	"github.com/salasoft/battleplan/internal/schedule"
	"github.com/salasoft/battleplan/internal/store"
)

// Retry configuration for optimistic concurrency conflicts.
const (
	// DefaultMaxConflictRetries bounds how many times a completion attempt
	// re-runs after a version conflict before surfacing a transient error.
	DefaultMaxConflictRetries = 4
	// conflictRetryBackoff is the pause between conflict retries.
	conflictRetryBackoff = 25 * time.Millisecond
)

// CompletionProcessor validates and applies mission-completion events. The
// enrollment mutation and the ledger append commit in one transaction;
// every error path leaves both in their pre-call state.
type CompletionProcessor struct {
	store store.Store
	clock schedule.Clock
	bus   *events.Bus
}

// NewCompletionProcessor creates a processor. The bus may be nil when no
// subscriber cares about completion events.
func NewCompletionProcessor(s store.Store, clock schedule.Clock, bus *events.Bus) *CompletionProcessor {
	return &CompletionProcessor{store: s, clock: clock, bus: bus}
}

// CompleteMission records the completion of one mission for (user, plan).
//
// Preconditions are checked in order inside the transaction, first failure
// wins: the enrollment must be in progress, the mission must be due today,
// the mission must not be completed already, and the feeling must be a
// defined enum value. Concurrent attempts for the same mission resolve
// first-committer-wins: the loser re-reads, observes the mission present,
// and gets a conflict error. Version conflicts on unrelated writes retry a
// bounded number of times before surfacing a transient error.
func (p *CompletionProcessor) CompleteMission(ctx context.Context, userID, planID, missionID string, feeling models.Feeling) (*models.Enrollment, error) {
	plan, err := p.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, models.NotFoundf("plan %s not found", planID)
		}
		return nil, models.Transientf(err, "failed to load plan %s", planID)
	}
	mission, ok := plan.MissionByID(missionID)
	if !ok {
		return nil, models.NotFoundf("mission %s not part of plan %s", missionID, planID)
	}

	now := p.clock.Now().UTC()
	var (
		updated models.Enrollment
		entry   *models.CompletionLogEntry
	)

	backoff := retry.WithMaxRetries(DefaultMaxConflictRetries, retry.NewConstant(conflictRetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := p.store.UpdateEnrollmentTx(ctx, userID, planID, func(e *models.Enrollment) (*models.CompletionLogEntry, error) {
			if e.Status != models.EnrollmentStatusInProgress {
				return nil, models.Conflictf("plan %s already completed", planID)
			}
			if !missionDue(plan, e, now, missionID) {
				return nil, models.Validationf("mission %s is not due today", missionID)
			}
			if e.HasCompleted(missionID) {
				return nil, models.Conflictf("mission %s already completed", missionID)
			}
			if !models.IsValidFeeling(feeling) {
				return nil, models.Validationf("invalid feeling %q", feeling)
			}

			e.CompletedMissionIDs = append(e.CompletedMissionIDs, missionID)
			e.RecomputeProgress(len(plan.Missions))
			e.UpdatedAt = now

			entry = &models.CompletionLogEntry{
				ID:           "log_" + ulid.Make().String(),
				UserID:       userID,
				PlanID:       planID,
				MissionID:    missionID,
				MissionTitle: mission.Title,
				PlanTitle:    plan.Title,
				CompletedAt:  now,
				Feeling:      feeling,
			}
			updated = *e
			return entry, nil
		})
		if errors.Is(txErr, store.ErrVersionConflict) {
			slog.Debug("CompletionProcessor.CompleteMission: version conflict, retrying",
				"user_id", userID, "plan_id", planID, "mission_id", missionID)
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			slog.Warn("CompletionProcessor.CompleteMission: retries exhausted",
				"user_id", userID, "plan_id", planID, "mission_id", missionID)
			return nil, models.Transientf(err, "completion conflicted with concurrent updates, please retry")
		}
		if errors.Is(err, store.ErrEnrollmentNotFound) {
			return nil, models.NotFoundf("no enrollment for user %s in plan %s", userID, planID)
		}
		var de *models.DomainError
		if errors.As(err, &de) {
			return nil, err
		}
		slog.Error("CompletionProcessor.CompleteMission: storage failure",
			"user_id", userID, "plan_id", planID, "mission_id", missionID, "error", err)
		return nil, models.Transientf(err, "failed to record mission completion")
	}

	slog.Info("CompletionProcessor.CompleteMission: mission completed",
		"user_id", userID, "plan_id", planID, "mission_id", missionID,
		"progress", updated.ProgressPercentage, "status", updated.Status)
	p.publish(updated, entry, now)
	return &updated, nil
}

func (p *CompletionProcessor) publish(e models.Enrollment, entry *models.CompletionLogEntry, now time.Time) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{
		Topic:      events.TopicMissionCompleted,
		UserID:     e.UserID,
		PlanID:     e.PlanID,
		OccurredAt: now,
		Entry:      entry,
	})
	if e.Status == models.EnrollmentStatusCompleted {
		p.bus.Publish(events.Event{
			Topic:      events.TopicPlanCompleted,
			UserID:     e.UserID,
			PlanID:     e.PlanID,
			OccurredAt: now,
		})
	}
}

// missionDue reports whether missionID is in today's resolved mission set.
func missionDue(plan *models.PlanDefinition, e *models.Enrollment, now time.Time, missionID string) bool {
	for _, m := range schedule.ResolveTodayMissions(plan, e, now) {
		if m.ID == missionID {
			return true
		}
	}
	return false
}
