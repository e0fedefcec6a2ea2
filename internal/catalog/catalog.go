// Package catalog owns the plan template library.
//
// It validates authored and generated drafts against the mission content
// schemas, persists them as drafts, and publishes them one-way. Published
// plans are immutable: the catalog exposes no update operation past publish,
// so enrollments can safely reference plans by ID.
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/salasoft/battleplan/internal/models"
	"github.com/salasoft/battleplan/internal/schedule"
	"github.com/salasoft/battleplan/internal/store"
	"github.com/salasoft/battleplan/internal/verse"
)

// Catalog provides plan template operations over a storage backend.
type Catalog struct {
	store store.Store
	clock schedule.Clock
}

// NewCatalog creates a catalog over the given store and clock.
func NewCatalog(s store.Store, clock schedule.Clock) *Catalog {
	return &Catalog{store: s, clock: clock}
}

// CreatePlan validates a draft and persists it with draft status. The first
// validation violation found is reported and nothing is persisted.
func (c *Catalog) CreatePlan(ctx context.Context, authorID string, draft models.CreatePlanRequest) (*models.PlanDefinition, error) {
	if authorID == "" {
		return nil, models.Validationf("author id is required")
	}
	now := c.clock.Now().UTC()
	plan := &models.PlanDefinition{
		ID:           "plan_" + ulid.Make().String(),
		Title:        draft.Title,
		Description:  draft.Description,
		DurationDays: draft.DurationDays,
		Missions:     draft.Missions,
		CreatorID:    authorID,
		Status:       models.PlanStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	assignMissionIDs(plan)
	if err := ValidatePlan(plan); err != nil {
		slog.Warn("Catalog.CreatePlan: validation failed", "author_id", authorID, "error", err)
		return nil, err
	}
	if err := c.store.SavePlan(ctx, plan); err != nil {
		slog.Error("Catalog.CreatePlan: persist failed", "plan_id", plan.ID, "error", err)
		return nil, models.Transientf(err, "failed to persist plan")
	}
	slog.Info("Catalog.CreatePlan: plan created", "plan_id", plan.ID, "author_id", authorID, "missions", len(plan.Missions))
	return plan, nil
}

// Publish flips a plan from draft to published, making it visible to
// non-author enrollees. One-directional; publishing an already published
// plan is a harmless no-op (last writer wins).
func (c *Catalog) Publish(ctx context.Context, planID string) (*models.PlanDefinition, error) {
	plan, err := c.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status == models.PlanStatusPublished {
		slog.Debug("Catalog.Publish: plan already published", "plan_id", planID)
		return plan, nil
	}
	now := c.clock.Now().UTC()
	if err := c.store.UpdatePlanStatus(ctx, planID, models.PlanStatusPublished, now); err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, models.NotFoundf("plan %s not found", planID)
		}
		return nil, models.Transientf(err, "failed to publish plan %s", planID)
	}
	plan.Status = models.PlanStatusPublished
	plan.UpdatedAt = now
	slog.Info("Catalog.Publish: plan published", "plan_id", planID)
	return plan, nil
}

// GetPlan fetches a plan by ID.
func (c *Catalog) GetPlan(ctx context.Context, planID string) (*models.PlanDefinition, error) {
	plan, err := c.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, models.NotFoundf("plan %s not found", planID)
		}
		return nil, models.Transientf(err, "failed to load plan %s", planID)
	}
	return plan, nil
}

// ListPublishedPlans returns every published plan.
func (c *Catalog) ListPublishedPlans(ctx context.Context) ([]models.PlanDefinition, error) {
	plans, err := c.store.ListPlansByStatus(ctx, models.PlanStatusPublished)
	if err != nil {
		return nil, models.Transientf(err, "failed to list published plans")
	}
	return plans, nil
}

// ListPlansByAuthor returns every plan created by the given author,
// drafts included.
func (c *Catalog) ListPlansByAuthor(ctx context.Context, authorID string) ([]models.PlanDefinition, error) {
	plans, err := c.store.ListPlansByAuthor(ctx, authorID)
	if err != nil {
		return nil, models.Transientf(err, "failed to list plans for author %s", authorID)
	}
	return plans, nil
}

// ValidatePlan checks the full plan schema: structural invariants plus the
// verse reference grammar for bible reading missions. This is the single
// validation path shared by manual authoring and generator ingestion.
func ValidatePlan(plan *models.PlanDefinition) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	for i, m := range plan.Missions {
		if m.Type == models.MissionTypeBibleReading {
			if _, err := verse.Parse(m.Content.Verse); err != nil {
				return models.Validationf("mission %d: %v", i, err)
			}
		}
	}
	return nil
}

// assignMissionIDs fills in ULIDs for missions the author left without IDs.
func assignMissionIDs(plan *models.PlanDefinition) {
	for i := range plan.Missions {
		if plan.Missions[i].ID == "" {
			plan.Missions[i].ID = "msn_" + ulid.Make().String()
		}
	}
}
