// Package store provides storage backends for the battle plan engine.
//
// This file implements the in-memory store used by tests and local
// development. It honors the same transactional semantics as the SQL
// backends, including version-guarded enrollment updates.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/salasoft/battleplan/internal/models"
)

// InMemoryStore keeps all records in process memory behind a single mutex.
type InMemoryStore struct {
	mu          sync.Mutex
	plans       map[string]models.PlanDefinition
	enrollments map[string]models.Enrollment // keyed by userID + "\x00" + planID
	ledger      []models.CompletionLogEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		plans:       make(map[string]models.PlanDefinition),
		enrollments: make(map[string]models.Enrollment),
	}
}

func enrollmentKey(userID, planID string) string {
	return userID + "\x00" + planID
}

// SavePlan inserts a new plan template.
func (s *InMemoryStore) SavePlan(ctx context.Context, plan *models.PlanDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = clonePlan(plan)
	return nil
}

// GetPlan fetches a plan by ID.
func (s *InMemoryStore) GetPlan(ctx context.Context, planID string) (*models.PlanDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return nil, ErrPlanNotFound
	}
	out := clonePlan(&p)
	return &out, nil
}

// ListPlansByStatus returns plans in the given lifecycle state.
func (s *InMemoryStore) ListPlansByStatus(ctx context.Context, status models.PlanStatus) ([]models.PlanDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PlanDefinition
	for _, p := range s.plans {
		if p.Status == status {
			out = append(out, clonePlan(&p))
		}
	}
	sortPlans(out)
	return out, nil
}

// ListPlansByAuthor returns every plan created by the given author.
func (s *InMemoryStore) ListPlansByAuthor(ctx context.Context, authorID string) ([]models.PlanDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PlanDefinition
	for _, p := range s.plans {
		if p.CreatorID == authorID {
			out = append(out, clonePlan(&p))
		}
	}
	sortPlans(out)
	return out, nil
}

// UpdatePlanStatus moves a plan to the given status.
func (s *InMemoryStore) UpdatePlanStatus(ctx context.Context, planID string, status models.PlanStatus, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return ErrPlanNotFound
	}
	p.Status = status
	p.UpdatedAt = updatedAt
	s.plans[planID] = p
	return nil
}

// CreateEnrollment inserts a new enrollment, enforcing (user, plan) uniqueness.
func (s *InMemoryStore) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollmentKey(e.UserID, e.PlanID)
	if _, exists := s.enrollments[key]; exists {
		return ErrEnrollmentExists
	}
	s.enrollments[key] = cloneEnrollment(e)
	return nil
}

// GetEnrollment fetches the enrollment for (user, plan).
func (s *InMemoryStore) GetEnrollment(ctx context.Context, userID, planID string) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[enrollmentKey(userID, planID)]
	if !ok {
		return nil, ErrEnrollmentNotFound
	}
	out := cloneEnrollment(&e)
	return &out, nil
}

// ListEnrollmentsByUser returns every enrollment of the given user.
func (s *InMemoryStore) ListEnrollmentsByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if e.UserID == userID {
			out = append(out, cloneEnrollment(&e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListEnrollmentsByStatus returns every enrollment in the given status.
func (s *InMemoryStore) ListEnrollmentsByStatus(ctx context.Context, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if e.Status == status {
			out = append(out, cloneEnrollment(&e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateEnrollmentTx applies a version-guarded mutation plus ledger append
// atomically under the store mutex.
func (s *InMemoryStore) UpdateEnrollmentTx(ctx context.Context, userID, planID string, apply ApplyFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollmentKey(userID, planID)
	stored, ok := s.enrollments[key]
	if !ok {
		return ErrEnrollmentNotFound
	}
	working := cloneEnrollment(&stored)
	oldVersion := working.Version
	entry, err := apply(&working)
	if err != nil {
		return err
	}
	// The mutex serializes writers here, so the guard can only fail when a
	// caller raced between its own read and this call.
	if s.enrollments[key].Version != oldVersion {
		return ErrVersionConflict
	}
	working.Version = oldVersion + 1
	s.enrollments[key] = working
	if entry != nil {
		s.ledger = append(s.ledger, *entry)
	}
	return nil
}

// ListCompletionsByUser returns the user's ledger ordered by completion time.
func (s *InMemoryStore) ListCompletionsByUser(ctx context.Context, userID string) ([]models.CompletionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CompletionLogEntry
	for _, entry := range s.ledger {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func clonePlan(p *models.PlanDefinition) models.PlanDefinition {
	out := *p
	out.Missions = append([]models.Mission(nil), p.Missions...)
	return out
}

func cloneEnrollment(e *models.Enrollment) models.Enrollment {
	out := *e
	out.CompletedMissionIDs = append([]string(nil), e.CompletedMissionIDs...)
	return out
}

func sortPlans(plans []models.PlanDefinition) {
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].ID < plans[j].ID
		}
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})
}
