// Package store provides storage backends for the battle plan engine.
//
// It defines the Store interface over plans, enrollments and the completion
// ledger, with Postgres, SQLite and in-memory implementations. Enrollment
// mutation goes through UpdateEnrollmentTx, an atomic read-modify-write that
// commits the enrollment update and the ledger append together or not at
// all.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/salasoft/battleplan/internal/models"
)

// Storage sentinel errors. Components translate these into the engine's
// domain error taxonomy.
var (
	// ErrPlanNotFound indicates the referenced plan does not exist.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrEnrollmentNotFound indicates no enrollment exists for (user, plan).
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	// ErrEnrollmentExists indicates an enrollment already exists for (user, plan).
	ErrEnrollmentExists = errors.New("enrollment already exists")
	// ErrVersionConflict indicates a concurrent writer updated the
	// enrollment between read and write. Retryable.
	ErrVersionConflict = errors.New("enrollment version conflict")
)

// ApplyFunc mutates an enrollment inside UpdateEnrollmentTx and returns the
// ledger entry to append alongside it. Returning an error aborts the
// transaction with no state change; the error propagates unchanged.
type ApplyFunc func(e *models.Enrollment) (*models.CompletionLogEntry, error)

// Store is the persistence contract of the engine.
type Store interface {
	// SavePlan inserts a new plan template.
	SavePlan(ctx context.Context, plan *models.PlanDefinition) error
	// GetPlan fetches a plan by ID. Returns ErrPlanNotFound when absent.
	GetPlan(ctx context.Context, planID string) (*models.PlanDefinition, error)
	// ListPlansByStatus returns plans in the given lifecycle state.
	ListPlansByStatus(ctx context.Context, status models.PlanStatus) ([]models.PlanDefinition, error)
	// ListPlansByAuthor returns every plan created by the given author.
	ListPlansByAuthor(ctx context.Context, authorID string) ([]models.PlanDefinition, error)
	// UpdatePlanStatus moves a plan to the given status.
	UpdatePlanStatus(ctx context.Context, planID string, status models.PlanStatus, updatedAt time.Time) error

	// CreateEnrollment inserts a new enrollment. Returns ErrEnrollmentExists
	// when (UserID, PlanID) is already enrolled.
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	// GetEnrollment fetches the enrollment for (user, plan). Returns
	// ErrEnrollmentNotFound when absent.
	GetEnrollment(ctx context.Context, userID, planID string) (*models.Enrollment, error)
	// ListEnrollmentsByUser returns every enrollment of the given user.
	ListEnrollmentsByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
	// ListEnrollmentsByStatus returns every enrollment in the given status,
	// across users. Used by the daily reminder sweep.
	ListEnrollmentsByStatus(ctx context.Context, status models.EnrollmentStatus) ([]models.Enrollment, error)
	// UpdateEnrollmentTx reads the enrollment for (user, plan), runs apply,
	// then writes the enrollment guarded by its version and appends the
	// returned ledger entry in one atomic transaction. Returns
	// ErrVersionConflict when a concurrent writer won the race.
	UpdateEnrollmentTx(ctx context.Context, userID, planID string, apply ApplyFunc) error

	// ListCompletionsByUser returns the user's ledger ordered by
	// completed_at ascending.
	ListCompletionsByUser(ctx context.Context, userID string) ([]models.CompletionLogEntry, error)

	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for storage backends.
type Opts struct {
	DSN string // database connection string or file path
}

// Option defines a configuration option for storage backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}
