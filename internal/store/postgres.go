// Package store provides storage backends for the battle plan engine.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/lib/pq"

	"github.com/salasoft/battleplan/internal/models"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists engine state in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SavePlan inserts a new plan template.
func (s *PostgresStore) SavePlan(ctx context.Context, plan *models.PlanDefinition) error {
	missionsJSON, err := marshalMissions(plan.Missions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, title, description, duration_days, missions, creator_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		plan.ID, plan.Title, nilIfEmpty(plan.Description), plan.DurationDays, missionsJSON,
		plan.CreatorID, plan.Status, plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SavePlan failed", "error", err, "plan_id", plan.ID)
		return fmt.Errorf("failed to insert plan %s: %w", plan.ID, err)
	}
	slog.Debug("PostgresStore SavePlan succeeded", "plan_id", plan.ID)
	return nil
}

// GetPlan fetches a plan by ID.
func (s *PostgresStore) GetPlan(ctx context.Context, planID string) (*models.PlanDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, planID)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetPlan failed", "error", err, "plan_id", planID)
		return nil, fmt.Errorf("failed to get plan %s: %w", planID, err)
	}
	return &p, nil
}

// ListPlansByStatus returns plans in the given lifecycle state.
func (s *PostgresStore) ListPlansByStatus(ctx context.Context, status models.PlanStatus) ([]models.PlanDefinition, error) {
	return s.listPlans(ctx, `SELECT `+planColumns+` FROM plans WHERE status = $1 ORDER BY created_at, id`, status)
}

// ListPlansByAuthor returns every plan created by the given author.
func (s *PostgresStore) ListPlansByAuthor(ctx context.Context, authorID string) ([]models.PlanDefinition, error) {
	return s.listPlans(ctx, `SELECT `+planColumns+` FROM plans WHERE creator_id = $1 ORDER BY created_at, id`, authorID)
}

func (s *PostgresStore) listPlans(ctx context.Context, query string, arg any) ([]models.PlanDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Error("PostgresStore listPlans query failed", "error", err)
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []models.PlanDefinition
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plan rows: %w", err)
	}
	return plans, nil
}

// UpdatePlanStatus moves a plan to the given status.
func (s *PostgresStore) UpdatePlanStatus(ctx context.Context, planID string, status models.PlanStatus, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE plans SET status = $1, updated_at = $2 WHERE id = $3`,
		status, updatedAt, planID)
	if err != nil {
		slog.Error("PostgresStore UpdatePlanStatus failed", "error", err, "plan_id", planID)
		return fmt.Errorf("failed to update plan %s status: %w", planID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPlanNotFound
	}
	slog.Debug("PostgresStore UpdatePlanStatus succeeded", "plan_id", planID, "status", status)
	return nil
}

// CreateEnrollment inserts a new enrollment, enforcing (user, plan) uniqueness.
func (s *PostgresStore) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	completedJSON, err := marshalMissionIDs(e.CompletedMissionIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, user_id, plan_id, start_date, status, completed_mission_ids,
			progress_percentage, consent_to_share, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.UserID, e.PlanID, e.StartDate, e.Status, completedJSON,
		e.ProgressPercentage, e.ConsentToShareProgress, e.Version, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			slog.Debug("PostgresStore CreateEnrollment duplicate", "user_id", e.UserID, "plan_id", e.PlanID)
			return ErrEnrollmentExists
		}
		slog.Error("PostgresStore CreateEnrollment failed", "error", err, "user_id", e.UserID, "plan_id", e.PlanID)
		return fmt.Errorf("failed to insert enrollment for user %s plan %s: %w", e.UserID, e.PlanID, err)
	}
	slog.Debug("PostgresStore CreateEnrollment succeeded", "user_id", e.UserID, "plan_id", e.PlanID)
	return nil
}

// GetEnrollment fetches the enrollment for (user, plan).
func (s *PostgresStore) GetEnrollment(ctx context.Context, userID, planID string) (*models.Enrollment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 AND plan_id = $2`, userID, planID)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetEnrollment failed", "error", err, "user_id", userID, "plan_id", planID)
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return &e, nil
}

// ListEnrollmentsByUser returns every enrollment of the given user.
func (s *PostgresStore) ListEnrollmentsByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	return s.listEnrollments(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 ORDER BY created_at`, userID)
}

// ListEnrollmentsByStatus returns every enrollment in the given status.
func (s *PostgresStore) ListEnrollmentsByStatus(ctx context.Context, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	return s.listEnrollments(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE status = $1 ORDER BY created_at`, status)
}

func (s *PostgresStore) listEnrollments(ctx context.Context, query string, arg any) ([]models.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Error("PostgresStore listEnrollments query failed", "error", err)
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()

	var out []models.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrollment rows: %w", err)
	}
	return out, nil
}

// UpdateEnrollmentTx applies a version-guarded enrollment mutation plus
// ledger append in one SQL transaction. See the SQLite counterpart for the
// conflict semantics.
func (s *PostgresStore) UpdateEnrollmentTx(ctx context.Context, userID, planID string, apply ApplyFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 AND plan_id = $2`, userID, planID)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEnrollmentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read enrollment in transaction: %w", err)
	}

	oldVersion := e.Version
	entry, err := apply(&e)
	if err != nil {
		return err
	}

	completedJSON, err := marshalMissionIDs(e.CompletedMissionIDs)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE enrollments
		SET status = $1, completed_mission_ids = $2, progress_percentage = $3, version = $4, updated_at = $5
		WHERE user_id = $6 AND plan_id = $7 AND version = $8`,
		e.Status, completedJSON, e.ProgressPercentage, oldVersion+1, e.UpdatedAt,
		userID, planID, oldVersion)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		slog.Debug("PostgresStore UpdateEnrollmentTx version conflict", "user_id", userID, "plan_id", planID, "version", oldVersion)
		return ErrVersionConflict
	}

	if entry != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO completion_log (id, user_id, plan_id, mission_id, mission_title, plan_title, completed_at, feeling)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			entry.ID, entry.UserID, entry.PlanID, entry.MissionID,
			entry.MissionTitle, entry.PlanTitle, entry.CompletedAt, entry.Feeling)
		if err != nil {
			return fmt.Errorf("failed to append completion log entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit enrollment transaction: %w", err)
	}
	slog.Debug("PostgresStore UpdateEnrollmentTx committed", "user_id", userID, "plan_id", planID, "version", oldVersion+1)
	return nil
}

// ListCompletionsByUser returns the user's ledger ordered by completion time.
func (s *PostgresStore) ListCompletionsByUser(ctx context.Context, userID string) ([]models.CompletionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, plan_id, mission_id, mission_title, plan_title, completed_at, feeling
		FROM completion_log WHERE user_id = $1 ORDER BY completed_at, id`, userID)
	if err != nil {
		slog.Error("PostgresStore ListCompletionsByUser query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query completion log: %w", err)
	}
	defer rows.Close()

	var entries []models.CompletionLogEntry
	for rows.Next() {
		entry, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completion rows: %w", err)
	}
	slog.Debug("PostgresStore ListCompletionsByUser succeeded", "user_id", userID, "count", len(entries))
	return entries, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
