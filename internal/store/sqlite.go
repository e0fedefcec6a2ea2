// Package store provides storage backends for the battle plan engine.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/mattn/go-sqlite3"

	"github.com/salasoft/battleplan/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists engine state in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SavePlan inserts a new plan template.
func (s *SQLiteStore) SavePlan(ctx context.Context, plan *models.PlanDefinition) error {
	missionsJSON, err := marshalMissions(plan.Missions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, title, description, duration_days, missions, creator_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.Title, nilIfEmpty(plan.Description), plan.DurationDays, missionsJSON,
		plan.CreatorID, plan.Status, plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SavePlan failed", "error", err, "plan_id", plan.ID)
		return fmt.Errorf("failed to insert plan %s: %w", plan.ID, err)
	}
	slog.Debug("SQLiteStore SavePlan succeeded", "plan_id", plan.ID)
	return nil
}

const planColumns = `id, title, description, duration_days, missions, creator_id, status, created_at, updated_at`

// GetPlan fetches a plan by ID.
func (s *SQLiteStore) GetPlan(ctx context.Context, planID string) (*models.PlanDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, planID)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetPlan failed", "error", err, "plan_id", planID)
		return nil, fmt.Errorf("failed to get plan %s: %w", planID, err)
	}
	return &p, nil
}

// ListPlansByStatus returns plans in the given lifecycle state.
func (s *SQLiteStore) ListPlansByStatus(ctx context.Context, status models.PlanStatus) ([]models.PlanDefinition, error) {
	return s.listPlans(ctx, `SELECT `+planColumns+` FROM plans WHERE status = ? ORDER BY created_at, id`, status)
}

// ListPlansByAuthor returns every plan created by the given author.
func (s *SQLiteStore) ListPlansByAuthor(ctx context.Context, authorID string) ([]models.PlanDefinition, error) {
	return s.listPlans(ctx, `SELECT `+planColumns+` FROM plans WHERE creator_id = ? ORDER BY created_at, id`, authorID)
}

func (s *SQLiteStore) listPlans(ctx context.Context, query string, arg any) ([]models.PlanDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Error("SQLiteStore listPlans query failed", "error", err)
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []models.PlanDefinition
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			slog.Error("SQLiteStore listPlans scan failed", "error", err)
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
func (s *SQLiteStore) UpdatePlanStatus(ctx context.Context, planID string, status models.PlanStatus, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE plans SET status = ?, updated_at = ? WHERE id = ?`,
		status, updatedAt, planID)
	if err != nil {
		slog.Error("SQLiteStore UpdatePlanStatus failed", "error", err, "plan_id", planID)
		return fmt.Errorf("failed to update plan %s status: %w", planID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPlanNotFound
	}
	slog.Debug("SQLiteStore UpdatePlanStatus succeeded", "plan_id", planID, "status", status)
	return nil
}

// CreateEnrollment inserts a new enrollment, enforcing (user, plan) uniqueness.
func (s *SQLiteStore) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	completedJSON, err := marshalMissionIDs(e.CompletedMissionIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, user_id, plan_id, start_date, status, completed_mission_ids,
			progress_percentage, consent_to_share, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.PlanID, e.StartDate, e.Status, completedJSON,
		e.ProgressPercentage, e.ConsentToShareProgress, e.Version, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			slog.Debug("SQLiteStore CreateEnrollment duplicate", "user_id", e.UserID, "plan_id", e.PlanID)
			return ErrEnrollmentExists
		}
		slog.Error("SQLiteStore CreateEnrollment failed", "error", err, "user_id", e.UserID, "plan_id", e.PlanID)
		return fmt.Errorf("failed to insert enrollment for user %s plan %s: %w", e.UserID, e.PlanID, err)
	}
	slog.Debug("SQLiteStore CreateEnrollment succeeded", "user_id", e.UserID, "plan_id", e.PlanID)
	return nil
}

const enrollmentColumns = `id, user_id, plan_id, start_date, status, completed_mission_ids,
	progress_percentage, consent_to_share, version, created_at, updated_at`

// GetEnrollment fetches the enrollment for (user, plan).
func (s *SQLiteStore) GetEnrollment(ctx context.Context, userID, planID string) (*models.Enrollment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = ? AND plan_id = ?`, userID, planID)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetEnrollment failed", "error", err, "user_id", userID, "plan_id", planID)
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return &e, nil
}

// ListEnrollmentsByUser returns every enrollment of the given user.
func (s *SQLiteStore) ListEnrollmentsByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	return s.listEnrollments(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = ? ORDER BY created_at`, userID)
}

// ListEnrollmentsByStatus returns every enrollment in the given status.
func (s *SQLiteStore) ListEnrollmentsByStatus(ctx context.Context, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	return s.listEnrollments(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE status = ? ORDER BY created_at`, status)
}

func (s *SQLiteStore) listEnrollments(ctx context.Context, query string, arg any) ([]models.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Error("SQLiteStore listEnrollments query failed", "error", err)
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
// ledger append in one SQL transaction. The guarded UPDATE matching zero
// rows means a concurrent writer committed first; the whole transaction
// rolls back and ErrVersionConflict is returned.
func (s *SQLiteStore) UpdateEnrollmentTx(ctx context.Context, userID, planID string, apply ApplyFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = ? AND plan_id = ?`, userID, planID)
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
		SET status = ?, completed_mission_ids = ?, progress_percentage = ?, version = ?, updated_at = ?
		WHERE user_id = ? AND plan_id = ? AND version = ?`,
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
		slog.Debug("SQLiteStore UpdateEnrollmentTx version conflict", "user_id", userID, "plan_id", planID, "version", oldVersion)
		return ErrVersionConflict
	}

	if entry != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO completion_log (id, user_id, plan_id, mission_id, mission_title, plan_title, completed_at, feeling)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.UserID, entry.PlanID, entry.MissionID,
			entry.MissionTitle, entry.PlanTitle, entry.CompletedAt, entry.Feeling)
		if err != nil {
			return fmt.Errorf("failed to append completion log entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit enrollment transaction: %w", err)
	}
	slog.Debug("SQLiteStore UpdateEnrollmentTx committed", "user_id", userID, "plan_id", planID, "version", oldVersion+1)
	return nil
}

// ListCompletionsByUser returns the user's ledger ordered by completion time.
func (s *SQLiteStore) ListCompletionsByUser(ctx context.Context, userID string) ([]models.CompletionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, plan_id, mission_id, mission_title, plan_title, completed_at, feeling
		FROM completion_log WHERE user_id = ? ORDER BY completed_at, id`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListCompletionsByUser query failed", "error", err, "user_id", userID)
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
	slog.Debug("SQLiteStore ListCompletionsByUser succeeded", "user_id", userID, "count", len(entries))
	return entries, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
