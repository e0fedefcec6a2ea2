package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/salasoft/battleplan/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// marshalMissions serializes a mission list for the plans.missions column.
func marshalMissions(missions []models.Mission) (string, error) {
	data, err := json.Marshal(missions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal missions: %w", err)
	}
	return string(data), nil
}

// marshalMissionIDs serializes the completed-mission set for the
// enrollments.completed_mission_ids column.
func marshalMissionIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to marshal mission ids: %w", err)
	}
	return string(data), nil
}

// scanPlan reads one plans row into a PlanDefinition.
func scanPlan(row rowScanner) (models.PlanDefinition, error) {
	var p models.PlanDefinition
	var description sql.NullString
	var missionsJSON string
	err := row.Scan(&p.ID, &p.Title, &description, &p.DurationDays, &missionsJSON,
		&p.CreatorID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Description = description.String
	if err := json.Unmarshal([]byte(missionsJSON), &p.Missions); err != nil {
		return p, fmt.Errorf("failed to unmarshal missions for plan %s: %w", p.ID, err)
	}
	return p, nil
}

// scanEnrollment reads one enrollments row into an Enrollment.
func scanEnrollment(row rowScanner) (models.Enrollment, error) {
	var e models.Enrollment
	var completedJSON string
	err := row.Scan(&e.ID, &e.UserID, &e.PlanID, &e.StartDate, &e.Status,
		&completedJSON, &e.ProgressPercentage, &e.ConsentToShareProgress,
		&e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(completedJSON), &e.CompletedMissionIDs); err != nil {
		return e, fmt.Errorf("failed to unmarshal completed mission ids for enrollment %s: %w", e.ID, err)
	}
	return e, nil
}

// scanCompletion reads one completion_log row into a CompletionLogEntry.
func scanCompletion(row rowScanner) (models.CompletionLogEntry, error) {
	var entry models.CompletionLogEntry
	err := row.Scan(&entry.ID, &entry.UserID, &entry.PlanID, &entry.MissionID,
		&entry.MissionTitle, &entry.PlanTitle, &entry.CompletedAt, &entry.Feeling)
	if err != nil {
		return entry, fmt.Errorf("scan completion entry failed: %w", err)
	}
	return entry, nil
}

// nilIfEmpty returns nil for empty strings so nullable columns store NULL.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
