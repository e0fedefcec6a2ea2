// Package models defines the core data structures for the battle plan engine.
//
// It includes plan templates, missions, enrollments and the completion
// ledger, which are shared across modules.
package models

import (
	"net/url"
	"time"
)

// MissionType identifies the kind of daily activity a mission represents.
type MissionType string

const (
	// MissionTypeBibleReading points the user at a passage of scripture.
	MissionTypeBibleReading MissionType = "bible_reading"
	// MissionTypeYouTubeVideo plays a linked video.
	MissionTypeYouTubeVideo MissionType = "youtube_video"
	// MissionTypePrayerSanctuary opens the guided prayer room.
	MissionTypePrayerSanctuary MissionType = "prayer_sanctuary"
	// MissionTypeFeelingJourney opens the feelings check-in flow.
	MissionTypeFeelingJourney MissionType = "feeling_journey"
	// MissionTypeConfession opens the confession flow.
	MissionTypeConfession MissionType = "confession"
	// MissionTypeJournalEntry opens the free-form journal.
	MissionTypeJournalEntry MissionType = "journal_entry"
	// MissionTypeFaithConfession opens the faith declaration flow.
	MissionTypeFaithConfession MissionType = "faith_confession"
)

// IsValidMissionType checks if the given mission type is supported.
func IsValidMissionType(mt MissionType) bool {
	_, ok := MissionTypeInfoMap[mt]
	return ok
}

// MissionTypeInfo describes the static presentation contract of a mission
// type. The engine performs no navigation itself; the presentation layer
// consumes this table.
type MissionTypeInfo struct {
	NavigationPath string `json:"navigation_path"`
	RequiresVerse  bool   `json:"requires_verse"`
}

// MissionTypeInfoMap maps each mission type to its fixed navigation path and
// whether its content carries a verse payload.
var MissionTypeInfoMap = map[MissionType]MissionTypeInfo{
	MissionTypeBibleReading:    {NavigationPath: "/missions/bible-reading", RequiresVerse: true},
	MissionTypeYouTubeVideo:    {NavigationPath: "/missions/video", RequiresVerse: true},
	MissionTypePrayerSanctuary: {NavigationPath: "/missions/prayer-sanctuary", RequiresVerse: false},
	MissionTypeFeelingJourney:  {NavigationPath: "/missions/feeling-journey", RequiresVerse: false},
	MissionTypeConfession:      {NavigationPath: "/missions/confession", RequiresVerse: false},
	MissionTypeJournalEntry:    {NavigationPath: "/missions/journal", RequiresVerse: false},
	MissionTypeFaithConfession: {NavigationPath: "/missions/faith-confession", RequiresVerse: false},
}

// PlanStatus represents the lifecycle state of a plan template.
type PlanStatus string

const (
	// PlanStatusDraft indicates the plan is only visible to its author.
	PlanStatusDraft PlanStatus = "draft"
	// PlanStatusPublished indicates the plan is visible to enrollees.
	PlanStatusPublished PlanStatus = "published"
)

// Validation constants for plan templates.
const (
	// MinPlanDurationDays is the minimum allowed plan length.
	MinPlanDurationDays = 1
	// MaxPlanDurationDays is the maximum allowed plan length.
	MaxPlanDurationDays = 90
	// MaxPlanTitleLength is the maximum allowed length for plan titles.
	MaxPlanTitleLength = 200
	// MaxMissionTitleLength is the maximum allowed length for mission titles.
	MaxMissionTitleLength = 200
	// MaxLeaderNoteLength is the maximum allowed length for leader notes.
	MaxLeaderNoteLength = 2000
)

// MissionContent is the type-keyed payload of a mission. Only mission types
// whose MissionTypeInfo declares RequiresVerse carry a Verse value: a
// scripture reference for bible readings, a video URL for videos (the field
// name is historical).
type MissionContent struct {
	Verse string `json:"verse,omitempty"`
}

// Mission is one discrete daily activity inside a plan.
type Mission struct {
	ID         string         `json:"id"`
	Day        int            `json:"day"` // 1-based day within the plan
	Type       MissionType    `json:"type"`
	Title      string         `json:"title"`
	Content    MissionContent `json:"content"`
	LeaderNote string         `json:"leader_note,omitempty"`
}

// PlanDefinition is an authored multi-day template made of missions.
// Published plans are immutable: no update operation exists past publish.
type PlanDefinition struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	DurationDays int        `json:"duration_days"`
	Missions     []Mission  `json:"missions"`
	CreatorID    string     `json:"creator_id"`
	Status       PlanStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// MissionByID returns the mission with the given ID, if present.
func (p *PlanDefinition) MissionByID(missionID string) (Mission, bool) {
	for _, m := range p.Missions {
		if m.ID == missionID {
			return m, true
		}
	}
	return Mission{}, false
}

// Validate checks the structural invariants of a plan template. It reports
// the first violation found.
func (p *PlanDefinition) Validate() error {
	if p.Title == "" {
		return Validationf("plan title is required")
	}
	if len(p.Title) > MaxPlanTitleLength {
		return Validationf("plan title exceeds maximum length of %d", MaxPlanTitleLength)
	}
	if p.DurationDays < MinPlanDurationDays || p.DurationDays > MaxPlanDurationDays {
		return Validationf("duration_days must be between %d and %d, got %d", MinPlanDurationDays, MaxPlanDurationDays, p.DurationDays)
	}
	if len(p.Missions) == 0 {
		return Validationf("plan must contain at least one mission")
	}
	seen := make(map[string]bool, len(p.Missions))
	for i, m := range p.Missions {
		if err := m.validateWithin(p.DurationDays); err != nil {
			return Validationf("mission %d: %v", i, err)
		}
		if m.ID != "" && seen[m.ID] {
			return Validationf("mission %d: duplicate mission id %q", i, m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// validateWithin checks a single mission against the plan duration and its
// type-specific content schema.
func (m *Mission) validateWithin(durationDays int) error {
	if m.Title == "" {
		return Validationf("mission title is required")
	}
	if len(m.Title) > MaxMissionTitleLength {
		return Validationf("mission title exceeds maximum length of %d", MaxMissionTitleLength)
	}
	if m.Day < 1 || m.Day > durationDays {
		return Validationf("mission day %d outside plan range [1, %d]", m.Day, durationDays)
	}
	info, ok := MissionTypeInfoMap[m.Type]
	if !ok {
		return Validationf("unknown mission type %q", m.Type)
	}
	if len(m.LeaderNote) > MaxLeaderNoteLength {
		return Validationf("leader note exceeds maximum length of %d", MaxLeaderNoteLength)
	}
	if info.RequiresVerse {
		if m.Content.Verse == "" {
			return Validationf("mission type %s requires a verse payload", m.Type)
		}
		if m.Type == MissionTypeYouTubeVideo {
			u, err := url.Parse(m.Content.Verse)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return Validationf("mission type %s requires a valid video URL, got %q", m.Type, m.Content.Verse)
			}
		}
	} else if m.Content.Verse != "" {
		return Validationf("mission type %s does not take a verse payload", m.Type)
	}
	return nil
}

// EnrollmentStatus represents the state of a user's progression through a plan.
type EnrollmentStatus string

const (
	// EnrollmentStatusInProgress indicates the user is mid-plan.
	EnrollmentStatusInProgress EnrollmentStatus = "in_progress"
	// EnrollmentStatusCompleted indicates every mission has been completed.
	// Terminal: no operation transitions out of it.
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// Enrollment is one user's live progression through one plan. Exactly one
// enrollment exists per (UserID, PlanID).
type Enrollment struct {
	ID                     string           `json:"id"`
	UserID                 string           `json:"user_id"`
	PlanID                 string           `json:"plan_id"`
	StartDate              time.Time        `json:"start_date"` // UTC midnight of the start day
	Status                 EnrollmentStatus `json:"status"`
	CompletedMissionIDs    []string         `json:"completed_mission_ids"`
	ProgressPercentage     int              `json:"progress_percentage"`
	ConsentToShareProgress bool             `json:"consent_to_share_progress"` // immutable after creation
	Version                int64            `json:"version"`                   // optimistic concurrency token
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// HasCompleted reports whether the given mission is already in the
// completed set.
func (e *Enrollment) HasCompleted(missionID string) bool {
	for _, id := range e.CompletedMissionIDs {
		if id == missionID {
			return true
		}
	}
	return false
}

// RecomputeProgress rederives ProgressPercentage and Status from the
// completed set against the plan's mission count. Keeps the invariant
// progress == 100 * |completed| / |missions| and status == completed iff
// progress == 100.
func (e *Enrollment) RecomputeProgress(totalMissions int) {
	if totalMissions <= 0 {
		e.ProgressPercentage = 0
		return
	}
	e.ProgressPercentage = 100 * len(e.CompletedMissionIDs) / totalMissions
	if e.ProgressPercentage >= 100 {
		e.Status = EnrollmentStatusCompleted
	} else {
		e.Status = EnrollmentStatusInProgress
	}
}

// Feeling is the affect tag recorded at mission completion.
type Feeling string

const (
	// FeelingGrateful marks a grateful completion.
	FeelingGrateful Feeling = "grateful"
	// FeelingChallenged marks a challenged completion.
	FeelingChallenged Feeling = "challenged"
	// FeelingPeaceful marks a peaceful completion.
	FeelingPeaceful Feeling = "peaceful"
	// FeelingStrengthened marks a strengthened completion.
	FeelingStrengthened Feeling = "strengthened"
	// FeelingSkipped is the sentinel recorded when the user declined to tag
	// a feeling. Excluded from feeling distribution analytics.
	FeelingSkipped Feeling = "skipped"
)

// IsValidFeeling checks if the given feeling is a defined enum value.
func IsValidFeeling(f Feeling) bool {
	switch f {
	case FeelingGrateful, FeelingChallenged, FeelingPeaceful, FeelingStrengthened, FeelingSkipped:
		return true
	default:
		return false
	}
}

// CompletionLogEntry is one record of the append-only completion ledger.
// Entries are immutable once written and are read only by analytics.
type CompletionLogEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	PlanID       string    `json:"plan_id"`
	MissionID    string    `json:"mission_id"`
	MissionTitle string    `json:"mission_title"`
	PlanTitle    string    `json:"plan_title"`
	CompletedAt  time.Time `json:"completed_at"`
	Feeling      Feeling   `json:"feeling"`
}
