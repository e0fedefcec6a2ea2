// Package models defines request payloads for the engine's API surface.
package models

// CreatePlanRequest is the payload for authoring a plan draft.
type CreatePlanRequest struct {
	AuthorID     string    `json:"author_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	DurationDays int       `json:"duration_days"`
	Missions     []Mission `json:"missions"`
}

// Validate validates a CreatePlanRequest. Structural mission validation is
// performed by the catalog against the assembled PlanDefinition.
func (r *CreatePlanRequest) Validate() error {
	if r.AuthorID == "" {
		return Validationf("author_id is required")
	}
	return nil
}

// Bounds the plan generator contract imposes on drafted plans, tighter than
// the general catalog bounds.
const (
	MinGeneratedPlanDays = 5
	MaxGeneratedPlanDays = 10
	// MaxProblemDescriptionLength bounds the free-text problem description
	// forwarded to the generator.
	MaxProblemDescriptionLength = 2000
)

// GeneratePlanRequest is the payload for drafting a plan from a
// natural-language problem description.
type GeneratePlanRequest struct {
	AuthorID           string `json:"author_id"`
	ProblemDescription string `json:"problem_description"`
	Language           string `json:"language,omitempty"` // BCP 47 tag, defaults to pt-BR
}

// Validate validates a GeneratePlanRequest.
func (r *GeneratePlanRequest) Validate() error {
	if r.AuthorID == "" {
		return Validationf("author_id is required")
	}
	if r.ProblemDescription == "" {
		return Validationf("problem_description is required")
	}
	if len(r.ProblemDescription) > MaxProblemDescriptionLength {
		return Validationf("problem_description exceeds maximum length of %d", MaxProblemDescriptionLength)
	}
	return nil
}

// StartPlanRequest is the payload for enrolling a user into a plan.
type StartPlanRequest struct {
	UserID                 string `json:"user_id"`
	PlanID                 string `json:"plan_id"`
	ConsentToShareProgress bool   `json:"consent_to_share_progress"`
}

// Validate validates a StartPlanRequest.
func (r *StartPlanRequest) Validate() error {
	if r.UserID == "" {
		return Validationf("user_id is required")
	}
	if r.PlanID == "" {
		return Validationf("plan_id is required")
	}
	return nil
}

// CompleteMissionRequest is the payload for recording a mission completion.
type CompleteMissionRequest struct {
	Feeling Feeling `json:"feeling"`
}

// Validate validates a CompleteMissionRequest.
func (r *CompleteMissionRequest) Validate() error {
	if r.Feeling == "" {
		return Validationf("feeling is required")
	}
	if !IsValidFeeling(r.Feeling) {
		return Validationf("invalid feeling %q", r.Feeling)
	}
	return nil
}
