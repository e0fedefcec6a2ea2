// Package planner drafts battle plans from a natural-language problem
// description using the OpenAI chat completions API.
//
// Generator output is untrusted input: every draft passes through the same
// catalog validation path as manually authored plans before anything is
// persisted, plus the tighter duration bounds the generation contract
// imposes. Any failure along the way surfaces as a generation error and
// leaves the catalog untouched.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/salasoft/battleplan/internal/catalog"
	"github.com/salasoft/battleplan/internal/models"
)

// ErrNoChoicesReturned indicates the API responded without any completion.
var ErrNoChoicesReturned = errors.New("no choices returned from completion")

// DefaultModel is the chat model used when none is configured.
var DefaultModel = openai.ChatModelGPT4oMini

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionService adapts the OpenAI client to chatService.
type completionService struct {
	client openai.Client
}

func (s completionService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the generator.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option configures Opts.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly, overriding OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Generator drafts plans via chat completions and ingests them through the
// catalog.
type Generator struct {
	chat    chatService
	catalog *catalog.Catalog
	model   openai.ChatModel
}

// NewGenerator initializes a generator. The API key comes from options or
// the OPENAI_API_KEY environment variable.
func NewGenerator(cat *catalog.Catalog, opts ...Option) (*Generator, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Generator{
		chat:    completionService{client: client},
		catalog: cat,
		model:   cfg.Model,
	}, nil
}

// planDraft is the JSON shape the model is instructed to return.
type planDraft struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	DurationDays int            `json:"duration_days"`
	Missions     []draftMission `json:"missions"`
}

type draftMission struct {
	Day     int                   `json:"day"`
	Type    models.MissionType    `json:"type"`
	Title   string                `json:"title"`
	Content models.MissionContent `json:"content"`
}

const systemPrompt = `You design multi-day spiritual battle plans. Respond with a single JSON object and nothing else, using this exact schema:
{"title": string, "description": string, "duration_days": integer, "missions": [{"day": integer, "type": string, "title": string, "content": {"verse": string}}]}
Rules:
- duration_days must be between %d and %d, and every mission day must fall within it.
- type is one of: %s.
- content.verse is required for bible_reading (a scripture reference such as "João 3:16") and for youtube_video (a video URL); omit it for every other type.
- Write titles and descriptions in the requested language.`

// GeneratePlan drafts a plan for the described problem and persists it as a
// draft owned by the requesting author. The draft stays unpublished so the
// author can review it before it reaches enrollees.
func (g *Generator) GeneratePlan(ctx context.Context, req models.GeneratePlanRequest) (*models.PlanDefinition, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	language := req.Language
	if language == "" {
		language = "pt-BR"
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fmt.Sprintf(systemPrompt,
			models.MinGeneratedPlanDays, models.MaxGeneratedPlanDays, missionTypeList())),
		openai.UserMessage(fmt.Sprintf("Language: %s\nProblem description: %s", language, req.ProblemDescription)),
	}
	resp, err := g.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("Generator.GeneratePlan: completion failed", "author_id", req.AuthorID, "error", err)
		return nil, models.Generationf(err, "plan generation failed")
	}
	if len(resp.Choices) == 0 {
		return nil, models.Generationf(ErrNoChoicesReturned, "plan generation failed")
	}

	draft, err := parseDraft(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Warn("Generator.GeneratePlan: unparseable draft", "author_id", req.AuthorID, "error", err)
		return nil, models.Generationf(err, "generator returned an invalid draft")
	}
	if draft.DurationDays < models.MinGeneratedPlanDays || draft.DurationDays > models.MaxGeneratedPlanDays {
		return nil, models.Generationf(
			fmt.Errorf("duration_days %d outside [%d, %d]", draft.DurationDays, models.MinGeneratedPlanDays, models.MaxGeneratedPlanDays),
			"generator returned an invalid draft")
	}

	missions := make([]models.Mission, len(draft.Missions))
	for i, m := range draft.Missions {
		missions[i] = models.Mission{Day: m.Day, Type: m.Type, Title: m.Title, Content: m.Content}
	}
	plan, err := g.catalog.CreatePlan(ctx, req.AuthorID, models.CreatePlanRequest{
		Title:        draft.Title,
		Description:  draft.Description,
		DurationDays: draft.DurationDays,
		Missions:     missions,
	})
	if err != nil {
		if models.IsValidation(err) {
			// Schema violations in generated content are the generator's
			// fault, not the caller's.
			return nil, models.Generationf(err, "generator returned an invalid draft")
		}
		return nil, err
	}
	slog.Info("Generator.GeneratePlan: draft created", "plan_id", plan.ID,
		"author_id", req.AuthorID, "duration_days", plan.DurationDays, "missions", len(plan.Missions))
	return plan, nil
}

// parseDraft decodes the model output, tolerating markdown code fences
// around the JSON object.
func parseDraft(content string) (*planDraft, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var draft planDraft
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&draft); err != nil {
		return nil, fmt.Errorf("malformed draft JSON: %w", err)
	}
	return &draft, nil
}

func missionTypeList() string {
	names := make([]string, 0, len(models.MissionTypeInfoMap))
	for t := range models.MissionTypeInfoMap {
		names = append(names, string(t))
	}
	// Map order is random; stable prompt text keeps completions cacheable.
	sort.Strings(names)
	return strings.Join(names, ", ")
}
