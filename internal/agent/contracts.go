package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/common"
)

const (
	DefaultLanguage = "English"
	DefaultUser     = "essaycoach-service"
)

// EssayAgent is implemented by every essay-analysis backend.
type EssayAgent interface {
	ProviderName() string
	IsConfigured() bool
	// Analyze resolves the rubric, uploads it and runs the analysis workflow.
	Analyze(ctx context.Context, in WorkflowInput) (WorkflowOutput, error)
	PollStatus(ctx context.Context, runID string) (WorkflowOutput, error)
	UploadDocument(ctx context.Context, path, ownerID string) (string, error)
	// Cancel reports false when the run is unknown, finished, or the backend cannot cancel.
	Cancel(ctx context.Context, runID string) (bool, error)
	HealthCheck(ctx context.Context) bool
}

// WorkflowInput is the provider-neutral analysis request.
type WorkflowInput struct {
	EssayQuestion string                 `json:"essay_question" validate:"required,min=1,max=2000"`
	EssayContent  string                 `json:"essay_content" validate:"required,min=1,max=20000"`
	Language      string                 `json:"language" validate:"max=48"`
	ResponseMode  constants.ResponseMode `json:"response_mode" validate:"required,oneof=blocking streaming"`
	UserID        string                 `json:"user_id" validate:"required,min=1,max=128"`
	// RubricID selects a rubric; nil means the user's most recent one.
	RubricID *uuid.UUID `json:"rubric_id,omitempty"`
}

// Normalize fills defaults and validates field constraints.
func (in *WorkflowInput) Normalize(defaultUser string) error {
	if strings.TrimSpace(in.Language) == "" {
		in.Language = DefaultLanguage
	}
	if in.ResponseMode == "" {
		in.ResponseMode = constants.ResponseModeBlocking
	}
	if strings.TrimSpace(in.UserID) == "" {
		in.UserID = defaultUser
		if in.UserID == "" {
			in.UserID = DefaultUser
		}
	}
	return common.ValidateStruct(in)
}

// WorkflowOutput is the canonical state of one workflow run.
type WorkflowOutput struct {
	RunID          string                   `json:"run_id"`
	TaskID         string                   `json:"task_id"`
	Status         constants.WorkflowStatus `json:"status"`
	Outputs        map[string]any           `json:"outputs,omitempty"`
	ErrorMessage   string                   `json:"error_message,omitempty"`
	ElapsedSeconds *float64                 `json:"elapsed_time_seconds,omitempty"`
	TokenUsage     map[string]int           `json:"token_usage,omitempty"`
	CreatedAt      *time.Time               `json:"created_at,omitempty"`
	FinishedAt     *time.Time               `json:"finished_at,omitempty"`
}

// FeedbackItem is the feedback for one rubric criterion.
type FeedbackItem struct {
	CriterionName    string   `json:"criterion_name"`
	Score            float64  `json:"score"`
	MaxScore         float64  `json:"max_score"`
	Feedback         string   `json:"feedback"`
	Suggestions      []string `json:"suggestions"`
	LevelName        string   `json:"level_name,omitempty"`
	LevelDescription string   `json:"level_description,omitempty"`
}

// EssayAnalysisOutput is the canonical graded result.
type EssayAnalysisOutput struct {
	OverallScore    float64        `json:"overall_score"`
	TotalPossible   float64        `json:"total_possible"`
	PercentageScore float64        `json:"percentage_score"`
	FeedbackItems   []FeedbackItem `json:"feedback_items"`
	OverallFeedback string         `json:"overall_feedback"`
	Strengths       []string       `json:"strengths"`
	Suggestions     []string       `json:"suggestions"`
	Metadata        map[string]any `json:"analysis_metadata"`
	RubricName      string         `json:"rubric_name,omitempty"`
	RubricID        string         `json:"rubric_id,omitempty"`
}
