package transform

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/agent"
	"github.com/joseph-ayodele/essaycoach/internal/common"
)

// Transformer converts one provider's raw JSON into canonical outputs.
// Implementations must not perform I/O.
type Transformer interface {
	Provider() string
	WorkflowOutput(raw map[string]any) (agent.WorkflowOutput, error)
	AnalysisOutput(raw map[string]any) (agent.EssayAnalysisOutput, error)
}

// Fields lists, per canonical field, the raw paths tried in order.
type Fields struct {
	RunID    []string
	TaskID   []string
	Status   []string
	Outputs  []string
	Error    []string
	Elapsed  []string
	Usage    []string
	Created  []string
	Finished []string
}

var GenericFields = Fields{
	RunID:    []string{"workflow_run_id", "id"},
	TaskID:   []string{"task_id"},
	Status:   []string{"status"},
	Outputs:  []string{"outputs"},
	Error:    []string{"error_message", "error"},
	Elapsed:  []string{"elapsed_time"},
	Usage:    []string{"metadata.usage", "usage"},
	Created:  []string{"created_at"},
	Finished: []string{"finished_at"},
}

// Analysis field aliases inside the workflow outputs object.
var (
	ScoreAliases           = []string{"total_score", "overall_score", "score", "total"}
	TotalPossibleAliases   = []string{"max_score", "total_possible", "max_possible", "total"}
	OverallFeedbackAliases = []string{"overall_feedback", "summary", "feedback_summary", "conclusion"}
)

const (
	defaultTotalPossible   = 100.0
	defaultOverallFeedback = "No overall feedback available."
	defaultCriterion       = "Unknown Criterion"
)

// Generic applies a Fields table. It backs every built-in transformer.
type Generic struct {
	provider string
	fields   Fields
}

func NewGeneric(provider string, fields Fields) *Generic {
	return &Generic{provider: provider, fields: fields}
}

func (g *Generic) Provider() string { return g.provider }

func (g *Generic) WorkflowOutput(raw map[string]any) (agent.WorkflowOutput, error) {
	f := g.fields
	out := agent.WorkflowOutput{Status: constants.WorkflowPending}

	if v, ok := First(raw, f.RunID...); ok {
		out.RunID = toString(v)
	}
	if v, ok := First(raw, f.TaskID...); ok {
		out.TaskID = toString(v)
	}
	if v, ok := First(raw, f.Status...); ok {
		out.Status = constants.ParseWorkflowStatus(toString(v))
	}
	if v, ok := First(raw, f.Outputs...); ok {
		if m, ok := toObject(v); ok {
			out.Outputs = m
		}
	}
	if v, ok := First(raw, f.Error...); ok {
		out.ErrorMessage = toString(v)
	}
	if v, ok := First(raw, f.Elapsed...); ok {
		secs, err := toFloat(v)
		if err != nil {
			return agent.WorkflowOutput{}, g.invalid("elapsed_time", err)
		}
		out.ElapsedSeconds = &secs
	}
	if v, ok := First(raw, f.Usage...); ok {
		usage, err := toUsage(v)
		if err != nil {
			return agent.WorkflowOutput{}, g.invalid("usage", err)
		}
		out.TokenUsage = usage
	}
	if v, ok := First(raw, f.Created...); ok {
		t, err := toTime(v)
		if err != nil {
			return agent.WorkflowOutput{}, g.invalid("created_at", err)
		}
		out.CreatedAt = &t
	}
	if v, ok := First(raw, f.Finished...); ok {
		t, err := toTime(v)
		if err != nil {
			return agent.WorkflowOutput{}, g.invalid("finished_at", err)
		}
		out.FinishedAt = &t
	}
	return out, nil
}

func (g *Generic) AnalysisOutput(raw map[string]any) (agent.EssayAnalysisOutput, error) {
	outputs := map[string]any{}
	if v, ok := First(raw, g.fields.Outputs...); ok {
		if m, ok := toObject(v); ok {
			outputs = m
		}
	}

	score, err := floatField(outputs, 0, ScoreAliases...)
	if err != nil {
		return agent.EssayAnalysisOutput{}, g.invalid("score", err)
	}
	total, err := floatField(outputs, defaultTotalPossible, TotalPossibleAliases...)
	if err != nil {
		return agent.EssayAnalysisOutput{}, g.invalid("total_possible", err)
	}
	items, err := feedbackItems(outputs["results"])
	if err != nil {
		return agent.EssayAnalysisOutput{}, g.invalid("results", err)
	}

	pct := 0.0
	if total > 0 {
		pct = round2(score / total * 100)
	}
	feedback := defaultOverallFeedback
	if v, ok := First(outputs, OverallFeedbackAliases...); ok {
		feedback = toString(v)
	}

	rawKeys := make([]string, 0, len(raw))
	for k := range raw {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	out := agent.EssayAnalysisOutput{
		OverallScore:    score,
		TotalPossible:   total,
		PercentageScore: pct,
		FeedbackItems:   items,
		OverallFeedback: feedback,
		Strengths:       toStringList(outputs["strengths"]),
		Suggestions:     toStringList(outputs["overall_suggestions"]),
		Metadata: map[string]any{
			"provider":          g.provider,
			"model_used":        outputs["model_used"],
			"tokens_used":       outputs["total_tokens"],
			"raw_response_keys": rawKeys,
		},
	}
	if v, ok := outputs["rubric_name"]; ok && v != nil {
		out.RubricName = toString(v)
	}
	if v, ok := outputs["rubric_id"]; ok && v != nil {
		out.RubricID = toString(v)
	}
	return out, nil
}

func (g *Generic) invalid(field string, err error) error {
	return common.APIError(common.CodeAPIResponseInvalid,
		fmt.Sprintf("Failed to parse AI provider response: field %s", field), 0, false, err).
		WithDetail("provider", g.provider)
}

func floatField(m map[string]any, def float64, aliases ...string) (float64, error) {
	v, ok := First(m, aliases...)
	if !ok {
		return def, nil
	}
	return toFloat(v)
}

func feedbackItems(v any) ([]agent.FeedbackItem, error) {
	list, ok := v.([]any)
	if !ok {
		return []agent.FeedbackItem{}, nil
	}
	items := make([]agent.FeedbackItem, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		score, err := floatField(m, 0, "score")
		if err != nil {
			return nil, fmt.Errorf("results[%d].score: %w", i, err)
		}
		maxScore, err := floatField(m, defaultTotalPossible, "max_score")
		if err != nil {
			return nil, fmt.Errorf("results[%d].max_score: %w", i, err)
		}
		item := agent.FeedbackItem{
			CriterionName: defaultCriterion,
			Score:         score,
			MaxScore:      maxScore,
			Suggestions:   toStringList(m["suggestions"]),
		}
		if c, ok := First(m, "criterion"); ok {
			item.CriterionName = toString(c)
		}
		if fb, ok := First(m, "feedback"); ok {
			item.Feedback = toString(fb)
		}
		if ln, ok := First(m, "level_name"); ok {
			item.LevelName = toString(ln)
		}
		if ld, ok := First(m, "level_description"); ok {
			item.LevelDescription = toString(ld)
		}
		items = append(items, item)
	}
	return items, nil
}

// Dify blocking responses nest run state under "data"; poll responses are flat.
var DifyFields = Fields{
	RunID:    []string{"workflow_run_id", "data.id", "id"},
	TaskID:   []string{"task_id"},
	Status:   prefixed("data", "status"),
	Outputs:  prefixed("data", "outputs"),
	Error:    prefixed("data", "error", "error_message"),
	Elapsed:  prefixed("data", "elapsed_time"),
	Usage:    prefixed("data", "metadata.usage", "usage", "total_tokens"),
	Created:  prefixed("data", "created_at"),
	Finished: prefixed("data", "finished_at"),
}

// LangChain runs return their result object directly.
var LangChainFields = Fields{
	RunID:    []string{"run_id", "id"},
	TaskID:   []string{"task_id"},
	Status:   []string{"status"},
	Outputs:  []string{"outputs", "output"},
	Error:    []string{"error_message", "error"},
	Elapsed:  []string{"elapsed_time"},
	Usage:    []string{"metadata.usage", "usage", "token_usage"},
	Created:  []string{"created_at", "start_time"},
	Finished: []string{"finished_at", "end_time"},
}

var (
	mu       sync.RWMutex
	builders = map[string]func() Transformer{
		"dify":      func() Transformer { return NewGeneric("dify", DifyFields) },
		"langchain": func() Transformer { return NewGeneric("langchain", LangChainFields) },
	}
)

// For returns the transformer registered for provider, or a generic one.
func For(provider string) Transformer {
	key := strings.ToLower(strings.TrimSpace(provider))
	mu.RLock()
	b, ok := builders[key]
	mu.RUnlock()
	if ok {
		return b()
	}
	return NewGeneric(key, GenericFields)
}

// Register adds or replaces the transformer for provider.
func Register(provider string, build func() Transformer) {
	mu.Lock()
	defer mu.Unlock()
	builders[strings.ToLower(provider)] = build
}
