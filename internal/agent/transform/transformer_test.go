package transform

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/agent"
	"github.com/joseph-ayodele/essaycoach/internal/common"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestFirst(t *testing.T) {
	m := decode(t, `{"a": null, "b": 0, "data": {"status": "running"}}`)

	v, ok := First(m, "a", "b")
	require.True(t, ok)
	assert.Equal(t, float64(0), v)

	v, ok = First(m, "data.status", "status")
	require.True(t, ok)
	assert.Equal(t, "running", v)

	_, ok = First(m, "missing", "data.missing", "b.deeper")
	assert.False(t, ok)
}

func TestScoreAliasesAgree(t *testing.T) {
	tr := For("generic")
	for _, body := range []string{
		`{"outputs": {"overall_score": 7}}`,
		`{"outputs": {"score": 7}}`,
		`{"outputs": {"total_score": "7"}}`,
	} {
		out, err := tr.AnalysisOutput(decode(t, body))
		require.NoError(t, err, body)
		assert.InDelta(t, 7, out.OverallScore, 1e-9, body)
	}
}

func TestScoreAliasOrder(t *testing.T) {
	out, err := For("generic").AnalysisOutput(decode(t, `{"outputs": {"score": 3, "total_score": 8, "max_score": 10}}`))
	require.NoError(t, err)
	assert.InDelta(t, 8, out.OverallScore, 1e-9)
	assert.InDelta(t, 10, out.TotalPossible, 1e-9)
	assert.InDelta(t, 80, out.PercentageScore, 1e-9)
}

func TestAnalysisDefaults(t *testing.T) {
	out, err := For("generic").AnalysisOutput(map[string]any{})
	require.NoError(t, err)
	assert.Zero(t, out.OverallScore)
	assert.InDelta(t, 100, out.TotalPossible, 1e-9)
	assert.Zero(t, out.PercentageScore)
	assert.Equal(t, "No overall feedback available.", out.OverallFeedback)
	assert.Empty(t, out.FeedbackItems)
	assert.Empty(t, out.Strengths)
	assert.Equal(t, "generic", out.Metadata["provider"])
}

func TestAnalysisFullOutputs(t *testing.T) {
	raw := decode(t, `{
		"outputs": {
			"total_score": 17,
			"max_score": 24,
			"summary": "Solid argument.",
			"strengths": ["clear thesis", 2],
			"overall_suggestions": "Vary sentence length",
			"rubric_name": "Argument",
			"results": [
				{"criterion": "Content", "score": 9, "max_score": 12, "feedback": "Good", "suggestions": ["cite more"], "level_name": "Proficient", "level_description": "Mostly clear"},
				"skip me",
				{"score": "8"}
			]
		}
	}`)
	out, err := For("generic").AnalysisOutput(raw)
	require.NoError(t, err)
	assert.InDelta(t, 70.83, out.PercentageScore, 1e-9)
	assert.Equal(t, "Solid argument.", out.OverallFeedback)
	assert.Equal(t, []string{"clear thesis", "2"}, out.Strengths)
	assert.Equal(t, []string{"Vary sentence length"}, out.Suggestions)
	assert.Equal(t, "Argument", out.RubricName)

	require.Len(t, out.FeedbackItems, 2)
	assert.Equal(t, agent.FeedbackItem{
		CriterionName:    "Content",
		Score:            9,
		MaxScore:         12,
		Feedback:         "Good",
		Suggestions:      []string{"cite more"},
		LevelName:        "Proficient",
		LevelDescription: "Mostly clear",
	}, out.FeedbackItems[0])
	assert.Equal(t, "Unknown Criterion", out.FeedbackItems[1].CriterionName)
	assert.InDelta(t, 8, out.FeedbackItems[1].Score, 1e-9)
	assert.InDelta(t, 100, out.FeedbackItems[1].MaxScore, 1e-9)
}

func TestAnalysisUncoercibleScore(t *testing.T) {
	_, err := For("dify").AnalysisOutput(decode(t, `{"outputs": {"score": "seven"}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrAPIResponseInvalid))
	assert.False(t, common.IsRecoverable(err))

	var ae *common.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "dify", ae.Details["provider"])
}

func TestDifyBlockingAndPollShapes(t *testing.T) {
	blocking := decode(t, `{
		"workflow_run_id": "run-1",
		"task_id": "task-1",
		"data": {
			"id": "run-1",
			"status": "succeeded",
			"outputs": {"total_score": 42},
			"error": null,
			"elapsed_time": 12.5,
			"total_tokens": 900,
			"created_at": 1700000000,
			"finished_at": 1700000012
		}
	}`)
	poll := decode(t, `{
		"id": "run-1",
		"status": "SUCCEEDED",
		"outputs": "{\"total_score\": 42}",
		"elapsed_time": 12.5,
		"total_tokens": 900,
		"created_at": 1700000000,
		"finished_at": 1700000012
	}`)

	tr := For("Dify")
	a, err := tr.WorkflowOutput(blocking)
	require.NoError(t, err)
	b, err := tr.WorkflowOutput(poll)
	require.NoError(t, err)

	assert.Equal(t, "run-1", a.RunID)
	assert.Equal(t, "task-1", a.TaskID)
	assert.Equal(t, "run-1", b.RunID)
	for _, out := range []agent.WorkflowOutput{a, b} {
		assert.Equal(t, constants.WorkflowSucceeded, out.Status)
		assert.Equal(t, float64(42), out.Outputs["total_score"])
		require.NotNil(t, out.ElapsedSeconds)
		assert.InDelta(t, 12.5, *out.ElapsedSeconds, 1e-9)
		assert.Equal(t, map[string]int{"total_tokens": 900}, out.TokenUsage)
		require.NotNil(t, out.CreatedAt)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), *out.CreatedAt)
		require.NotNil(t, out.FinishedAt)
	}

	analysis, err := tr.AnalysisOutput(blocking)
	require.NoError(t, err)
	assert.InDelta(t, 42, analysis.OverallScore, 1e-9)
}

func TestWorkflowStatusMapping(t *testing.T) {
	tests := map[string]constants.WorkflowStatus{
		`{"status": "Running"}`:   constants.WorkflowRunning,
		`{"status": "error"}`:     constants.WorkflowFailed,
		`{"status": "canceled"}`:  constants.WorkflowCancelled,
		`{"status": "stopped"}`:   constants.WorkflowPending,
		`{}`:                      constants.WorkflowPending,
		`{"status": "succeeded"}`: constants.WorkflowSucceeded,
	}
	for body, want := range tests {
		out, err := For("generic").WorkflowOutput(decode(t, body))
		require.NoError(t, err)
		assert.Equal(t, want, out.Status, body)
	}
}

func TestWorkflowTimestampsAndUsage(t *testing.T) {
	out, err := For("generic").WorkflowOutput(decode(t, `{
		"created_at": "2025-03-01T10:00:00Z",
		"metadata": {"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15, "currency": "USD"}},
		"error_message": "boom"
	}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), *out.CreatedAt)
	assert.Equal(t, map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}, out.TokenUsage)
	assert.Equal(t, "boom", out.ErrorMessage)
	assert.Nil(t, out.FinishedAt)

	_, err = For("generic").WorkflowOutput(decode(t, `{"created_at": "yesterday"}`))
	assert.True(t, errors.Is(err, common.ErrAPIResponseInvalid))
}

func TestForAndRegister(t *testing.T) {
	assert.Equal(t, "dify", For("dify").Provider())
	assert.Equal(t, "langchain", For("langchain").Provider())
	assert.Equal(t, "acme", For("acme").Provider())

	Register("acme", func() Transformer { return NewGeneric("acme", Fields{Outputs: []string{"result"}}) })
	out, err := For("acme").AnalysisOutput(decode(t, `{"result": {"score": 5}}`))
	require.NoError(t, err)
	assert.InDelta(t, 5, out.OverallScore, 1e-9)
}

func TestLangChainDirectOutputs(t *testing.T) {
	out, err := For("langchain").AnalysisOutput(decode(t, `{"output": {"overall_score": 6, "total_possible": 8}}`))
	require.NoError(t, err)
	assert.InDelta(t, 75, out.PercentageScore, 1e-9)
}
