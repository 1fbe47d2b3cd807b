package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/llm"
)

type chatCompletion struct {
	Choices json.RawMessage `json:"choices"`
}

type choice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// ParseRubric asks the model for the rubric structure of text.
// It guarantees the reply decodes; rubric semantics are checked elsewhere.
func (c *Client) ParseRubric(ctx context.Context, text string) (llm.RawRubricStructure, []byte, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
		ctx = common.WithRequestID(ctx, rid)
	}
	start := time.Now()

	c.log.Info("llm.parse.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"max_tokens", c.cfg.MaxTokens,
		"text_len", len(text),
	)

	body := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]any{
			{"role": "system", "content": llm.RubricSystemPrompt},
			{"role": "user", "content": llm.BuildUserPrompt(text)},
		},
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"enable_thinking": false,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, _, err := llm.SendJSON(ctx, c.http, c.cfg.URL, body, headers, c.log)
	if err != nil {
		c.log.Error("llm.parse.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.RawRubricStructure{}, nil, transportError(err)
	}

	var cc chatCompletion
	if err := json.Unmarshal(raw, &cc); err != nil || len(cc.Choices) == 0 || string(cc.Choices) == "null" {
		c.log.Error("llm.parse.envelope_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.RawRubricStructure{}, raw, common.ParseUnexpectedShape("response is not a chat completion", err)
	}
	var choices []choice
	if err := json.Unmarshal(cc.Choices, &choices); err != nil {
		return llm.RawRubricStructure{}, raw, common.ParseUnexpectedShape("choices is not a list of messages", err)
	}
	if len(choices) == 0 {
		c.log.Error("llm.parse.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.RawRubricStructure{}, raw, common.ParseEmptyResponse()
	}

	content := llm.StripCodeFence(choices[0].Message.Content)
	rawContent := []byte(content)
	if content == "" {
		c.log.Error("llm.parse.empty_content", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.RawRubricStructure{}, rawContent, common.ParseEmptyResponse()
	}

	normalized, changed, err := llm.NormalizeRubricJSON(rawContent)
	if err != nil {
		c.log.Error("llm.parse.malformed_json",
			"req_id", rid, "error", err, "content_len", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.RawRubricStructure{}, rawContent, common.ParseMalformedJSON(err)
	}
	if len(changed) > 0 {
		c.log.Warn("llm.parse.lenient_normalize_applied", "req_id", rid, "changed", changed)
	}

	if err := llm.ValidateRubricJSON(normalized); err != nil {
		c.log.Error("llm.parse.schema_validation_failed",
			"req_id", rid, "error", err, "content", content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.RawRubricStructure{}, rawContent, common.ParseUnexpectedShape("reply does not match the rubric shape", err)
	}

	var out llm.RawRubricStructure
	if err := json.Unmarshal(normalized, &out); err != nil {
		return llm.RawRubricStructure{}, rawContent, common.ParseUnexpectedShape("decode rubric structure", err)
	}

	c.log.Info("llm.parse.ok",
		"req_id", rid,
		"is_rubric", out.IsRubric,
		"confidence", out.Confidence,
		"dimensions", len(out.Dimensions),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, rawContent, nil
}

func transportError(err error) *common.AppError {
	var se *llm.StatusError
	if errors.As(err, &se) {
		ae := common.ParseTransportError(fmt.Sprintf("completion endpoint returned status %d", se.StatusCode), err).
			WithDetail("status_code", se.StatusCode)
		ae.Recoverable = se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
		return ae
	}
	return common.ParseTransportError("completion request failed", err)
}
