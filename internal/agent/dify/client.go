package dify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/agent"
	"github.com/joseph-ayodele/essaycoach/internal/common"
)

// Analyze uploads the caller's rubric and runs the essay workflow.
func (c *Client) Analyze(ctx context.Context, in agent.WorkflowInput) (out agent.WorkflowOutput, err error) {
	start := time.Now()
	defer func() { c.metrics.RecordProviderCall(ProviderName, "analyze", time.Since(start), err) }()

	if err := in.Normalize(c.cfg.DefaultUser); err != nil {
		return agent.WorkflowOutput{}, err
	}
	ctx, reqID := common.EnsureRequestID(ctx)

	rubricInput, err := c.rubrics.Build(ctx, c, in.RubricID, in.UserID)
	if err != nil {
		return agent.WorkflowOutput{}, err
	}
	inputs := map[string]any{
		"essay_question": in.EssayQuestion,
		"essay_content":  in.EssayContent,
		"language":       in.Language,
		"essay_rubric":   rubricInput,
	}

	raw, err := c.RunWorkflow(ctx, inputs, in.UserID, in.ResponseMode, reqID)
	if err != nil {
		return agent.WorkflowOutput{}, asAgentError(err, "Failed to analyze essay", "")
	}
	out, err = c.transformer.WorkflowOutput(raw)
	if err != nil {
		return agent.WorkflowOutput{}, err
	}
	c.log.Info("agent.dify.analyze.ok",
		"req_id", reqID,
		"run_id", out.RunID,
		"status", out.Status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// PollStatus fetches the current state of a workflow run.
func (c *Client) PollStatus(ctx context.Context, runID string) (out agent.WorkflowOutput, err error) {
	start := time.Now()
	defer func() { c.metrics.RecordProviderCall(ProviderName, "poll", time.Since(start), err) }()

	if strings.TrimSpace(runID) == "" {
		return agent.WorkflowOutput{}, common.InputValidationError("run_id is required", "run_id", runID)
	}
	raw, err := c.GetWorkflowRun(ctx, runID)
	if err != nil {
		return agent.WorkflowOutput{}, asAgentError(err, "Failed to get workflow status", runID)
	}
	return c.transformer.WorkflowOutput(raw)
}

// UploadDocument uploads a file once per (owner, content) while the memo holds it.
func (c *Client) UploadDocument(ctx context.Context, path, ownerID string) (id string, err error) {
	start := time.Now()
	defer func() { c.metrics.RecordProviderCall(ProviderName, "upload", time.Since(start), err) }()

	content, err := os.ReadFile(path)
	if err != nil {
		return "", common.ResourceError(common.CodeResourceNotFound,
			fmt.Sprintf("File not found: %s", path), "file", path, err)
	}
	key := agent.UploadKey(ownerID, content)
	if id, ok := c.uploads.Get(key); ok {
		c.log.Debug("agent.dify.upload.cached", "owner_id", ownerID, "upload_id", id)
		return id, nil
	}

	id, err = c.upload(ctx, filepath.Base(path), content, ownerID)
	if err != nil {
		return "", err
	}
	c.uploads.Add(key, id)
	return id, nil
}

// Cancel is unsupported by the Dify workflow API.
func (c *Client) Cancel(_ context.Context, runID string) (bool, error) {
	c.log.Debug("agent.dify.cancel.unsupported", "run_id", runID)
	return false, nil
}

// HealthCheck reports whether the API answers an authenticated GET /info.
func (c *Client) HealthCheck(ctx context.Context) bool {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	_, err := c.do(ctx, http.MethodGet, "/info", nil, "")
	c.metrics.RecordProviderCall(ProviderName, "health", time.Since(start), err)
	if err != nil {
		c.log.Warn("agent.dify.health.error", "error", err)
		return false
	}
	return true
}

// RunWorkflow posts to /workflows/run. Streaming replies are read until the
// workflow_finished event, which carries the same shape as a blocking reply.
func (c *Client) RunWorkflow(ctx context.Context, inputs map[string]any, user string, mode constants.ResponseMode, traceID string) (map[string]any, error) {
	if !mode.Valid() {
		return nil, common.InputValidationError("response_mode must be 'blocking' or 'streaming'", "response_mode", string(mode))
	}
	payload := map[string]any{
		"inputs":        inputs,
		"response_mode": mode,
		"user":          user,
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode workflow request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	c.log.Info("agent.dify.run.start", "req_id", traceID, "user", user, "response_mode", mode)
	raw, err := c.do(ctx, http.MethodPost, "/workflows/run", body, "application/json")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = common.APITimeoutError("Dify workflow run timed out", c.cfg.RunTimeout, err)
		}
		c.log.Error("agent.dify.run.error", "req_id", traceID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	c.log.Info("agent.dify.run.ok", "req_id", traceID, "bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())

	if mode == constants.ResponseModeStreaming {
		return finishedEvent(raw)
	}
	return decodeObject(raw)
}

// GetWorkflowRun fetches /workflows/run/{id}.
func (c *Client) GetWorkflowRun(ctx context.Context, runID string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	raw, err := c.do(ctx, http.MethodGet, "/workflows/run/"+url.PathEscape(runID), nil, "")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, common.APITimeoutError("Dify status request timed out", c.cfg.RequestTimeout, err)
		}
		return nil, err
	}
	return decodeObject(raw)
}

func (c *Client) upload(ctx context.Context, name string, content []byte, user string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	ext := strings.ToLower(filepath.Ext(name))
	ctype := mime.TypeByExtension(ext)
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", ctype)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.WriteField("user", user); err != nil {
		return "", fmt.Errorf("write user field: %w", err)
	}
	if err := mw.WriteField("type", fileType(ext)); err != nil {
		return "", fmt.Errorf("write type field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	raw, err := c.do(ctx, http.MethodPost, "/files/upload", buf.Bytes(), mw.FormDataContentType())
	if err != nil {
		c.log.Error("agent.dify.upload.error", "file", name, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if errors.Is(err, context.DeadlineExceeded) {
			return "", common.APITimeoutError("Dify upload timed out", c.cfg.RequestTimeout, err)
		}
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || strings.TrimSpace(resp.ID) == "" {
		return "", common.ResourceError(common.CodeResourceUpload,
			"Dify upload response missing upload ID", "file", name, err)
	}
	c.log.Info("agent.dify.upload.ok", "file", name, "upload_id", resp.ID, "bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds())
	return resp.ID, nil
}

// do sends one authenticated request and maps non-2xx replies to API errors.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	var rb any
	if body != nil {
		rb = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rb)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, common.APIError(common.CodeAPIRequestFailed, "Dify API request failed", 0, true, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, common.APIError(common.CodeAPIRequestFailed, "read Dify response", resp.StatusCode, true, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, common.APIRateLimitError("Dify API rate limit exceeded", retryAfter)
	case resp.StatusCode/100 != 2:
		return nil, common.APIServerError(
			fmt.Sprintf("Dify API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			resp.StatusCode, string(raw))
	}
	return raw, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, common.APIError(common.CodeAPIResponseInvalid,
			"Failed to parse AI provider response", 0, false, err).WithDetail("provider", ProviderName)
	}
	return m, nil
}

// finishedEvent scans a server-sent event stream for the final workflow event.
func finishedEvent(raw []byte) (map[string]any, error) {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
			continue
		}
		if ev["event"] == "workflow_finished" {
			return ev, nil
		}
	}
	return nil, common.APIError(common.CodeAPIResponseInvalid,
		"Dify stream ended without a workflow_finished event", 0, false, sc.Err()).WithDetail("provider", ProviderName)
}

func fileType(ext string) string {
	switch ext {
	case ".pdf":
		return "PDF"
	case ".md":
		return "MD"
	case ".xlsx":
		return "XLSX"
	default:
		return "TXT"
	}
}

// asAgentError keeps typed errors and wraps anything else as a workflow failure.
func asAgentError(err error, message, runID string) error {
	var ae *common.AppError
	if errors.As(err, &ae) {
		return err
	}
	e := common.WorkflowError(message, runID, err)
	e.Recoverable = true
	return e
}
