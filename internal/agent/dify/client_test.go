package dify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/agent"
	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/llm"
	"github.com/joseph-ayodele/essaycoach/internal/metrics"
	"github.com/joseph-ayodele/essaycoach/internal/repository"
)

const blockingReply = `{
	"workflow_run_id": "run-1",
	"task_id": "task-1",
	"data": {
		"id": "run-1",
		"status": "succeeded",
		"outputs": {"total_score": 18, "max_score": 20},
		"elapsed_time": 3.2,
		"total_tokens": 1200,
		"created_at": 1700000000,
		"finished_at": 1700000003
	}
}`

type fakeDify struct {
	mu       sync.Mutex
	uploads  int32
	runs     int32
	lastRun  map[string]any
	lastUser string
	lastType string
	lastFile string
	auth     string
	run      http.HandlerFunc
}

func (f *fakeDify) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/upload", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.uploads, 1)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		file, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		b, _ := io.ReadAll(file)
		f.mu.Lock()
		f.lastUser = r.FormValue("user")
		f.lastType = r.FormValue("type")
		f.lastFile = string(b)
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id": "upload-abc"}`))
	})
	mux.HandleFunc("/workflows/run", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.runs, 1)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.lastRun = body
		f.mu.Unlock()
		if f.run != nil {
			f.run(w, r)
			return
		}
		_, _ = w.Write([]byte(blockingReply))
	})
	mux.HandleFunc("/workflows/run/run-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"id": "run-1", "status": "running", "outputs": null, "created_at": 1700000000}`))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"name": "essay-grader"}`))
	})
	return mux
}

func fp(v float64) *float64 { return &v }

func newRepo(t *testing.T) repository.RubricRepository {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{DSN: "sqlite://" + filepath.Join(t.TempDir(), "dify.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, repository.Migrate(ctx, db))
	repo := repository.NewRubricRepository(db, nil)
	_, err = repo.CreateRubric(ctx, &repository.CreateRubricRequest{
		OwnerID:     "owner-1",
		Description: "Persuasive Essay",
		Dimensions: []llm.RawDimension{{
			Name:   "Argument",
			Weight: fp(100),
			Levels: []llm.RawLevel{{Name: "Strong", ScoreMin: fp(0), ScoreMax: fp(20), Description: "Convincing"}},
		}},
	})
	require.NoError(t, err)
	return repo
}

func newTestClient(t *testing.T, baseURL string, mod func(*Config)) (*Client, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec, err := metrics.New(reg)
	require.NoError(t, err)
	cfg := Config{
		APIKey:          "test-key",
		BaseURL:         baseURL + "/",
		UploadCacheSize: 16,
		UploadCacheTTL:  time.Hour,
	}
	if mod != nil {
		mod(&cfg)
	}
	c, err := NewClient(cfg, newRepo(t), rec, nil)
	require.NoError(t, err)
	return c, reg
}

func essay() agent.WorkflowInput {
	return agent.WorkflowInput{
		EssayQuestion: "Should school start later?",
		EssayContent:  "Teenagers need more sleep.",
		UserID:        "owner-1",
	}
}

func TestAnalyzeBlocking(t *testing.T) {
	fake := &fakeDify{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	c, reg := newTestClient(t, srv.URL, nil)

	ctx := common.WithRequestID(context.Background(), "req-42")
	out, err := c.Analyze(ctx, essay())
	require.NoError(t, err)

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, "task-1", out.TaskID)
	assert.Equal(t, constants.WorkflowSucceeded, out.Status)
	assert.Equal(t, float64(18), out.Outputs["total_score"])
	assert.Equal(t, map[string]int{"total_tokens": 1200}, out.TokenUsage)

	assert.Equal(t, "Bearer test-key", fake.auth)
	assert.Equal(t, "owner-1", fake.lastUser)
	assert.Equal(t, "TXT", fake.lastType)
	assert.True(t, strings.HasPrefix(fake.lastFile, "Rubric: Persuasive Essay\n"))

	assert.Equal(t, "blocking", fake.lastRun["response_mode"])
	assert.Equal(t, "owner-1", fake.lastRun["user"])
	assert.Equal(t, "req-42", fake.lastRun["trace_id"])
	inputs := fake.lastRun["inputs"].(map[string]any)
	assert.Equal(t, "Should school start later?", inputs["essay_question"])
	assert.Equal(t, "English", inputs["language"])
	assert.Equal(t, map[string]any{
		"transfer_method": "local_file",
		"upload_file_id":  "upload-abc",
		"type":            "document",
	}, inputs["essay_rubric"])

	// same rubric bytes for the same owner are uploaded once
	_, err = c.Analyze(ctx, essay())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.uploads))
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.runs))

	n, err := testutil.GatherAndCount(reg, "essaycoach_provider_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n) // analyze/ok and upload/ok
}

func TestAnalyzeStreaming(t *testing.T) {
	fake := &fakeDify{run: func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"event\": \"workflow_started\", \"workflow_run_id\": \"run-9\", \"task_id\": \"t\", \"data\": {\"status\": \"running\"}}\n\n")
		_, _ = io.WriteString(w, "event: ping\n\n")
		_, _ = io.WriteString(w, "data: {\"event\": \"workflow_finished\", \"workflow_run_id\": \"run-9\", \"task_id\": \"t\", \"data\": {\"status\": \"succeeded\", \"outputs\": {\"score\": 5}}}\n\n")
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	c, _ := newTestClient(t, srv.URL, nil)

	in := essay()
	in.ResponseMode = constants.ResponseModeStreaming
	out, err := c.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "run-9", out.RunID)
	assert.Equal(t, constants.WorkflowSucceeded, out.Status)
	assert.Equal(t, "streaming", fake.lastRun["response_mode"])
}

func TestAnalyzeStreamingWithoutFinishedEvent(t *testing.T) {
	fake := &fakeDify{run: func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"event\": \"workflow_started\", \"workflow_run_id\": \"run-9\", \"task_id\": \"t\", \"data\": {\"status\": \"running\"}}\n\n")
		_, _ = io.WriteString(w, "data: {\"event\": \"node_finished\", \"workflow_run_id\": \"run-9\", \"task_id\": \"t\", \"data\": {\"status\": \"succeeded\"}}\n\n")
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	c, _ := newTestClient(t, srv.URL, nil)

	in := essay()
	in.ResponseMode = constants.ResponseModeStreaming
	out, err := c.Analyze(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrAPIResponseInvalid))
	assert.Empty(t, out.RunID)
}

func TestAnalyzeRejectsBadInputBeforeSending(t *testing.T) {
	fake := &fakeDify{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	c, _ := newTestClient(t, srv.URL, nil)

	in := essay()
	in.ResponseMode = "batch"
	_, err := c.Analyze(context.Background(), in)
	assert.True(t, errors.Is(err, common.ErrInputInvalid))

	_, err = c.RunWorkflow(context.Background(), map[string]any{}, "u", "sse", "")
	assert.True(t, errors.Is(err, common.ErrInputInvalid))
	assert.Zero(t, atomic.LoadInt32(&fake.runs))
	assert.Zero(t, atomic.LoadInt32(&fake.uploads))
}

func TestAnalyzeWithoutRubric(t *testing.T) {
	fake := &fakeDify{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	c, _ := newTestClient(t, srv.URL, nil)

	in := essay()
	in.UserID = "new-owner"
	_, err := c.Analyze(context.Background(), in)
	assert.True(t, errors.Is(err, common.ErrRubricNotFound))
	assert.Zero(t, atomic.LoadInt32(&fake.runs))
}

func TestRunTimeout(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeDify{run: func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	defer close(release)
	c, _ := newTestClient(t, srv.URL, func(cfg *Config) { cfg.RunTimeout = 50 * time.Millisecond })

	_, err := c.Analyze(context.Background(), essay())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrAPITimeout))
	assert.False(t, errors.Is(err, common.ErrAPIServer))
	assert.True(t, common.IsRecoverable(err))

	var ae *common.AppError
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Details, "timeout_seconds")
}

func TestRunStatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		header      map[string]string
		want        error
		recoverable bool
	}{
		{"rate limited", http.StatusTooManyRequests, map[string]string{"Retry-After": "7"}, common.ErrAPIRateLimited, true},
		{"server error", http.StatusBadGateway, nil, common.ErrAPIServer, true},
		{"client error", http.StatusBadRequest, nil, common.ErrAPIServer, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeDify{run: func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"code": "bad"}`))
			}}
			srv := httptest.NewServer(fake.handler(t))
			defer srv.Close()
			c, _ := newTestClient(t, srv.URL, nil)

			_, err := c.Analyze(context.Background(), essay())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			assert.Equal(t, tt.recoverable, common.IsRecoverable(err))
			assert.EqualValues(t, 1, atomic.LoadInt32(&fake.runs), "no automatic retry")
		})
	}
}

func TestRateLimitRetryAfter(t *testing.T) {
	fake := &fakeDify{run: func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	c, _ := newTestClient(t, srv.URL, nil)

	_, err := c.RunWorkflow(context.Background(), map[string]any{}, "u", constants.ResponseModeBlocking, "")
	var ae *common.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 7, ae.Details["retry_after"])
}

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestUploadMemoization(t *testing.T) {
	fake := &fakeDify{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	c, _ := newTestClient(t, srv.URL, nil)
	ctx := context.Background()

	a := writeTemp(t, "a.txt", "same bytes")
	b := writeTemp(t, "b.txt", "same bytes")

	id1, err := c.UploadDocument(ctx, a, "alice")
	require.NoError(t, err)
	id2, err := c.UploadDocument(ctx, b, "alice")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.uploads))

	_, err = c.UploadDocument(ctx, a, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.uploads))
}

func TestUploadMemoDisabled(t *testing.T) {
	fake := &fakeDify{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	c, _ := newTestClient(t, srv.URL, func(cfg *Config) { cfg.UploadCacheSize = 0 })

	p := writeTemp(t, "a.pdf", "%PDF-1.4")
	for i := 0; i < 2; i++ {
		_, err := c.UploadDocument(context.Background(), p, "alice")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.uploads))
	assert.Equal(t, "PDF", fake.lastType)
}

func TestUploadFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name": "no id here"}`))
	}))
	defer srv.Close()
	c, _ := newTestClient(t, srv.URL, nil)

	_, err := c.UploadDocument(context.Background(), writeTemp(t, "a.txt", "x"), "alice")
	assert.True(t, errors.Is(err, common.ErrUploadFailed))

	_, err = c.UploadDocument(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), "alice")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestPollStatus(t *testing.T) {
	fake := &fakeDify{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	c, _ := newTestClient(t, srv.URL, nil)

	out, err := c.PollStatus(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, constants.WorkflowRunning, out.Status)
	assert.Nil(t, out.Outputs)
	require.NotNil(t, out.CreatedAt)

	_, err = c.PollStatus(context.Background(), "unknown")
	assert.True(t, errors.Is(err, common.ErrAPIServer))

	_, err = c.PollStatus(context.Background(), " ")
	assert.True(t, errors.Is(err, common.ErrInputInvalid))
}

func TestCancelUnsupported(t *testing.T) {
	c, _ := newTestClient(t, "http://127.0.0.1:0", nil)
	ok, err := c.Cancel(context.Background(), "run-1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestHealthCheck(t *testing.T) {
	fake := &fakeDify{}
	srv := httptest.NewServer(fake.handler(t))
	c, _ := newTestClient(t, srv.URL, nil)
	assert.True(t, c.HealthCheck(context.Background()))

	bad, _ := newTestClient(t, srv.URL, func(cfg *Config) { cfg.APIKey = "wrong" })
	assert.False(t, bad.HealthCheck(context.Background()))

	srv.Close()
	assert.False(t, c.HealthCheck(context.Background()))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, nil, nil, nil)
	assert.True(t, errors.Is(err, common.ErrConfigMissing))
}

func TestRegister(t *testing.T) {
	r := agent.NewRegistry()
	Register(r)

	a, err := r.New("dify", agent.Deps{Config: common.AgentConfig{DifyAPIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "dify", a.ProviderName())
	assert.True(t, a.IsConfigured())

	_, err = r.New("dify", agent.Deps{})
	assert.True(t, errors.Is(err, common.ErrConfigMissing))
}
