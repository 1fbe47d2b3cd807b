package dify

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/joseph-ayodele/essaycoach/internal/agent"
	"github.com/joseph-ayodele/essaycoach/internal/agent/transform"
	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/llm"
	"github.com/joseph-ayodele/essaycoach/internal/metrics"
	"github.com/joseph-ayodele/essaycoach/internal/repository"
)

const (
	ProviderName = "dify"

	DefaultBaseURL        = "https://api.dify.ai/v1"
	DefaultRunTimeout     = 300 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	healthTimeout         = 10 * time.Second
)

type Config struct {
	APIKey  string
	BaseURL string
	// RunTimeout bounds one blocking workflow run.
	RunTimeout time.Duration
	// RequestTimeout bounds polls and uploads.
	RequestTimeout  time.Duration
	DefaultUser     string
	UploadCacheSize int
	UploadCacheTTL  time.Duration
}

// Client speaks the Dify workflow API.
type Client struct {
	cfg         Config
	http        *retryablehttp.Client
	rubrics     *agent.RubricInputBuilder
	uploads     *agent.UploadCache
	transformer transform.Transformer
	metrics     *metrics.Recorder
	log         *slog.Logger
}

func NewClient(cfg Config, rubrics repository.RubricRepository, rec *metrics.Recorder, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, common.ConfigurationError("DIFY_API_KEY must be set in the environment", "DIFY_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.DefaultUser == "" {
		cfg.DefaultUser = agent.DefaultUser
	}

	log := logger.With("provider", ProviderName)
	return &Client{
		cfg: cfg,
		// no retries: workflow runs are not idempotent and callers decide
		http:        llm.NewRetryingClient(llm.RetryConfig{RetryMax: 0}, log),
		rubrics:     agent.NewRubricInputBuilder(rubrics, log),
		uploads:     agent.NewUploadCache(cfg.UploadCacheSize, cfg.UploadCacheTTL, rec),
		transformer: transform.For(ProviderName),
		metrics:     rec,
		log:         log,
	}, nil
}

// Factory adapts NewClient to the provider registry.
func Factory(deps agent.Deps) (agent.EssayAgent, error) {
	c := deps.Config
	return NewClient(Config{
		APIKey:          c.DifyAPIKey,
		BaseURL:         c.DifyBaseURL,
		RunTimeout:      c.RunTimeout,
		RequestTimeout:  c.RequestTimeout,
		DefaultUser:     c.DefaultUser,
		UploadCacheSize: c.UploadCacheSize,
		UploadCacheTTL:  c.UploadCacheTTL,
	}, deps.Rubrics, deps.Metrics, deps.Logger)
}

// Register adds the Dify provider to r.
func Register(r *agent.Registry) {
	r.Register(ProviderName, Factory)
}

func (c *Client) ProviderName() string { return ProviderName }

// IsConfigured is always true for a client built by NewClient, which
// refuses an empty API key.
func (c *Client) IsConfigured() bool { return c.cfg.APIKey != "" }

var _ agent.EssayAgent = (*Client)(nil)
