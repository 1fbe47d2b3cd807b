package openai

import (
	"log/slog"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/joseph-ayodele/essaycoach/internal/llm"
)

// Config for an OpenAI-compatible chat/completions endpoint.
type Config struct {
	APIKey       string
	URL          string        // full chat/completions URL
	Model        string        // e.g., "Qwen/Qwen3-8B"
	Temperature  float32       // near zero for deterministic parsing
	MaxTokens    int           // default 4096
	Timeout      time.Duration // per attempt; default 180s
	RetryMax     int           // 0 -> 3; negative disables retries
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client implements llm.StructureParser.
type Client struct {
	cfg  Config
	http *retryablehttp.Client
	log  *slog.Logger
}

var _ llm.StructureParser = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = "https://api.siliconflow.cn/v1/chat/completions"
	}
	if cfg.Model == "" {
		cfg.Model = "Qwen/Qwen3-8B"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	switch {
	case cfg.RetryMax == 0:
		cfg.RetryMax = 3
	case cfg.RetryMax < 0:
		cfg.RetryMax = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		http: llm.NewRetryingClient(llm.RetryConfig{
			Timeout:  cfg.Timeout,
			RetryMax: cfg.RetryMax,
			WaitMin:  cfg.RetryWaitMin,
			WaitMax:  cfg.RetryWaitMax,
		}, logger),
		log: logger,
	}
}

// Model returns the configured model id.
func (c *Client) Model() string {
	return c.cfg.Model
}
