package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/essaycoach/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	LLM      LLMConfig
	Agent    AgentConfig
	Extract  ExtractConfig
	Import   ImportConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string
	MetricsAddr string

	// PushgatewayURL receives the counters of short-lived binaries; empty disables pushing.
	PushgatewayURL string
}

// LLMConfig configures the rubric structure parser.
type LLMConfig struct {
	URL          string
	APIKey       string
	Model        string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// AgentConfig configures the essay-agent provider.
type AgentConfig struct {
	Provider        string
	DifyAPIKey      string
	DifyBaseURL     string
	RunTimeout      time.Duration
	RequestTimeout  time.Duration
	UploadCacheSize int
	UploadCacheTTL  time.Duration
	DefaultUser     string
}

// ExtractConfig configures document text extraction.
type ExtractConfig struct {
	Pdftotext     string
	MaxPages      int
	EnableOCR     bool
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	DPI           int
}

// ImportConfig configures the rubric import orchestrator.
type ImportConfig struct {
	MinTextLength int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr:       getEnv("GRPC_ADDR", ":8080"),
			MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		},
		LLM: LLMConfig{
			URL:          getEnv("SILICONFLOW_API_URL", "https://api.siliconflow.cn/v1/chat/completions"),
			APIKey:       getEnv("SILICONFLOW_API_KEY", ""),
			Model:        getEnv("SILICONFLOW_MODEL", "Qwen/Qwen3-8B"),
			Temperature:  getEnvAsFloat32("LLM_TEMPERATURE", 0.1),
			MaxTokens:    getEnvAsInt("LLM_MAX_TOKENS", 4096),
			Timeout:      getEnvAsDuration("LLM_TIMEOUT", 180*time.Second),
			RetryMax:     getEnvAsInt("LLM_RETRY_MAX", 3),
			RetryWaitMin: getEnvAsDuration("LLM_RETRY_WAIT_MIN", time.Second),
			RetryWaitMax: getEnvAsDuration("LLM_RETRY_WAIT_MAX", 8*time.Second),
		},
		Agent: AgentConfig{
			Provider:        getEnv("AI_PROVIDER", "dify"),
			DifyAPIKey:      getEnvFirst("", "DIFY_API_KEY", "APP_DIFY_API_KEY", "DIFY_API"),
			DifyBaseURL:     getEnv("DIFY_BASE_URL", "https://api.dify.ai/v1"),
			RunTimeout:      getEnvAsDuration("DIFY_RUN_TIMEOUT", 300*time.Second),
			RequestTimeout:  getEnvAsDuration("DIFY_REQUEST_TIMEOUT", 30*time.Second),
			UploadCacheSize: getEnvAsInt("RUBRIC_UPLOAD_CACHE_SIZE", 256),
			UploadCacheTTL:  getEnvAsDuration("RUBRIC_UPLOAD_CACHE_TTL", time.Hour),
			DefaultUser:     getEnv("AI_DEFAULT_USER", "essaycoach-service"),
		},
		Extract: ExtractConfig{
			Pdftotext:     getEnv("PDFTOTEXT_BIN", "pdftotext"),
			MaxPages:      getEnvAsInt("EXTRACT_MAX_PAGES", 0),
			EnableOCR:     getEnvAsBool("EXTRACT_ENABLE_OCR", false),
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			DPI:           getEnvAsInt("OCR_DPI", 300),
		},
		Import: ImportConfig{
			MinTextLength: getEnvAsInt("RUBRIC_MIN_TEXT_LENGTH", constants.MinRubricTextLength),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFirst returns the first non-empty value among keys.
func getEnvFirst(defaultValue string, keys ...string) string {
	for _, k := range keys {
		if value := os.Getenv(k); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks what every binary needs: a database.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return ConfigurationError("DB_URL is required", "DB_URL")
	}
	return nil
}

// ValidateLLM checks settings for the structure parser.
func (c *Config) ValidateLLM() error {
	if c.LLM.APIKey == "" {
		return ConfigurationError("SILICONFLOW_API_KEY is required", "SILICONFLOW_API_KEY")
	}
	if c.LLM.URL == "" {
		return ConfigurationError("SILICONFLOW_API_URL is required", "SILICONFLOW_API_URL")
	}
	return nil
}

// ValidateAgent checks settings for the essay-agent provider.
func (c *Config) ValidateAgent() error {
	if c.Agent.Provider == "" {
		return ConfigurationError("AI_PROVIDER is required", "AI_PROVIDER")
	}
	if c.Agent.Provider == "dify" && c.Agent.DifyAPIKey == "" {
		return ConfigurationError("DIFY_API_KEY is required", "DIFY_API_KEY")
	}
	return nil
}
