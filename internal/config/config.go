package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the qanoneed configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
	Generation GenerationConfig `yaml:"generation"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	CaseMatch  CaseMatchConfig  `yaml:"casematch"`
	Judgment   JudgmentConfig   `yaml:"judgment"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	CORSOrigins     []string `yaml:"cors_origins"`
	APIKeys         []string `yaml:"api_keys"`
}

// ProviderConfig holds credentials for an LLM provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// RetryConfig holds retry policy for generation calls.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

// GenerationConfig selects and tunes the text generation provider.
type GenerationConfig struct {
	Provider    string                    `yaml:"provider"` // openai | gemini
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Model       string                    `yaml:"model"`
	Temperature float32                   `yaml:"temperature"`
	MaxTokens   int                       `yaml:"max_tokens"`
	Retry       RetryConfig               `yaml:"retry"`
	Budget      BudgetConfig              `yaml:"budget"`
}

// ProviderSettings returns the settings of the selected provider.
func (g GenerationConfig) ProviderSettings() ProviderConfig {
	return g.Providers[g.Provider]
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// RetrievalConfig holds passage store settings.
type RetrievalConfig struct {
	Backend         string `yaml:"backend"` // flat | redis | postgres
	IndexPath       string `yaml:"index_path"`
	IndexName       string `yaml:"index_name"`
	TopK            int    `yaml:"top_k"`
	ContextPassages int    `yaml:"context_passages"`
	QueryCacheSize  int    `yaml:"query_cache_size"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a Redis store is configured.
func (r RedisConfig) Enabled() bool { return len(r.Addrs) > 0 }

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// StorageConfig holds key prefix and blob storage settings.
type StorageConfig struct {
	KeyPrefix string   `yaml:"key_prefix"`
	S3        S3Config `yaml:"s3"`
}

// S3Config holds S3 credentials for s3:// corpus paths.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// ClassifierConfig holds domain classifier settings.
type ClassifierConfig struct {
	Enabled   *bool `yaml:"enabled"`
	CacheSize int   `yaml:"cache_size"`
}

// IsEnabled reports whether the classifier runs on /chat (default true).
func (c ClassifierConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// PipelineConfig holds staged pipeline settings.
type PipelineConfig struct {
	Workers   int    `yaml:"workers"`
	OnFailure string `yaml:"on_failure"` // fail | last_success | direct
}

// CaseMatchConfig holds case matcher settings.
type CaseMatchConfig struct {
	CorpusPath  string  `yaml:"corpus_path"`
	MaxItems    int     `yaml:"max_items"`
	BatchSize   int     `yaml:"batch_size"`
	Concurrency int     `yaml:"concurrency"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// JudgmentConfig holds judgment synthesizer settings.
type JudgmentConfig struct {
	MaxMatches   int `yaml:"max_matches"`
	SummaryChars int `yaml:"summary_chars"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory is loaded first when present.
func Load(env string) (Config, error) {
	_ = godotenv.Load()

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables in raw YAML, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	// a full pipeline run is three sequential generation calls
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 180
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if len(c.HTTP.CORSOrigins) == 0 {
		c.HTTP.CORSOrigins = []string{"*"}
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o"
	}
	if c.Generation.Retry.MaxAttempts <= 0 {
		c.Generation.Retry.MaxAttempts = 3
	}
	if c.Generation.Retry.BaseDelayMS <= 0 {
		c.Generation.Retry.BaseDelayMS = 300
	}

	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}

	if c.Retrieval.Backend == "" {
		c.Retrieval.Backend = "flat"
	}
	if c.Retrieval.IndexName == "" {
		c.Retrieval.IndexName = "qanoneed:passages"
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 20
	}
	if c.Retrieval.ContextPassages <= 0 {
		c.Retrieval.ContextPassages = 5
	}
	if c.Retrieval.QueryCacheSize == 0 {
		c.Retrieval.QueryCacheSize = 1024
	}

	if c.Database.Redis.ReadinessTimeout <= 0 {
		c.Database.Redis.ReadinessTimeout = 10
	}
	if c.Database.Postgres.Table == "" {
		c.Database.Postgres.Table = "legal_passages"
	}

	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "qanoneed:"
	}
	if c.Storage.S3.Region == "" {
		c.Storage.S3.Region = "us-east-1"
	}

	if c.Classifier.CacheSize == 0 {
		c.Classifier.CacheSize = 1024
	}

	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.OnFailure == "" {
		c.Pipeline.OnFailure = "fail"
	}

	if c.CaseMatch.BatchSize <= 0 {
		c.CaseMatch.BatchSize = 100
	}
	if c.CaseMatch.Concurrency <= 0 {
		c.CaseMatch.Concurrency = 1
	}
	if c.CaseMatch.Model == "" {
		c.CaseMatch.Model = "gpt-4o-mini"
	}
	if c.CaseMatch.Temperature == 0 {
		c.CaseMatch.Temperature = 0.5
	}
	if c.CaseMatch.MaxTokens <= 0 {
		c.CaseMatch.MaxTokens = 2000
	}

	if c.Judgment.MaxMatches <= 0 {
		c.Judgment.MaxMatches = 5
	}
	if c.Judgment.SummaryChars <= 0 {
		c.Judgment.SummaryChars = 300
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Generation.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("generation.provider must be \"openai\" or \"gemini\", got %q", c.Generation.Provider)
	}
	switch c.Generation.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf(
			"generation.budget.action must be \"warn\" or \"reject\", got %q", c.Generation.Budget.Action,
		)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be within [0, 2], got %g", c.Generation.Temperature)
	}

	switch c.Retrieval.Backend {
	case "flat":
		if c.Retrieval.IndexPath == "" {
			return fmt.Errorf("retrieval.index_path is required for the flat backend")
		}
	case "redis":
		if !c.Database.Redis.Enabled() {
			return fmt.Errorf("database.redis.addrs is required for the redis backend")
		}
	case "postgres":
		if c.Database.Postgres.DSN == "" {
			return fmt.Errorf("database.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("retrieval.backend must be flat, redis or postgres, got %q", c.Retrieval.Backend)
	}

	switch c.Pipeline.OnFailure {
	case "fail", "last_success", "direct":
	default:
		return fmt.Errorf("pipeline.on_failure must be fail, last_success or direct, got %q", c.Pipeline.OnFailure)
	}

	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
