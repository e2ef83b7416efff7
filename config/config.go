package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the sentiscope service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Session   SessionConfig   `mapstructure:"session"`
	Intent    IntentConfig    `mapstructure:"intent"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Fairness  FairnessConfig  `mapstructure:"fairness"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Events    EventsConfig    `mapstructure:"events"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// ServerConfig contains HTTP and websocket settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	PublicURL      string        `mapstructure:"public_url"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// LLMConfig contains the LLM provider configuration
type LLMConfig struct {
	Provider    string           `mapstructure:"provider"` // registry name, e.g. openai
	APIKey      string           `mapstructure:"api_key"`
	BaseURL     string           `mapstructure:"base_url"`
	Timeout     time.Duration    `mapstructure:"timeout"`
	MaxRetries  int              `mapstructure:"max_retries"`
	MaxTokens   int              `mapstructure:"max_tokens"`
	Temperature float64          `mapstructure:"temperature"`
	Routing     LLMRoutingConfig `mapstructure:"routing"`
}

// LLMRoutingConfig defines which model to use for different stages
type LLMRoutingConfig struct {
	Parsing   string `mapstructure:"parsing"`
	Analysis  string `mapstructure:"analysis"`
	Synthesis string `mapstructure:"synthesis"`
	Fallback  string `mapstructure:"fallback"`
}

// Model resolves the model for a stage, falling back when unset.
func (r LLMRoutingConfig) Model(stage string) string {
	var m string
	switch stage {
	case "parsing":
		m = r.Parsing
	case "analysis":
		m = r.Analysis
	case "synthesis":
		m = r.Synthesis
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.Provider) == "" {
		return fmt.Errorf("llm.provider required")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	if l.Routing.Fallback == "" {
		return fmt.Errorf("llm.routing.fallback required")
	}
	return nil
}

// TelemetryConfig contains metrics and tracing settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// AgentsConfig contains stage execution settings
type AgentsConfig struct {
	MaxConcurrentCountries int           `mapstructure:"max_concurrent_countries"`
	MaxRetries             int           `mapstructure:"max_retries"`
	InitialBackoff         time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff             time.Duration `mapstructure:"max_backoff"`
	Sentiment              string        `mapstructure:"sentiment"` // registry names
	Bias                   string        `mapstructure:"bias"`
	Synthesizer            string        `mapstructure:"synthesizer"`
}

func (a AgentsConfig) Validate() error {
	if a.MaxConcurrentCountries <= 0 {
		return fmt.Errorf("agents.max_concurrent_countries must be > 0")
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("agents.max_retries cannot be negative")
	}
	return nil
}

// SessionConfig controls the orchestrator's limits and timeouts
type SessionConfig struct {
	MaxQueryLength int           `mapstructure:"max_query_length"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SearchTimeout  time.Duration `mapstructure:"search_timeout"`
	ScoringTimeout time.Duration `mapstructure:"scoring_timeout"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	RetainFor      time.Duration `mapstructure:"retain_for"`
	EventBuffer    int           `mapstructure:"event_buffer"`
}

func (s SessionConfig) Validate() error {
	if s.MaxQueryLength <= 0 {
		return fmt.Errorf("session.max_query_length must be > 0")
	}
	if s.Timeout <= 0 || s.SearchTimeout <= 0 || s.ScoringTimeout <= 0 {
		return fmt.Errorf("session timeouts must be > 0")
	}
	if s.SearchTimeout > s.Timeout || s.ScoringTimeout > s.Timeout {
		return fmt.Errorf("session stage timeouts cannot exceed session.timeout")
	}
	return nil
}

// IntentConfig tunes the query parser
type IntentConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	MaxCountries  int     `mapstructure:"max_countries"`
}

// SourcesConfig contains search provider configurations
type SourcesConfig struct {
	Provider   string          `mapstructure:"provider"` // registry name: tavily, serper, brave, newsapi
	MaxResults int             `mapstructure:"max_results"`
	EnrichTopN int             `mapstructure:"enrich_top_n"`
	Timeout    time.Duration   `mapstructure:"timeout"`
	Tavily     TavilyConfig    `mapstructure:"tavily"`
	NewsAPI    NewsAPIConfig   `mapstructure:"newsapi"`
	WebSearch  WebSearchConfig `mapstructure:"web_search"`
}

// TavilyConfig contains Tavily search settings
type TavilyConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	Depth    string `mapstructure:"depth"`
}

// NewsAPIConfig contains NewsAPI settings
type NewsAPIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	BraveAPIKey  string `mapstructure:"brave_api_key"`
	SerperAPIKey string `mapstructure:"serper_api_key"`
}

func (s SourcesConfig) Validate() error {
	if strings.TrimSpace(s.Provider) == "" {
		return fmt.Errorf("sources.provider required")
	}
	if s.MaxResults <= 0 {
		return fmt.Errorf("sources.max_results must be > 0")
	}
	return nil
}

// ArtifactsConfig controls artifact rendering
type ArtifactsConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	Snapshots      bool          `mapstructure:"snapshots"` // render PNG images via headless chrome
	ChromePath     string        `mapstructure:"chrome_path"`
	AssetsHost     string        `mapstructure:"assets_host"`
	IncludeRawDocs bool          `mapstructure:"include_raw_docs"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	File     FileConfig     `mapstructure:"file"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	S3       S3Config       `mapstructure:"s3"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether redis was configured at all.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr renders host:port.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// FileConfig contains local object storage settings
type FileConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether the history database is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN builds a connection string from URL or discrete fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// S3Config contains object storage configuration.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether S3 storage should be used instead of the local filesystem.
func (s S3Config) Enabled() bool { return strings.TrimSpace(s.Endpoint) != "" }

func (s S3Config) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" && strings.TrimSpace(s.Bucket) == "" {
		return nil
	}
	if strings.TrimSpace(s.Bucket) == "" {
		return fmt.Errorf("storage.s3.bucket required when endpoint is provided")
	}
	return nil
}

// FairnessConfig controls credibility scoring adjustments.
type FairnessConfig struct {
	Enabled             bool               `mapstructure:"enabled"`
	BaselineCredibility float64            `mapstructure:"baseline_credibility"`
	MinCredibility      float64            `mapstructure:"min_credibility"`
	DomainBias          map[string]float64 `mapstructure:"domain_bias"`
}

// RateLimitConfig bounds calls to external providers across all sessions.
type RateLimitConfig struct {
	Window       time.Duration  `mapstructure:"window"`
	SearchPerMin int            `mapstructure:"search_per_window"`
	LLMPerMin    int            `mapstructure:"llm_per_window"`
	Shared       bool           `mapstructure:"shared"` // use redis counters
	Overrides    map[string]int `mapstructure:"overrides"`
}

// EventsConfig controls NATS notifications.
type EventsConfig struct {
	NatsURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
	Stream  string `mapstructure:"stream"`
}

// RetentionConfig controls the session/artifact sweeper.
type RetentionConfig struct {
	Cron      string        `mapstructure:"cron"`
	MaxAge    time.Duration `mapstructure:"max_age"`
	PurgeBlob bool          `mapstructure:"purge_blobs"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.pong_timeout", 60*time.Second)
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.max_message_size", 64*1024)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.max_tokens", 1200)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.routing.parsing", "")
	v.SetDefault("llm.routing.analysis", "")
	v.SetDefault("llm.routing.synthesis", "")
	v.SetDefault("llm.routing.fallback", "gpt-4o-mini")
	v.SetDefault("telemetry.service_name", "sentiscope")
	v.SetDefault("agents.max_concurrent_countries", 3)
	v.SetDefault("agents.max_retries", 2)
	v.SetDefault("agents.initial_backoff", 300*time.Millisecond)
	v.SetDefault("agents.max_backoff", 5*time.Second)
	v.SetDefault("agents.sentiment", "llm")
	v.SetDefault("agents.bias", "llm")
	v.SetDefault("agents.synthesizer", "llm")
	v.SetDefault("session.max_query_length", 2000)
	v.SetDefault("session.timeout", 5*time.Minute)
	v.SetDefault("session.search_timeout", 30*time.Second)
	v.SetDefault("session.scoring_timeout", 90*time.Second)
	v.SetDefault("session.chunk_size", 240)
	v.SetDefault("session.retain_for", 2*time.Hour)
	v.SetDefault("session.event_buffer", 128)
	v.SetDefault("intent.min_confidence", 0.5)
	v.SetDefault("intent.max_countries", 10)
	v.SetDefault("sources.provider", "tavily")
	v.SetDefault("sources.max_results", 8)
	v.SetDefault("sources.enrich_top_n", 0)
	v.SetDefault("sources.timeout", 15*time.Second)
	v.SetDefault("sources.tavily.depth", "basic")
	v.SetDefault("artifacts.timeout", 45*time.Second)
	v.SetDefault("storage.file.data_dir", "./data/artifacts")
	v.SetDefault("storage.postgres.timeout", 5*time.Second)
	v.SetDefault("storage.redis.timeout", 3*time.Second)
	v.SetDefault("fairness.baseline_credibility", 0.6)
	v.SetDefault("fairness.min_credibility", 0.2)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.search_per_window", 120)
	v.SetDefault("rate_limit.llm_per_window", 240)
	v.SetDefault("events.subject", "sessions.completed")
	v.SetDefault("events.stream", "SESSIONS")
	v.SetDefault("retention.cron", "*/15 * * * *")
	v.SetDefault("retention.max_age", 24*time.Hour)

	// Secrets and endpoints usually arrive via env; viper only binds keys it knows.
	for _, key := range []string{
		"llm.api_key", "llm.base_url", "telemetry.otlp_endpoint",
		"sources.tavily.api_key", "sources.newsapi.api_key",
		"sources.web_search.brave_api_key", "sources.web_search.serper_api_key",
		"storage.redis.host", "storage.redis.password", "storage.postgres.url",
		"storage.s3.endpoint", "storage.s3.bucket", "storage.s3.access_key_id", "storage.s3.secret_access_key",
		"events.nats_url",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads config from path (or the usual search paths when empty) and SENTISCOPE_* env vars.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SENTISCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Fairness = cfg.Fairness.Normalize()

	validators := []func() error{
		cfg.LLM.Validate,
		cfg.Agents.Validate,
		cfg.Session.Validate,
		cfg.Sources.Validate,
		cfg.Storage.Postgres.Validate,
		cfg.Storage.S3.Validate,
		cfg.Fairness.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadConfig is Load for command entrypoints; it panics on invalid configuration.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}
