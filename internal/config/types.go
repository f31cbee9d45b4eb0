package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Cleaning   CleaningConfig   `yaml:"cleaning" mapstructure:"cleaning"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" mapstructure:"embeddings"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Vector     VectorConfig     `yaml:"vector" mapstructure:"vector"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	WebSocket  WebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// CleaningConfig contains email cleaning pipeline configuration
type CleaningConfig struct {
	InternalDomain    string        `yaml:"internal_domain" mapstructure:"internal_domain"`
	OrganizationNames []string      `yaml:"organization_names" mapstructure:"organization_names"`
	NameMethods       []string      `yaml:"name_methods" mapstructure:"name_methods"`
	URLOption         string        `yaml:"url_option" mapstructure:"url_option"` // simple or complex
	Disambiguate      []string      `yaml:"disambiguate" mapstructure:"disambiguate"`
	StrictNewlines    bool          `yaml:"strict_newlines" mapstructure:"strict_newlines"`
	RegexTimeout      time.Duration `yaml:"regex_timeout" mapstructure:"regex_timeout"`
	MaxInputBytes     int           `yaml:"max_input_bytes" mapstructure:"max_input_bytes"`
	Thread            ThreadConfig  `yaml:"thread" mapstructure:"thread"`
}

// ThreadConfig contains thread deduplication configuration
type ThreadConfig struct {
	Delimiter          string `yaml:"delimiter" mapstructure:"delimiter"`
	MinParagraphLength int    `yaml:"min_paragraph_length" mapstructure:"min_paragraph_length"`
}

// ScoringConfig contains intent scoring configuration
type ScoringConfig struct {
	Enabled         bool    `yaml:"enabled" mapstructure:"enabled"`
	Threshold       float64 `yaml:"threshold" mapstructure:"threshold"`
	ReferencePath   string  `yaml:"reference_path" mapstructure:"reference_path"`
	ReferenceSource string  `yaml:"reference_source" mapstructure:"reference_source"` // file or store
	ReferenceLabel  int     `yaml:"reference_label" mapstructure:"reference_label"`
}

// EmbeddingsConfig contains embedding service configuration
type EmbeddingsConfig struct {
	Type       string        `yaml:"type" mapstructure:"type"` // hash, onnx or azure
	Dimensions int           `yaml:"dimensions" mapstructure:"dimensions"`
	ModelPath  string        `yaml:"model_path" mapstructure:"model_path"`
	VocabPath  string        `yaml:"vocab_path" mapstructure:"vocab_path"`
	MaxLength  int           `yaml:"max_length" mapstructure:"max_length"`
	BatchSize  int           `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Azure      AzureConfig   `yaml:"azure" mapstructure:"azure"`
}

// AzureConfig contains Azure OpenAI embedding deployment settings
type AzureConfig struct {
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	Deployment string `yaml:"deployment" mapstructure:"deployment"`
}

// CacheConfig contains Redis embedding cache configuration
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL        string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns    int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	DefaultTTL      time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix       string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// VectorConfig contains pgvector reference store configuration
type VectorConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// BatchConfig contains batch cleaning configuration
type BatchConfig struct {
	Workers     int    `yaml:"workers" mapstructure:"workers"` // 0 picks half the CPUs minus one
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	TextColumn  string `yaml:"text_column" mapstructure:"text_column"`
	LabelColumn string `yaml:"label_column" mapstructure:"label_column"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RateLimitConfig contains per-client request rate limiting
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// DefaultDelimiter separates the emails of a thread
const DefaultDelimiter = "\n\n==============+++EMAIL_BREAK+++==============\n\n"

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 2 << 20,
		},
		Cleaning: CleaningConfig{
			InternalDomain:    "mckinsey.com",
			OrganizationNames: []string{"McKinsey & Company", "McKinsey & Co."},
			NameMethods:       []string{"regex"},
			URLOption:         "complex",
			Disambiguate:      []string{},
			StrictNewlines:    true,
			RegexTimeout:      2 * time.Second,
			MaxInputBytes:     1 << 20,
			Thread: ThreadConfig{
				Delimiter:          DefaultDelimiter,
				MinParagraphLength: 30,
			},
		},
		Scoring: ScoringConfig{
			Enabled:         true,
			Threshold:       0.4,
			ReferencePath:   "data/reference.json",
			ReferenceSource: "file",
			ReferenceLabel:  1,
		},
		Embeddings: EmbeddingsConfig{
			Type:       "hash",
			Dimensions: 384,
			ModelPath:  "models/model.onnx",
			VocabPath:  "models/vocab.txt",
			MaxLength:  128,
			BatchSize:  32,
			Timeout:    10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:         false,
			RedisURL:        "redis://localhost:6379/0",
			MaxConnections:  10,
			MinIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			DefaultTTL:      24 * time.Hour,
			KeyPrefix:       "mailsentinel",
		},
		Vector: VectorConfig{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost:5432/mailsentinel?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Batch: BatchConfig{
			Workers:     0,
			BatchSize:   1000,
			TextColumn:  "text",
			LabelColumn: "label",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			AllowedOrigins:  []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
			CleanupInterval:   5 * time.Minute,
		},
	}
	cfg.Logging.File.Path = "logs/mail-sentinel.log"
	return cfg
}
