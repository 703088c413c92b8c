package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ErrConfiguration is returned when required connection parameters are absent.
var ErrConfiguration = errors.New("invalid configuration")

const DefaultPath = "config/config.toml"

type ExtractionPrompts struct {
	Entities      string `toml:"entities"`
	Relationships string `toml:"relationships"`
}

type LLMConfig struct {
	Provider       string  `toml:"provider"`
	Model          string  `toml:"model"`
	EmbeddingModel string  `toml:"embedding_model"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	APIVersion     string  `toml:"api_version"`
	Temperature    float32 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSec     int     `toml:"timeout_sec"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type MemgraphConfig struct {
	URI             string `toml:"uri"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	Database        string `toml:"database"`
	ConnectTimeout  int    `toml:"connect_timeout_sec"`
	QueryTimeoutSec int    `toml:"query_timeout_sec"`
}

type GraphConfig struct {
	GroupName     string `toml:"group_name"`
	ContentLimit  int    `toml:"content_limit"`
	SearchWindow  int    `toml:"search_window"`
	NeighborLimit int    `toml:"neighbor_limit"`
}

type ConcurrencyConfig struct {
	BulkIngest int `toml:"bulk_ingest"`
}

type CacheConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLMinutes    int    `toml:"ttl_minutes"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type Config struct {
	LLM         LLMConfig         `toml:"llm"`
	Memgraph    MemgraphConfig    `toml:"memgraph"`
	Graph       GraphConfig       `toml:"graph"`
	Extraction  ExtractionPrompts `toml:"extraction"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Cache       CacheConfig       `toml:"cache"`
	Logging     LoggingConfig     `toml:"logging"`
	Server      ServerConfig      `toml:"server"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnv reads .env, the TOML file at path (if it exists) and then
// applies environment overrides and defaults. A missing file is not an error.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.Memgraph.URI, "MEMGRAPH_URI")
	set(&c.Memgraph.User, "MEMGRAPH_USER")
	set(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	set(&c.Memgraph.Database, "MEMGRAPH_DATABASE")
	set(&c.LLM.Provider, "LLM_PROVIDER")
	set(&c.LLM.Model, "LLM_MODEL")
	set(&c.LLM.EmbeddingModel, "LLM_EMBEDDING_MODEL")
	set(&c.LLM.APIKey, "LLM_API_KEY")
	set(&c.LLM.BaseURL, "LLM_BASE_URL")
	set(&c.LLM.APIVersion, "LLM_API_VERSION")
	set(&c.Graph.GroupName, "GRAPH_GROUP_NAME")
	set(&c.Cache.RedisAddr, "REDIS_ADDR")
	set(&c.Cache.RedisPassword, "REDIS_PASSWORD")
	set(&c.Logging.Level, "LOG_LEVEL")
	set(&c.Logging.Format, "LOG_FORMAT")
	set(&c.Server.Port, "PORT")
}

func (c *Config) ApplyDefaults() {
	if c.Memgraph.URI == "" {
		c.Memgraph.URI = "bolt://localhost:7687"
	}
	if c.Memgraph.ConnectTimeout == 0 {
		c.Memgraph.ConnectTimeout = 10
	}
	if c.Memgraph.QueryTimeoutSec == 0 {
		c.Memgraph.QueryTimeoutSec = 30
	}

	// Default to Ollama if provider is empty
	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
		if c.LLM.Model == "" {
			c.LLM.Model = "gpt-oss:latest"
		}
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = "http://localhost:11434"
		}
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1000
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 60
	}

	if c.Graph.GroupName == "" {
		c.Graph.GroupName = "default_graph"
	}
	if c.Graph.ContentLimit == 0 {
		c.Graph.ContentLimit = 2000
	}
	if c.Graph.SearchWindow == 0 {
		c.Graph.SearchWindow = 100
	}
	if c.Graph.NeighborLimit == 0 {
		c.Graph.NeighborLimit = 20
	}

	if c.Concurrency.BulkIngest <= 0 {
		c.Concurrency.BulkIngest = 4
	}
	if c.Cache.TTLMinutes == 0 {
		c.Cache.TTLMinutes = 24 * 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
}

// Validate checks that every parameter needed to open the backends is present.
func (c *Config) Validate() error {
	var missing []string

	if c.Memgraph.URI == "" {
		missing = append(missing, "memgraph.uri")
	}
	if c.Graph.GroupName == "" {
		missing = append(missing, "graph.group_name")
	}
	if c.LLM.Model == "" {
		missing = append(missing, "llm.model")
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "ollama":
		if c.LLM.BaseURL == "" {
			missing = append(missing, "llm.base_url")
		}
	case "openai", "claude", "gemini":
		if c.LLM.APIKey == "" {
			missing = append(missing, "llm.api_key")
		}
	case "azure":
		if c.LLM.APIKey == "" {
			missing = append(missing, "llm.api_key")
		}
		if c.LLM.BaseURL == "" {
			missing = append(missing, "llm.base_url")
		}
	case "":
		missing = append(missing, "llm.provider")
	default:
		return fmt.Errorf("%w: unsupported llm provider %q", ErrConfiguration, c.LLM.Provider)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}
