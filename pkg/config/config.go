package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Database     DatabaseConfig     `yaml:"database"`
	Index        IndexConfig        `yaml:"index"`
	Scraper      ScraperConfig      `yaml:"scraper"`
	Processor    ProcessorConfig    `yaml:"processor"`
	Cache        CacheConfig        `yaml:"cache"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
}

type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	EmbedModel     string        `yaml:"embed_model"`
	SystemPrompt   string        `yaml:"system_prompt"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Timeout        time.Duration `yaml:"timeout"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
}

type IndexConfig struct {
	// Backend selects where the embedding cache lives: "file" or "pgvector".
	Backend   string `yaml:"backend"`
	DataDir   string `yaml:"data_dir"`
	BatchSize int    `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
	TopK      int    `yaml:"top_k"`
}

type ScraperConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxBytes         int64         `yaml:"max_bytes"`
	UserAgent        string        `yaml:"user_agent"`
	RateLimit        float64       `yaml:"rate_limit"`
	MinContentLength int           `yaml:"min_content_length"`
}

type ProcessorConfig struct {
	ChunkSize    int     `yaml:"chunk_size"`
	OverlapRatio float64 `yaml:"overlap_ratio"`
}

type CacheConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	MaxSize       int    `yaml:"max_size"`
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// IsEnabled defaults to true when the key is absent from the file.
func (c CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type OrchestratorConfig struct {
	MaxRetries    *int          `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	TimeoutGrowth float64       `yaml:"timeout_growth"`
	MaxTimeout    time.Duration `yaml:"max_timeout"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// Retries defaults to 2 when the key is absent. An explicit 0 disables retries.
func (c OrchestratorConfig) Retries() int {
	if c.MaxRetries == nil {
		return 2
	}
	return *c.MaxRetries
}

type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Debug bool   `yaml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/hospital-ai/config.yaml"),
			"/etc/hospital-ai/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://127.0.0.1:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "llama3.1"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.ConnectTimeout == 0 {
		config.LLM.ConnectTimeout = 30 * time.Second
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 30 * time.Second
	}
	if config.LLM.EmbedTimeout == 0 {
		config.LLM.EmbedTimeout = 120 * time.Second
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "ai_embeddings"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "file"
	}
	if config.Index.DataDir == "" {
		config.Index.DataDir = "ai_data"
	}
	if config.Index.BatchSize == 0 {
		config.Index.BatchSize = 32
	}
	if config.Index.Workers == 0 {
		config.Index.Workers = 4
	}
	if config.Index.TopK == 0 {
		config.Index.TopK = 3
	}

	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}
	if config.Scraper.MaxBytes == 0 {
		config.Scraper.MaxBytes = 2_000_000
	}
	if config.Scraper.UserAgent == "" {
		config.Scraper.UserAgent = "PI4-HospitalBot/1.0 (+for academic demo)"
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.MinContentLength == 0 {
		config.Scraper.MinContentLength = 300
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1200
	}
	if config.Processor.OverlapRatio == 0 {
		config.Processor.OverlapRatio = 0.15
	}

	if config.Cache.MaxSize == 0 {
		config.Cache.MaxSize = 100
	}
	if config.Cache.Backend == "" {
		config.Cache.Backend = "memory"
	}
	if config.Cache.RedisPrefix == "" {
		config.Cache.RedisPrefix = "ai:cache"
	}

	if config.Orchestrator.RetryDelay == 0 {
		config.Orchestrator.RetryDelay = time.Second
	}
	if config.Orchestrator.TimeoutGrowth == 0 {
		config.Orchestrator.TimeoutGrowth = 1.5
	}
	if config.Orchestrator.MaxTimeout == 0 {
		config.Orchestrator.MaxTimeout = 300 * time.Second
	}
	if config.Orchestrator.SlowThreshold == 0 {
		config.Orchestrator.SlowThreshold = 60 * time.Second
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if timeout := os.Getenv("OLLAMA_TIMEOUT"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil {
			config.LLM.Timeout = time.Duration(secs) * time.Second
		}
	}
	if system := os.Getenv("OLLAMA_SYSTEM"); system != "" {
		config.LLM.SystemPrompt = system
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		config.Cache.RedisAddr = redisAddr
	}
	if dataDir := os.Getenv("AI_DATA_DIR"); dataDir != "" {
		config.Index.DataDir = dataDir
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}
