package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverQdrant = "qdrant"
)

// Config holds the vecragd service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Connection ConnectionConfig `yaml:"connection"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
}

// ConnectionConfig is the vector store target.
type ConnectionConfig struct {
	Driver           string `yaml:"driver"` // redis (default), valkey, qdrant
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Namespace        string `yaml:"namespace"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	Anonymous        bool   `yaml:"anonymous"` // skip the demo/demo credential fallback
	Standalone       bool   `yaml:"standalone"`
	UseTLS           bool   `yaml:"use_tls"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the embedding provider and cache settings.
type EmbeddingConfig struct {
	Provider            string      `yaml:"provider"`
	APIKey              string      `yaml:"api_key"`
	BaseURL             string      `yaml:"base_url"`
	Model               string      `yaml:"model"`
	Dimensions          int         `yaml:"dimensions"`
	DocumentInstruction string      `yaml:"document_instruction"`
	QueryInstruction    string      `yaml:"query_instruction"`
	MaxBatchSize        int         `yaml:"max_batch_size"`
	TimeoutSec          int         `yaml:"timeout_sec"`
	Cache               CacheConfig `yaml:"cache"`
}

// CacheConfig controls the Redis-backed embedding cache. It is ignored for qdrant.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"` // 0 keeps entries forever
}

// ChunkingConfig selects the splitter. Leaving both size and overlap unset
// gives 400/80; an explicit size without overlap means no overlap.
type ChunkingConfig struct {
	Strategy string `yaml:"strategy"` // recursive (default), langchain
	Size     int    `yaml:"size"`
	Overlap  int    `yaml:"overlap"`
}

// RetrievalConfig holds collection and HNSW settings.
type RetrievalConfig struct {
	Collection      string `yaml:"collection"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads, expands, defaults and validates one YAML file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Substitute env variables of the form ${VAR}
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

// HostEnv names the environment variable that overrides the default host.
const HostEnv = "IRIS_HOSTNAME"

// DefaultHost is $IRIS_HOSTNAME, or localhost when unset.
func DefaultHost() string {
	if h := os.Getenv(HostEnv); h != "" {
		return h
	}
	return "localhost"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 32 << 20
	}

	if c.Connection.Driver == "" {
		c.Connection.Driver = DriverRedis
	}
	if c.Connection.Host == "" {
		c.Connection.Host = DefaultHost()
	}
	if c.Connection.Port <= 0 {
		c.Connection.Port = 1972
	}
	if c.Connection.Namespace == "" {
		c.Connection.Namespace = "USER"
	}
	if c.Connection.Anonymous {
		c.Connection.Username, c.Connection.Password = "", ""
	} else if c.Connection.Username == "" && c.Connection.Password == "" {
		c.Connection.Username = "demo"
		c.Connection.Password = "demo"
	}
	if c.Connection.ReadinessTimeout <= 0 {
		c.Connection.ReadinessTimeout = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-ada-002"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxBatchSize <= 0 {
		c.Embedding.MaxBatchSize = 256
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 60
	}

	if c.Chunking.Strategy == "" {
		c.Chunking.Strategy = "recursive"
	}
	if c.Chunking.Size <= 0 && c.Chunking.Overlap == 0 {
		c.Chunking.Size = 400
		c.Chunking.Overlap = 80
	}

	if c.Retrieval.Collection == "" {
		c.Retrieval.Collection = "documents"
	}
	if c.Retrieval.HNSWM <= 0 {
		c.Retrieval.HNSWM = 16
	}
	if c.Retrieval.HNSWEFConstruct <= 0 {
		c.Retrieval.HNSWEFConstruct = 200
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Connection.Driver {
	case DriverRedis, DriverValkey, DriverQdrant:
	default:
		return fmt.Errorf("connection.driver must be redis, valkey or qdrant, got %q", c.Connection.Driver)
	}
	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port must be between 1 and 65535, got %d", c.Connection.Port)
	}
	if c.Embedding.APIKey == "" {
		return errors.New("embedding.api_key is required (set OPENAI_API_KEY)")
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	switch c.Chunking.Strategy {
	case "recursive", "langchain":
	default:
		return fmt.Errorf("chunking.strategy must be recursive or langchain, got %q", c.Chunking.Strategy)
	}
	return nil
}

// Addr returns host:port of the vector store.
func (c ConnectionConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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
