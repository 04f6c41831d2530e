package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_LINKS_PATH.
const EnvPrefix = "HARVESTER"

// AppName names the per-user config directory.
const AppName = "harvester"

// UserConfigDir returns the XDG config directory searched for config.yaml.
func UserConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Config holds all application configuration.
type Config struct {
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Embeddings    Embeddings    `mapstructure:"embeddings"`
	Fetch         Fetch         `mapstructure:"fetch"`
	Retry         Retry         `mapstructure:"retry"`
	Collector     Collector     `mapstructure:"collector"`
	Harvester     Harvester     `mapstructure:"harvester"`
	Links         Links         `mapstructure:"links"`
	Storage       Storage       `mapstructure:"storage"`
	MCP           MCP           `mapstructure:"mcp"`
}

// Elasticsearch holds vector index connection configuration.
type Elasticsearch struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	APIKey    string   `mapstructure:"api_key"`
}

// Embeddings holds chunk embedding configuration.
type Embeddings struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	SocketPath string `mapstructure:"socket_path"`
	Model      string `mapstructure:"model"`
}

// Fetch holds HTTP fetch settings shared by both stages.
type Fetch struct {
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Delay       time.Duration `mapstructure:"delay"`
	Parallelism int           `mapstructure:"parallelism"`
}

// Retry holds the backoff policy for transient failures.
type Retry struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

// Collector holds listing crawl configuration.
type Collector struct {
	StartURL        string `mapstructure:"start_url"`
	Region          string `mapstructure:"region"`
	PathPrefix      string `mapstructure:"path_prefix"`
	PaginationParam string `mapstructure:"pagination_param"`
	NextSelector    string `mapstructure:"next_selector"`
}

// Harvester holds article extraction and chunking configuration.
type Harvester struct {
	Container    string `mapstructure:"container"`
	Items        string `mapstructure:"items"`
	Mode         string `mapstructure:"mode"` // text or markdown
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	Concurrency  int    `mapstructure:"concurrency"`
}

// Links selects where collected links are kept.
type Links struct {
	Backend    string `mapstructure:"backend"` // file, sqlite or s3
	Path       string `mapstructure:"path"`
	SQLitePath string `mapstructure:"sqlite_path"`
	ObjectKey  string `mapstructure:"object_key"`
}

// Storage holds S3/MinIO storage configuration.
type Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Elasticsearch: Elasticsearch{
			Addresses: []string{"http://localhost:9200"},
			Index:     "blog-chunks",
		},
		Embeddings: Embeddings{
			Enabled: false, // Disabled by default, requires an embeddings endpoint
			Model:   "ai/embeddinggemma",
		},
		Fetch: Fetch{
			UserAgent:   "blog-harvester/1.0",
			Timeout:     30 * time.Second,
			Parallelism: 1,
		},
		Retry: Retry{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
		},
		Collector: Collector{
			StartURL:        "https://www.health.harvard.edu/blog",
			Region:          `div.px-6.py-10.md\:py-12.md\:px-10.xl\:p-20`,
			PathPrefix:      "/blog",
			PaginationParam: "page",
			NextSelector:    `a[rel="next"]`,
		},
		Harvester: Harvester{
			Container:    "div.content-repository-content",
			Items:        "p, li",
			Mode:         "text",
			ChunkSize:    1000,
			ChunkOverlap: 100,
			Concurrency:  4,
		},
		Links: Links{
			Backend:    "file",
			Path:       "/app/data/links.json",
			SQLitePath: "/app/data/links.db",
			ObjectKey:  "links.json",
		},
		Storage: Storage{
			Endpoint:        "localhost:9002",
			Bucket:          "blog-harvester",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
		},
		MCP: MCP{
			Name:    "blog-harvester",
			Version: "1.0.0",
		},
	}
}

// Validate reports the first configuration error.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Collector.StartURL) == "" {
		return errors.New("collector.start_url is required")
	}
	if c.Harvester.ChunkSize <= 0 {
		return fmt.Errorf("harvester.chunk_size must be positive, got %d", c.Harvester.ChunkSize)
	}
	if c.Harvester.ChunkOverlap < 0 || c.Harvester.ChunkOverlap >= c.Harvester.ChunkSize {
		return fmt.Errorf("harvester.chunk_overlap must be in [0, %d), got %d",
			c.Harvester.ChunkSize, c.Harvester.ChunkOverlap)
	}
	switch c.Harvester.Mode {
	case "", "text", "markdown":
	default:
		return fmt.Errorf("unknown harvester.mode %q", c.Harvester.Mode)
	}
	switch c.Links.Backend {
	case "", "file", "sqlite", "s3":
	default:
		return fmt.Errorf("unknown links.backend %q", c.Links.Backend)
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return errors.New("elasticsearch.addresses is required")
	}
	if c.Elasticsearch.Index == "" {
		return errors.New("elasticsearch.index is required")
	}
	return nil
}

// Options locate the config sources.
type Options struct {
	File    string // Explicit config file; empty searches the default paths
	EnvFile string // .env file loaded before the environment is read; missing is ignored
}

// envKeys lists the nested keys bound to HARVESTER_* variables.
var envKeys = []string{
	"elasticsearch.addresses",
	"elasticsearch.index",
	"elasticsearch.username",
	"elasticsearch.password",
	"elasticsearch.api_key",
	"embeddings.enabled",
	"embeddings.base_url",
	"embeddings.socket_path",
	"embeddings.model",
	"fetch.user_agent",
	"fetch.timeout",
	"fetch.delay",
	"fetch.parallelism",
	"retry.max_attempts",
	"retry.initial_delay",
	"retry.max_delay",
	"retry.multiplier",
	"collector.start_url",
	"harvester.mode",
	"harvester.chunk_size",
	"harvester.chunk_overlap",
	"harvester.concurrency",
	"links.backend",
	"links.path",
	"links.sqlite_path",
	"links.object_key",
	"storage.endpoint",
	"storage.bucket",
	"storage.access_key_id",
	"storage.secret_access_key",
	"storage.use_ssl",
	"mcp.name",
	"mcp.version",
}

// EnvName returns the environment variable bound to a config key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load merges defaults, the config file, the .env file and the environment,
// then validates the result.
func Load(opts Options) (Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	// Start with defaults
	cfg := Defaults()

	v := viper.New()
	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(UserConfigDir())
		v.AddConfigPath("/etc/harvester")
		v.AddConfigPath(".")
	}

	// HARVESTER_ELASTICSEARCH_ADDRESSES -> elasticsearch.addresses
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file - use defaults + env vars
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	// Addresses arrive as one comma-separated string from the environment
	if addrs := os.Getenv(EnvName("elasticsearch.addresses")); addrs != "" {
		cfg.Elasticsearch.Addresses = splitList(addrs)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
