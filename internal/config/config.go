package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rohankatakam/mailgraph/internal/errors"
)

// Config holds all configuration settings
type Config struct {
	// Microsoft Graph application credentials and client tuning
	Graph GraphConfig `yaml:"graph" mapstructure:"graph"`

	// Mailbox and received-date window to ingest
	Exchange ExchangeConfig `yaml:"exchange" mapstructure:"exchange"`

	// Keyed entity/relationship store
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Optional graph sink
	Neo4j Neo4jConfig `yaml:"neo4j" mapstructure:"neo4j"`

	// Optional key-existence cache
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	Log LogConfig `yaml:"log" mapstructure:"log"`
}

type GraphConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	DirectoryID  string `yaml:"directory_id" mapstructure:"directory_id"`

	AuthorityURL string        `yaml:"authority_url" mapstructure:"authority_url"`
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second
	MaxAttempts  int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`

	// Check Directory.Read.All during validation
	CheckDirectoryPermissions bool `yaml:"check_directory_permissions" mapstructure:"check_directory_permissions"`
	UseKeychain               bool `yaml:"use_keychain" mapstructure:"use_keychain"`
}

type ExchangeConfig struct {
	UserID    string `yaml:"user_id" mapstructure:"user_id"`
	StartDate string `yaml:"start_date" mapstructure:"start_date"` // RFC3339 or 2006-01-02
	EndDate   string `yaml:"end_date" mapstructure:"end_date"`
	PageSize  int    `yaml:"page_size" mapstructure:"page_size"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"` // "memory", "sqlite", "postgres", "bolt"
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

type Neo4jConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	URI      string `yaml:"uri" mapstructure:"uri"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Addr      string        `yaml:"addr" mapstructure:"addr"`
	Password  string        `yaml:"password" mapstructure:"password"`
	DB        int           `yaml:"db" mapstructure:"db"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	JSON       bool   `yaml:"json" mapstructure:"json"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Graph: GraphConfig{
			AuthorityURL: "https://login.microsoftonline.com",
			BaseURL:      "https://graph.microsoft.com/v1.0",
			RateLimit:    10,
			MaxAttempts:  3,
			RetryDelay:   2 * time.Second,
			UseKeychain:  true,
		},
		Exchange: ExchangeConfig{
			PageSize: 50,
		},
		Storage: StorageConfig{
			Backend:   "sqlite",
			LocalPath: filepath.Join(homeDir, ".mailgraph", "graph.db"),
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			User:     "neo4j",
			Database: "neo4j",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			TTL:       24 * time.Hour,
			KeyPrefix: "mailgraph:key:",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load loads configuration from file, .env files and the environment.
// An empty path searches the standard locations; a missing file is not an error.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix("MAILGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".mailgraph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".mailgraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ConfigErrorf("failed to read config: %v", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ConfigErrorf("failed to unmarshal config: %v", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"graph.client_id":                   cfg.Graph.ClientID,
		"graph.client_secret":               cfg.Graph.ClientSecret,
		"graph.directory_id":                cfg.Graph.DirectoryID,
		"graph.authority_url":               cfg.Graph.AuthorityURL,
		"graph.base_url":                    cfg.Graph.BaseURL,
		"graph.rate_limit":                  cfg.Graph.RateLimit,
		"graph.max_attempts":                cfg.Graph.MaxAttempts,
		"graph.retry_delay":                 cfg.Graph.RetryDelay,
		"graph.check_directory_permissions": cfg.Graph.CheckDirectoryPermissions,
		"graph.use_keychain":                cfg.Graph.UseKeychain,
		"exchange.user_id":                  cfg.Exchange.UserID,
		"exchange.start_date":               cfg.Exchange.StartDate,
		"exchange.end_date":                 cfg.Exchange.EndDate,
		"exchange.page_size":                cfg.Exchange.PageSize,
		"storage.backend":                   cfg.Storage.Backend,
		"storage.local_path":                cfg.Storage.LocalPath,
		"storage.postgres_dsn":              cfg.Storage.PostgresDSN,
		"neo4j.enabled":                     cfg.Neo4j.Enabled,
		"neo4j.uri":                         cfg.Neo4j.URI,
		"neo4j.user":                        cfg.Neo4j.User,
		"neo4j.password":                    cfg.Neo4j.Password,
		"neo4j.database":                    cfg.Neo4j.Database,
		"redis.enabled":                     cfg.Redis.Enabled,
		"redis.addr":                        cfg.Redis.Addr,
		"redis.password":                    cfg.Redis.Password,
		"redis.db":                          cfg.Redis.DB,
		"redis.ttl":                         cfg.Redis.TTL,
		"redis.key_prefix":                  cfg.Redis.KeyPrefix,
		"log.level":                         cfg.Log.Level,
		"log.file":                          cfg.Log.File,
		"log.json":                          cfg.Log.JSON,
		"log.max_size_mb":                   cfg.Log.MaxSizeMB,
		"log.max_backups":                   cfg.Log.MaxBackups,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".mailgraph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the conventional Azure and service variables.
// Precedence for the client secret: env var, then config file, then keychain.
func applyEnvOverrides(cfg *Config) {
	if id := os.Getenv("AZURE_CLIENT_ID"); id != "" {
		cfg.Graph.ClientID = id
	}
	if secret := os.Getenv("AZURE_CLIENT_SECRET"); secret != "" {
		cfg.Graph.ClientSecret = secret
	} else if cfg.Graph.ClientSecret == "" && cfg.Graph.UseKeychain {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if secret, err := km.GetClientSecret(cfg.Graph.ClientID); err == nil && secret != "" {
				cfg.Graph.ClientSecret = secret
			}
		}
	}
	if tenant := os.Getenv("AZURE_TENANT_ID"); tenant != "" {
		cfg.Graph.DirectoryID = tenant
	}
	if rateLimit := os.Getenv("GRAPH_RATE_LIMIT"); rateLimit != "" {
		if rate, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			cfg.Graph.RateLimit = rate
		}
	}

	if user := os.Getenv("EXCHANGE_USER_ID"); user != "" {
		cfg.Exchange.UserID = user
	}
	if start := os.Getenv("EXCHANGE_START_DATE"); start != "" {
		cfg.Exchange.StartDate = start
	}
	if end := os.Getenv("EXCHANGE_END_DATE"); end != "" {
		cfg.Exchange.EndDate = end
	}

	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = expandPath(path)
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
		cfg.Neo4j.Enabled = true
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	cfg.Storage.LocalPath = expandPath(cfg.Storage.LocalPath)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Window returns the parsed received-date window
func (e ExchangeConfig) Window() (start, end time.Time, err error) {
	if start, err = ParseDate(e.StartDate); err != nil {
		return time.Time{}, time.Time{}, errors.ConfigErrorf("invalid exchange start date %q: %v", e.StartDate, err)
	}
	if end, err = ParseDate(e.EndDate); err != nil {
		return time.Time{}, time.Time{}, errors.ConfigErrorf("invalid exchange end date %q: %v", e.EndDate, err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, errors.ConfigErrorf("exchange end date %s is before start date %s", e.EndDate, e.StartDate)
	}
	return start, end, nil
}

// ParseDate accepts RFC3339 timestamps and plain dates; empty yields zero
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}
