package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	MCP        MCPConfig
	Paths      PathsConfig
	Storage    StorageConfig
	Valkey     ValkeyConfig
	VRChat     VRChatConfig
	Groups     GroupsConfig
	WorkerPool WorkerPoolConfig
	Security   SecurityConfig
}

type AppConfig struct {
	Version            string
	Host               string
	Port               string
	Debug              bool
	BasicAuth          []string
	BasePath           string
	Timezone           string
	CorsAllowedOrigins []string
}

type MCPConfig struct {
	Port string
	Host string
}

type PathsConfig struct {
	DataDir string
}

type StorageConfig struct {
	Driver   string // file | sqlite | postgres
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

type VRChatConfig struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type GroupsConfig struct {
	CacheTTL        time.Duration
	RefreshCooldown time.Duration
	EphemeralTTL    time.Duration
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
	// ActivityBuffer is how many publish outcomes the activity feed keeps.
	ActivityBuffer int
	ActivityTTL    time.Duration
	// SyncInterval is how often the serving process picks up posts written
	// by another process sharing the store. Zero disables it.
	SyncInterval time.Duration
}

type SecurityConfig struct {
	SecretKey string
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from a .env file (if present), the environment, and defaults.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("APP_DATA_DIR", "storages")

	var basicAuth []string
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	cors := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := getEnv("APP_CORS_ALLOWED_ORIGINS", ""); v != "" {
		cors = strings.Split(v, ",")
	}

	cfg := &Config{
		App: AppConfig{
			Version:            "v1.4.0",
			Host:               getEnv("APP_HOST", "127.0.0.1"),
			Port:               getEnv("APP_PORT", "3000"),
			Debug:              getEnvBool("APP_DEBUG", false),
			BasicAuth:          basicAuth,
			BasePath:           getEnv("APP_BASE_PATH", ""),
			Timezone:           getEnv("APP_TIMEZONE", ""),
			CorsAllowedOrigins: cors,
		},
		MCP:   MCPConfig{Port: getEnv("MCP_PORT", "8080"), Host: getEnv("MCP_HOST", "localhost")},
		Paths: PathsConfig{DataDir: dataDir},
		Storage: StorageConfig{
			Driver:   getEnv("STORAGE_DRIVER", "file"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", filepath.Join(dataDir, "documents.db")),
		},
		Valkey: ValkeyConfig{
			Enabled:   getEnvBool("VALKEY_ENABLED", false),
			Address:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
			Password:  getEnv("VALKEY_PASSWORD", ""),
			DB:        getEnvInt("VALKEY_DB", 0),
			KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "grouppost:"),
		},
		VRChat: VRChatConfig{
			BaseURL:     getEnv("VRCHAT_BASE_URL", "https://api.vrchat.cloud/api/1"),
			UserAgent:   getEnv("VRCHAT_USER_AGENT", "az-grouppost/1.4.0 contact@azielcf.dev"),
			MinInterval: getEnvDuration("VRCHAT_MIN_INTERVAL", time.Second),
			MaxRetries:  getEnvInt("VRCHAT_MAX_RETRIES", 3),
			BaseBackoff: getEnvDuration("VRCHAT_BASE_BACKOFF", 2*time.Second),
			MaxBackoff:  getEnvDuration("VRCHAT_MAX_BACKOFF", 30*time.Second),
		},
		Groups: GroupsConfig{
			CacheTTL:        getEnvDuration("GROUPS_CACHE_TTL", 30*time.Minute),
			RefreshCooldown: getEnvDuration("GROUPS_REFRESH_COOLDOWN", 5*time.Minute),
			EphemeralTTL:    getEnvDuration("GROUPS_EPHEMERAL_TTL", 5*time.Minute),
		},
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("POST_WORKER_POOL_SIZE", 4),
			QueueSize: getEnvInt("POST_WORKER_QUEUE_SIZE", 100),

			ActivityBuffer: getEnvInt("POST_ACTIVITY_BUFFER", 200),
			ActivityTTL:    getEnvDuration("POST_ACTIVITY_TTL", 0),
			SyncInterval:   getEnvDuration("POST_SYNC_INTERVAL", 30*time.Second),
		},
		Security: SecurityConfig{SecretKey: getEnv("APP_SECRET_KEY", "")},
	}

	Global = cfg
	return cfg, nil
}

// Location resolves App.Timezone, falling back to the host's local zone.
func (c *Config) Location() *time.Location {
	if c.App.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
