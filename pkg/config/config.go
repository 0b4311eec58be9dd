package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration
type Config struct {
	// Server configuration (local control-surface API for the renderer)
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
	}

	// Narrator service endpoints
	Narrator struct {
		BaseURL   string
		WSURL     string
		Timeout   time.Duration
		AuthToken string
	}

	// Session identity: which campaign/character/user this runtime drives
	Session struct {
		CampaignID  string
		CharacterID string
		UserID      string
		HistoryPage int
	}

	// Redis cache configuration
	Redis struct {
		URL      string
		Password string
		DB       int
		Enabled  bool
	}

	// Cache settings for the local timeline cache
	Cache struct {
		TTL time.Duration
	}

	// Audio playback settings
	Audio struct {
		ReadyWait       time.Duration
		AmbienceVolume  float64
		NarrationOnBoot bool
	}

	// Security configuration
	Security struct {
		ActionRateLimit float64
		ActionBurst     int
		AllowedOrigins  []string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Vault configuration for auth-token retrieval
	Vault struct {
		Enabled bool
		Address string
		Token   string
		Path    string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables.
// Uses singleton pattern to ensure only one instance exists.
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "8090")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)

		// Narrator config
		instance.Narrator.BaseURL = getEnvString("NARRATOR_URL", "http://localhost:8081")
		instance.Narrator.WSURL = getEnvString("NARRATOR_WS_URL", "ws://localhost:8081/ws")
		instance.Narrator.Timeout = getEnvDuration("NARRATOR_TIMEOUT", 15*time.Second)
		instance.Narrator.AuthToken = getEnvString("NARRATOR_AUTH_TOKEN", "")

		// Session config
		instance.Session.CampaignID = getEnvString("CAMPAIGN_ID", "")
		instance.Session.CharacterID = getEnvString("CHARACTER_ID", "")
		instance.Session.UserID = getEnvString("USER_ID", "")
		instance.Session.HistoryPage = getEnvInt("HISTORY_PAGE_SIZE", 100)

		// Redis config
		instance.Redis.URL = getEnvString("REDIS_URL", "localhost:6379")
		instance.Redis.Password = getEnvString("REDIS_PASSWORD", "")
		instance.Redis.DB = getEnvInt("REDIS_DB", 0)
		instance.Redis.Enabled = getEnvBool("REDIS_ENABLED", true)

		// Cache settings
		instance.Cache.TTL = getEnvDuration("CACHE_TTL", 7*24*time.Hour)

		// Audio settings
		instance.Audio.ReadyWait = getEnvDuration("AUDIO_READY_WAIT", 2*time.Second)
		instance.Audio.AmbienceVolume = getEnvFloat("AMBIENCE_VOLUME", 0.5)
		instance.Audio.NarrationOnBoot = getEnvBool("NARRATION_ENABLED", true)

		// Security config
		instance.Security.ActionRateLimit = float64(getEnvInt("ACTION_RATE_LIMIT", 2))
		instance.Security.ActionBurst = getEnvInt("ACTION_RATE_BURST", 5)
		instance.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")

		// Vault config
		instance.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
		instance.Vault.Address = getEnvString("VAULT_ADDR", "")
		instance.Vault.Token = getEnvString("VAULT_TOKEN", "")
		instance.Vault.Path = getEnvString("VAULT_SECRET_PATH", "secret/data/sessiond")
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
