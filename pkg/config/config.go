package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Capacity policies understood by the scheduler.
const (
	CapacityPolicyStrict = "strict"
	CapacityPolicyFlag   = "flag"
)

// Search modes understood by the scheduler.
const (
	SearchModeGreedy     = "greedy"
	SearchModeExhaustive = "exhaustive"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	CORS         CORSConfig
	Log          LogConfig
	Cache        CacheConfig
	Scheduler    SchedulerConfig
	Revalidation RevalidationConfig
	Export       ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs the timetable read-through cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// SchedulerConfig drives the slot grid and the search engine.
type SchedulerConfig struct {
	Days                []string
	TimeSlots           []string
	Mode                string
	BacktrackWindow     int
	RetryBudget         int
	Timeout             time.Duration
	CapacityPolicy      string
	DefaultEnrollment   int
	ContiguousBlocks    bool
	MaxConcurrentSolves int
}

// RevalidationConfig sizes the background conflict revalidation workers.
type RevalidationConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// ExportConfig tunes calendar exports.
type ExportConfig struct {
	Timezone string
	Weeks    int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_TIMETABLE_CACHE"),
		TTL:     parseDuration(v.GetString("TIMETABLE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Scheduler = SchedulerConfig{
		Days:                splitAndTrim(v.GetString("SCHEDULER_DAYS")),
		TimeSlots:           splitAndTrim(v.GetString("SCHEDULER_TIME_SLOTS")),
		Mode:                oneOf(strings.ToLower(v.GetString("SCHEDULER_MODE")), SearchModeGreedy, SearchModeGreedy, SearchModeExhaustive),
		BacktrackWindow:     v.GetInt("SCHEDULER_BACKTRACK_WINDOW"),
		RetryBudget:         v.GetInt("SCHEDULER_RETRY_BUDGET"),
		Timeout:             parseDuration(v.GetString("SCHEDULER_TIMEOUT"), 10*time.Second),
		CapacityPolicy:      oneOf(strings.ToLower(v.GetString("SCHEDULER_CAPACITY_POLICY")), CapacityPolicyStrict, CapacityPolicyStrict, CapacityPolicyFlag),
		DefaultEnrollment:   v.GetInt("SCHEDULER_DEFAULT_ENROLLMENT"),
		ContiguousBlocks:    v.GetBool("SCHEDULER_CONTIGUOUS_BLOCKS"),
		MaxConcurrentSolves: v.GetInt("SCHEDULER_MAX_CONCURRENT_SOLVES"),
	}

	cfg.Revalidation = RevalidationConfig{
		Enabled:    v.GetBool("ENABLE_REVALIDATION"),
		Workers:    v.GetInt("REVALIDATION_WORKERS"),
		BufferSize: v.GetInt("REVALIDATION_BUFFER"),
		MaxRetries: v.GetInt("REVALIDATION_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("REVALIDATION_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Export = ExportConfig{
		Timezone: v.GetString("EXPORT_TIMEZONE"),
		Weeks:    v.GetInt("EXPORT_WEEKS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_TIMETABLE_CACHE", false)
	v.SetDefault("TIMETABLE_CACHE_TTL", "5m")

	v.SetDefault("SCHEDULER_DAYS", "Monday,Tuesday,Wednesday,Thursday,Friday")
	v.SetDefault("SCHEDULER_TIME_SLOTS", "09:00-10:00,10:00-11:00,11:15-12:15,12:15-13:15,14:15-15:15,15:15-16:15,16:30-17:30")
	v.SetDefault("SCHEDULER_MODE", SearchModeGreedy)
	v.SetDefault("SCHEDULER_BACKTRACK_WINDOW", 8)
	v.SetDefault("SCHEDULER_RETRY_BUDGET", 5000)
	v.SetDefault("SCHEDULER_TIMEOUT", "10s")
	v.SetDefault("SCHEDULER_CAPACITY_POLICY", CapacityPolicyStrict)
	v.SetDefault("SCHEDULER_DEFAULT_ENROLLMENT", 30)
	v.SetDefault("SCHEDULER_CONTIGUOUS_BLOCKS", false)
	v.SetDefault("SCHEDULER_MAX_CONCURRENT_SOLVES", 4)

	v.SetDefault("ENABLE_REVALIDATION", true)
	v.SetDefault("REVALIDATION_WORKERS", 1)
	v.SetDefault("REVALIDATION_BUFFER", 64)
	v.SetDefault("REVALIDATION_MAX_RETRIES", 3)
	v.SetDefault("REVALIDATION_RETRY_DELAY", "2s")

	v.SetDefault("EXPORT_TIMEZONE", "UTC")
	v.SetDefault("EXPORT_WEEKS", 16)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func oneOf(raw, fallback string, allowed ...string) string {
	for _, candidate := range allowed {
		if raw == candidate {
			return raw
		}
	}
	return fallback
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
