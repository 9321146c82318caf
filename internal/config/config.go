package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Gemini    GeminiConfig
	RunPod    RunPodConfig
	R2        R2Config
	Storage   StorageConfig
	Jobs      JobsConfig
	Voices    VoicesConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	GeneratePerHour int
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

type RunPodConfig struct {
	APIKey       string
	EndpointID   string
	BaseURL      string
	PollInterval int // seconds
	JobTimeout   int // seconds, per synthesis call
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

type StorageConfig struct {
	LocalDir string
}

type JobsConfig struct {
	RetentionHours  int
	StaleAfterMin   int
	MonitorEveryMin int
	MaxUploadMB     int
}

type VoicesConfig struct {
	// Speakers maps a script speaker code (e.g. "A") to the reference voice
	// sample known to the synthesis worker (e.g. "philip.wav").
	Speakers map[string]string
	// IntroKey is an optional blob key of a pre-rendered intro jingle
	// prepended to every episode.
	IntroKey string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GEMINI_API_KEY")
	readSecret("RUNPOD_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = viper.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = viper.BindEnv("gemini.timeout", "GEMINI_TIMEOUT")
	_ = viper.BindEnv("runpod.api_key", "RUNPOD_API_KEY")
	_ = viper.BindEnv("runpod.endpoint_id", "RUNPOD_ENDPOINT_ID")
	_ = viper.BindEnv("runpod.base_url", "RUNPOD_BASE_URL")
	_ = viper.BindEnv("runpod.poll_interval", "RUNPOD_POLL_INTERVAL")
	_ = viper.BindEnv("runpod.job_timeout", "RUNPOD_JOB_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("storage.local_dir", "STORAGE_LOCAL_DIR")
	_ = viper.BindEnv("jobs.retention_hours", "JOBS_RETENTION_HOURS")
	_ = viper.BindEnv("jobs.stale_after_min", "JOBS_STALE_AFTER_MIN")
	_ = viper.BindEnv("jobs.monitor_every_min", "JOBS_MONITOR_EVERY_MIN")
	_ = viper.BindEnv("jobs.max_upload_mb", "JOBS_MAX_UPLOAD_MB")
	_ = viper.BindEnv("voices.intro_key", "VOICES_INTRO_KEY")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("ratelimit.generate_per_hour", 10)

	// Gemini defaults
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("gemini.timeout", 120)

	// RunPod defaults: poll every 3s, give up on a segment after 5 minutes
	viper.SetDefault("runpod.base_url", "https://api.runpod.ai")
	viper.SetDefault("runpod.poll_interval", 3)
	viper.SetDefault("runpod.job_timeout", 300)

	// Storage / job lifecycle defaults
	viper.SetDefault("storage.local_dir", "data")
	viper.SetDefault("jobs.retention_hours", 24)
	viper.SetDefault("jobs.stale_after_min", 30)
	viper.SetDefault("jobs.monitor_every_min", 5)
	viper.SetDefault("jobs.max_upload_mb", 50)

	// Voice defaults: the two-speaker podcast setup
	viper.SetDefault("voices.speakers", map[string]string{
		"A": "philip.wav",
		"B": "oskar.wav",
	})
	viper.SetDefault("voices.intro_key", "")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
		},
		Gemini: GeminiConfig{
			APIKey:  viper.GetString("gemini.api_key"),
			BaseURL: viper.GetString("gemini.base_url"),
			Model:   viper.GetString("gemini.model"),
			Timeout: viper.GetInt("gemini.timeout"),
		},
		RunPod: RunPodConfig{
			APIKey:       viper.GetString("runpod.api_key"),
			EndpointID:   viper.GetString("runpod.endpoint_id"),
			BaseURL:      viper.GetString("runpod.base_url"),
			PollInterval: viper.GetInt("runpod.poll_interval"),
			JobTimeout:   viper.GetInt("runpod.job_timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
		},
		Storage: StorageConfig{
			LocalDir: viper.GetString("storage.local_dir"),
		},
		Jobs: JobsConfig{
			RetentionHours:  viper.GetInt("jobs.retention_hours"),
			StaleAfterMin:   viper.GetInt("jobs.stale_after_min"),
			MonitorEveryMin: viper.GetInt("jobs.monitor_every_min"),
			MaxUploadMB:     viper.GetInt("jobs.max_upload_mb"),
		},
		Voices: VoicesConfig{
			Speakers: viper.GetStringMapString("voices.speakers"),
			IntroKey: viper.GetString("voices.intro_key"),
		},
	}

	return cfg, nil
}
