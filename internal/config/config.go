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
	S3        S3Config
	Media     MediaConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	CreateJobPerHour int
	MetadataPerMin   int
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	UsePathStyle    bool
}

type MediaConfig struct {
	YtdlpPath  string
	FFmpegPath string
	Bitrate    string
	WorkDir    string
	// ArtworkTimeout bounds artwork lookups and fetches, in seconds.
	ArtworkTimeout int
}

type SchedulerConfig struct {
	// SweepIntervalMS is the supervising loop's reclamation interval.
	SweepIntervalMS int
	// StopTimeoutSec bounds the wait for in-flight jobs at shutdown.
	StopTimeoutSec int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")

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
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("s3.endpoint", "S3_ENDPOINT")
	_ = viper.BindEnv("s3.region", "S3_REGION")
	_ = viper.BindEnv("s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = viper.BindEnv("s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("s3.bucket_name", "S3_BUCKET_NAME")
	_ = viper.BindEnv("s3.public_url", "S3_PUBLIC_URL")
	_ = viper.BindEnv("s3.use_path_style", "S3_USE_PATH_STYLE")
	_ = viper.BindEnv("media.ytdlp_path", "YTDLP_PATH")
	_ = viper.BindEnv("media.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("media.bitrate", "MEDIA_BITRATE")
	_ = viper.BindEnv("media.work_dir", "MEDIA_WORK_DIR")
	_ = viper.BindEnv("media.artwork_timeout", "ARTWORK_TIMEOUT")
	_ = viper.BindEnv("scheduler.sweep_interval_ms", "SCHEDULER_SWEEP_INTERVAL_MS")
	_ = viper.BindEnv("scheduler.stop_timeout_sec", "SCHEDULER_STOP_TIMEOUT_SEC")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.createjob_per_hour", 20)
	viper.SetDefault("ratelimit.metadata_per_min", 30)
	viper.SetDefault("s3.region", "auto")
	viper.SetDefault("media.bitrate", "320k")
	viper.SetDefault("media.work_dir", os.TempDir())
	viper.SetDefault("media.artwork_timeout", 30)
	viper.SetDefault("scheduler.sweep_interval_ms", 1000)
	viper.SetDefault("scheduler.stop_timeout_sec", 30)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			CreateJobPerHour: viper.GetInt("ratelimit.createjob_per_hour"),
			MetadataPerMin:   viper.GetInt("ratelimit.metadata_per_min"),
		},
		S3: S3Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			BucketName:      viper.GetString("s3.bucket_name"),
			PublicURL:       viper.GetString("s3.public_url"),
			UsePathStyle:    viper.GetBool("s3.use_path_style"),
		},
		Media: MediaConfig{
			YtdlpPath:      viper.GetString("media.ytdlp_path"),
			FFmpegPath:     viper.GetString("media.ffmpeg_path"),
			Bitrate:        viper.GetString("media.bitrate"),
			WorkDir:        viper.GetString("media.work_dir"),
			ArtworkTimeout: viper.GetInt("media.artwork_timeout"),
		},
		Scheduler: SchedulerConfig{
			SweepIntervalMS: viper.GetInt("scheduler.sweep_interval_ms"),
			StopTimeoutSec:  viper.GetInt("scheduler.stop_timeout_sec"),
		},
	}

	return cfg, nil
}
