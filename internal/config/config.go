// Package config loads server settings from .env, environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения: SECUREHUB_SERVER_ADDRESS и т.д.
const EnvPrefix = "SECUREHUB"

const placeholderSecret = "CHANGE_ME"

// Storage backends
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config конечная структура конфигурации сервера
type Config struct {
	Server struct {
		Address         string        `mapstructure:"address"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"` // 0: без лимита, для больших скачиваний
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		// адреса или подсети прокси, которым верим в X-Forwarded-For; пусто: никому
		TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`

	Database struct {
		Path string `mapstructure:"path"` // файл SQLite
	} `mapstructure:"database"`

	Storage struct {
		Backend  string `mapstructure:"backend"`   // local | s3
		LocalDir string `mapstructure:"local_dir"` // каталог для local
		S3       struct {
			Bucket   string `mapstructure:"bucket"`
			Region   string `mapstructure:"region"`
			Endpoint string `mapstructure:"endpoint"` // MinIO и другие S3-совместимые
		} `mapstructure:"s3"`
	} `mapstructure:"storage"`

	JWT struct {
		Secret string        `mapstructure:"secret"`
		TTL    time.Duration `mapstructure:"ttl"`
	} `mapstructure:"jwt"`

	OTP struct {
		TTL          time.Duration `mapstructure:"ttl"`
		ReapInterval time.Duration `mapstructure:"reap_interval"` // 0: не чистить
		MaxAttempts  int           `mapstructure:"max_attempts"`  // неверных кодов до сгорания
	} `mapstructure:"otp"`

	Mail struct {
		Host       string        `mapstructure:"host"` // пусто: письма только логируются
		Username   string        `mapstructure:"username"`
		Password   string        `mapstructure:"password"`
		From       string        `mapstructure:"from"`
		Port       int           `mapstructure:"port"`
		SSL        bool          `mapstructure:"ssl"`
		Workers    int           `mapstructure:"workers"`
		QueueSize  int           `mapstructure:"queue_size"`
		MaxRetries uint64        `mapstructure:"max_retries"`
		BaseDelay  time.Duration `mapstructure:"base_delay"`
	} `mapstructure:"mail"`

	Notify struct {
		NATSURL           string `mapstructure:"nats_url"` // пусто: только websocket
		NATSSubjectPrefix string `mapstructure:"nats_subject_prefix"`
	} `mapstructure:"notify"`

	RateLimit struct {
		AuthRequests int           `mapstructure:"auth_requests"`
		AuthWindow   time.Duration `mapstructure:"auth_window"`
	} `mapstructure:"ratelimit"`

	Upload struct {
		MaxBytes int64 `mapstructure:"max_bytes"`
	} `mapstructure:"upload"`

	Log struct {
		Level  string `mapstructure:"level"`  // debug|info|warn|error
		Format string `mapstructure:"format"` // text|json
	} `mapstructure:"log"`

	WS struct {
		OriginPatterns []string `mapstructure:"origin_patterns"`
	} `mapstructure:"ws"`
}

// SMTPEnabled reports whether outbound mail goes to a real server
func (c *Config) SMTPEnabled() bool {
	return strings.TrimSpace(c.Mail.Host) != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.path", "securehub.db")

	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local_dir", "uploads")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")

	v.SetDefault("jwt.secret", placeholderSecret)
	v.SetDefault("jwt.ttl", 7*24*time.Hour)

	v.SetDefault("otp.ttl", 10*time.Minute)
	v.SetDefault("otp.reap_interval", time.Hour)
	v.SetDefault("otp.max_attempts", 5)

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "SecureHub <no-reply@securehub.local>")
	v.SetDefault("mail.ssl", false)
	v.SetDefault("mail.workers", 2)
	v.SetDefault("mail.queue_size", 100)
	v.SetDefault("mail.max_retries", 3)
	v.SetDefault("mail.base_delay", time.Second)

	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.nats_subject_prefix", "securehub.events")

	v.SetDefault("ratelimit.auth_requests", 20)
	v.SetDefault("ratelimit.auth_window", time.Minute)

	v.SetDefault("upload.max_bytes", int64(50<<20))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ws.origin_patterns", []string{})
}

// Load читает конфиг: .env (если есть), переменные окружения SECUREHUB_*,
// YAML файл configFile (или CONFIG_FILE), затем дефолты.
func Load(configFile string) (*Config, error) {
	// .env опционален; уже выставленные переменные не перетираются
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == placeholderSecret {
		return errors.New("jwt.secret must be set (not empty and not CHANGE_ME)")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("jwt.ttl must be positive")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp.ttl must be positive")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("otp.max_attempts must be positive")
	}
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address must not be empty")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must not be empty")
	}

	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("storage.local_dir must not be empty for local backend")
		}
	case BackendS3:
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return errors.New("storage.s3.bucket must be set for s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendLocal, BackendS3, c.Storage.Backend)
	}

	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload.max_bytes must be positive")
	}
	if c.Mail.Workers <= 0 || c.Mail.QueueSize <= 0 {
		return errors.New("mail.workers and mail.queue_size must be positive")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
