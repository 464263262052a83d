package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		Env             string   `yaml:"env"`
		AllowedOrigins  []string `yaml:"allowed_origins"`
		ShutdownTimeout int      `yaml:"shutdown_timeout"` // секунды
	} `yaml:"server"`

	Database struct {
		DSN             string `yaml:"url"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // минуты
		AutoMigrate     bool   `yaml:"auto_migrate"`
	} `yaml:"database"`

	Log struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // text, json
		File       string `yaml:"file"`   // пусто = stdout
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`

	JWT struct {
		Secret string `yaml:"secret"`
		TTL    int    `yaml:"ttl"` // минуты
	} `yaml:"jwt"`

	Email struct {
		Enabled      bool   `yaml:"enabled"`
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
		BaseURL      string `yaml:"base_url"` // для ссылок в письмах
	} `yaml:"email"`

	SMS struct {
		Enabled  bool     `yaml:"enabled"`
		Brokers  []string `yaml:"brokers"`
		Topic    string   `yaml:"topic"`
		SenderID string   `yaml:"sender_id"`
	} `yaml:"sms"`

	Push struct {
		Enabled         bool   `yaml:"enabled"`
		VAPIDPublicKey  string `yaml:"vapid_public_key"`
		VAPIDPrivateKey string `yaml:"vapid_private_key"`
		Subscriber      string `yaml:"subscriber"`
		TTL             int    `yaml:"ttl"` // секунды
	} `yaml:"push"`

	Events struct {
		Driver        string   `yaml:"driver"` // memory, redis, kafka
		RedisURL      string   `yaml:"redis_url"`
		Stream        string   `yaml:"stream"`
		StreamMaxLen  int64    `yaml:"stream_max_len"`
		KafkaBrokers  []string `yaml:"kafka_brokers"`
		Topic         string   `yaml:"topic"`
		ConsumerGroup string   `yaml:"consumer_group"`
		BufferSize    int      `yaml:"buffer_size"`
		// повторы обработчика на месте, прежде чем транспорт пойдет дальше
		HandlerAttempts int `yaml:"handler_attempts"`
		PendingRescan   int `yaml:"pending_rescan"` // секунды, только redis
	} `yaml:"events"`

	Notifications struct {
		DedupWindow        int    `yaml:"dedup_window"` // секунды
		MaxAttempts        int    `yaml:"max_attempts"`
		BackoffBaseMs      int    `yaml:"backoff_base_ms"`
		BackoffMaxMs       int    `yaml:"backoff_max_ms"`
		Workers            int    `yaml:"workers"`
		QueueSize          int    `yaml:"queue_size"`
		PollInterval       int    `yaml:"poll_interval"` // секунды, опрос outbox
		BatchSize          int    `yaml:"batch_size"`
		LeaseSeconds       int    `yaml:"lease_seconds"`
		MaxAttachmentBytes int64  `yaml:"max_attachment_bytes"`
		ActionBaseURL      string `yaml:"action_base_url"`
	} `yaml:"notifications"`

	Idempotency struct {
		TTL int `yaml:"ttl"` // минуты
	} `yaml:"idempotency"`

	Maintenance struct {
		Interval int `yaml:"interval"` // минуты
	} `yaml:"maintenance"`
}

var AppConfig *Config

// LoadConfig читает yaml (если есть), затем накладывает переменные окружения.
// Без файла и с DATABASE_URL конфиг собирается только из окружения.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.yaml"
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file at %s: %w", path, err)
		}
		log.Printf("config loaded from %s", path)
	case errors.Is(err, os.ErrNotExist) && os.Getenv("DATABASE_URL") != "":
		log.Println("config file not found, using environment only")
	default:
		return nil, fmt.Errorf("failed to open config file at %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	AppConfig = cfg
	return cfg, nil
}

// Default возвращает конфиг с рабочими значениями по умолчанию
func Default() *Config {
	var cfg Config

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 4000
	cfg.Server.Env = "development"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.ShutdownTimeout = 15

	cfg.Database.MaxOpenConns = 25
	cfg.Database.MaxIdleConns = 5
	cfg.Database.ConnMaxLifetime = 30
	cfg.Database.AutoMigrate = true

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.MaxSize = 100
	cfg.Log.MaxBackups = 5
	cfg.Log.MaxAge = 14

	cfg.JWT.TTL = 60

	cfg.Email.SMTPPort = 587
	cfg.Email.FromName = "MWork"

	cfg.SMS.Topic = "sms.outgoing"

	cfg.Push.Subscriber = "mailto:support@mwork.kz"
	cfg.Push.TTL = 3600

	cfg.Events.Driver = "memory"
	cfg.Events.Stream = "messaging:events"
	cfg.Events.StreamMaxLen = 100000
	cfg.Events.Topic = "messaging.events"
	cfg.Events.ConsumerGroup = "messaging-dispatcher"
	cfg.Events.BufferSize = 256
	cfg.Events.HandlerAttempts = 5
	cfg.Events.PendingRescan = 30

	cfg.Notifications.DedupWindow = 600
	cfg.Notifications.MaxAttempts = 3
	cfg.Notifications.BackoffBaseMs = 500
	cfg.Notifications.BackoffMaxMs = 30000
	cfg.Notifications.Workers = 4
	cfg.Notifications.QueueSize = 512
	cfg.Notifications.PollInterval = 5
	cfg.Notifications.BatchSize = 50
	cfg.Notifications.LeaseSeconds = 60
	cfg.Notifications.MaxAttachmentBytes = 25 * 1024 * 1024

	cfg.Idempotency.TTL = 24 * 60
	cfg.Maintenance.Interval = 60

	return &cfg
}

func applyEnv(cfg *Config) {
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Server.Env, "SERVER_ENV")
	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.File, "LOG_FILE")

	setString(&cfg.Email.SMTPHost, "SMTP_HOST")
	setInt(&cfg.Email.SMTPPort, "SMTP_PORT")
	setString(&cfg.Email.SMTPUsername, "SMTP_USER")
	setString(&cfg.Email.SMTPPassword, "SMTP_PASSWORD")

	setString(&cfg.Push.VAPIDPublicKey, "VAPID_PUBLIC_KEY")
	setString(&cfg.Push.VAPIDPrivateKey, "VAPID_PRIVATE_KEY")

	setString(&cfg.Events.Driver, "EVENTS_DRIVER")
	setString(&cfg.Events.RedisURL, "REDIS_URL")
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers := strings.Split(v, ",")
		cfg.Events.KafkaBrokers = brokers
		if len(cfg.SMS.Brokers) == 0 {
			cfg.SMS.Brokers = brokers
		}
	}
	setInt(&cfg.Notifications.DedupWindow, "NOTIFICATION_DEDUP_WINDOW")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate проверяет, что с конфигом можно стартовать
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("config: database url is required")
	}
	if c.Notifications.DedupWindow <= 0 {
		return errors.New("config: notifications.dedup_window must be positive")
	}
	if c.Notifications.MaxAttempts <= 0 {
		return errors.New("config: notifications.max_attempts must be positive")
	}
	switch c.Events.Driver {
	case "memory", "redis", "kafka":
	default:
		return fmt.Errorf("config: unknown events driver %q", c.Events.Driver)
	}
	if c.Events.Driver == "redis" && c.Events.RedisURL == "" {
		return errors.New("config: events.redis_url is required for redis driver")
	}
	if c.Events.Driver == "kafka" && len(c.Events.KafkaBrokers) == 0 {
		return errors.New("config: events.kafka_brokers is required for kafka driver")
	}
	if c.Push.Enabled && (c.Push.VAPIDPublicKey == "" || c.Push.VAPIDPrivateKey == "") {
		return errors.New("config: push is enabled but VAPID keys are missing")
	}
	return nil
}

func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Notifications.DedupWindow) * time.Second
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.Idempotency.TTL) * time.Minute
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func GetConfig() *Config {
	if AppConfig == nil {
		cfg, err := LoadConfig("")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		return cfg
	}
	return AppConfig
}
