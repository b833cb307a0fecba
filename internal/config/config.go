package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	WhatsApp  WhatsAppConfig
	Pipeline  PipelineConfig
	Broadcast BroadcastConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the store. An empty PostgresURL means in-memory.
type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type WhatsAppConfig struct {
	APIURL        string
	Token         string
	PhoneNumberID string
	VerifyToken   string
	SendTimeout   time.Duration
}

type PipelineConfig struct {
	Workers      int
	QueueSize    int
	ReplyRetries int
	StoreRetries int
	MaxChars     int
}

type BroadcastConfig struct {
	BatchSize  int
	BatchDelay time.Duration
}

type SchedulerConfig struct {
	IdleAfter time.Duration
	Interval  time.Duration
}

type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type AdminConfig struct {
	APIKey string
}

// LoadAll reads the whole configuration from the environment. Every missing
// or malformed variable is reported, not only the first.
func LoadAll() (*Config, error) {
	l := &loader{}

	cfg := &Config{
		Server: ServerConfig{
			Address:         getEnv("SERVER_ADDRESS", ":8080"),
			ShutdownTimeout: l.seconds("SERVER_SHUTDOWN_SECONDS", 10),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		WhatsApp: WhatsAppConfig{
			APIURL:        getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v18.0"),
			Token:         l.required("WHATSAPP_TOKEN"),
			PhoneNumberID: l.required("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
			SendTimeout:   l.seconds("SEND_TIMEOUT_SECONDS", 10),
		},
		Pipeline: PipelineConfig{
			Workers:      l.int("PIPELINE_WORKERS", 8),
			QueueSize:    l.int("PIPELINE_QUEUE_SIZE", 256),
			ReplyRetries: l.int("REPLY_RETRIES", 2),
			StoreRetries: l.int("STORE_RETRIES", 3),
			MaxChars:     l.int("MAX_MESSAGE_CHARS", 2000),
		},
		Broadcast: BroadcastConfig{
			BatchSize:  l.int("BROADCAST_BATCH_SIZE", 10),
			BatchDelay: time.Duration(l.int("BROADCAST_BATCH_DELAY_MS", 2000)) * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			IdleAfter: time.Duration(l.int("CONVERSATION_IDLE_MINUTES", 30)) * time.Minute,
			Interval:  l.seconds("SWEEP_INTERVAL_SECONDS", 60),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  l.int("LOG_MAX_SIZE_MB", 50),
			MaxBackups: l.int("LOG_MAX_BACKUPS", 5),
		},
		Admin: AdminConfig{
			APIKey: os.Getenv("ADMIN_API_KEY"),
		},
		Redis: loadRedisConfig(l),
	}

	if err := joinErrors(l.errs); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig(l *loader) RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       l.int("REDIS_DB", 0),
		TTL:      l.seconds("REDIS_TTL_SECONDS", 86400),
	}
}

func validate(cfg *Config) error {
	var errs []error
	if cfg.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("PIPELINE_WORKERS must be > 0"))
	}
	if cfg.Pipeline.QueueSize <= 0 {
		errs = append(errs, errors.New("PIPELINE_QUEUE_SIZE must be > 0"))
	}
	if cfg.Pipeline.ReplyRetries < 0 {
		errs = append(errs, errors.New("REPLY_RETRIES must be >= 0"))
	}
	if cfg.Pipeline.StoreRetries < 0 {
		errs = append(errs, errors.New("STORE_RETRIES must be >= 0"))
	}
	if cfg.Pipeline.MaxChars <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_CHARS must be > 0"))
	}
	if cfg.Broadcast.BatchSize <= 0 {
		errs = append(errs, errors.New("BROADCAST_BATCH_SIZE must be > 0"))
	}
	if cfg.Broadcast.BatchDelay < 0 {
		errs = append(errs, errors.New("BROADCAST_BATCH_DELAY_MS must be >= 0"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Scheduler.IdleAfter <= 0 {
		errs = append(errs, errors.New("CONVERSATION_IDLE_MINUTES must be > 0"))
	}
	if cfg.WhatsApp.SendTimeout <= 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT_SECONDS must be > 0"))
	}
	return joinErrors(errs)
}

// loader collects parse errors so LoadAll can report all of them at once.
type loader struct {
	errs []error
}

func (l *loader) required(key string) string {
	v, err := requireEnv(key)
	if err != nil {
		l.errs = append(l.errs, err)
	}
	return v
}

func (l *loader) int(key string, def int) int {
	v, err := getEnvInt(key, def)
	if err != nil {
		l.errs = append(l.errs, err)
	}
	return v
}

func (l *loader) seconds(key string, def int) time.Duration {
	return time.Duration(l.int(key, def)) * time.Second
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
