package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	APIPort  int    `env:"FS_PORT" envDefault:"8080"`
	LogLevel string `env:"FS_LOG_LEVEL" envDefault:"info"`

	DatabasePath string `env:"FS_DB_PATH" envDefault:"data/fileserver.db"`

	SchedulerTick       time.Duration `env:"FS_SCHEDULER_TICK" envDefault:"30s"`
	CheckTimeout        time.Duration `env:"FS_CHECK_TIMEOUT" envDefault:"20m"`
	MaxConcurrentChecks int           `env:"FS_MAX_CONCURRENT_CHECKS" envDefault:"2"`
	EmptyCheckLimit     int           `env:"FS_EMPTY_CHECK_LIMIT" envDefault:"3"`

	WatchLocalFolders bool `env:"FS_WATCH_LOCAL_FOLDERS" envDefault:"true"`

	RedisURL      string `env:"FS_REDIS_URL"`
	NotifyChannel string `env:"FS_NOTIFY_CHANNEL" envDefault:"fileserver:events"`
}

func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("FS_PORT must be between 1 and 65535")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("FS_DB_PATH is required")
	}
	if c.SchedulerTick <= 0 {
		return fmt.Errorf("FS_SCHEDULER_TICK must be positive")
	}
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("FS_CHECK_TIMEOUT must be positive")
	}
	if c.MaxConcurrentChecks < 1 {
		return fmt.Errorf("FS_MAX_CONCURRENT_CHECKS must be at least 1")
	}
	if c.EmptyCheckLimit < 1 {
		return fmt.Errorf("FS_EMPTY_CHECK_LIMIT must be at least 1")
	}
	return nil
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		cfg = &Config{}
		if err := env.Parse(cfg); err != nil {
			log.Fatalf("failed to parse config: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("config validation failed: %v", err)
		}
	})
	return cfg
}
