package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/prospect-enricher/internal/store"
	"github.com/sells-group/prospect-enricher/pkg/inference"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Inference inference.Config `yaml:"inference" mapstructure:"inference"`
	Queue     QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Lock      LockConfig       `yaml:"lock" mapstructure:"lock"`
	Audit     AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string            `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// QueueConfig configures the work queue and worker loop.
type QueueConfig struct {
	RetentionMins    int `yaml:"retention_mins" mapstructure:"retention_mins"`
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	StopTimeoutSecs  int `yaml:"stop_timeout_secs" mapstructure:"stop_timeout_secs"`
}

// LockConfig configures enhancement lock reclamation.
type LockConfig struct {
	StaleAfterMins int `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
	// ReclaimCron is the cron expression serve mode sweeps stale locks
	// on; empty disables the schedule.
	ReclaimCron string `yaml:"reclaim_cron" mapstructure:"reclaim_cron"`
}

// AuditConfig configures the inference audit log.
type AuditConfig struct {
	KeepResponses bool `yaml:"keep_responses" mapstructure:"keep_responses"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "prospects.db")
	v.SetDefault("inference.backend", "local")
	v.SetDefault("inference.base_url", "http://localhost:11434")
	v.SetDefault("inference.model", "llama3:8b")
	v.SetDefault("inference.timeout_secs", 120)
	v.SetDefault("inference.rate_per_min", 30)
	v.SetDefault("inference.max_tokens", 1024)
	v.SetDefault("queue.retention_mins", 5)
	v.SetDefault("queue.poll_interval_secs", 1)
	v.SetDefault("queue.stop_timeout_secs", 30)
	v.SetDefault("lock.stale_after_mins", 10)
	v.SetDefault("lock.reclaim_cron", "*/5 * * * *")
	v.SetDefault("audit.keep_responses", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given run mode requires. Modes are
// "serve" (long-running engine), "enhance" (one-shot CLI run), and
// "import" (spreadsheet load).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Queue.StopTimeoutSecs <= 0 {
			problems = append(problems, "queue.stop_timeout_secs must be > 0")
		}
		fallthrough
	case "enhance":
		if c.Inference.Backend == "anthropic" && c.Inference.APIKey == "" {
			problems = append(problems, "inference.api_key is required for the anthropic backend")
		}
		if c.Lock.StaleAfterMins <= 0 {
			problems = append(problems, "lock.stale_after_mins must be > 0")
		}
	case "import":
		// Store checks above suffice.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
