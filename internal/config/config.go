package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	DataDir   string     `env:"DATA_DIR" envDefault:"data"`
	PublicDir string     `env:"PUBLIC_DIR" envDefault:"public"`

	// StateStore selects the persistence backend: "file" or "sqlite".
	StateStore string `env:"STATE_STORE" envDefault:"file"`
	StateFile  string `env:"STATE_FILE" envDefault:"state.json"`
	DBPath     string `env:"DB_PATH" envDefault:"game.db"`
	SeedFile   string `env:"SEED_FILE"`

	ResyncInterval    time.Duration `env:"RESYNC_INTERVAL" envDefault:"5s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	QueueSize         int           `env:"QUEUE_SIZE" envDefault:"5"`

	VerifyWindow        time.Duration `env:"VERIFY_WINDOW" envDefault:"10m"`
	TaskWindow          time.Duration `env:"TASK_WINDOW" envDefault:"60m"`
	CaptureLock         time.Duration `env:"CAPTURE_LOCK" envDefault:"30m"`
	WrongAnswerLock     time.Duration `env:"WRONG_ANSWER_LOCK" envDefault:"30m"`
	WrongAnswerCooldown time.Duration `env:"WRONG_ANSWER_COOLDOWN" envDefault:"0s"`
	MaxAnswerLen        int           `env:"MAX_ANSWER_LEN" envDefault:"2000"`
	EventLogCap         int           `env:"EVENT_LOG_CAP" envDefault:"250"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"30"`

	ArchiveOnReset bool `env:"ARCHIVE_ON_RESET" envDefault:"true"`
}

// Load reads an optional .env file from the working directory and then
// parses the process environment. Variables already set win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.StateStore != "file" && cfg.StateStore != "sqlite" {
		return nil, fmt.Errorf("STATE_STORE must be file or sqlite, got %q", cfg.StateStore)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("QUEUE_SIZE must be positive, got %d", cfg.QueueSize)
	}
	return &cfg, nil
}
