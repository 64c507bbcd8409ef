package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config holds process configuration read from the environment
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	MongoURI        string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase   string        `env:"MONGO_DATABASE" envDefault:"brainstorm"`
	RedisAddr       string        `env:"REDIS_URI" envDefault:"localhost:6379"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"mongo"`
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"super-secret-key-change-in-production"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	LevelGap        time.Duration `env:"LEVEL_GAP" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	Summarizer SummarizerConfig
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.RedisAddr = strings.TrimPrefix(cfg.RedisAddr, "redis://")
	if cfg.StoreDriver != StoreMongo && cfg.StoreDriver != StoreMemory {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.LevelGap < 0 {
		cfg.LevelGap = 0
	}
	return &cfg, nil
}
