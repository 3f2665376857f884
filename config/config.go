// Package config loads server settings from the environment, with an
// optional .env file for local development.
package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// TCP chat listener.
	Port         int           `env:"YEGNA_PORT" envDefault:"5050"`
	ReadTimeout  time.Duration `env:"YEGNA_READ_TIMEOUT" envDefault:"5m"`
	WriteTimeout time.Duration `env:"YEGNA_WRITE_TIMEOUT" envDefault:"30s"`
	MaxLineBytes int           `env:"YEGNA_MAX_LINE_BYTES" envDefault:"1048576"`

	// HTTP image server.
	HTTPPort int `env:"YEGNA_HTTP_PORT" envDefault:"8081"`

	// Storage.
	DBPath    string `env:"YEGNA_DB_PATH" envDefault:"yegnachat.db"`
	ImageRoot string `env:"YEGNA_IMAGE_ROOT" envDefault:"uploads"`

	// Sessions live this long from creation; 7 days matches the client's
	// remember-me window.
	SessionTTL time.Duration `env:"YEGNA_SESSION_TTL" envDefault:"168h"`

	ControlSocket string `env:"YEGNA_CONTROL_SOCKET" envDefault:"/tmp/yegnachat.sock"`

	LogLevel string `env:"YEGNA_LOG_LEVEL" envDefault:"info"`
}

// Load reads .env when present, then parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
