package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the full environment configuration of the process.
type Config struct {
	Port        string `env:"PORT" envDefault:"8000"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogEncoding string `env:"LOG_ENCODING" envDefault:"json" validate:"oneof=json console"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0" validate:"required"`

	// HH.ru OAuth application credentials.
	HHClientID     string `env:"HH_CLIENT_ID,required" validate:"required"`
	HHClientSecret string `env:"HH_CLIENT_SECRET,required" validate:"required"`
	HHRedirectURI  string `env:"HH_REDIRECT_URI,required" validate:"required,url"`

	LLMProvider string `env:"LLM_PROVIDER" envDefault:"ollama" validate:"oneof=ollama"`
	OllamaURL   string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel string `env:"OLLAMA_MODEL" envDefault:"qwen3:14b"`

	SchedulerEnabled         bool   `env:"SCHEDULER_ENABLED" envDefault:"true"`
	SchedulerAutoStart       bool   `env:"SCHEDULER_AUTO_START" envDefault:"true"`
	SchedulerDefaultHour     int    `env:"SCHEDULER_DEFAULT_HOUR" envDefault:"9" validate:"min=0,max=23"`
	SchedulerDefaultMinute   int    `env:"SCHEDULER_DEFAULT_MINUTE" envDefault:"0" validate:"min=0,max=59"`
	SchedulerDefaultDays     string `env:"SCHEDULER_DEFAULT_DAYS" envDefault:"mon,tue,wed,thu,fri"`
	SchedulerDefaultTimezone string `env:"SCHEDULER_DEFAULT_TIMEZONE" envDefault:"Europe/Moscow"`
	SchedulerMaxApplications int    `env:"SCHEDULER_MAX_APPLICATIONS" envDefault:"10" validate:"min=1,max=50"`

	// Cover-letter archive. Empty bucket disables S3 and falls back to
	// LettersDir when set.
	LettersBucket      string `env:"LETTERS_BUCKET"`
	LettersPrefix      string `env:"LETTERS_PREFIX" envDefault:"letters/"`
	LettersRegion      string `env:"LETTERS_REGION" envDefault:"us-east-1"`
	LettersEndpoint    string `env:"LETTERS_ENDPOINT"`
	LettersAccessKey   string `env:"LETTERS_ACCESS_KEY_ID"`
	LettersSecretKey   string `env:"LETTERS_SECRET_ACCESS_KEY"`
	LettersDir         string `env:"LETTERS_DIR"`

	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`
	SessionKey   string `env:"SESSION_KEY" envDefault:"dev-session-key"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
