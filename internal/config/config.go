package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"redditstudy/internal/shared"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Storage struct {
		Driver      string `validate:"required,oneof=sqlite postgres"`
		SQLitePath  string `validate:"required_if=Driver sqlite"`
		DatabaseURL string `validate:"required_if=Driver postgres"`
	}
	Reddit struct {
		BaseURL   string  `validate:"required,url"`
		UserAgent string  `validate:"required"`
		RPS       float64 `validate:"gt=0"`
	}
	Study struct {
		PlanFile string
		Cron     string
	}
	Telegram struct {
		Token         string
		ChatID        int64
		WebhookURL    string `validate:"omitempty,url"`
		WebhookSecret string
		AllowedIDs    []int64
	}
}

// TelegramEnabled reports whether a bot token is configured.
func (c Config) TelegramEnabled() bool {
	return c.Telegram.Token != ""
}

var validate = validator.New()

// Load reads configuration from environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}

	var c Config
	c.Env = get("ENV", "prod")
	c.Log.ConsoleLevel = strings.ToLower(get("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(get("LOG_FILE_LEVEL", "debug"))
	c.Log.File = get("LOG_FILE", "data/logs/redditstudy.log")
	c.HTTP.Addr = get("HTTP_ADDR", ":8080")

	c.Storage.Driver = strings.ToLower(get("STORAGE_DRIVER", "sqlite"))
	c.Storage.SQLitePath = get("SQLITE_PATH", "data/redditstudy.db")
	c.Storage.DatabaseURL = getenv("DATABASE_URL")

	c.Reddit.BaseURL = strings.TrimRight(get("REDDIT_BASE_URL", "https://www.reddit.com"), "/")
	c.Reddit.UserAgent = get("REDDIT_USER_AGENT", "redditstudy/1.0")
	rps, err := strconv.ParseFloat(get("REDDIT_RPS", "2"), 64)
	if err != nil {
		return Config{}, shared.Validationf("REDDIT_RPS: %v", err)
	}
	c.Reddit.RPS = rps

	c.Study.PlanFile = getenv("STUDY_PLAN_FILE")
	c.Study.Cron = getenv("STUDY_CRON")

	c.Telegram.Token = getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.WebhookURL = getenv("TELEGRAM_WEBHOOK_URL")
	c.Telegram.WebhookSecret = getenv("TELEGRAM_WEBHOOK_SECRET")
	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return Config{}, shared.Validationf("TELEGRAM_CHAT_ID: %v", err)
		}
		c.Telegram.ChatID = id
	}
	ids, err := parseIDs(getenv("TELEGRAM_ALLOWED_IDS"))
	if err != nil {
		return Config{}, shared.Validationf("TELEGRAM_ALLOWED_IDS: %v", err)
	}
	c.Telegram.AllowedIDs = ids

	if err := validate.Struct(c); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindValidation)
	}
	if c.Telegram.WebhookURL != "" && c.Telegram.WebhookSecret == "" {
		return Config{}, shared.Validationf("TELEGRAM_WEBHOOK_SECRET required when TELEGRAM_WEBHOOK_URL is set")
	}
	if c.Telegram.WebhookURL != "" && c.Telegram.Token == "" {
		return Config{}, shared.Validationf("TELEGRAM_BOT_TOKEN required when TELEGRAM_WEBHOOK_URL is set")
	}
	return c, nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
