package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type EnvVars struct {
	AppEnv       string        `envconfig:"APP_ENV" default:"dev"`
	Port         int           `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`

	// CatalogDir overrides the embedded form catalog.
	CatalogDir   string `envconfig:"CATALOG_DIR"`
	CatalogWatch bool   `envconfig:"CATALOG_WATCH" default:"false"`

	DatabasePath   string `envconfig:"DATABASE_PATH" default:"talkform.db"`
	QueryCacheSize int    `envconfig:"QUERY_CACHE_SIZE" default:"256"`

	InnohubURL       string        `envconfig:"INNOHUB_URL" default:"https://inno-hub.1millionbot.com/innohub/api/inno-hub"`
	InnohubAPIKey    string        `envconfig:"INNOHUB_API_KEY"`
	InnohubAssistant string        `envconfig:"INNOHUB_ASSISTANT" default:"Smarty"`
	InnohubTimeout   time.Duration `envconfig:"INNOHUB_TIMEOUT" default:"30s"`

	LLMApiKey  string `envconfig:"LLM_API_KEY"`
	LLMBaseURL string `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	LLMModel   string `envconfig:"LLM_MODEL" default:"gpt-4.1-mini"`

	HistoryLimit int `envconfig:"HISTORY_LIMIT" default:"20"`
}

// LoadEnv reads the environment, after loading the optional .env files.
func LoadEnv(files ...string) (*EnvVars, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var v EnvVars
	if err := envconfig.Process("", &v); err != nil {
		return nil, err
	}
	if v.Port <= 0 || v.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT %d", v.Port)
	}
	return &v, nil
}

// InnohubEnabled reports whether the text-to-numbers service can be called.
func (v *EnvVars) InnohubEnabled() bool {
	return v.InnohubURL != "" && v.InnohubAPIKey != ""
}

func (v *EnvVars) LLMEnabled() bool {
	return v.LLMApiKey != ""
}

// SlogLevel parses LogLevel, defaulting to info.
func (v *EnvVars) SlogLevel() slog.Level {
	switch strings.ToLower(v.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
