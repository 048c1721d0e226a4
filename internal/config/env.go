package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
	// LogFile additionally writes logs to a rotating file when set.
	LogFile           string `envconfig:"LOG_FILE"`
	LogFileMaxSizeMB  int    `envconfig:"LOG_FILE_MAX_SIZE_MB" default:"10"`
	LogFileMaxBackups int    `envconfig:"LOG_FILE_MAX_BACKUPS" default:"5"`
	LogFileMaxAgeDays int    `envconfig:"LOG_FILE_MAX_AGE_DAYS" default:"30"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".taskmirror/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket   string `envconfig:"S3_BUCKET"`
	S3Prefix   string `envconfig:"S3_PREFIX" default:"taskmirror/"`
	S3Region   string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	S3Endpoint string `envconfig:"S3_ENDPOINT"`
}

type NotionEnv struct {
	Token      string `envconfig:"NOTION_TOKEN" required:"true"`
	DatabaseID string `envconfig:"NOTION_DATABASE_ID" required:"true"`
	BaseURL    string `envconfig:"NOTION_BASE_URL" default:"https://api.notion.com/v1"`
	Version    string `envconfig:"NOTION_VERSION" default:"2022-06-28"`
}

type ClickUpEnv struct {
	Token         string  `envconfig:"CLICKUP_TOKEN" required:"true"`
	ListID        string  `envconfig:"CLICKUP_LIST_ID" required:"true"`
	TeamID        string  `envconfig:"CLICKUP_TEAM_ID"`
	BaseURL       string  `envconfig:"CLICKUP_BASE_URL" default:"https://api.clickup.com/api/v2"`
	RatePerSecond float64 `envconfig:"CLICKUP_RATE_PER_SECOND" default:"3"`
}

type SyncEnv struct {
	Interval         time.Duration `envconfig:"SYNC_INTERVAL" default:"30s"`
	StartDelay       time.Duration `envconfig:"SYNC_START_DELAY" default:"5s"`
	Workers          int           `envconfig:"SYNC_WORKERS" default:"4"`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	LinkCacheTTL     time.Duration `envconfig:"LINK_CACHE_TTL" default:"5m"`
	LinkRefreshEvery int           `envconfig:"LINK_REFRESH_EVERY" default:"20"`
	RecreateDeleted  bool          `envconfig:"RECREATE_DELETED" default:"false"`
}

type Env struct {
	BaseEnv
	StorageEnv
	NotionEnv
	ClickUpEnv
	SyncEnv
}

const namespace = "TASKMIRROR"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if env.Workers <= 0 {
		return nil, fmt.Errorf("invalid %s_SYNC_WORKERS: %d", namespace, env.Workers)
	}
	return &env, nil
}

func (e *BaseEnv) IsLocal() bool {
	return e.Env == "local"
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
