// Package config loads process configuration from an optional YAML file and
// the environment. Environment variables always win over the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ModeSync       = "sync"
	ModeBackground = "background"

	EngineFFmpeg = "ffmpeg"
	EngineHTTP   = "http"

	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	ProviderLocalFS = "localfs"
	ProviderGDrive  = "gdrive"
)

type Config struct {
	Port               string   `yaml:"port"`
	PublicBaseURL      string   `yaml:"public_base_url"`
	StorageRoot        string   `yaml:"storage_root"`
	ResponseMode       string   `yaml:"response_mode"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	Log     LogConfig     `yaml:"log"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Render  RenderConfig  `yaml:"render"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Storage StorageConfig `yaml:"storage"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type FetchConfig struct {
	Timeout  Duration `yaml:"timeout"`
	MaxBytes int64    `yaml:"max_bytes"`
}

type RenderConfig struct {
	Engine          string   `yaml:"engine"`
	FFmpegBin       string   `yaml:"ffmpeg_bin"`
	RendererBaseURL string   `yaml:"renderer_base_url"`
	Preset          string   `yaml:"preset"`
	Width           int      `yaml:"width"`
	Height          int      `yaml:"height"`
	Contrast        float64  `yaml:"contrast"`
	Saturation      float64  `yaml:"saturation"`
	PadColor        string   `yaml:"pad_color"`
	Timeout         Duration `yaml:"timeout"`
	MaxConcurrent   int      `yaml:"max_concurrent_jobs"`
	QueueSize       int      `yaml:"background_queue_size"`
}

type JobsConfig struct {
	Store         string   `yaml:"store"`
	SQLitePath    string   `yaml:"sqlite_path"`
	DatabaseURL   string   `yaml:"database_url"`
	RedisAddr     string   `yaml:"redis_addr"`
	Retention     Duration `yaml:"retention"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

type StorageConfig struct {
	Provider string       `yaml:"provider"`
	GDrive   GDriveConfig `yaml:"gdrive"`
}

type GDriveConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	FolderID     string `yaml:"folder_id"`
}

// Duration lets YAML carry values like "90s" or "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:         "3000",
		StorageRoot:  "./tmp",
		ResponseMode: ModeSync,
		CORSAllowedOrigins: []string{
			"http://localhost:5173",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Fetch: FetchConfig{
			Timeout: Duration{2 * time.Minute},
		},
		Render: RenderConfig{
			Engine:        EngineFFmpeg,
			FFmpegBin:     "ffmpeg",
			Preset:        "composite",
			Width:         900,
			Height:        1600,
			Contrast:      1.15,
			Saturation:    1.25,
			PadColor:      "black",
			Timeout:       Duration{10 * time.Minute},
			MaxConcurrent: 4,
			QueueSize:     64,
		},
		Jobs: JobsConfig{
			Store:         StoreMemory,
			SQLitePath:    "./tmp/jobs.db",
			Retention:     Duration{24 * time.Hour},
			SweepInterval: Duration{10 * time.Minute},
		},
		Storage: StorageConfig{
			Provider: ProviderLocalFS,
		},
	}
}

// Load reads CONFIG_FILE (if set), applies environment overrides and
// validates the result.
func Load() (Config, error) {
	cfg := Default()

	if path := Env("CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = Env("PORT", c.Port)
	c.PublicBaseURL = strings.TrimRight(Env("PUBLIC_BASE_URL", c.PublicBaseURL), "/")
	c.StorageRoot = Env("STORAGE_ROOT", c.StorageRoot)
	c.ResponseMode = strings.ToLower(Env("RESPONSE_MODE", c.ResponseMode))
	c.CORSAllowedOrigins = CSVEnv("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)

	c.Log.Level = Env("LOG_LEVEL", c.Log.Level)
	c.Log.Format = Env("LOG_FORMAT", c.Log.Format)
	c.Log.AddSource = BoolEnv("LOG_SOURCE", c.Log.AddSource)

	c.Fetch.Timeout.Duration = DurationEnv("FETCH_TIMEOUT", c.Fetch.Timeout.Duration)
	c.Fetch.MaxBytes = Int64Env("FETCH_MAX_BYTES", c.Fetch.MaxBytes)

	c.Render.Engine = strings.ToLower(Env("RENDER_ENGINE", c.Render.Engine))
	c.Render.FFmpegBin = Env("FFMPEG_BIN", c.Render.FFmpegBin)
	c.Render.RendererBaseURL = Env("RENDERER_HTTP_BASEURL", c.Render.RendererBaseURL)
	c.Render.Preset = strings.ToLower(Env("RENDER_PRESET", c.Render.Preset))
	c.Render.Width = IntEnv("RENDER_WIDTH", c.Render.Width)
	c.Render.Height = IntEnv("RENDER_HEIGHT", c.Render.Height)
	c.Render.Contrast = FloatEnv("RENDER_CONTRAST", c.Render.Contrast)
	c.Render.Saturation = FloatEnv("RENDER_SATURATION", c.Render.Saturation)
	c.Render.PadColor = Env("RENDER_PAD_COLOR", c.Render.PadColor)
	c.Render.Timeout.Duration = DurationEnv("RENDER_TIMEOUT", c.Render.Timeout.Duration)
	c.Render.MaxConcurrent = IntEnv("MAX_CONCURRENT_JOBS", c.Render.MaxConcurrent)
	c.Render.QueueSize = IntEnv("BACKGROUND_QUEUE_SIZE", c.Render.QueueSize)

	c.Jobs.Store = strings.ToLower(Env("JOB_STORE", c.Jobs.Store))
	c.Jobs.SQLitePath = Env("SQLITE_PATH", c.Jobs.SQLitePath)
	c.Jobs.DatabaseURL = Env("DATABASE_URL", c.Jobs.DatabaseURL)
	c.Jobs.RedisAddr = Env("REDIS_ADDR", c.Jobs.RedisAddr)
	c.Jobs.Retention.Duration = DurationEnv("JOB_RETENTION", c.Jobs.Retention.Duration)
	c.Jobs.SweepInterval.Duration = DurationEnv("STAGING_SWEEP_INTERVAL", c.Jobs.SweepInterval.Duration)

	c.Storage.Provider = strings.ToLower(Env("STORAGE_PROVIDER", c.Storage.Provider))
	c.Storage.GDrive.ClientID = Env("GDRIVE_CLIENT_ID", c.Storage.GDrive.ClientID)
	c.Storage.GDrive.ClientSecret = Env("GDRIVE_CLIENT_SECRET", c.Storage.GDrive.ClientSecret)
	c.Storage.GDrive.RefreshToken = Env("GDRIVE_REFRESH_TOKEN", c.Storage.GDrive.RefreshToken)
	c.Storage.GDrive.FolderID = Env("GDRIVE_FOLDER_ID", c.Storage.GDrive.FolderID)
}

// Validate rejects combinations the process cannot start with.
func (c Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Port) == "" {
		problems = append(problems, "port is required")
	}
	if strings.TrimSpace(c.StorageRoot) == "" {
		problems = append(problems, "storage_root is required")
	}
	switch c.ResponseMode {
	case ModeSync, ModeBackground:
	default:
		problems = append(problems, fmt.Sprintf("unknown response_mode %q", c.ResponseMode))
	}

	switch c.Render.Engine {
	case EngineFFmpeg:
		if c.Render.FFmpegBin == "" {
			problems = append(problems, "ffmpeg_bin is required for the ffmpeg engine")
		}
	case EngineHTTP:
		if c.Render.RendererBaseURL == "" {
			problems = append(problems, "RENDERER_HTTP_BASEURL is required for the http engine")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown render engine %q", c.Render.Engine))
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		problems = append(problems, "render width and height must be positive")
	}
	if c.Render.MaxConcurrent <= 0 {
		problems = append(problems, "max_concurrent_jobs must be positive")
	}

	switch c.Jobs.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.Jobs.SQLitePath == "" {
			problems = append(problems, "SQLITE_PATH is required for the sqlite job store")
		}
	case StorePostgres:
		if c.Jobs.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres job store")
		}
	case StoreRedis:
		if c.Jobs.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR is required for the redis job store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown job store %q", c.Jobs.Store))
	}

	switch c.Storage.Provider {
	case ProviderLocalFS:
	case ProviderGDrive:
		g := c.Storage.GDrive
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			problems = append(problems, "gdrive provider needs GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage provider %q", c.Storage.Provider))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
