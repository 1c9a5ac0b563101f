package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/lecturelens-backend/internal/platform/envutil"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Media      MediaConfig      `yaml:"media"`
	Scene      SceneConfig      `yaml:"scene"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Annotate   AnnotateConfig   `yaml:"annotate"`
	Timeline   TimelineConfig   `yaml:"timeline"`
	Render     RenderConfig     `yaml:"render"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	LogMode string `yaml:"log_mode"`
}

type StorageConfig struct {
	// WorkRoot holds one directory per task: source video, extracted
	// audio, frame stills, and the rendered document.
	WorkRoot     string `yaml:"work_root"`
	DatabasePath string `yaml:"database_path"`
}

type MediaConfig struct {
	FFmpegPath           string  `yaml:"ffmpeg_path"`
	FrameIntervalSeconds float64 `yaml:"frame_interval_seconds"`
	AudioSampleRateHz    int     `yaml:"audio_sample_rate_hz"`
	TimeoutMinutes       int     `yaml:"timeout_minutes"`
}

type SceneConfig struct {
	// DiffThreshold is the Hamming distance (out of 64 dHash bits) a frame
	// must reach against the rolling reference before it becomes a keyframe.
	DiffThreshold     int     `yaml:"diff_threshold"`
	MinSpacingSeconds float64 `yaml:"min_spacing_seconds"`
}

type TranscribeConfig struct {
	DefaultLanguage  string `yaml:"default_language"`
	MaxRetries       int    `yaml:"max_retries"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms"`
}

type AnnotateConfig struct {
	Workers         int `yaml:"workers"`
	RetriesPerFrame int `yaml:"retries_per_frame"`
}

type TimelineConfig struct {
	MaxSectionGapSeconds float64 `yaml:"max_section_gap_seconds"`
	PauseBoundarySeconds float64 `yaml:"pause_boundary_seconds"`
	HeadingMaxChars      int     `yaml:"heading_max_chars"`
}

type RenderConfig struct {
	// PageUnitBudget caps the layout units (wrapped text lines, heading and
	// image weights) placed on one page before a page break is inserted.
	PageUnitBudget   int     `yaml:"page_unit_budget"`
	TextWrapColumns  int     `yaml:"text_wrap_columns"`
	ImageWidthInches float64 `yaml:"image_width_inches"`
}

func Default() Config {
	return Config{
		Server:  ServerConfig{Port: 8080, LogMode: "development"},
		Storage: StorageConfig{WorkRoot: "/tmp/lecturelens-tasks", DatabasePath: "lecturelens.db"},
		Media: MediaConfig{
			FFmpegPath:           "ffmpeg",
			FrameIntervalSeconds: 2.0,
			AudioSampleRateHz:    16000,
			TimeoutMinutes:       10,
		},
		Scene:      SceneConfig{DiffThreshold: 14, MinSpacingSeconds: 5.0},
		Transcribe: TranscribeConfig{DefaultLanguage: "en-US", MaxRetries: 3, InitialBackoffMs: 750},
		Annotate:   AnnotateConfig{Workers: 4, RetriesPerFrame: 2},
		Timeline: TimelineConfig{
			MaxSectionGapSeconds: 30.0,
			PauseBoundarySeconds: 4.0,
			HeadingMaxChars:      64,
		},
		Render: RenderConfig{PageUnitBudget: 36, TextWrapColumns: 90, ImageWidthInches: 5.5},
	}
}

// Load reads the YAML file at CONFIG_PATH (or path, when non-empty) on top of
// the defaults. A missing file is not an error: defaults plus env overrides
// are a complete configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = envutil.GetEnv("CONFIG_PATH", "")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Server.Port = envutil.GetEnvAsInt("PORT", cfg.Server.Port)
	cfg.Server.LogMode = envutil.GetEnv("LOG_MODE", cfg.Server.LogMode)
	cfg.Storage.WorkRoot = envutil.GetEnv("WORK_ROOT", cfg.Storage.WorkRoot)
	cfg.Storage.DatabasePath = envutil.GetEnv("DATABASE_PATH", cfg.Storage.DatabasePath)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if c.Storage.WorkRoot == "" {
		return fmt.Errorf("storage.work_root is required")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}
	if c.Media.FrameIntervalSeconds <= 0 {
		return fmt.Errorf("media.frame_interval_seconds must be positive")
	}
	if c.Scene.DiffThreshold <= 0 || c.Scene.DiffThreshold > 64 {
		return fmt.Errorf("scene.diff_threshold must be in 1..64")
	}
	if c.Scene.MinSpacingSeconds < 0 {
		return fmt.Errorf("scene.min_spacing_seconds must not be negative")
	}
	if c.Transcribe.MaxRetries < 0 {
		return fmt.Errorf("transcribe.max_retries must not be negative")
	}
	if c.Annotate.Workers <= 0 {
		return fmt.Errorf("annotate.workers must be positive")
	}
	if c.Timeline.MaxSectionGapSeconds <= 0 {
		return fmt.Errorf("timeline.max_section_gap_seconds must be positive")
	}
	if c.Render.PageUnitBudget <= 0 {
		return fmt.Errorf("render.page_unit_budget must be positive")
	}
	return nil
}
