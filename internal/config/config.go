// Package config loads purchase log settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when Load is called with an empty path.
const DefaultPath = "purchaselog.yaml"

// Compression mirrors the recompressor options.
type Compression struct {
	TargetBytes      int64   `yaml:"targetBytes"`
	MinQuality       int     `yaml:"minQuality"`
	MaxQuality       int     `yaml:"maxQuality"`
	MinLongestSidePx int     `yaml:"minLongestSidePx"`
	MaxLongestSidePx int     `yaml:"maxLongestSidePx"`
	DownscaleStep    float64 `yaml:"downscaleStep"`
}

// CacheRule matches cache entries created by the export pipeline.
// An empty Suffix matches any suffix.
type CacheRule struct {
	Prefix string `yaml:"prefix"`
	Suffix string `yaml:"suffix"`
}

// Wipe selects standalone photo copies removed by a full wipe.
type Wipe struct {
	PhotoPrefixes []string `yaml:"photoPrefixes"`
	PhotoSuffix   string   `yaml:"photoSuffix"`
}

// Location configures the best-effort position fix written to location.txt.
type Location struct {
	Enabled        bool    `yaml:"enabled"`
	Latitude       float64 `yaml:"latitude"`
	Longitude      float64 `yaml:"longitude"`
	AccuracyMeters float64 `yaml:"accuracyMeters"`
	Provider       string  `yaml:"provider"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
}

// ObjectStore configures optional archive publishing.
type ObjectStore struct {
	Endpoint             string `yaml:"endpoint"`
	AccessKey            string `yaml:"accessKey"`
	SecretKey            string `yaml:"secretKey"`
	Bucket               string `yaml:"bucket"`
	UseSSL               bool   `yaml:"useSSL"`
	PresignExpiryMinutes int    `yaml:"presignExpiryMinutes"`
}

// Enabled reports whether enough settings are present to publish archives.
func (o ObjectStore) Enabled() bool {
	return o.Endpoint != "" && o.Bucket != ""
}

// PresignExpiry returns the presigned URL lifetime.
func (o ObjectStore) PresignExpiry() time.Duration {
	return time.Duration(o.PresignExpiryMinutes) * time.Minute
}

// Schedule configures automatic exports in the desktop server.
type Schedule struct {
	Interval       string `yaml:"interval"`       // manual, daily, weekly or monthly
	RetentionCount int    `yaml:"retentionCount"` // archives to keep, 0 keeps all
}

// Config is the full application configuration.
type Config struct {
	DataDir     string      `yaml:"dataDir"`
	CacheDir    string      `yaml:"cacheDir"`
	PhotosDir   string      `yaml:"photosDir"`
	LogLevel    string      `yaml:"logLevel"`
	ListenAddr  string      `yaml:"listenAddr"`
	Compression Compression `yaml:"compression"`
	CacheRules  []CacheRule `yaml:"cacheRules"`
	Wipe        Wipe        `yaml:"wipe"`
	Location    Location    `yaml:"location"`
	ObjectStore ObjectStore `yaml:"objectStore"`
	Schedule    Schedule    `yaml:"schedule"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DataDir:    "./data",
		CacheDir:   filepath.Join("./data", "cache"),
		PhotosDir:  filepath.Join("./data", "photos"),
		LogLevel:   "info",
		ListenAddr: "localhost:8090",
		Compression: Compression{
			TargetBytes:      180_000,
			MinQuality:       40,
			MaxQuality:       92,
			MinLongestSidePx: 900,
			MaxLongestSidePx: 2000,
			DownscaleStep:    0.85,
		},
		CacheRules: []CacheRule{
			{Prefix: "export_"},
			{Prefix: "inventory_", Suffix: ".zip"},
			{Prefix: "img_stage_"},
		},
		Wipe: Wipe{
			PhotoPrefixes: []string{"inv_", "photo_", "img_"},
			PhotoSuffix:   ".jpg",
		},
		Location: Location{
			TimeoutSeconds: 10,
		},
		ObjectStore: ObjectStore{
			PresignExpiryMinutes: 60 * 24,
		},
		Schedule: Schedule{
			Interval: "manual",
		},
	}
}

// Load reads config from path (defaults to DefaultPath). A missing file
// yields the defaults with environment overrides applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	deriveDirs(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PURCHASELOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PURCHASELOG_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("PURCHASELOG_PHOTOS_DIR"); v != "" {
		cfg.PhotosDir = v
	}
	if v := os.Getenv("PURCHASELOG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PURCHASELOG_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PURCHASELOG_TARGET_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Compression.TargetBytes = n
		}
	}
	if v := os.Getenv("PURCHASELOG_S3_ENDPOINT"); v != "" {
		cfg.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("PURCHASELOG_S3_ACCESS_KEY"); v != "" {
		cfg.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("PURCHASELOG_S3_SECRET_KEY"); v != "" {
		cfg.ObjectStore.SecretKey = v
	}
	if v := os.Getenv("PURCHASELOG_S3_BUCKET"); v != "" {
		cfg.ObjectStore.Bucket = v
	}
}

// deriveDirs moves the cache and photos directories under a relocated data
// directory unless they were set on their own.
func deriveDirs(cfg *Config) {
	def := Default()
	if cfg.DataDir == def.DataDir {
		return
	}
	if cfg.CacheDir == def.CacheDir {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}
	if cfg.PhotosDir == def.PhotosDir {
		cfg.PhotosDir = filepath.Join(cfg.DataDir, "photos")
	}
}

// Validate checks invariants that would otherwise surface mid-export.
func (c Config) Validate() error {
	comp := c.Compression
	if comp.TargetBytes <= 0 {
		return fmt.Errorf("compression.targetBytes must be positive, got %d", comp.TargetBytes)
	}
	if comp.MinQuality < 1 || comp.MaxQuality > 100 || comp.MinQuality > comp.MaxQuality {
		return fmt.Errorf("compression quality range [%d, %d] is invalid", comp.MinQuality, comp.MaxQuality)
	}
	if comp.MinLongestSidePx < 1 || comp.MinLongestSidePx > comp.MaxLongestSidePx {
		return fmt.Errorf("compression edge range [%d, %d] is invalid", comp.MinLongestSidePx, comp.MaxLongestSidePx)
	}
	if comp.DownscaleStep <= 0 || comp.DownscaleStep >= 1 {
		return fmt.Errorf("compression.downscaleStep must be in (0, 1), got %v", comp.DownscaleStep)
	}
	if c.Schedule.RetentionCount < 0 {
		return fmt.Errorf("schedule.retentionCount must not be negative, got %d", c.Schedule.RetentionCount)
	}
	if c.CacheDir == "" {
		return errors.New("cacheDir is required")
	}
	if c.DataDir == "" {
		return errors.New("dataDir is required")
	}
	return nil
}
