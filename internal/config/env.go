package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string `validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty     bool
	File       string
	MaxSizeMB  int `validate:"gte=0"`
	MaxBackups int `validate:"gte=0"`
	MaxAgeDays int `validate:"gte=0"`
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string `validate:"required_if=Send true"`
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig holds the HTTP listener and session lifetime.
type ServerConfig struct {
	Host            string
	Port            int           `validate:"min=1,max=65535"`
	SessionTTL      time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// ViewerConfig controls page mapping, scaling and rendering.
type ViewerConfig struct {
	Mode              string `validate:"oneof=spread single"`
	SkipPage          int
	BaseScale         float64 `validate:"gt=0"`
	MinScale          float64 `validate:"gte=0"`
	MaxScale          float64 `validate:"gte=0"`
	ReferenceWidth    int     `validate:"gte=0"`
	ThumbScale        float64 `validate:"gt=0"`
	ThumbWidth        int     `validate:"gte=0"`
	MaxThumbs         int     `validate:"gte=0"`
	ThumbConcurrency  int     `validate:"gte=1"`
	ClearOnResize     bool
	JPEGQuality       int `validate:"min=1,max=100"`
	RenderMaxInflight int `validate:"gte=1"`
}

// FlipConfig controls the page-turn animation.
type FlipConfig struct {
	Duration         time.Duration `validate:"gt=0"`
	NarrowDuration   time.Duration `validate:"gt=0"`
	NarrowBelow      int           `validate:"gte=0"`
	HideOverlayBelow int           `validate:"gte=0"`
}

// InputConfig controls gesture thresholds and debouncing.
type InputConfig struct {
	WheelThreshold float64       `validate:"gt=0"`
	WheelDebounce  time.Duration `validate:"gt=0"`
	SwipeThreshold float64       `validate:"gt=0"`
	ResizeDebounce time.Duration `validate:"gt=0"`
}

// SourceConfig controls where documents come from.
type SourceConfig struct {
	DocRoot            string
	DefaultDocument    string
	FetchTimeout       time.Duration `validate:"gt=0"`
	MaxDocumentBytes   int64         `validate:"gte=0"`
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string `validate:"required_with=AWSAccessKeyID"`
	S3Bucket           string
	// AllowedURLHosts limits http(s) documents; empty admits any public host.
	AllowedURLHosts  []string `validate:"dive,required"`
	AllowPrivateURLs bool
}

// CacheConfig controls the optional shared render store.
type CacheConfig struct {
	RedisURL  string        `validate:"omitempty,url"`
	RenderTTL time.Duration `validate:"gte=0"`
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Server  ServerConfig
	Viewer  ViewerConfig
	Flip    FlipConfig
	Input   InputConfig
	Source  SourceConfig
	Cache   CacheConfig
}

// Load reads .env files (missing ones are ignored), then the environment,
// and validates the result.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Viewer.MaxScale > 0 && c.Viewer.MinScale > c.Viewer.MaxScale {
		return fmt.Errorf("invalid config: MIN_SCALE %.2f above MAX_SCALE %.2f", c.Viewer.MinScale, c.Viewer.MaxScale)
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port) }

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/flipbook.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_flipbook",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Host:            getEnv("HOST", ""),
		Port:            parseInt(getEnv("PORT", "8080"), 8080),
		SessionTTL:      parseDuration(getEnv("SESSION_TTL", "30m"), 30*time.Minute),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.Viewer = ViewerConfig{
		Mode:              strings.ToLower(getEnv("VIEW_MODE", "spread")),
		SkipPage:          parseInt(getEnv("SKIP_PAGE", "2"), 2),
		BaseScale:         parseFloat(getEnv("BASE_SCALE", "1.5"), 1.5),
		MinScale:          parseFloat(getEnv("MIN_SCALE", "0.5"), 0.5),
		MaxScale:          parseFloat(getEnv("MAX_SCALE", "3"), 3),
		ReferenceWidth:    parseInt(getEnv("REFERENCE_WIDTH", "1200"), 1200),
		ThumbScale:        parseFloat(getEnv("THUMB_SCALE", "0.7"), 0.7),
		ThumbWidth:        parseInt(getEnv("THUMB_WIDTH", "120"), 120),
		MaxThumbs:         parseInt(getEnv("MAX_THUMBS", "40"), 40),
		ThumbConcurrency:  parseInt(getEnv("THUMB_CONCURRENCY", "4"), 4),
		ClearOnResize:     parseBool(getEnv("CLEAR_ON_RESIZE", "true")),
		JPEGQuality:       parseInt(getEnv("JPEG_QUALITY", "92"), 92),
		RenderMaxInflight: parseInt(getEnv("RENDER_MAX_INFLIGHT", "2"), 2),
	}

	cfg.Flip = FlipConfig{
		Duration:         parseDuration(getEnv("FLIP_DURATION", "700ms"), 700*time.Millisecond),
		NarrowDuration:   parseDuration(getEnv("FLIP_DURATION_NARROW", "420ms"), 420*time.Millisecond),
		NarrowBelow:      parseInt(getEnv("NARROW_BELOW", "900"), 900),
		HideOverlayBelow: parseInt(getEnv("HIDE_OVERLAY_BELOW", "0"), 0),
	}

	cfg.Input = InputConfig{
		WheelThreshold: parseFloat(getEnv("WHEEL_THRESHOLD", "20"), 20),
		WheelDebounce:  parseDuration(getEnv("WHEEL_DEBOUNCE", "300ms"), 300*time.Millisecond),
		SwipeThreshold: parseFloat(getEnv("SWIPE_THRESHOLD", "40"), 40),
		ResizeDebounce: parseDuration(getEnv("RESIZE_DEBOUNCE", "300ms"), 300*time.Millisecond),
	}

	cfg.Source = SourceConfig{
		DocRoot:            getEnv("DOC_ROOT", "."),
		DefaultDocument:    getEnv("DEFAULT_DOCUMENT", "myfile.pdf"),
		FetchTimeout:       parseDuration(getEnv("FETCH_TIMEOUT", "30s"), 30*time.Second),
		MaxDocumentBytes:   int64(parseInt(getEnv("MAX_DOCUMENT_BYTES", "104857600"), 100<<20)),
		AWSRegion:          getEnv("AWS_REGION", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		AllowedURLHosts:    parseList(getEnv("ALLOWED_URL_HOSTS", "")),
		AllowPrivateURLs:   parseBool(getEnv("ALLOW_PRIVATE_URLS", "false")),
	}

	// Empty REDIS_URL disables the shared render store
	cfg.Cache = CacheConfig{
		RedisURL:  getEnv("REDIS_URL", ""),
		RenderTTL: parseDuration(getEnv("RENDER_CACHE_TTL", "24h"), 24*time.Hour),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
