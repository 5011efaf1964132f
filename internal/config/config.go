package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hazz-dev/upnotif/internal/notify"
)

// ErrInvalid is wrapped by every configuration error returned from Load.
var ErrInvalid = errors.New("invalid configuration")

// MaxSeconds caps interval_seconds and timeout_seconds (one year).
const MaxSeconds = 365 * 24 * 60 * 60

// Environment variables read by Load.
const (
	EnvURLs            = "UPNOTIF_URLS"
	EnvSlackWebhook    = "UPNOTIF_SLACK_WEBHOOK"
	EnvIntervalSeconds = "UPNOTIF_INTERVAL_SECONDS"
	EnvTimeoutSeconds  = "UPNOTIF_TIMEOUT_SECONDS"
	EnvConcurrency     = "UPNOTIF_CONCURRENCY"
	EnvListenAddr      = "UPNOTIF_LISTEN_ADDR"
	EnvAllowedOrigins  = "UPNOTIF_ALLOWED_ORIGINS"
	EnvDBPath          = "UPNOTIF_DB_PATH"
	EnvLogDir          = "UPNOTIF_LOG_DIR"
	EnvLogLevel        = "UPNOTIF_LOG_LEVEL"
)

// ServerConfig holds status API settings. An empty Address disables the API.
type ServerConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds check history settings.
type StorageConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// LogConfig holds logger settings. An empty Dir logs to the console only.
type LogConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Config is the root application configuration.
type Config struct {
	URLs            []string      `yaml:"urls" validate:"required,min=1,dive,target_url"`
	SlackWebhook    string        `yaml:"slack_webhook" validate:"required,webhook"`
	IntervalSeconds int           `yaml:"interval_seconds" validate:"gt=0,lte=31536000"`
	TimeoutSeconds  int           `yaml:"timeout_seconds" validate:"gt=0,lte=31536000"`
	Concurrency     int           `yaml:"concurrency" validate:"gt=0"`
	Server          ServerConfig  `yaml:"server"`
	Storage         StorageConfig `yaml:"storage"`
	Log             LogConfig     `yaml:"log"`
}

// Interval is the time between ticks.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Timeout bounds a single probe.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TestMode reports whether notifications go to the console.
func (c *Config) TestMode() bool {
	return c.SlackWebhook == notify.TestModeWebhook
}

func defaults() *Config {
	return &Config{
		IntervalSeconds: 60,
		TimeoutSeconds:  30,
		Concurrency:     10,
		Storage:         StorageConfig{Path: ":memory:"},
		Log:             LogConfig{Level: "info"},
	}
}

// Option adjusts how Load validates the configuration.
type Option func(*loadOptions)

type loadOptions struct {
	webhookOptional bool
}

// WebhookOptional lets Load accept a configuration without a Slack webhook,
// for commands that never send notifications. A webhook that is set must
// still be valid.
func WebhookOptional() Option {
	return func(o *loadOptions) { o.webhookOptional = true }
}

// Load builds the configuration from defaults, the optional YAML file at path
// and UPNOTIF_* environment variables, in increasing order of precedence.
func Load(path string, opts ...Option) (*Config, error) {
	return load(path, os.LookupEnv, opts...)
}

func load(path string, lookup func(string) (string, bool), opts ...Option) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, invalidf("reading config: %v", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, invalidf("parsing config: %v", err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	cfg.URLs = normalizeURLs(cfg.URLs)
	cfg.SlackWebhook = strings.TrimSpace(cfg.SlackWebhook)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := validate(cfg, o); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	getInt := func(key string, dst *int) error {
		v, ok := get(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return invalidf("%s must be a valid number, got %q", key, v)
		}
		*dst = n
		return nil
	}

	if v, ok := get(EnvURLs); ok {
		cfg.URLs = splitList(v)
	}
	if v, ok := get(EnvSlackWebhook); ok {
		cfg.SlackWebhook = v
	}
	if err := getInt(EnvIntervalSeconds, &cfg.IntervalSeconds); err != nil {
		return err
	}
	if err := getInt(EnvTimeoutSeconds, &cfg.TimeoutSeconds); err != nil {
		return err
	}
	if err := getInt(EnvConcurrency, &cfg.Concurrency); err != nil {
		return err
	}
	if v, ok := get(EnvListenAddr); ok {
		cfg.Server.Address = v
	}
	if v, ok := get(EnvAllowedOrigins); ok {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := get(EnvDBPath); ok {
		cfg.Storage.Path = v
	}
	if v, ok := get(EnvLogDir); ok {
		cfg.Log.Dir = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeURLs trims entries, drops empty ones and collapses duplicates,
// keeping the first occurrence.
func normalizeURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("target_url", func(fl validator.FieldLevel) bool {
		return isHTTPURL(fl.Field().String())
	})
	_ = v.RegisterValidation("webhook", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == notify.TestModeWebhook || isHTTPURL(s)
	})
	return v
}

func validate(cfg *Config, o loadOptions) error {
	err := newValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidf("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if o.webhookOptional && fe.Namespace() == "Config.slack_webhook" && fe.Tag() == "required" {
			continue
		}
		msgs = append(msgs, describe(fe))
	}
	if len(msgs) == 0 {
		return nil
	}
	return invalidf("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch {
	case field == "urls":
		return fmt.Sprintf("at least one URL must be provided in %s", EnvURLs)
	case strings.HasPrefix(field, "urls["):
		return fmt.Sprintf("invalid URL %q: must be an absolute http or https URL", fe.Value())
	case field == "slack_webhook" && fe.Tag() == "required":
		return fmt.Sprintf("%s is required (use %q for console output)", EnvSlackWebhook, notify.TestModeWebhook)
	case field == "slack_webhook":
		return fmt.Sprintf("invalid slack webhook URL %q", fe.Value())
	case fe.Tag() == "gt":
		return fmt.Sprintf("%s must be a positive integer, got %v", field, fe.Value())
	case fe.Tag() == "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	case fe.Tag() == "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
