package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPListen      = ":8080"
	defaultHealthPath      = "/healthz"
	defaultReadyPath       = "/readyz"
	defaultMetricsPath     = "/metrics"
	defaultWebhookPath     = "/webhook"
	defaultMaxBodyBytes    = 1 << 20
	defaultReloadSeconds   = 60
	defaultTickSeconds     = 60
	defaultSummarySchedule = "6:00,14:30"
	defaultSilenceHours    = 24
	defaultMuteReaction    = "🤫"
	defaultConfirmReaction = "👍"
	defaultFailReaction    = "❌"
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultAlertBucket     = "alerts"
	defaultMessageBucket   = "messages"
	defaultSummaryBucket   = "summaries"

	// ServiceModeSingle keeps in-memory state without NATS dependencies.
	ServiceModeSingle = "single"
	// ServiceModeNATS keeps JetStream-KV-backed state that survives restarts.
	ServiceModeNATS = "nats"
)

// Config holds bridge runtime settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Log      LogConfig      `toml:"log"`
	HTTP     HTTPConfig     `toml:"http"`
	Matrix   MatrixConfig   `toml:"matrix"`
	Grafana  GrafanaConfig  `toml:"grafana"`
	Mentions MentionsConfig `toml:"mentions"`
	Summary  SummaryConfig  `toml:"summary"`
	NATS     NATSConfig     `toml:"nats"`
}

// ServiceConfig contains process-level settings.
// Params: name, state mode, and tick/reload intervals.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name              string `toml:"name"`
	Mode              string `toml:"mode"`
	TickIntervalSec   int    `toml:"tick_interval_sec"`
	ReloadEnabled     bool   `toml:"reload_enabled"`
	ReloadIntervalSec int    `toml:"reload_interval_sec"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// HTTPConfig configures the inbound webhook endpoint and probe paths.
// Params: listen address, route paths, and body size limit.
// Returns: HTTP server behavior.
type HTTPConfig struct {
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	MetricsPath  string `toml:"metrics_path"`
	WebhookPath  string `toml:"webhook_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// MatrixConfig defines the Matrix room transport settings.
// Params: homeserver credentials, bound room, and reaction keys.
// Returns: Matrix client configuration.
type MatrixConfig struct {
	HomeserverURL   string `toml:"homeserver_url"`
	UserID          string `toml:"user_id"`
	AccessToken     string `toml:"access_token"`
	RoomID          string `toml:"room_id"`
	MuteReaction    string `toml:"mute_reaction"`
	ConfirmReaction string `toml:"confirm_reaction"`
	FailReaction    string `toml:"fail_reaction"`
}

// GrafanaConfig defines the Grafana silence API settings.
// Params: base URL, service account token, and silence duration.
// Returns: Grafana client configuration.
type GrafanaConfig struct {
	URL          string `toml:"url"`
	Token        string `toml:"token"`
	SilenceHours int    `toml:"silence_hours"`
}

// MentionsConfig points at the reloadable per-host mention policy file.
// Params: policy file path; empty disables mentions.
// Returns: mention policy source.
type MentionsConfig struct {
	File string `toml:"file"`
}

// SummaryConfig holds the per-severity summary schedules.
// Params: comma-separated HH:MM lists in UTC.
// Returns: schedule strings consumed by the schedule evaluator.
type SummaryConfig struct {
	ScheduleCrit string `toml:"schedule_crit"`
	ScheduleWarn string `toml:"schedule_warn"`
}

// NATSConfig contains JetStream connection settings for nats mode.
// Params: server URLs and bucket auto-create toggle; bucket names are runtime-fixed.
// Returns: NATS connection options.
type NATSConfig struct {
	URL                []string `toml:"url"`
	AllowCreateBuckets bool     `toml:"allow_create_buckets"`
}

// NATSStateConfig contains fixed JetStream KV controls for the state backend.
// Params: URL, bucket names, and create permission.
// Returns: NATS state backend options.
type NATSStateConfig struct {
	URL                []string
	AlertBucket        string
	MessageBucket      string
	SummaryBucket      string
	AllowCreateBuckets bool
}

// DeriveStateNATSConfig builds fixed state-backend settings from runtime config.
// Params: full runtime configuration snapshot.
// Returns: non-user-overridable NATS state settings.
func DeriveStateNATSConfig(cfg Config) NATSStateConfig {
	urls := normalizeNATSURLs(cfg.NATS.URL)
	if len(urls) == 0 {
		urls = []string{defaultNATSURL}
	}
	return NATSStateConfig{
		URL:                urls,
		AlertBucket:        defaultAlertBucket,
		MessageBucket:      defaultMessageBucket,
		SummaryBucket:      defaultSummaryBucket,
		AllowCreateBuckets: cfg.NATS.AllowCreateBuckets,
	}
}

// TickInterval returns the periodic check interval.
// Params: none.
// Returns: tick duration derived from service settings.
func (c ServiceConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSec) * time.Second
}

// ReloadInterval returns the config reload poll interval.
// Params: none.
// Returns: reload duration derived from service settings.
func (c ServiceConfig) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadIntervalSec) * time.Second
}

// SilenceDuration returns the silence window length.
// Params: none.
// Returns: silence duration derived from grafana settings.
func (c GrafanaConfig) SilenceDuration() time.Duration {
	return time.Duration(c.SilenceHours) * time.Hour
}

// ScheduleFor returns the schedule string for one severity class key.
// Params: severity class name (CRIT or WARN).
// Returns: configured schedule string; empty for unknown classes.
func (c SummaryConfig) ScheduleFor(severity string) string {
	switch severity {
	case "CRIT":
		return c.ScheduleCrit
	case "WARN":
		return c.ScheduleWarn
	default:
		return ""
	}
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays source sections onto destination.
// Params: destination config and next fragment; later files win per section.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.HTTP != (HTTPConfig{}) {
		dst.HTTP = src.HTTP
	}
	if src.Matrix != (MatrixConfig{}) {
		dst.Matrix = src.Matrix
	}
	if src.Grafana != (GrafanaConfig{}) {
		dst.Grafana = src.Grafana
	}
	if src.Mentions != (MentionsConfig{}) {
		dst.Mentions = src.Mentions
	}
	if src.Summary != (SummaryConfig{}) {
		dst.Summary = src.Summary
	}
	if len(src.NATS.URL) > 0 || src.NATS.AllowCreateBuckets {
		dst.NATS = src.NATS
	}
}

// applyDefaults fills unset fields with runtime defaults.
// Params: decoded config snapshot.
// Returns: defaulted configuration side-effect in cfg.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "alertbridge"
	}
	cfg.Service.Mode = NormalizeServiceMode(cfg.Service.Mode)
	if cfg.Service.TickIntervalSec <= 0 {
		cfg.Service.TickIntervalSec = defaultTickSeconds
	}
	if cfg.Service.ReloadIntervalSec <= 0 {
		cfg.Service.ReloadIntervalSec = defaultReloadSeconds
	}

	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if strings.TrimSpace(cfg.Log.Console.Level) == "" {
		cfg.Log.Console.Level = "info"
	}
	if strings.TrimSpace(cfg.Log.File.Level) == "" {
		cfg.Log.File.Level = "info"
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.HTTP.MetricsPath) == "" {
		cfg.HTTP.MetricsPath = defaultMetricsPath
	}
	if strings.TrimSpace(cfg.HTTP.WebhookPath) == "" {
		cfg.HTTP.WebhookPath = defaultWebhookPath
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}

	if strings.TrimSpace(cfg.Matrix.MuteReaction) == "" {
		cfg.Matrix.MuteReaction = defaultMuteReaction
	}
	if strings.TrimSpace(cfg.Matrix.ConfirmReaction) == "" {
		cfg.Matrix.ConfirmReaction = defaultConfirmReaction
	}
	if strings.TrimSpace(cfg.Matrix.FailReaction) == "" {
		cfg.Matrix.FailReaction = defaultFailReaction
	}

	if cfg.Grafana.SilenceHours <= 0 {
		cfg.Grafana.SilenceHours = defaultSilenceHours
	}

	if strings.TrimSpace(cfg.Summary.ScheduleCrit) == "" {
		cfg.Summary.ScheduleCrit = defaultSummarySchedule
	}
	if strings.TrimSpace(cfg.Summary.ScheduleWarn) == "" {
		cfg.Summary.ScheduleWarn = defaultSummarySchedule
	}

	if cfg.Service.Mode == ServiceModeNATS && len(cfg.NATS.URL) == 0 {
		cfg.NATS.URL = []string{defaultNATSURL}
	}
}

// validateConfig checks required settings after defaulting.
// Params: defaulted config snapshot.
// Returns: first validation error found.
func validateConfig(cfg Config) error {
	if !IsSupportedServiceMode(cfg.Service.Mode) {
		return fmt.Errorf("service.mode %q is not supported; use %q or %q", cfg.Service.Mode, ServiceModeSingle, ServiceModeNATS)
	}

	if err := validateLogSink("console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("file", cfg.Log.File, true); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Matrix.HomeserverURL) == "" {
		return errors.New("matrix.homeserver_url is required")
	}
	if strings.TrimSpace(cfg.Matrix.UserID) == "" {
		return errors.New("matrix.user_id is required")
	}
	if strings.TrimSpace(cfg.Matrix.AccessToken) == "" {
		return errors.New("matrix.access_token is required")
	}
	if strings.TrimSpace(cfg.Matrix.RoomID) == "" {
		return errors.New("matrix.room_id is required")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.Matrix.UserID), "@") {
		return fmt.Errorf("matrix.user_id %q must start with '@'", cfg.Matrix.UserID)
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.Matrix.RoomID), "!") {
		return fmt.Errorf("matrix.room_id %q must start with '!'", cfg.Matrix.RoomID)
	}

	if strings.TrimSpace(cfg.Grafana.URL) != "" && strings.TrimSpace(cfg.Grafana.Token) == "" {
		return errors.New("grafana.token is required when grafana.url is set")
	}

	if cfg.Service.Mode == ServiceModeNATS && len(normalizeNATSURLs(cfg.NATS.URL)) == 0 {
		return errors.New("nats.url is required in nats mode")
	}
	return nil
}

// validateLogSink checks one logging sink block.
// Params: sink name, sink settings, and whether path is required when enabled.
// Returns: validation error with sink-qualified message.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.%s.level %q is not supported", name, sink.Level)
	}
	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.%s.format %q is not supported", name, sink.Format)
	}
	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("log.%s.path is required when sink is enabled", name)
	}
	return nil
}

// NormalizeServiceMode lowercases and defaults the service mode value.
// Params: raw mode string from config.
// Returns: normalized mode; empty input becomes single mode.
func NormalizeServiceMode(value string) string {
	mode := strings.ToLower(strings.TrimSpace(value))
	if mode == "" {
		return ServiceModeSingle
	}
	return mode
}

// IsSupportedServiceMode reports whether mode is known.
// Params: normalized mode string.
// Returns: support flag.
func IsSupportedServiceMode(mode string) bool {
	return mode == ServiceModeSingle || mode == ServiceModeNATS
}

// normalizeNATSURLs trims and drops empty URL entries.
// Params: raw URL list from config.
// Returns: cleaned URL list.
func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		trimmed := strings.TrimSpace(url)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
