// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is loaded once by the
// CLI and handed to components by value or pointer; nothing reads it globally.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Humanoid  HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	Workflow  WorkflowConfig  `mapstructure:"workflow" yaml:"workflow"`
	Modal     ModalConfig     `mapstructure:"modal" yaml:"modal"`
	Sessions  []SessionConfig `mapstructure:"sessions" yaml:"sessions"`
	Reporting ReportingConfig `mapstructure:"reporting" yaml:"reporting"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Locators  LocatorsConfig  `mapstructure:"locators" yaml:"locators"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// Browser driver names.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
)

// BrowserConfig holds settings for the browser the workflow drives.
type BrowserConfig struct {
	Driver            string         `mapstructure:"driver" yaml:"driver"`
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	RemoteURL         string         `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	Stealth           bool           `mapstructure:"stealth" yaml:"stealth"`
	Persona           PersonaConfig  `mapstructure:"persona" yaml:"persona"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// ViewportConfig is the emulated window size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// PersonaConfig is the browser identity presented to the platform.
type PersonaConfig struct {
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Platform  string   `mapstructure:"platform" yaml:"platform"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
}

// PollConfig bounds one polling loop.
type PollConfig struct {
	IntervalMin time.Duration `mapstructure:"interval_min" yaml:"interval_min"`
	IntervalMax time.Duration `mapstructure:"interval_max" yaml:"interval_max"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	// GraceAttempts is the attempt from which a partial signal is accepted.
	GraceAttempts int `mapstructure:"grace_attempts" yaml:"grace_attempts"`
}

// WorkflowConfig tunes the stage controller.
type WorkflowConfig struct {
	UploadURL               string        `mapstructure:"upload_url" yaml:"upload_url"`
	UploadRoute             string        `mapstructure:"upload_route" yaml:"upload_route"`
	DefaultMaxStageRetries  int           `mapstructure:"default_max_stage_retries" yaml:"default_max_stage_retries"`
	DefaultMaxTotalDuration time.Duration `mapstructure:"default_max_total_duration" yaml:"default_max_total_duration"`
	Auth                    PollConfig    `mapstructure:"auth" yaml:"auth"`
	Processing              PollConfig    `mapstructure:"processing" yaml:"processing"`
	Disclosure              PollConfig    `mapstructure:"disclosure" yaml:"disclosure"`
	Publish                 PollConfig    `mapstructure:"publish" yaml:"publish"`
	CaptionMinRatio         float64       `mapstructure:"caption_min_ratio" yaml:"caption_min_ratio"`
	BackspaceLimit          int           `mapstructure:"backspace_limit" yaml:"backspace_limit"`
	PrePublishDelayMin      time.Duration `mapstructure:"pre_publish_delay_min" yaml:"pre_publish_delay_min"`
	PrePublishDelayMax      time.Duration `mapstructure:"pre_publish_delay_max" yaml:"pre_publish_delay_max"`
	ScrollFallbackPx        float64       `mapstructure:"scroll_fallback_px" yaml:"scroll_fallback_px"`
	ScreenshotEachStage     bool          `mapstructure:"screenshot_each_stage" yaml:"screenshot_each_stage"`
	// SuccessPhrases are matched, case-insensitively, against the visible
	// page text after the publish click.
	SuccessPhrases []string `mapstructure:"success_phrases" yaml:"success_phrases"`
}

// ModalConfig overrides the dialog classifier keyword sets. Empty lists keep
// the built-in defaults.
type ModalConfig struct {
	ExitKeywords       []string `mapstructure:"exit_keywords" yaml:"exit_keywords"`
	DisclosureKeywords []string `mapstructure:"disclosure_keywords" yaml:"disclosure_keywords"`
	SuccessKeywords    []string `mapstructure:"success_keywords" yaml:"success_keywords"`
	ErrorKeywords      []string `mapstructure:"error_keywords" yaml:"error_keywords"`
}

// SessionConfig binds a session name to its persisted credential store.
type SessionConfig struct {
	Name       string `mapstructure:"name" yaml:"name"`
	CookieFile string `mapstructure:"cookie_file" yaml:"cookie_file"`
	// Domain is the platform's registrable domain; cookies outside it are skipped.
	Domain string `mapstructure:"domain" yaml:"domain"`
}

// ReportingConfig selects where outcomes and artifacts are persisted.
type ReportingConfig struct {
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	// Stream appends one JSON line per outcome to this file, or to stdout
	// when set to "stdout".
	Stream string `mapstructure:"stream" yaml:"stream"`
}

// EngineConfig configures the per-session job dispatcher.
type EngineConfig struct {
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`
	MaxSessions int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	Cooldown    time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// LocatorsConfig points at an optional YAML file of locator overrides.
type LocatorsConfig struct {
	OverridesFile string `mapstructure:"overrides_file" yaml:"overrides_file"`
}

// Session returns the named session configuration.
func (c *Config) Session(name string) (SessionConfig, bool) {
	for _, s := range c.Sessions {
		if s.Name == name {
			return s, true
		}
	}
	return SessionConfig{}, false
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "reelpost")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.viewport.width", 1366)
	v.SetDefault("browser.viewport.height", 900)
	v.SetDefault("browser.persona.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.persona.platform", "Win32")
	v.SetDefault("browser.persona.languages", []string{"en-US", "en"})
	v.SetDefault("browser.persona.timezone", "America/Los_Angeles")
	v.SetDefault("browser.persona.locale", "en-US")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "15s")

	setHumanoidDefaults(v)

	// -- Workflow --
	v.SetDefault("workflow.upload_url", "https://www.tiktok.com/tiktokstudio/upload")
	v.SetDefault("workflow.upload_route", "/upload")
	v.SetDefault("workflow.default_max_stage_retries", 3)
	v.SetDefault("workflow.default_max_total_duration", "15m")
	v.SetDefault("workflow.auth.interval_min", "500ms")
	v.SetDefault("workflow.auth.interval_max", "1s")
	v.SetDefault("workflow.auth.max_attempts", 20)
	v.SetDefault("workflow.processing.interval_min", "1s")
	v.SetDefault("workflow.processing.interval_max", "2s")
	v.SetDefault("workflow.processing.max_attempts", 180)
	v.SetDefault("workflow.processing.grace_attempts", 5)
	v.SetDefault("workflow.disclosure.interval_min", "300ms")
	v.SetDefault("workflow.disclosure.interval_max", "700ms")
	v.SetDefault("workflow.disclosure.max_attempts", 10)
	v.SetDefault("workflow.publish.interval_min", "1s")
	v.SetDefault("workflow.publish.interval_max", "2s")
	v.SetDefault("workflow.publish.max_attempts", 30)
	v.SetDefault("workflow.caption_min_ratio", 0.9)
	v.SetDefault("workflow.backspace_limit", 400)
	v.SetDefault("workflow.pre_publish_delay_min", "2s")
	v.SetDefault("workflow.pre_publish_delay_max", "5s")
	v.SetDefault("workflow.scroll_fallback_px", 600.0)
	v.SetDefault("workflow.screenshot_each_stage", false)
	v.SetDefault("workflow.success_phrases", []string{
		"Your video has been uploaded",
		"Video published",
	})

	// -- Reporting --
	v.SetDefault("reporting.output_dir", "outcomes")
	v.SetDefault("reporting.stream", "")

	// -- Engine --
	v.SetDefault("engine.queue_size", 64)
	v.SetDefault("engine.max_sessions", 2)
	v.SetDefault("engine.cooldown", "10m")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("reporting.postgres_url", "REELPOST_POSTGRES_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Reporting.PostgresURL == "" {
		cfg.Reporting.PostgresURL = os.Getenv("REELPOST_POSTGRES_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	var errs []error

	switch c.Browser.Driver {
	case DriverChromedp, DriverRod:
	default:
		errs = append(errs, fmt.Errorf("browser.driver must be %q or %q, got %q", DriverChromedp, DriverRod, c.Browser.Driver))
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		errs = append(errs, errors.New("browser.viewport width and height must be positive"))
	}
	if _, err := url.ParseRequestURI(c.Workflow.UploadURL); err != nil {
		errs = append(errs, fmt.Errorf("workflow.upload_url is not a valid URL: %w", err))
	}
	if c.Workflow.UploadRoute == "" {
		errs = append(errs, errors.New("workflow.upload_route is required"))
	}
	if c.Workflow.DefaultMaxStageRetries <= 0 {
		errs = append(errs, errors.New("workflow.default_max_stage_retries must be a positive integer"))
	}
	if c.Workflow.DefaultMaxTotalDuration <= 0 {
		errs = append(errs, errors.New("workflow.default_max_total_duration must be a positive duration"))
	}
	for name, p := range map[string]PollConfig{
		"auth":       c.Workflow.Auth,
		"processing": c.Workflow.Processing,
		"disclosure": c.Workflow.Disclosure,
		"publish":    c.Workflow.Publish,
	} {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("workflow.%s: %w", name, err))
		}
	}
	if c.Workflow.CaptionMinRatio <= 0 || c.Workflow.CaptionMinRatio > 1 {
		errs = append(errs, errors.New("workflow.caption_min_ratio must be in (0, 1]"))
	}
	if c.Workflow.PrePublishDelayMax < c.Workflow.PrePublishDelayMin {
		errs = append(errs, errors.New("workflow.pre_publish_delay_max must not be below pre_publish_delay_min"))
	}
	if err := c.Humanoid.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("humanoid: %w", err))
	}

	seen := make(map[string]bool)
	for i, s := range c.Sessions {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sessions[%d].name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sessions[%d]: duplicate session name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.CookieFile == "" {
			errs = append(errs, fmt.Errorf("sessions[%d].cookie_file is required", i))
		}
	}

	if c.Engine.QueueSize <= 0 {
		errs = append(errs, errors.New("engine.queue_size must be a positive integer"))
	}
	if c.Engine.MaxSessions <= 0 {
		errs = append(errs, errors.New("engine.max_sessions must be a positive integer"))
	}
	if c.Engine.Cooldown < 0 {
		errs = append(errs, errors.New("engine.cooldown must not be negative"))
	}

	return errors.Join(errs...)
}

// Validate checks a polling budget.
func (p PollConfig) Validate() error {
	if p.MaxAttempts <= 0 {
		return errors.New("max_attempts must be a positive integer")
	}
	if p.IntervalMin < 0 || p.IntervalMax < p.IntervalMin {
		return errors.New("interval_max must be >= interval_min >= 0")
	}
	if p.GraceAttempts < 0 || p.GraceAttempts > p.MaxAttempts {
		return errors.New("grace_attempts must be within [0, max_attempts]")
	}
	return nil
}
