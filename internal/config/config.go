// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Target() TargetConfig
	Wait() WaitConfig
	Run() RunConfig
	Report() ReportConfig
	Database() DatabaseConfig
	Demo() DemoConfig

	// Run Setters
	SetRunParallelism(int)
	SetRunSuites([]string)

	// Browser Setters
	SetBrowserHeadless(bool)

	// Target Setters
	SetTargetURL(string)
	SetTargetWidget(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	TargetCfg   TargetConfig   `mapstructure:"target" yaml:"target"`
	WaitCfg     WaitConfig     `mapstructure:"wait" yaml:"wait"`
	RunCfg      RunConfig      `mapstructure:"run" yaml:"run"`
	ReportCfg   ReportConfig   `mapstructure:"report" yaml:"report"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	DemoCfg     DemoConfig     `mapstructure:"demo" yaml:"demo"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Target() TargetConfig     { return c.TargetCfg }
func (c *Config) Wait() WaitConfig         { return c.WaitCfg }
func (c *Config) Run() RunConfig           { return c.RunCfg }
func (c *Config) Report() ReportConfig     { return c.ReportCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Demo() DemoConfig         { return c.DemoCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRunParallelism(n int)   { c.RunCfg.Parallelism = n }
func (c *Config) SetRunSuites(s []string)   { c.RunCfg.Suites = s }
func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetTargetURL(u string)     { c.TargetCfg.URL = u }
func (c *Config) SetTargetWidget(w string)  { c.TargetCfg.Widget = w }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	LogsDir     string      `mapstructure:"logs_dir" yaml:"logs_dir"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how browser instances are launched. Every test gets
// its own instance built from these settings.
type BrowserConfig struct {
	Kind          string         `mapstructure:"kind" yaml:"kind"`
	ExecPath      string         `mapstructure:"exec_path" yaml:"exec_path"`
	Headless      bool           `mapstructure:"headless" yaml:"headless"`
	Args          []string       `mapstructure:"args" yaml:"args"`
	Viewport      ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	LaunchTimeout time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// ViewportConfig is the initial window size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// TargetConfig identifies the page hosting the chat widget.
type TargetConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	Widget      string        `mapstructure:"widget" yaml:"widget"`
	PageTimeout time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
}

// WaitConfig holds the polling discipline applied to every UI wait.
type WaitConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
}

// RunConfig controls scenario selection and scheduling.
type RunConfig struct {
	Parallelism int           `mapstructure:"parallelism" yaml:"parallelism"`
	Suites      []string      `mapstructure:"suites" yaml:"suites"`
	Tags        []string      `mapstructure:"tags" yaml:"tags"`
	SuiteFiles  []string      `mapstructure:"suite_files" yaml:"suite_files"`
	TestTimeout time.Duration `mapstructure:"test_timeout" yaml:"test_timeout"`
	FailFast    bool          `mapstructure:"fail_fast" yaml:"fail_fast"`
}

// ReportConfig controls the artifacts produced at the end of a run.
type ReportConfig struct {
	Dir                 string `mapstructure:"dir" yaml:"dir"`
	Title               string `mapstructure:"title" yaml:"title"`
	HTMLFile            string `mapstructure:"html_file" yaml:"html_file"`
	JSONFile            string `mapstructure:"json_file" yaml:"json_file"`
	JUnitFile           string `mapstructure:"junit_file" yaml:"junit_file"`
	ScreenshotDir       string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	ScreenshotOnFailure bool   `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
	FailurePrefix       string `mapstructure:"failure_prefix" yaml:"failure_prefix"`
}

// DatabaseConfig selects the optional run-history store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	URL    string `mapstructure:"url" yaml:"url"`
}

// DemoConfig configures the embedded demo widget server.
type DemoConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Supported values for enumerated settings.
const (
	WidgetDemo    = "demo"
	WidgetLaraigo = "laraigo"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	validWidgets      = []string{WidgetDemo, WidgetLaraigo}
	validBrowserKinds = []string{"chrome", "chromium", "edge"}
	validDrivers      = []string{"", DriverPostgres, DriverSQLite}
)

// NewDefaultConfig creates a new configuration struct populated with the
// application's default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static, so this only fails on a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults sets the default values for all configuration parameters in Viper.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chatprobe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.logs_dir", "logs")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.kind", "chrome")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.launch_timeout", "60s")

	// -- Target --
	v.SetDefault("target.url", "http://127.0.0.1:8089/")
	v.SetDefault("target.widget", WidgetDemo)
	v.SetDefault("target.page_timeout", "60s")

	// -- Wait --
	v.SetDefault("wait.timeout", "10s")
	v.SetDefault("wait.poll_interval", "100ms")
	v.SetDefault("wait.response_timeout", "60s")

	// -- Run --
	v.SetDefault("run.parallelism", 10)
	v.SetDefault("run.suites", []string{"all"})
	v.SetDefault("run.tags", []string{})
	v.SetDefault("run.suite_files", []string{})
	v.SetDefault("run.test_timeout", "5m")
	v.SetDefault("run.fail_fast", false)

	// -- Report --
	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.title", "Chat Widget Test Report")
	v.SetDefault("report.html_file", "report.html")
	v.SetDefault("report.json_file", "summary.json")
	v.SetDefault("report.junit_file", "junit.xml")
	v.SetDefault("report.screenshot_dir", "screenshots")
	v.SetDefault("report.screenshot_on_failure", true)
	v.SetDefault("report.failure_prefix", "failure")

	// -- Database --
	v.SetDefault("database.driver", "")
	v.SetDefault("database.url", "")

	// -- Demo --
	v.SetDefault("demo.addr", "127.0.0.1:8089")
}

// NewConfigFromViper unmarshals the resolved viper state (file, env, flags)
// into a validated Config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials are usually supplied through the environment only.
	_ = v.BindEnv("database.url", "CHATPROBE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and logical consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TargetCfg.URL) == "" {
		return fmt.Errorf("target.url is a required configuration field")
	}
	if !contains(validWidgets, c.TargetCfg.Widget) {
		return fmt.Errorf("target.widget must be one of %v, got %q", validWidgets, c.TargetCfg.Widget)
	}
	if strings.EqualFold(c.BrowserCfg.Kind, "firefox") {
		return fmt.Errorf("browser.kind firefox is not supported: the driver speaks the Chrome DevTools Protocol only")
	}
	if !contains(validBrowserKinds, strings.ToLower(c.BrowserCfg.Kind)) {
		return fmt.Errorf("browser.kind must be one of %v, got %q", validBrowserKinds, c.BrowserCfg.Kind)
	}
	if c.RunCfg.Parallelism <= 0 {
		return fmt.Errorf("run.parallelism must be a positive integer")
	}
	if c.WaitCfg.Timeout <= 0 {
		return fmt.Errorf("wait.timeout must be a positive duration")
	}
	if c.WaitCfg.PollInterval <= 0 {
		return fmt.Errorf("wait.poll_interval must be a positive duration")
	}
	if c.WaitCfg.ResponseTimeout <= 0 {
		return fmt.Errorf("wait.response_timeout must be a positive duration")
	}
	if !contains(validDrivers, c.DatabaseCfg.Driver) {
		return fmt.Errorf("database.driver must be one of %v, got %q", validDrivers, c.DatabaseCfg.Driver)
	}
	if c.DatabaseCfg.Driver != "" && c.DatabaseCfg.URL == "" {
		return fmt.Errorf("database.url is required when database.driver is %q", c.DatabaseCfg.Driver)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
