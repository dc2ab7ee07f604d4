// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/course-archiver/internal/archiver"
	"github.com/JakeFAU/course-archiver/internal/browser"
)

// Storage backends accepted by storage.backend.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all archiver configuration knobs loaded via Viper.
type Config struct {
	Course   CourseConfig   `mapstructure:"course"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Output   OutputConfig   `mapstructure:"output"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Status   StatusConfig   `mapstructure:"status"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CourseConfig locates the course and the page structure inside it.
type CourseConfig struct {
	URL           string `mapstructure:"url"`
	LoginURL      string `mapstructure:"login_url"`
	LinkSelector  string `mapstructure:"link_selector"`
	TitleSelector string `mapstructure:"title_selector"`
	TitlePrefix   string `mapstructure:"title_prefix"`
}

// AuthConfig holds the account and the login form selectors.
type AuthConfig struct {
	User             string `mapstructure:"user"`
	Password         string `mapstructure:"password"`
	EmailSelector    string `mapstructure:"email_selector"`
	PasswordSelector string `mapstructure:"password_selector"`
	SubmitSelector   string `mapstructure:"submit_selector"`
}

// OutputConfig controls where artifacts go and in which format.
type OutputConfig struct {
	Directory string `mapstructure:"directory"`
	Format    string `mapstructure:"format"`
	Manifest  bool   `mapstructure:"manifest"`
}

// PipelineConfig governs retries, concurrency and render settling.
type PipelineConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	SettleTimeout   time.Duration `mapstructure:"settle_timeout"`
	SettleSignal    string        `mapstructure:"settle_signal"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	PrettifyScripts []string      `mapstructure:"prettify_scripts"`
}

// BrowserConfig configures the headless Chrome process.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	NavigationQPS     float64       `mapstructure:"navigation_qps"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
}

// StorageConfig selects the artifact backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// NotifyConfig names the Pub/Sub topic that receives run summaries.
type NotifyConfig struct {
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// MetricsConfig controls the end-of-run metrics export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// StatusConfig controls the optional status HTTP server.
type StatusConfig struct {
	// Listen is the server address, e.g. ":9090"; empty disables it.
	Listen string `mapstructure:"listen"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Options tells Load where to look besides defaults and the environment.
type Options struct {
	// Path is an optional config file.
	Path string
	// Flags are bound by name through FlagKeys; only flags the user set
	// take precedence over the file and environment.
	Flags *pflag.FlagSet
	// Overrides win over every other source.
	Overrides map[string]any
}

// FlagKeys maps CLI flag names onto configuration keys.
var FlagKeys = map[string]string{
	"user":        "auth.user",
	"password":    "auth.password",
	"output":      "output.directory",
	"format":      "output.format",
	"manifest":    "output.manifest",
	"concurrency": "pipeline.concurrency",
	"attempts":    "pipeline.max_attempts",
	"storage":     "storage.backend",
	"headless":    "browser.headless",
	"listen":      "status.listen",
	"debug":       "logging.development",
}

// Load builds a Config from defaults, an optional file, the environment,
// flags and overrides, in increasing order of precedence.
func Load(opts Options) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultPrettifyScripts expand collapsed sections and hide page chrome
// before capture.
var DefaultPrettifyScripts = []string{
	clickAll(".show"),
	clickAll(".hideshowbottom"),
	clickAll(".discussion-show.shown"),
	hideAll("#footer-edx-v3"),
	hideAll(".course-expiration-message"),
	hideAll("#frontend-component-cookie-policy-banner"),
}

func clickAll(selector string) string {
	return fmt.Sprintf(`document.querySelectorAll(%q).forEach(function(el){ el.click(); });`, selector)
}

func hideAll(selector string) string {
	return fmt.Sprintf(`document.querySelectorAll(%q).forEach(function(el){ el.style.display = "none"; });`, selector)
}

// DefaultSettleSignal is true once MathJax has finished typesetting, and
// right away on pages without MathJax. v2 exposes a queue; v3 only a startup
// promise, so its resolution is recorded on first poll.
const DefaultSettleSignal = `(function () {
  var mj = window.MathJax;
  if (typeof mj === "undefined" || mj === null) { return true; }
  if (mj.Hub && mj.Hub.queue) { return mj.Hub.queue.pending === 0 && !mj.Hub.queue.running; }
  if (mj.startup && mj.startup.promise) {
    if (!window.__archiverTypeset) {
      window.__archiverTypeset = "pending";
      mj.startup.promise.then(function () { window.__archiverTypeset = "done"; });
    }
    return window.__archiverTypeset === "done";
  }
  return true;
})()`

func setDefaults(v *viper.Viper) {
	v.SetDefault("course.login_url", "https://courses.edx.org/login")
	v.SetDefault("course.link_selector", "a.outline-item")
	v.SetDefault("course.title_selector", ".breadcrumbs")
	v.SetDefault("course.title_prefix", "Course")
	v.SetDefault("auth.email_selector", "#login-email")
	v.SetDefault("auth.password_selector", "#login-password")
	v.SetDefault("auth.submit_selector", ".login-button")
	v.SetDefault("output.directory", "Archive")
	v.SetDefault("output.format", "pdf")
	v.SetDefault("output.manifest", true)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.settle_delay", "5s")
	v.SetDefault("pipeline.settle_timeout", "30s")
	v.SetDefault("pipeline.settle_signal", DefaultSettleSignal)
	v.SetDefault("pipeline.backoff_base", "500ms")
	v.SetDefault("pipeline.backoff_max", "10s")
	v.SetDefault("pipeline.prettify_scripts", DefaultPrettifyScripts)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.navigation_qps", 2.0)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 1024)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("notify.pubsub_project", "")
	v.SetDefault("notify.pubsub_topic", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("status.listen", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Course.URL) == "" {
		return fmt.Errorf("course.url is required")
	}
	if strings.TrimSpace(c.Course.LinkSelector) == "" {
		return fmt.Errorf("course.link_selector is required")
	}
	if (c.Auth.User == "") != (c.Auth.Password == "") {
		return fmt.Errorf("auth.user and auth.password must be set together")
	}
	if c.Auth.User != "" {
		if err := c.Credentials().Validate(); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if strings.TrimSpace(c.Output.Directory) == "" {
		return fmt.Errorf("output.directory is required")
	}
	if _, err := archiver.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.max_attempts must be > 0")
	}
	if c.Pipeline.SettleDelay < 0 {
		return fmt.Errorf("pipeline.settle_delay must be >= 0")
	}
	if c.Pipeline.SettleSignal != "" && c.Pipeline.SettleTimeout <= 0 {
		return fmt.Errorf("pipeline.settle_timeout must be > 0 when a settle signal is set")
	}
	if c.Pipeline.BackoffBase < 0 || c.Pipeline.BackoffMax < 0 {
		return fmt.Errorf("pipeline backoff durations must be >= 0")
	}
	if c.Browser.NavigationQPS < 0 {
		return fmt.Errorf("browser.navigation_qps must be >= 0")
	}
	switch c.Storage.Backend {
	case BackendLocal, BackendMemory:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend %q: expected local, gcs or memory", c.Storage.Backend)
	}
	if c.Notify.PubSubTopic != "" && c.Notify.PubSubProject == "" {
		return fmt.Errorf("notify.pubsub_project must be set when notify.pubsub_topic is set")
	}
	return nil
}

// LoginEnabled reports whether the run starts with a form login.
func (c Config) LoginEnabled() bool {
	return c.Auth.User != ""
}

// Credentials converts the auth section into browser login input.
func (c Config) Credentials() browser.Credentials {
	return browser.Credentials{
		LoginURL:         c.Course.LoginURL,
		User:             c.Auth.User,
		Password:         c.Auth.Password,
		EmailSelector:    c.Auth.EmailSelector,
		PasswordSelector: c.Auth.PasswordSelector,
		SubmitSelector:   c.Auth.SubmitSelector,
	}
}

// RunConfig builds the immutable pipeline configuration. Load has already
// validated the format, so ParseFormat cannot fail here.
func (c Config) RunConfig() archiver.RunConfig {
	format, _ := archiver.ParseFormat(c.Output.Format)
	return archiver.RunConfig{
		CourseURL:     c.Course.URL,
		OutputDir:     c.Output.Directory,
		Format:        format,
		Concurrency:   c.Pipeline.Concurrency,
		SettleDelay:   c.Pipeline.SettleDelay,
		SettleTimeout: c.Pipeline.SettleTimeout,
		SettleSignal:  c.Pipeline.SettleSignal,
		Retry: archiver.RetryPolicy{
			MaxAttempts: c.Pipeline.MaxAttempts,
			Backoff:     archiver.ExponentialBackoff(c.Pipeline.BackoffBase, c.Pipeline.BackoffMax),
		},
		Selectors: archiver.Selectors{
			Link:        c.Course.LinkSelector,
			Title:       c.Course.TitleSelector,
			TitlePrefix: c.Course.TitlePrefix,
		},
		PrettifyScripts: append([]string(nil), c.Pipeline.PrettifyScripts...),
		WriteManifest:   c.Output.Manifest,
	}
}

// BrowserConfig builds the driver configuration. The pacer is attached by
// the caller.
func (c Config) BrowserConfig() browser.Config {
	return browser.Config{
		Headless:          c.Browser.Headless,
		NoSandbox:         c.Browser.NoSandbox,
		UserAgent:         c.Browser.UserAgent,
		NavigationTimeout: c.Browser.NavigationTimeout,
		WindowWidth:       c.Browser.WindowWidth,
		WindowHeight:      c.Browser.WindowHeight,
		MaxTabs:           c.Pipeline.Concurrency,
	}
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	if c.Auth.Password != "" {
		c.Auth.Password = "********"
	}
	c.Pipeline.PrettifyScripts = append([]string(nil), c.Pipeline.PrettifyScripts...)
	return c
}
