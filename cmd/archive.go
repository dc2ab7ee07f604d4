package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/course-archiver/internal/api"
	"github.com/JakeFAU/course-archiver/internal/archiver"
	"github.com/JakeFAU/course-archiver/internal/browser"
	"github.com/JakeFAU/course-archiver/internal/clock/system"
	"github.com/JakeFAU/course-archiver/internal/config"
	"github.com/JakeFAU/course-archiver/internal/hash/sha256"
	"github.com/JakeFAU/course-archiver/internal/id/uuid"
	"github.com/JakeFAU/course-archiver/internal/logging"
	"github.com/JakeFAU/course-archiver/internal/metrics"
	"github.com/JakeFAU/course-archiver/internal/policy/ratelimit"
	"github.com/JakeFAU/course-archiver/internal/progress"
	"github.com/JakeFAU/course-archiver/internal/progress/sinks"
	"github.com/JakeFAU/course-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/course-archiver/internal/storage/gcs"
	"github.com/JakeFAU/course-archiver/internal/storage/local"
	"github.com/JakeFAU/course-archiver/internal/storage/memory"
)

const shutdownTimeout = 10 * time.Second

// session is the browser the archive command drives: it logs in once and
// hands out scopes sharing that login.
type session interface {
	archiver.Browser
	Login(ctx context.Context, creds browser.Credentials) error
	Close() error
}

// newSession launches the browser. It's a variable so tests can replace it
// with a fake.
var newSession = func(cfg browser.Config, logger *zap.Logger) (session, error) {
	driver, err := browser.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// newLogger builds the command logger. Tests replace it to observe output.
var newLogger = logging.New

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <course_url>",
		Short: "Captures every page of a course",
		Long: `Logs in (when a user is given), reads the course outline and saves every
linked page into the output directory as "<n> - <title>.pdf" or ".png".
Pages that keep failing after all attempts are listed in the final summary
and do not fail the run.`,
		Args: cobra.ExactArgs(1),
		RunE: runArchiveCommand,
	}

	f := cmd.Flags()
	f.StringP("user", "u", "", "account e-mail used to log in")
	f.StringP("password", "p", "", "account password")
	f.StringP("output", "o", "Archive", "output directory")
	f.StringP("format", "f", "pdf", "artifact format: pdf or png")
	f.Float64("delay", 5, "seconds to let a page render before capture")
	f.Int("concurrency", 4, "pages captured at the same time")
	f.Int("attempts", 3, "attempts per page before it is recorded as failed")
	f.String("range", "", "capture only pages in this 1-based range, e.g. 3-7 or 5-")
	f.Bool("manifest", true, "write manifest.json next to the artifacts")
	f.String("storage", config.BackendLocal, "artifact backend: local, gcs or memory")
	f.Bool("headless", true, "run Chrome without a window")
	f.String("listen", "", "serve run status and metrics on this address, e.g. :9090")
	return cmd
}

func runArchiveCommand(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	overrides := map[string]any{"course.url": args[0]}
	if flags.Changed("delay") {
		seconds, err := flags.GetFloat64("delay")
		if err != nil {
			return err
		}
		if seconds < 0 {
			return fmt.Errorf("delay must be >= 0")
		}
		overrides["pipeline.settle_delay"] = time.Duration(seconds * float64(time.Second))
	}
	cfgPath, err := flags.GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.Options{Path: cfgPath, Flags: flags, Overrides: overrides})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rangeExpr, err := flags.GetString("range")
	if err != nil {
		return err
	}
	filter, err := parseRange(rangeExpr)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Debug("effective configuration", zap.Any("config", cfg.Redacted()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := archiveCourse(ctx, cfg, filter, logger)
	if err != nil && result.RunID == "" {
		return err
	}
	printSummary(cmd.OutOrStdout(), result)
	return err
}

// archiveCourse wires the browser, storage, progress and publisher around
// one pipeline run.
func archiveCourse(ctx context.Context, cfg config.Config, filter func([]archiver.PageDescriptor) []archiver.PageDescriptor, logger *zap.Logger) (archiver.RunResult, error) {
	run := cfg.RunConfig()

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Browser.NavigationQPS,
		DefaultBurst: 1,
		Logger:       logger.Named("ratelimit"),
	})
	browserCfg := cfg.BrowserConfig()
	browserCfg.Pacer = limiter
	sess, err := newSession(browserCfg, logger.Named("browser"))
	if err != nil {
		return archiver.RunResult{}, fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("failed to close browser", zap.Error(cerr))
		}
	}()

	if cfg.LoginEnabled() {
		if err := login(ctx, sess, cfg.Credentials(), run.Retry, logger); err != nil {
			return archiver.RunResult{}, err
		}
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return archiver.RunResult{}, err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			logger.Warn("failed to close storage", zap.Error(cerr))
		}
	}()

	registry := prometheus.NewRegistry()
	metricsSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return archiver.RunResult{}, fmt.Errorf("register metrics: %w", err)
	}
	sinkList := []progress.Sink{metricsSink}
	if cfg.Logging.Development {
		sinkList = append(sinkList, sinks.NewLogSink(logger.Named("progress")))
	}
	if cfg.Status.Listen != "" {
		status := sinks.NewStatusSink()
		sinkList = append(sinkList, status)
		stopStatus, err := startStatusServer(cfg.Status.Listen, status, registry, logger)
		if err != nil {
			return archiver.RunResult{}, err
		}
		defer stopStatus()
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, sinkList...)

	pipeline, err := archiver.NewPipeline(sess, store, run, hub, system.New(), uuid.New(), logger.Named("pipeline"))
	if err != nil {
		closeHub(hub, logger)
		return archiver.RunResult{}, fmt.Errorf("build pipeline: %w", err)
	}
	pipeline.WithHasher(sha256.New())
	if filter != nil {
		pipeline.WithFilter(filter)
	}
	if cfg.Notify.PubSubTopic != "" {
		pub, err := pubsub.Open(ctx, pubsub.Config{
			Project:    cfg.Notify.PubSubProject,
			Topic:      cfg.Notify.PubSubTopic,
			Attributes: map[string]string{"kind": "course-archive-run"},
		}, logger.Named("pubsub"))
		if err != nil {
			closeHub(hub, logger)
			return archiver.RunResult{}, fmt.Errorf("open publisher: %w", err)
		}
		defer func() {
			if cerr := pub.Close(); cerr != nil {
				logger.Warn("failed to close publisher", zap.Error(cerr))
			}
		}()
		pipeline.WithPublisher(pub)
	}

	result, runErr := pipeline.Run(ctx)
	closeHub(hub, logger)

	if cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, registry); err != nil {
			logger.Warn("failed to write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		}
	}
	return result, runErr
}

func login(ctx context.Context, sess session, creds browser.Credentials, policy archiver.RetryPolicy, logger *zap.Logger) error {
	policy = policy.WithObserver(func(a archiver.RetryAttempt) {
		logger.Warn("login failed, retrying",
			zap.Int("attempt", a.Attempt),
			zap.Int("max_attempts", a.MaxAttempts),
			zap.Error(a.Err),
		)
	})
	_, err := archiver.Retry(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sess.Login(ctx, creds)
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// openStore builds the configured artifact backend and its release func.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (archiver.Storage, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage.Backend {
	case config.BackendGCS:
		store, err := gcs.NewFromEnv(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket}, logger.Named("gcs"))
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs storage: %w", err)
		}
		return store, store.Close, nil
	case config.BackendMemory:
		return memory.New(), noop, nil
	default:
		store, err := local.New(local.Config{BaseDir: cfg.Output.Directory})
		if err != nil {
			return nil, nil, fmt.Errorf("open local storage: %w", err)
		}
		return store, noop, nil
	}
}

// startStatusServer serves the run snapshot and registry until the returned
// func is called.
func startStatusServer(addr string, status *sinks.StatusSink, registry *prometheus.Registry, logger *zap.Logger) (func(), error) {
	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, err
	}
	server := api.NewServer(status, registry, httpMetrics, logger.Named("status"))
	if err := server.Start(addr); err != nil {
		return nil, fmt.Errorf("start status server: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("failed to stop status server", zap.Error(err))
		}
	}, nil
}

func closeHub(hub *progress.Hub, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		logger.Warn("failed to flush progress events", zap.Error(err))
	}
}
