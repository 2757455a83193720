package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulse-events/loadgen/internal/config"
	"github.com/pulse-events/loadgen/internal/dispatch"
	"github.com/pulse-events/loadgen/internal/event"
	lhttp "github.com/pulse-events/loadgen/internal/http"
	"github.com/pulse-events/loadgen/internal/loadgen"
	"github.com/pulse-events/loadgen/internal/logging"
	"github.com/pulse-events/loadgen/internal/metrics"
	"github.com/pulse-events/loadgen/internal/output"
	"github.com/pulse-events/loadgen/internal/random"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate traffic against an ingestion endpoint",
		Long: `Send events to the ingestion endpoint at a fixed rate for a fixed time.

Each request picks a tenant at random, replays a recent idempotency key with
probability --duplicate-rate and drops a required field from the event with
probability --bad-rate. Responses are classified by status code:
202 (success or duplicate), 429 (rate limited), 400 (bad request), anything
else or a transport failure (error).

Examples:
  loadgen run --url http://localhost:8080/events --rps 100 --minutes 5
  loadgen run --config run.yaml --json report.json
  loadgen run --duration 30s --concurrency 8 --metrics-addr :9102`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			return runLoad(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Configuration file (YAML or JSON)")
	flags.String("url", config.DefaultURL, "Ingestion endpoint URL")
	flags.Int("rps", config.DefaultRPS, "Requests per second")
	flags.Int("minutes", int(config.DefaultDuration/time.Minute), "Duration in minutes")
	flags.String("duration", "", "Duration as a Go duration (e.g. 30s), overrides --minutes")
	flags.Float64("duplicate-rate", config.DefaultDuplicateRate, "Fraction of requests replaying a recent idempotency key")
	flags.Float64("bad-rate", config.DefaultBadRate, "Fraction of requests carrying a malformed event")
	flags.String("tenants", "tenant_a,tenant_b", "Comma-separated tenant names")
	flags.String("api-keys", "", "Credentials as tenant:key,tenant:key (merged over the defaults)")
	flags.DurationP("timeout", "t", config.DefaultTimeout, "Request timeout")
	flags.Bool("insecure", false, "Skip TLS certificate verification of the target")
	flags.Bool("no-keepalive", false, "Open a new connection for every request")
	flags.Uint64("seed", 0, "Random seed for a reproducible run (0 picks one)")
	flags.Int("concurrency", config.DefaultConcurrency, "Maximum in-flight requests")
	flags.Int("progress-every", config.DefaultProgressEvery, "Ticks between progress updates")
	flags.Int("key-pool-size", config.DefaultKeyPoolSize, "Recent idempotency keys kept for replay")
	flags.String("json", "", "Write the final summary as JSON to this file")
	flags.String("html", "", "Write the final summary as an HTML page to this file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9102)")
	flags.BoolP("quiet", "q", false, "Disable live progress output, show only the final summary")
	flags.Bool("no-color", false, "Disable colored output")

	return cmd
}

// buildConfig starts from the defaults or the --config file and applies
// every flag set on the command line.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Defaults()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("url") {
		cfg.URL, _ = flags.GetString("url")
	}
	if flags.Changed("rps") {
		cfg.RPS, _ = flags.GetInt("rps")
	}
	if flags.Changed("minutes") {
		minutes, _ := flags.GetInt("minutes")
		cfg.Duration = config.Duration(time.Duration(minutes) * time.Minute)
	}
	if flags.Changed("duration") {
		s, _ := flags.GetString("duration")
		d, err := config.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.Duration = config.Duration(d)
	}
	if flags.Changed("duplicate-rate") {
		cfg.DuplicateRate, _ = flags.GetFloat64("duplicate-rate")
	}
	if flags.Changed("bad-rate") {
		cfg.BadRate, _ = flags.GetFloat64("bad-rate")
	}
	if flags.Changed("tenants") {
		s, _ := flags.GetString("tenants")
		cfg.Tenants = config.ParseTenants(s)
	}
	if flags.Changed("api-keys") {
		s, _ := flags.GetString("api-keys")
		keys, err := config.ParseAPIKeys(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --api-keys: %w", err)
		}
		if cfg.APIKeys == nil {
			cfg.APIKeys = make(map[string]string, len(keys))
		}
		for tenant, key := range keys {
			cfg.APIKeys[tenant] = key
		}
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		cfg.Timeout = config.Duration(d)
	}
	if flags.Changed("insecure") {
		cfg.Insecure, _ = flags.GetBool("insecure")
	}
	if flags.Changed("no-keepalive") {
		cfg.DisableKeepAlives, _ = flags.GetBool("no-keepalive")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("progress-every") {
		cfg.ProgressEvery, _ = flags.GetInt("progress-every")
	}
	if flags.Changed("key-pool-size") {
		cfg.KeyPoolSize, _ = flags.GetInt("key-pool-size")
	}
	if flags.Changed("json") {
		cfg.Output.JSONFile, _ = flags.GetString("json")
	}
	if flags.Changed("html") {
		cfg.Output.HTMLFile, _ = flags.GetString("html")
	}
	if flags.Changed("metrics-addr") {
		cfg.Output.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("quiet") {
		cfg.Output.Quiet, _ = flags.GetBool("quiet")
	}
	if flags.Changed("no-color") {
		cfg.Output.NoColor, _ = flags.GetBool("no-color")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}

	return cfg, nil
}

func runLoad(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewWithWriter(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Seed == 0 {
		cfg.Seed = random.NewSeed()
	}
	info := runInfo(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  cmd.OutOrStdout(),
		Quiet:   cfg.Output.Quiet,
		NoColor: cfg.Output.NoColor,
	})
	reporters := output.Multi{interruptNotice{ctx: ctx, console: console}, console}

	var jsonFile *output.JSONFile
	if cfg.Output.JSONFile != "" {
		jsonFile = output.NewJSONFile(cfg.Output.JSONFile, info, logger)
		reporters = append(reporters, jsonFile)
	}
	var htmlFile *output.HTMLFile
	if cfg.Output.HTMLFile != "" {
		htmlFile = output.NewHTMLFile(cfg.Output.HTMLFile, info, logger)
		reporters = append(reporters, htmlFile)
	}

	client := newClient(cfg)
	defer client.CloseIdleConnections()

	validator, err := event.NewValidator()
	if err != nil {
		return err
	}
	collector := metrics.NewCollector()
	dispatcher := dispatch.New(client, cfg.URL, cfg.Credentials(), dispatch.WithLogger(logger))

	sched, err := loadgen.New(cfg, dispatcher, reporters,
		loadgen.WithLogger(logger),
		loadgen.WithObserver(collector),
		loadgen.WithValidator(validator),
	)
	if err != nil {
		return err
	}

	console.PrintHeader(info)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancelRun()
		_, err := sched.Run(gctx)
		return err
	})

	if cfg.Output.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Output.MetricsAddr,
			Handler:           metricsRouter(collector),
			ReadHeaderTimeout: shutdownTimeout,
		}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", cfg.Output.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if jsonFile != nil && jsonFile.Err() != nil {
		return jsonFile.Err()
	}
	if htmlFile != nil {
		return htmlFile.Err()
	}
	return nil
}

// transportConfig sizes the connection pool to the in-flight cap.
func transportConfig(cfg *config.Config) lhttp.TransportConfig {
	transport := lhttp.DefaultTransportConfig()
	if cfg.Concurrency > transport.MaxIdleConnsPerHost {
		transport.MaxIdleConns = cfg.Concurrency
		transport.MaxIdleConnsPerHost = cfg.Concurrency
	}
	transport.MaxConnsPerHost = cfg.Concurrency
	transport.DisableKeepAlives = cfg.DisableKeepAlives
	transport.InsecureSkipVerify = cfg.Insecure
	return transport
}

func newClient(cfg *config.Config) *lhttp.Client {
	return lhttp.NewClient(
		lhttp.WithTimeout(cfg.Timeout.Std()),
		lhttp.WithTransport(transportConfig(cfg)),
		lhttp.WithHeader("User-Agent", "loadgen/"+version),
		lhttp.WithPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		)),
	)
}

func runInfo(cfg *config.Config) output.RunInfo {
	return output.RunInfo{
		RunID:         uuid.NewString(),
		URL:           cfg.URL,
		Tenants:       cfg.Tenants,
		RPS:           cfg.RPS,
		Duration:      cfg.Duration.Std(),
		DuplicateRate: cfg.DuplicateRate,
		BadRate:       cfg.BadRate,
		Concurrency:   cfg.Concurrency,
		Seed:          cfg.Seed,
	}
}

func metricsRouter(collector *metrics.Collector) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", collector.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// interruptNotice prints a notice ahead of the final report when the run
// was stopped by a signal.
type interruptNotice struct {
	ctx     context.Context
	console *output.Console
}

func (n interruptNotice) OnProgress(metrics.Progress) {}

func (n interruptNotice) OnFinal(metrics.Summary) {
	if n.ctx.Err() != nil {
		n.console.PrintInterrupted()
	}
}
