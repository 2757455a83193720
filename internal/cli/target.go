package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulse-events/loadgen/internal/config"
	"github.com/pulse-events/loadgen/internal/logging"
	"github.com/pulse-events/loadgen/internal/testtarget"
)

func newTargetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Run a local ingestion endpoint emulator",
		Long: `Serve POST /events the way the ingestion service does: API key
authentication, a required Idempotency-Key header, required-field
validation and duplicate detection. Useful to smoke-test a run without the
real platform.

Examples:
  loadgen target --addr :8080
  loadgen target --rate-limit 600 --latency 20ms
  loadgen target --status 503`,
		Args: cobra.NoArgs,
		RunE: runTarget,
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "Listen address")
	flags.String("api-keys", "", "Accepted credentials as tenant:key,tenant:key (default tenant_a:key_a,tenant_b:key_b)")
	flags.Int("rate-limit", 0, "Requests per tenant per minute before answering 429 (0 disables)")
	flags.Duration("latency", 0, "Delay added before every response")
	flags.Int("status", 0, "Answer every authenticated request with this status")
	flags.Duration("idempotency-ttl", testtarget.DefaultConfig().IdempotencyTTL, "How long idempotency keys are remembered")
	return cmd
}

// targetConfig maps the flags onto an emulator configuration.
func targetConfig(cmd *cobra.Command) (testtarget.Config, error) {
	flags := cmd.Flags()
	cfg := testtarget.DefaultConfig()

	if s, _ := flags.GetString("api-keys"); s != "" {
		keys, err := config.ParseAPIKeys(s)
		if err != nil {
			return cfg, fmt.Errorf("invalid --api-keys: %w", err)
		}
		cfg.APIKeys = make(map[string]string, len(keys))
		for tenant, key := range keys {
			cfg.APIKeys[key] = tenant
		}
	}
	cfg.RateLimitPerMinute, _ = flags.GetInt("rate-limit")
	cfg.Latency, _ = flags.GetDuration("latency")
	cfg.FixedStatus, _ = flags.GetInt("status")
	cfg.IdempotencyTTL, _ = flags.GetDuration("idempotency-ttl")

	if cfg.RateLimitPerMinute < 0 {
		return cfg, fmt.Errorf("rate-limit must not be negative, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.FixedStatus != 0 && (cfg.FixedStatus < 100 || cfg.FixedStatus > 599) {
		return cfg, fmt.Errorf("status must be a valid HTTP status, got %d", cfg.FixedStatus)
	}
	return cfg, nil
}

func runTarget(cmd *cobra.Command, args []string) error {
	cfg, err := targetConfig(cmd)
	if err != nil {
		return err
	}

	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	logger, err := logging.NewWithWriter(level, format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Sync()

	addr, _ := cmd.Flags().GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           testtarget.New(cfg, testtarget.WithLogger(logger)),
		ReadHeaderTimeout: shutdownTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ingestion emulator listening",
			zap.String("addr", addr),
			zap.Int("rate_limit", cfg.RateLimitPerMinute),
			zap.Duration("latency", cfg.Latency),
			zap.Int("status", cfg.FixedStatus),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("emulator server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
