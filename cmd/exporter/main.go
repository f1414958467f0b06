package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/developingchet/ip-location-exporter/internal/config"
	"github.com/developingchet/ip-location-exporter/internal/exporter"
	"github.com/developingchet/ip-location-exporter/internal/location"
	"github.com/developingchet/ip-location-exporter/internal/logger"
	"github.com/developingchet/ip-location-exporter/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// runtimeExporter is the subset of *exporter.Exporter the commands use.
type runtimeExporter interface {
	Run(ctx context.Context) error
	Healthy(ctx context.Context) error
	Lookup(ctx context.Context, ip string) (location.Outcome, error)
	Close()
}

// Seams replaced in tests.
var (
	loadConfig       = config.Load
	registerMetrics  = metrics.Register
	newSignalContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	}
	newRuntime = func(cfg *config.Config) (runtimeExporter, error) {
		e, err := exporter.New(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

// newRootCmd builds and returns the root cobra command. Extracted from main so
// that tests can invoke it directly without spawning a subprocess.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ip-location-exporter",
		Short: "Export the geolocation of IPs found in Prometheus",
		Long: `A Prometheus exporter that queries Prometheus for series carrying IP
addresses, resolves each address through a chain of geolocation providers and
exposes the results as ip_location metrics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	config.Flags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the exporter (same as running without a subcommand)",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "lookup <ip>",
		Short: "Resolve one IP through the provider chain and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runLookup,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "healthcheck",
		Short: "Check Prometheus connectivity (for Docker HEALTHCHECK)",
		RunE:  runHealthcheck,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ip-location-exporter %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return rootCmd
}

// flagsOf returns the parsed flags of cmd, or nil when called without one.
func flagsOf(cmd *cobra.Command) *pflag.FlagSet {
	if cmd == nil {
		return nil
	}
	return cmd.Flags()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagsOf(cmd))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	initLogging(cfg.LogLevel, cfg.LogFormat)

	registerMetrics()

	ctx, cancel := newSignalContext(context.Background())
	defer cancel()

	e, err := newRuntime(cfg)
	if err != nil {
		return fmt.Errorf("exporter init: %w", err)
	}
	defer e.Close()

	return e.Run(ctx)
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagsOf(cmd))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	initLogging(cfg.LogLevel, cfg.LogFormat)

	e, err := newRuntime(cfg)
	if err != nil {
		return fmt.Errorf("exporter init: %w", err)
	}
	defer e.Close()

	o, err := e.Lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(o.Record)
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagsOf(cmd))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	initLogging("error", cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer e.Close()
	return e.Healthy(ctx)
}

func initLogging(level string, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	redacted := logger.NewRedactWriter(os.Stderr)
	if format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: redacted})
	} else {
		log.Logger = zerolog.New(redacted).With().Timestamp().Logger()
	}

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
