package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"heritagecoffee/internal/util"
	"heritagecoffee/pkg/apiclient"
	"heritagecoffee/services/storefront/internal/app"
	"heritagecoffee/services/storefront/internal/config"
)

type env struct {
	cfg     config.FileConfig
	dur     config.Durations
	logger  *slog.Logger
	metrics *apiclient.Metrics
	out     io.Writer
	in      io.Reader
	app     *app.App
}

type command struct {
	name    string
	usage   string
	offline bool
	run     func(ctx context.Context, e *env, args []string) error
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code. Everything it
// opens is closed before it returns.
func run(argv []string, in io.Reader, out, errOut io.Writer) int {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "path to config.yaml (defaults to $STOREFRONT_CONFIG or ./config.yaml)")
	fs.Usage = func() { usage(errOut) }
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return 1
	}
	durations, err := cfg.Durations()
	if err != nil {
		fmt.Fprintf(errOut, "failed to parse durations: %v\n", err)
		return 1
	}
	logger := util.InitLogger(cfg.LogLevel, errOut)

	args := fs.Args()
	if len(args) == 0 {
		args = []string{"shell"}
	}
	cmd, ok := commands()[args[0]]
	if !ok {
		fmt.Fprintf(errOut, "unknown command %q\n\n", args[0])
		usage(errOut)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{cfg: cfg, dur: durations, logger: logger, out: out, in: in}
	e.metrics = startMetrics(ctx, cfg.MetricsAddr, logger)

	if !cmd.offline {
		a, err := app.New(ctx, app.Config{
			APIBaseURL:     cfg.APIBaseURL,
			RequestTimeout: durations.RequestTimeout,
			AcceptLanguage: cfg.AcceptLanguage,
			ClientVersion:  cfg.ClientVersion,
			SearchDebounce: durations.SearchDebounce,
			Storage: app.StorageConfig{
				Driver:        cfg.StorageDriver,
				Dir:           cfg.StorageDir,
				SQLitePath:    cfg.SQLitePath,
				PollInterval:  durations.PollInterval,
				RedisAddr:     cfg.RedisAddr,
				RedisPassword: cfg.RedisPassword,
				RedisDB:       cfg.RedisDB,
				RedisPrefix:   cfg.RedisPrefix,
			},
			Metrics: e.metrics,
			Logger:  logger,
		})
		if err != nil {
			fmt.Fprintf(errOut, "failed to init app: %v\n", err)
			return 1
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn("close app", "err", err)
			}
		}()
		if err := a.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(errOut, "failed to start app: %v\n", err)
			return 1
		}
		e.app = a
	}

	if err := cmd.run(ctx, e, args[1:]); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

// startMetrics serves Prometheus metrics on addr when it is set.
func startMetrics(ctx context.Context, addr string, logger *slog.Logger) *apiclient.Metrics {
	if addr == "" {
		return apiclient.NewMetrics(nil)
	}
	reg := prometheus.NewRegistry()
	metrics := apiclient.NewMetrics(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return metrics
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: storefront [-config path] <command> [args]\n\ncommands:\n")
	for _, name := range commandNames() {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands()[name].usage)
	}
}
