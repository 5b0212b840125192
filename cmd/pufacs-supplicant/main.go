// pufacs-supplicant is the resource-constrained device side of PUF-ACS: it
// enrolls with an Authenticator switch, runs the three-phase handshake,
// and then transmits PUF_Performance frames carrying a rolling hash-chain
// authentication tag until the connection is lost, at which point it
// re-handshakes.
//
// Enrolment is a one-time administrative step separate from the normal
// connect loop (mirroring pufacsd's -enroll flag): run
// pufacs-supplicant -signup once per device, then run it without flags for
// normal operation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/pufacs/internal/config"
	"github.com/dantte-lp/pufacs/internal/engine"
	"github.com/dantte-lp/pufacs/internal/mac"
	pufacsmetrics "github.com/dantte-lp/pufacs/internal/metrics"
	"github.com/dantte-lp/pufacs/internal/netio"
	"github.com/dantte-lp/pufacs/internal/puf"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
	"github.com/dantte-lp/pufacs/internal/server"
	appversion "github.com/dantte-lp/pufacs/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	signUp := flag.Bool("signup", false, "run a single enrolment exchange and exit, instead of connecting")
	interval := flag.Duration("interval", time.Second, "interval between PUF_Performance frames once connected")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("pufacs-supplicant starting",
		slog.String("version", appversion.Version),
		slog.String("role", cfg.Role),
		slog.String("interface", cfg.Interface),
		slog.Bool("signup", *signUp),
	)

	if cfg.SwitchMAC == "" {
		logger.Error("switch_mac must be configured for the supplicant to know its peer")
		return 1
	}
	var switchMAC mac.MAC
	if err := switchMAC.UnmarshalText([]byte(cfg.SwitchMAC)); err != nil {
		logger.Error("invalid switch_mac", slog.String("error", err.Error()))
		return 1
	}

	conn, err := netio.NewRawConn(cfg.Interface, cfg.Network.Timeout)
	if err != nil {
		logger.Error("failed to open raw socket", slog.String("error", err.Error()))
		return 1
	}
	defer conn.Close()

	// No silicon PUF is wired up in this tree; the simulated provider,
	// keyed from configuration, stands in for it (PUF-ACS design document
	// Section 6: "the concrete PUF interface ... is deliberately out of
	// scope").
	if cfg.PUF.Seed == "" {
		logger.Error("puf.seed must be configured when using the simulated PUF provider")
		return 1
	}
	provider := puf.NewSimulatedProvider([]byte(cfg.PUF.Seed))
	crypto := pufcrypto.NewCryptoContext()

	reg := prometheus.NewRegistry()
	collector := pufacsmetrics.NewCollector(reg)

	sup := engine.NewSupplicant(conn, provider, crypto, switchMAC,
		engine.WithSupplicantLogger(logger),
		engine.WithSupplicantMetrics(collector),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *signUp {
		if err := sup.SignUp(ctx); err != nil {
			logger.Error("enrolment failed", slog.String("error", err.Error()))
			return 1
		}
		logger.Info("enrolment complete")
		return 0
	}

	if err := sup.Init(ctx); err != nil {
		logger.Error("failed to initialise supplicant", slog.String("error", err.Error()))
		return 1
	}

	if err := serve(ctx, cfg, sup, collector, reg, *interval, logger); err != nil {
		logger.Error("pufacs-supplicant exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("pufacs-supplicant stopped")
	return 0
}

// statusProvider adapts *engine.Supplicant to server.StatusProvider.
type statusProvider struct {
	sup *engine.Supplicant
}

func (p statusProvider) Status() server.Status {
	return server.Status{
		Role:      config.RoleSupplicant,
		State:     p.sup.State().String(),
		Connected: p.sup.Connected(),
	}
}

// serve runs the connect/transmit loop alongside the health and metrics
// HTTP servers under a single errgroup.
func serve(
	ctx context.Context,
	cfg *config.Config,
	sup *engine.Supplicant,
	collector *pufacsmetrics.Collector,
	reg *prometheus.Registry,
	interval time.Duration,
	logger *slog.Logger,
) error {
	healthSrv := server.NewHealthServer(cfg.Health.Addr, statusProvider{sup: sup}, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	g, gCtx := errgroup.WithContext(ctx)
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("health server listening", slog.String("addr", cfg.Health.Addr))
		return listenAndServe(gCtx, &lc, healthSrv, cfg.Health.Addr)
	})
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return connectLoop(gCtx, sup, cfg.Network.Attempts, interval, logger)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, healthSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// connectLoop handshakes, transmits PUF_Performance frames at interval
// until a transmit fails (the Authenticator side has dropped the session),
// then re-handshakes. It only returns when ctx is cancelled.
func connectLoop(ctx context.Context, sup *engine.Supplicant, attempts int, interval time.Duration, logger *slog.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := sup.Connect(ctx, attempts); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("handshake failed, retrying", slog.String("error", err.Error()))
			continue
		}
		logger.Info("connected to authenticator")

		if err := transmitUntilDropped(ctx, sup, interval, logger); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("session dropped, re-handshaking", slog.String("error", err.Error()))
		}
	}
}

func transmitUntilDropped(ctx context.Context, sup *engine.Supplicant, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	initial := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sup.Transmit(nil, initial); err != nil {
				return fmt.Errorf("transmit: %w", err)
			}
			initial = false
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown server: %w", err)
		}
	}
	return firstErr
}
