// pufacsd is the Authenticator daemon: it runs on the edge switch, accepts
// PUF-ACS handshakes from Supplicants, validates PUF_Performance frames,
// and serves health/metrics endpoints for operators.
//
// Enrolment is a separate administrative operation from the accept-serving
// loop (PUF-ACS design document Section 4.5.1, Phase 0b, following the
// original implementation's separate Authenticator::sign_up entry point):
// run pufacsd -enroll to register one Supplicant's REGISTER frame, or run
// it without flags to serve the accept loop continuously.
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
	"runtime/trace"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/pufacs/internal/config"
	"github.com/dantte-lp/pufacs/internal/credstore"
	"github.com/dantte-lp/pufacs/internal/engine"
	"github.com/dantte-lp/pufacs/internal/mac"
	pufacsmetrics "github.com/dantte-lp/pufacs/internal/metrics"
	"github.com/dantte-lp/pufacs/internal/netio"
	"github.com/dantte-lp/pufacs/internal/packet"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
	"github.com/dantte-lp/pufacs/internal/server"
	appversion "github.com/dantte-lp/pufacs/internal/version"
)

// shutdownTimeout bounds how long the health/metrics HTTP servers are
// given to drain on graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge and flightRecorderMaxBytes size the rolling
// post-mortem execution trace kept for debugging handshake failures.
const (
	flightRecorderMinAge   = 500 * time.Millisecond
	flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	enroll := flag.Bool("enroll", false, "run a single enrolment exchange and exit, instead of serving the accept loop")
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

	logger.Info("pufacsd starting",
		slog.String("version", appversion.Version),
		slog.String("role", cfg.Role),
		slog.String("interface", cfg.Interface),
		slog.String("health_addr", cfg.Health.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Bool("enroll", *enroll),
	)

	switchMAC, err := resolveSwitchMAC(cfg)
	if err != nil {
		logger.Error("failed to resolve switch MAC", slog.String("error", err.Error()))
		return 1
	}

	store := credstore.New(credstore.WithLogger(logger))
	if err := store.Fetch(cfg.Credential.Path); err != nil {
		logger.Error("failed to load credential store", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if err := store.Sync(cfg.Credential.Path); err != nil {
			logger.Error("failed to persist credential store", slog.String("error", err.Error()))
		}
	}()

	conn, err := netio.NewRawConn(cfg.Interface, cfg.Network.Timeout)
	if err != nil {
		logger.Error("failed to open raw socket", slog.String("error", err.Error()))
		return 1
	}
	defer conn.Close()

	reg := prometheus.NewRegistry()
	collector := pufacsmetrics.NewCollector(reg)
	collector.SetCredentialStoreSize(store.Len())

	crypto := pufcrypto.NewCryptoContext()
	auth := engine.NewAuthenticator(conn, store, crypto, switchMAC,
		engine.WithAuthenticatorLogger(logger),
		engine.WithAuthenticatorMetrics(collector),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := auth.Init(ctx); err != nil {
		logger.Error("failed to initialise authenticator", slog.String("error", err.Error()))
		return 1
	}

	if *enroll {
		if err := auth.SignUp(ctx); err != nil {
			logger.Error("enrolment failed", slog.String("error", err.Error()))
			return 1
		}
		collector.SetCredentialStoreSize(store.Len())
		if err := store.Sync(cfg.Credential.Path); err != nil {
			logger.Error("failed to persist credential store after enrolment", slog.String("error", err.Error()))
			return 1
		}
		logger.Info("enrolment complete")
		return 0
	}

	fr := startFlightRecorder(logger)
	defer func() {
		if fr != nil {
			fr.Stop()
		}
	}()

	if err := serve(ctx, cfg, conn, auth, store, collector, reg, logger); err != nil {
		logger.Error("pufacsd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("pufacsd stopped")
	return 0
}

// statusProvider adapts *engine.Authenticator to server.StatusProvider.
type statusProvider struct {
	auth  *engine.Authenticator
	store *credstore.Store
}

func (p statusProvider) Status() server.Status {
	n := len(p.store.Snapshot())
	return server.Status{
		Role:              config.RoleAuthenticator,
		State:             connectedState(p.auth.Connected()),
		Connected:         p.auth.Connected(),
		CredentialEntries: &n,
	}
}

func connectedState(connected bool) string {
	if connected {
		return "CONNECTED"
	}
	return "IDLE"
}

// serve runs the accept loop alongside the health and metrics HTTP
// servers under a single errgroup, shutting all three down together when
// ctx is cancelled.
func serve(
	ctx context.Context,
	cfg *config.Config,
	conn netio.Network,
	auth *engine.Authenticator,
	store *credstore.Store,
	collector *pufacsmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
) error {
	healthSrv := server.NewHealthServer(cfg.Health.Addr, statusProvider{auth: auth, store: store}, logger)
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
		return acceptLoop(gCtx, conn, auth, store, cfg, collector, logger)
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

// acceptLoop repeatedly waits for a PUF_CON frame, runs the handshake to
// completion, and then validates PUF_Performance frames from the newly
// connected Supplicant until the link drops, at which point it resumes
// waiting for the next PUF_CON.
func acceptLoop(ctx context.Context, conn netio.Network, auth *engine.Authenticator, store *credstore.Store, cfg *config.Config, collector *pufacsmetrics.Collector, logger *slog.Logger) error {
	buf := make([]byte, packet.PerformanceMax)
	initial := true

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := receiveFrame(ctx, conn, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("receive failed, continuing", slog.String("error", err.Error()))
			continue
		}

		switch packet.Classify(frame) {
		case packet.KindPUFCon:
			if err := auth.Accept(ctx, frame); err != nil {
				logger.Warn("handshake failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("supplicant connected")
			collector.SetCredentialStoreSize(store.Len())
			if err := store.Sync(cfg.Credential.Path); err != nil {
				logger.Error("failed to persist credential store", slog.String("error", err.Error()))
			}
			initial = true

		case packet.KindPerformance:
			perf, err := packet.DecodePerformance(frame)
			if err != nil {
				logger.Warn("malformed performance frame", slog.String("error", err.Error()))
				continue
			}
			if !auth.Validate(perf, initial) {
				logger.Warn("performance frame rejected", slog.String("src_mac", perf.SrcMAC.String()))
				continue
			}
			initial = false

		default:
			logger.Debug("ignoring unrecognised frame")
		}
	}
}

// receiveFrame reads one raw frame from conn. The daemon holds its own
// reference to the transport (shared with auth) so it can dispatch on
// frame kind across connection attempts, something engine.Authenticator
// deliberately does not expose.
func receiveFrame(ctx context.Context, conn netio.Network, buf []byte) ([]byte, error) {
	n, err := conn.Receive(ctx, buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

func resolveSwitchMAC(cfg *config.Config) (mac.MAC, error) {
	if cfg.SwitchMAC != "" {
		var m mac.MAC
		err := m.UnmarshalText([]byte(cfg.SwitchMAC))
		return m, err
	}
	raw, err := netio.InterfaceMAC(cfg.Interface)
	if err != nil {
		return mac.MAC{}, fmt.Errorf("discover switch MAC from %s: %w", cfg.Interface, err)
	}
	return mac.FromBytes(raw[:])
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

func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})
	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)
	return fr
}
