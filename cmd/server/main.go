package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/box3-delivery/internal/authz"
	"github.com/example/box3-delivery/internal/config"
	"github.com/example/box3-delivery/internal/delivery"
	"github.com/example/box3-delivery/internal/device"
	"github.com/example/box3-delivery/internal/escrow"
	"github.com/example/box3-delivery/internal/events"
	"github.com/example/box3-delivery/internal/geo"
	httpapi "github.com/example/box3-delivery/internal/http"
	"github.com/example/box3-delivery/internal/ledger"
	"github.com/example/box3-delivery/internal/logging"
	"github.com/example/box3-delivery/internal/pinning"
	"github.com/example/box3-delivery/internal/route"
	"github.com/example/box3-delivery/internal/storage"
	"github.com/example/box3-delivery/internal/views"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("box3-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, reg, closers, err := wire(ctx, cfg, logger)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				logger.Warn("close failed", "error", cerr)
			}
		}
	}()
	if err != nil {
		logger.Error("startup failed", "error", err)
		return
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	// hijacked websocket connections are not tracked by Shutdown
	srv.RegisterOnShutdown(reg.CloseAll)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("box3 api listening", "addr", cfg.HTTPAddr, "directions", cfg.DirectionsProvider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("box3 api stopped")
}

// wire builds the collaborators the configuration asks for, falling back to
// in-memory ones for local runs.
func wire(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*httpapi.Server, *views.Registry, []func() error, error) {
	var closers []func() error

	var orders ledger.Client
	switch {
	case cfg.LedgerViewURL != "":
		submit := cfg.LedgerSubmitURL
		if submit == "" {
			submit = cfg.LedgerViewURL
		}
		orders = ledger.NewRPCClient(cfg.LedgerViewURL, submit, cfg.LedgerContract, cfg.LedgerTimeout)
		logger.Info("using ledger rpc", "contract", cfg.LedgerContract)
	case cfg.PGDSN != "":
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, nil, closers, err
		}
		closers = append(closers, ps.Close)
		if cfg.RunMigrations {
			if err := ps.Migrate(ctx); err != nil {
				return nil, nil, closers, err
			}
			logger.Info("migration applied")
		}
		orders = ps
	default:
		logger.Warn("no ledger configured, orders live in memory")
		orders = storage.NewMemoryStore()
	}

	var index geo.Index = geo.NewMemoryIndex()
	if cfg.RedisAddr != "" {
		ri := geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		closers = append(closers, ri.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := ri.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, nearby search may fail", "error", err)
		}
		index = ri
	}

	var publisher events.Publisher = events.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, kp.Close)
		publisher = kp
	}

	var hold escrow.Escrow = escrow.Ledger{}
	if cfg.StripeAPIKey != "" {
		hold = escrow.NewStripe(cfg.StripeAPIKey, cfg.StripeCurrency, float64(cfg.StripeUnitScale))
	}

	var fetcher route.Fetcher
	switch cfg.DirectionsProvider {
	case "osrm":
		fetcher = route.NewOSRMClient(cfg.OSRMEndpoint, cfg.RouteTimeout)
	default:
		mb := route.NewMapboxClient(cfg.MapboxEndpoint, cfg.MapboxToken, cfg.RouteTimeout)
		mb.Profile = cfg.MapboxProfile
		fetcher = mb
	}
	fetcher = route.Cached(route.Instrumented(cfg.DirectionsProvider, fetcher), route.NewCache(cfg.RouteCacheTTL))

	policy, err := authz.NewDefault()
	if err != nil {
		return nil, nil, closers, err
	}

	svc := &delivery.Service{
		Ledger:          orders,
		Device:          device.NewClient(cfg.DeviceAPIURL, cfg.DeviceTimeout),
		Pinner:          pinning.NewClient(cfg.PinataAPIKey, cfg.PinataAPISecret, cfg.PinataGateway, cfg.DeviceTimeout),
		Escrow:          hold,
		Policy:          policy,
		Events:          publisher,
		Index:           index,
		Routes:          fetcher,
		DefaultSpeedMps: cfg.DefaultSpeedMps,
		Logger:          logger,
	}
	if n, err := svc.SeedIndex(ctx); err != nil {
		logger.Warn("geo index seed failed", "error", err)
	} else {
		logger.Info("geo index seeded", "orders", n)
	}
	reg := views.NewRegistry(fetcher, logger)
	api := httpapi.NewServer(svc, reg, httpapi.ViewerAuth{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}, logger)
	api.NearbyRadiusKm = cfg.NearbyRadiusKm
	api.NearbyLimit = cfg.NearbyLimit
	return api, reg, closers, nil
}
