package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tokensale/config"
	"tokensale/core/events"
	"tokensale/gateway/middleware"
	"tokensale/native/sale"
	"tokensale/observability"
	"tokensale/observability/logging"
	"tokensale/rpc"
	"tokensale/state"
	"tokensale/storage"
)

const envVar = "SALED_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: run against an in-memory store")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("saled", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	gen, err := config.LoadGenesis(cfg.GenesisFile)
	if err != nil {
		logger.Error("failed to load genesis", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			logger.Error("failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
		db = leveldb
	}
	defer db.Close()

	mgr := state.NewManager(db)
	genesisState, err := gen.State()
	if err != nil {
		logger.Error("invalid genesis", slog.Any("error", err))
		os.Exit(1)
	}
	if err := mgr.SeedGenesis(genesisState); err != nil {
		logger.Error("failed to seed genesis", slog.Any("error", err))
		os.Exit(1)
	}

	treasury, err := gen.TreasuryAddress()
	if err != nil {
		logger.Error("invalid treasury address", slog.Any("error", err))
		os.Exit(1)
	}
	vault, err := gen.VaultAddress()
	if err != nil {
		logger.Error("invalid vault address", slog.Any("error", err))
		os.Exit(1)
	}

	engine := sale.NewEngine(mgr.SaleBackend())
	engine.SetTreasury(treasury)
	engine.SetVault(vault)
	engine.SetPaymentToken(gen.PaymentToken)

	var emitter events.Emitter = observability.NewMetricsEmitter(nil)
	var audit *observability.AuditSink
	if path := strings.TrimSpace(cfg.AuditLogPath); path != "" {
		audit = observability.NewAuditSink(path, emitter, logger)
		emitter = audit
		defer audit.Close()
	}
	engine.SetEmitter(emitter)

	var auth *middleware.Authenticator
	if secret := strings.TrimSpace(cfg.AuthSecret); secret != "" {
		auth = middleware.NewAuthenticator(secret)
	} else {
		logger.Warn("AuthSecret not configured; deposit and admin endpoints are disabled")
	}
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
	}, logger)

	server := rpc.NewServer(engine, mgr, auth, limiter, logger)
	httpServer := &http.Server{Addr: cfg.ListenAddress, Handler: server.Router()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sale RPC listening", slog.String("addr", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
