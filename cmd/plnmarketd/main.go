package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"plnmarket/config"
	"plnmarket/core/events"
	"plnmarket/crypto"
	"plnmarket/native/credit"
	"plnmarket/native/reputation"
	"plnmarket/native/router"
	"plnmarket/native/vault"
	"plnmarket/observability/logging"
	"plnmarket/rpc"
	"plnmarket/state"
	"plnmarket/storage"
)

const (
	rpcTokenEnv     = "PLN_RPC_TOKEN"
	envNameEnv      = "PLN_ENV"
	shutdownTimeout = 10 * time.Second
)

// moduleAuthority derives the address the credit engine uses when writing to
// the reputation ledger. Deterministic, so restarts keep the same authority.
func moduleAuthority() crypto.Address {
	digest := ethcrypto.Keccak256([]byte("plnmarket/credit/authority"))
	return crypto.NewAddress(crypto.PLNPrefix, digest[12:])
}

// syncFeeRates applies the configured fee split when it differs from the
// stored one. Initialize is idempotent, so a changed TOML setting would
// otherwise be silently ignored on restart.
func syncFeeRates(engine *credit.Engine, admin crypto.Address, insuranceFeeBps, protocolFeeBps uint64) error {
	global, err := engine.Global()
	if err != nil {
		return err
	}
	if global.InsuranceFeeBps == insuranceFeeBps && global.ProtocolFeeBps == protocolFeeBps {
		return nil
	}
	return engine.UpdateFeeRates(admin, insuranceFeeBps, protocolFeeBps)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if _, err := os.Stat(*configFile); errors.Is(err, os.ErrNotExist) {
		if _, err := config.WriteDefault(*configFile); err != nil {
			panic(fmt.Sprintf("Failed to write default config: %v", err))
		}
		fmt.Printf("Wrote starter config to %s, review the generated accounts before production use\n", *configFile)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup(logging.Options{
		Service:    "plnmarketd",
		Env:        strings.TrimSpace(os.Getenv(envNameEnv)),
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)

	admin, err := cfg.AdminAddress()
	if err != nil {
		logger.Error("invalid admin address", slog.Any("error", err))
		os.Exit(1)
	}
	insurancePool, err := cfg.InsurancePoolAddress()
	if err != nil {
		logger.Error("invalid insurance pool address", slog.Any("error", err))
		os.Exit(1)
	}
	treasury, err := cfg.TreasuryAddress()
	if err != nil {
		logger.Error("invalid treasury address", slog.Any("error", err))
		os.Exit(1)
	}
	routerPool, err := cfg.RouterPoolAddress()
	if err != nil {
		logger.Error("invalid router pool address", slog.Any("error", err))
		os.Exit(1)
	}

	authority := moduleAuthority()
	emitter := events.NewLogEmitter(logger)

	vaultEngine := vault.NewEngine()
	vaultEngine.SetState(manager)
	vaultEngine.SetPauses(manager)
	vaultEngine.SetEmitter(emitter)

	reputationEngine := reputation.NewEngine()
	reputationEngine.SetState(manager)
	reputationEngine.SetPauses(manager)
	reputationEngine.SetAuthority(authority)
	reputationEngine.SetEmitter(emitter)

	routerEngine := router.NewEngine()
	routerEngine.SetState(manager)
	routerEngine.SetPauses(manager)
	routerEngine.SetCustody(vaultEngine)
	routerEngine.SetEmitter(emitter)

	creditEngine := credit.NewEngine()
	creditEngine.SetState(manager)
	creditEngine.SetPauses(manager)
	creditEngine.SetCustody(vaultEngine)
	creditEngine.SetReputation(reputationEngine, authority)
	creditEngine.SetRouterHook(router.NewHook(routerEngine, logger))
	creditEngine.SetEmitter(emitter)

	if err := manager.WithinTransaction(func() error {
		if err := creditEngine.Initialize(admin, insurancePool, treasury); err != nil {
			return err
		}
		if err := syncFeeRates(creditEngine, admin, cfg.InsuranceFeeBps, cfg.ProtocolFeeBps); err != nil {
			return err
		}
		return routerEngine.InitializeRouter(admin, routerPool)
	}); err != nil {
		logger.Error("failed to initialize modules", slog.Any("error", err))
		os.Exit(1)
	}

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		authToken = cfg.RPCAuthToken
	}
	if strings.TrimSpace(authToken) == "" {
		logger.Warn("no RPC auth token configured, admin methods are disabled")
	}

	server := rpc.NewServer(rpc.ServerConfig{
		Credit:     creditEngine,
		Reputation: reputationEngine,
		Router:     routerEngine,
		State:      manager,
		AuthToken:  authToken,
		Log:        logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("JSON-RPC server listening", "address", cfg.RPCAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("RPC server failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("plnmarketd stopped")
}
