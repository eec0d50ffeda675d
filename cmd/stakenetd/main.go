package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stakenet/config"
	"stakenet/gateway"
	nativecommon "stakenet/native/common"
	"stakenet/native/referral"
	"stakenet/native/stake"
	"stakenet/observability/logging"
	"stakenet/state"
	"stakenet/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./stakenet.toml", "path to the stakenetd config file")
	flag.Parse()

	logger := logging.Setup("stakenetd", os.Getenv("STAKENET_ENV"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err.Error())
		os.Exit(1)
	}

	var db storage.Database
	if cfg.Ephemeral {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			logger.Error("open state database", "error", err.Error())
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()

	store := state.NewStore(db)
	pauses := nativecommon.NewPauseSet(cfg.PausedModules)

	treasury, treasurySet := cfg.Treasury()
	if !treasurySet {
		logger.Warn("no treasury configured; reward settlement will fail until one is set via the admin surface")
	}
	engine := stake.NewEngine(stake.ModuleAccount, treasury)
	engine.SetPauses(pauses)

	ledger := referral.NewLedger(referral.CollectorAccount, treasury)
	ledger.SetPauses(pauses)
	ledger.AddOperator(engine.ModuleAddress())
	engine.SetReferrals(ledger)

	if err := ledger.SetCommissionBps(cfg.CommissionRateBps); err != nil {
		logger.Error("configure commission rate", "error", err.Error())
		os.Exit(1)
	}
	minCommission, err := cfg.MinCommission()
	if err != nil {
		logger.Error("configure commission floor", "error", err.Error())
		os.Exit(1)
	}
	if err := ledger.SetMinWithdrawAmount(minCommission); err != nil {
		logger.Error("configure commission floor", "error", err.Error())
		os.Exit(1)
	}

	rewardRate, err := cfg.RewardRate()
	if err != nil {
		logger.Error("configure reward rate", "error", err.Error())
		os.Exit(1)
	}
	if rewardRate.Sign() > 0 {
		err = store.Update(func(tx *state.Tx) error {
			engine.SetState(tx)
			return engine.SetRewardRate(rewardRate)
		})
		if err != nil {
			logger.Error("configure reward rate", "error", err.Error())
			os.Exit(1)
		}
	}

	genesis := cfg.GenesisUnix
	blockTime := int64(cfg.BlockTimeSeconds)
	heightSource := func() uint64 {
		now := time.Now().Unix()
		if now <= genesis {
			return 0
		}
		return uint64((now - genesis) / blockTime)
	}

	server := gateway.NewServer(engine, ledger, store, pauses, gateway.Config{
		OwnerToken:       cfg.OwnerAPIToken,
		RequestsPerMin:   cfg.GatewayRequestsPerMin,
		IPRequestsPerMin: cfg.GatewayIPRequestsPerMin,
		HeightSource:     heightSource,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway stopped", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err.Error())
	}
	logger.Info("stakenetd stopped")
}
